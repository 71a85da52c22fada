// Package watcher turns changes below a content directory into index jobs.
//
// A DirWatcher reports debounced batches of file events, using fsnotify
// and falling back to polling where fsnotify is unavailable (network
// mounts, some container volumes). A Feeder maps each event to the content
// id of the file and enqueues an index job for it; removed files are
// enqueued too, the directory fetcher turns them into deletions.
//
//	w, err := watcher.New(watcher.DefaultOptions(), logger)
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//	go w.Start(ctx, fetcher.Root())
//	return feeder.Run(ctx, w.Events(), manager)
package watcher
