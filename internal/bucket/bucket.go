// Package bucket keeps the N highest-weighted keys seen so far.
//
// A Bucket is a fixed-capacity min-heap: the root is the entry that would be
// evicted next. Ties on weight are broken by insertion order, earlier
// insertions being retained, so the outcome of any Add sequence is deterministic.
package bucket

import "container/heap"

// Entry is a retained key with its weight.
type Entry[K comparable] struct {
	Key    K
	Weight int64
}

type item[K comparable] struct {
	Entry[K]
	seq   uint64
	index int
}

// Bucket retains at most Capacity entries with the highest weights.
// It is not safe for concurrent use.
type Bucket[K comparable] struct {
	capacity int
	seq      uint64
	items    minHeap[K]
	byKey    map[K]*item[K]
}

// New returns an empty bucket. A capacity below zero is treated as zero.
func New[K comparable](capacity int) *Bucket[K] {
	if capacity < 0 {
		capacity = 0
	}
	return &Bucket[K]{
		capacity: capacity,
		byKey:    make(map[K]*item[K], capacity),
	}
}

// Add offers key with weight and reports whether key is retained afterwards.
//
// A key already retained keeps its insertion order and takes the larger of
// its old and new weight. A new key is inserted while there is room;
// once full it replaces the minimum only if its weight is strictly greater.
func (b *Bucket[K]) Add(key K, weight int64) bool {
	if it, ok := b.byKey[key]; ok {
		if weight > it.Weight {
			it.Weight = weight
			heap.Fix(&b.items, it.index)
		}
		return true
	}
	if b.capacity == 0 {
		return false
	}

	if len(b.items) >= b.capacity {
		lowest := b.items[0]
		if weight <= lowest.Weight {
			return false
		}
		heap.Pop(&b.items)
		delete(b.byKey, lowest.Key)
	}

	b.seq++
	it := &item[K]{Entry: Entry[K]{Key: key, Weight: weight}, seq: b.seq}
	heap.Push(&b.items, it)
	b.byKey[key] = it
	return true
}

// Entries returns the retained entries in no particular order.
func (b *Bucket[K]) Entries() []Entry[K] {
	out := make([]Entry[K], 0, len(b.items))
	for _, it := range b.items {
		out = append(out, it.Entry)
	}
	return out
}

// Contains reports whether key is currently retained.
func (b *Bucket[K]) Contains(key K) bool {
	_, ok := b.byKey[key]
	return ok
}

// Min returns the entry that the next competing Add would evict.
func (b *Bucket[K]) Min() (Entry[K], bool) {
	if len(b.items) == 0 {
		return Entry[K]{}, false
	}
	return b.items[0].Entry, true
}

// Len returns the number of retained entries.
func (b *Bucket[K]) Len() int { return len(b.items) }

// Capacity returns the maximum number of retained entries.
func (b *Bucket[K]) Capacity() int { return b.capacity }

// minHeap orders by weight ascending, then by insertion descending, so the
// latest-inserted of the lowest weights sits at the root.
type minHeap[K comparable] []*item[K]

func (h minHeap[K]) Len() int { return len(h) }

func (h minHeap[K]) Less(i, j int) bool {
	if h[i].Weight != h[j].Weight {
		return h[i].Weight < h[j].Weight
	}
	return h[i].seq > h[j].seq
}

func (h minHeap[K]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *minHeap[K]) Push(x any) {
	it := x.(*item[K])
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *minHeap[K]) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}
