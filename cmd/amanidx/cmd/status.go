package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
	"github.com/Aman-CERP/amanidx/internal/joblog"
	"github.com/Aman-CERP/amanidx/internal/output"
)

type statusOptions struct {
	indexID   string
	requester string
	outcome   string
	limit     int
	jsonOut   bool
}

// statusReport is the JSON output of the status command.
type statusReport struct {
	DataDir string          `json:"data_dir"`
	Indexes []string        `json:"indexes"`
	Jobs    []joblog.Record `json:"jobs"`
}

func newStatusCmd(root *rootOptions) *cobra.Command {
	opts := &statusOptions{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show indexes and recent job outcomes",
		Long: `Status lists the indexes below the data directory and the most recent
jobs from the job log. By default only failed jobs are shown.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := runStatus(cmd, root, opts)
			if opts.jsonOut {
				return writeJSONError(cmd, err)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&opts.indexID, "index", "", "Only jobs of this index")
	cmd.Flags().StringVar(&opts.requester, "requester", "", "Only jobs of this requester")
	cmd.Flags().StringVar(&opts.outcome, "outcome", "failed", "Job outcome: failed, done, abandoned or all")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 20, "Maximum number of jobs")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Output as JSON")

	return cmd
}

func runStatus(cmd *cobra.Command, root *rootOptions, opts *statusOptions) (err error) {
	filter := joblog.Filter{IndexID: opts.indexID, Requester: opts.requester, Limit: opts.limit}
	switch o := joblog.Outcome(opts.outcome); o {
	case joblog.OutcomeFailed, joblog.OutcomeDone, joblog.OutcomeAbandoned:
		filter.Outcome = o
	case "all":
	default:
		return amerrors.New(amerrors.ErrCodeInvalidInput,
			fmt.Sprintf("invalid outcome %q, expected failed, done, abandoned or all", opts.outcome), nil)
	}

	indexes, err := listIndexes(root.cfg.DataDir)
	if err != nil {
		return err
	}

	store, err := openJobLog(root.cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	records, err := store.List(cmd.Context(), filter)
	if err != nil {
		return err
	}

	report := statusReport{DataDir: root.cfg.DataDir, Indexes: indexes, Jobs: records}
	if opts.jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	out := output.New(cmd.OutOrStdout())
	out.Header("Indexes")
	if len(report.Indexes) == 0 {
		out.Status("", "none")
	}
	for _, id := range report.Indexes {
		out.Status("", id)
	}
	out.Newline()
	out.Header(fmt.Sprintf("Jobs (%s)", opts.outcome))
	if len(report.Jobs) == 0 {
		out.Status("", "none")
	}
	for _, r := range report.Jobs {
		line := fmt.Sprintf("%s  %-9s %s/%s  %s:%s",
			r.Finished.Format(time.DateTime), r.Outcome, r.IndexID, r.Requester, r.ContentType, r.ContentKey)
		switch r.Outcome {
		case joblog.OutcomeFailed:
			out.Errorf("%s  %s", line, r.Message)
		case joblog.OutcomeAbandoned:
			out.Warning(line)
		default:
			out.Success(line)
		}
	}
	return nil
}

// listIndexes returns the sorted ids of the on-disk indexes.
func listIndexes(dataDir string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(dataDir, "indexes"))
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeIOFailure, "failed to list indexes", err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}
