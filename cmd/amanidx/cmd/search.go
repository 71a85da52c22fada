package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"

	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
	"github.com/Aman-CERP/amanidx/internal/output"
	"github.com/Aman-CERP/amanidx/internal/query"
)

type searchOptions struct {
	indexID string
	field   string
	terms   []string
	orTerms []string
	sort    string
	limit   int
	skip    int
	format  string
}

// searchResult is the JSON output of the search command.
type searchResult struct {
	Index      string      `json:"index"`
	Query      string      `json:"query"`
	Total      uint64      `json:"total"`
	Generation uint64      `json:"generation"`
	Hits       []searchHit `json:"hits"`
}

type searchHit struct {
	ID     string              `json:"id"`
	Score  float64             `json:"score"`
	Fields map[string][]string `json:"fields"`
}

func newSearchCmd(root *rootOptions) *cobra.Command {
	opts := &searchOptions{}

	cmd := &cobra.Command{
		Use:   "search [text]",
		Short: "Search an index",
		Long: `Search the committed documents of an index.

Words of text must all occur in --field; a double-quoted part matches as a
phrase. --term adds field:value conditions that must all match as well.
--or-term conditions form an alternative: a document matches either the
first group or all --or-term conditions.`,
		Example: `  amanidx search --index docs 'scheduler "per index lock"'
  amanidx search --index docs --term uri:notes/todo.txt
  amanidx search --index docs --term collection:a --or-term collection:b --sort index`,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := runSearch(cmd.Context(), cmd, root, opts, strings.Join(args, " "))
			if opts.format == "json" {
				return writeJSONError(cmd, err)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&opts.indexID, "index", "default", "Index to search")
	cmd.Flags().StringVar(&opts.field, "field", "content", "Field searched by the text argument")
	cmd.Flags().StringArrayVar(&opts.terms, "term", nil, "Condition as field:value (repeatable)")
	cmd.Flags().StringArrayVar(&opts.orTerms, "or-term", nil, "Alternative condition as field:value (repeatable)")
	cmd.Flags().StringVar(&opts.sort, "sort", "score", "Result order: score or index")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of hits")
	cmd.Flags().IntVar(&opts.skip, "skip", 0, "Number of hits to skip")
	cmd.Flags().StringVar(&opts.format, "format", "text", "Output format: text or json")

	return cmd
}

// buildQuery turns the command line into a query.
func buildQuery(opts *searchOptions, text string) (query.Query, error) {
	var order []string
	switch opts.sort {
	case "score", "":
		order = query.ByScore
	case "index":
		order = query.IndexOrder
	default:
		return nil, amerrors.New(amerrors.ErrCodeInvalidInput,
			fmt.Sprintf("invalid sort %q, expected score or index", opts.sort), nil)
	}

	var terms []query.Term
	for _, v := range query.ToValues(text) {
		terms = append(terms, query.Term{Field: opts.field, Value: v})
	}
	for _, s := range opts.terms {
		t, err := query.ParseTerm(s)
		if err != nil {
			return nil, err
		}
		terms = append(terms, t)
	}
	q := query.NewGeneric(order, terms...)
	if len(opts.orTerms) == 0 {
		return q, nil
	}

	var alt []query.Term
	for _, s := range opts.orTerms {
		t, err := query.ParseTerm(s)
		if err != nil {
			return nil, err
		}
		alt = append(alt, t)
	}
	return query.NewCombined(q, query.NewGeneric(order, alt...), order), nil
}

func runSearch(ctx context.Context, cmd *cobra.Command, root *rootOptions, opts *searchOptions, text string) (err error) {
	if opts.format != "text" && opts.format != "json" {
		return amerrors.New(amerrors.ErrCodeInvalidInput,
			fmt.Sprintf("invalid format %q, expected text or json", opts.format), nil)
	}
	if opts.limit < 1 {
		return amerrors.New(amerrors.ErrCodeInvalidInput, "--limit must be at least 1", nil)
	}
	q, err := buildQuery(opts, text)
	if err != nil {
		return err
	}

	if _, serr := os.Stat(root.cfg.IndexDir(opts.indexID)); errors.Is(serr, fs.ErrNotExist) {
		return amerrors.New(amerrors.ErrCodeInvalidInput, fmt.Sprintf("index %q does not exist", opts.indexID), nil).
			WithSuggestion(fmt.Sprintf("Run 'amanidx index --index %s <path>' first", opts.indexID))
	}

	a, err := newApp(ctx, root, nil)
	if err != nil {
		return err
	}
	defer func() {
		if serr := a.shutdown(); serr != nil && err == nil {
			err = serr
		}
	}()

	res, err := a.manager.Query(ctx, a.index(opts.indexID), q, query.Options{Size: opts.limit, Skip: opts.skip})
	if err != nil {
		return err
	}
	defer func() {
		if terr := res.Terminate(); terr != nil && err == nil {
			err = terr
		}
	}()

	result := searchResult{
		Index:      opts.indexID,
		Query:      q.String(),
		Total:      res.Total(),
		Generation: res.Generation(),
		Hits:       make([]searchHit, 0, res.Len()),
	}
	for i := 0; i < res.Len(); i++ {
		fields, err := res.Document(i)
		if err != nil {
			return err
		}
		hit := res.Hit(i)
		result.Hits = append(result.Hits, searchHit{ID: hit.ID, Score: hit.Score, Fields: fields})
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	printSearchResult(output.New(cmd.OutOrStdout()), result, opts.skip)
	return nil
}

func printSearchResult(out *output.Writer, r searchResult, skip int) {
	if len(r.Hits) == 0 {
		out.Warningf("No documents in %q match %s", r.Index, r.Query)
		return
	}
	out.Successf("%d of %d documents in %q match %s", len(r.Hits), r.Total, r.Index, r.Query)
	for i, h := range r.Hits {
		out.Newline()
		out.Header(fmt.Sprintf("#%d  score %.3f", skip+i+1, h.Score))
		out.Fields(h.Fields)
	}
}
