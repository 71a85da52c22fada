package joblog

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(i int, index, requester string, outcome Outcome) Record {
	now := time.Unix(1700000000, int64(i))
	return Record{
		JobID:       fmt.Sprintf("job-%d", i),
		ContentType: "file",
		ContentKey:  fmt.Sprintf("doc-%d.xml", i),
		IndexID:     index,
		Requester:   requester,
		Priority:    "low",
		Outcome:     outcome,
		Created:     now,
		Finished:    now.Add(time.Millisecond),
	}
}

func stores(t *testing.T) map[string]Store {
	t.Helper()
	disk, err := OpenSQLite(filepath.Join(t.TempDir(), "jobs", "jobs.db"))
	require.NoError(t, err)
	mem, err := OpenSQLite("")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = disk.Close()
		_ = mem.Close()
	})
	return map[string]Store{
		"memory":        NewMemoryStore(0),
		"sqlite":        disk,
		"sqlite-memory": mem,
	}
}

func TestStore_Filters(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			// Given: records across two indexes and two requesters
			require.NoError(t, s.Append(ctx, record(1, "a", "alice", OutcomeDone)))
			require.NoError(t, s.Append(ctx, record(2, "a", "bob", OutcomeFailed)))
			require.NoError(t, s.Append(ctx, record(3, "b", "alice", OutcomeFailed)))
			require.NoError(t, s.Append(ctx, record(4, "b", "bob", OutcomeAbandoned)))

			tests := []struct {
				name   string
				filter Filter
				want   []string
			}{
				{"all", Filter{}, []string{"job-1", "job-2", "job-3", "job-4"}},
				{"failed", Filter{Outcome: OutcomeFailed}, []string{"job-2", "job-3"}},
				{"failed by index", Filter{Outcome: OutcomeFailed, IndexID: "a"}, []string{"job-2"}},
				{"failed by requester", Filter{Outcome: OutcomeFailed, Requester: "alice"}, []string{"job-3"}},
				{"limit keeps newest", Filter{Limit: 2}, []string{"job-3", "job-4"}},
				{"no match", Filter{IndexID: "zzz"}, nil},
			}
			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					// When
					got, err := s.List(ctx, tt.filter)
					require.NoError(t, err)

					// Then
					var ids []string
					for _, r := range got {
						ids = append(ids, r.JobID)
					}
					assert.Equal(t, tt.want, ids)
				})
			}
		})
	}
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "jobs.db")

	// Given: a record written and the store closed
	s, err := OpenSQLite(path)
	require.NoError(t, err)
	want := record(7, "idx", "req", OutcomeFailed)
	want.ErrorCode = "ERR_103_NO_TEMPLATE_REGISTERED"
	want.Message = "no template"
	require.NoError(t, s.Append(ctx, want))
	require.NoError(t, s.Close())

	// When: reopened
	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()

	// Then: the record survives unchanged
	got, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, want.JobID, got[0].JobID)
	assert.Equal(t, want.ErrorCode, got[0].ErrorCode)
	assert.Equal(t, want.Message, got[0].Message)
	assert.Equal(t, want.Outcome, got[0].Outcome)
	assert.True(t, want.Created.Equal(got[0].Created))
	assert.True(t, want.Finished.Equal(got[0].Finished))
}

func TestMemoryStore_DropsOldestWhenFull(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(2)
	for i := 1; i <= 3; i++ {
		require.NoError(t, s.Append(ctx, record(i, "a", "r", OutcomeDone)))
	}
	got, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "job-2", got[0].JobID)
	assert.Equal(t, "job-3", got[1].JobID)
}
