package cmd

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
	"github.com/Aman-CERP/amanidx/internal/joblog"
)

func search(t *testing.T, env testEnv, args ...string) searchResult {
	t.Helper()
	out, err := env.run(t, append([]string{"search", "--index", "docs", "--format", "json"}, args...)...)
	require.NoError(t, err)
	var r searchResult
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	return r
}

func TestIndexThenSearch(t *testing.T) {
	// Given: two text files and one file without a template
	env := newTestEnv(t)
	env.write(t, "a.txt", "hello scheduler world")
	env.write(t, "notes/b.txt", "hello index")
	env.write(t, "logo.png", "\x89PNG")

	// When: indexing the directory
	out, err := env.run(t, "index", "--index", "docs", env.contentDir)

	// Then: both text files are indexed and the image is skipped
	require.NoError(t, err)
	assert.Contains(t, out, `Indexed 2 files into "docs" (1 skipped)`)

	// And: every search sees the committed documents
	assert.Equal(t, uint64(2), search(t, env).Total)
	assert.Equal(t, uint64(2), search(t, env, "hello").Total)
	assert.Equal(t, uint64(1), search(t, env, "scheduler").Total)
	assert.Equal(t, uint64(0), search(t, env, `"world scheduler"`).Total)
	assert.Equal(t, uint64(1), search(t, env, `"scheduler world"`).Total)

	r := search(t, env, "--term", "uri:notes/b.txt")
	require.Len(t, r.Hits, 1)
	assert.Equal(t, []string{"notes/b.txt"}, r.Hits[0].Fields["uri"])
	assert.Equal(t, []string{"text/plain"}, r.Hits[0].Fields["mimetype"])

	r = search(t, env, "--term", "uri:a.txt", "--or-term", "uri:notes/b.txt", "--sort", "index")
	assert.Equal(t, uint64(2), r.Total)
}

func TestIndex_ReindexReplacesDocuments(t *testing.T) {
	// Given: an indexed file
	env := newTestEnv(t)
	env.write(t, "a.txt", "first version")
	_, err := env.run(t, "index", "--index", "docs", env.contentDir)
	require.NoError(t, err)

	// When: the file changes and is indexed again
	env.write(t, "a.txt", "second version")
	_, err = env.run(t, "index", "--index", "docs", env.contentDir)
	require.NoError(t, err)

	// Then: only the new version is found
	assert.Equal(t, uint64(1), search(t, env).Total)
	assert.Equal(t, uint64(0), search(t, env, "first").Total)
	assert.Equal(t, uint64(1), search(t, env, "second").Total)
}

func TestIndex_ParamsReachTemplate(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "a.txt", "body")

	_, err := env.run(t, "index", "--index", "docs", "--param", "collection=books", env.contentDir)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), search(t, env, "--term", "collection:books").Total)
	assert.Equal(t, uint64(0), search(t, env, "--term", "collection:films").Total)
}

func TestIndex_FailedJobsAreReported(t *testing.T) {
	// Given: an XML file that does not parse
	env := newTestEnv(t)
	env.write(t, "bad.xml", "<documents><document>")
	env.write(t, "good.txt", "fine")

	// When: indexing
	out, err := env.run(t, "index", "--index", "docs", env.contentDir)

	// Then: the command fails and names the file
	require.Error(t, err)
	assert.Contains(t, out, "bad.xml")
	assert.Contains(t, out, "1 failed")

	// And: the failure is in the job log
	out, err = env.run(t, "status", "--json")
	require.NoError(t, err)
	var report statusReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, []string{"docs"}, report.Indexes)
	require.Len(t, report.Jobs, 1)
	assert.Equal(t, "bad.xml", report.Jobs[0].ContentKey)
	assert.Equal(t, joblog.OutcomeFailed, report.Jobs[0].Outcome)
	assert.Equal(t, "cli", report.Jobs[0].Requester)

	// And: the good file is searchable
	assert.Equal(t, uint64(1), search(t, env).Total)
}

func TestIndex_InvalidInput(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		args []string
	}{
		{"missing directory", []string{"index", env.contentDir + "/nope"}},
		{"bad priority", []string{"index", "--priority", "urgent", env.contentDir}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.run(t, tt.args...)
			require.Error(t, err)
		})
	}
}

func TestIndex_EmptyDirectory(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "index", "--index", "docs", env.contentDir)

	require.NoError(t, err)
	assert.Contains(t, out, "No indexable files")
}

func TestSearch_Validation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		args []string
		code string
	}{
		{"unknown index", []string{"search", "--index", "nope"}, amerrors.ErrCodeInvalidInput},
		{"bad sort", []string{"search", "--sort", "random"}, amerrors.ErrCodeInvalidInput},
		{"bad format", []string{"search", "--format", "xml"}, amerrors.ErrCodeInvalidInput},
		{"bad term", []string{"search", "--term", "nocolon"}, amerrors.ErrCodeInvalidQuery},
		{"reserved field", []string{"search", "--term", "_id:x"}, amerrors.ErrCodeInvalidQuery},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.run(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.code, amerrors.GetCode(err))
		})
	}
}

func TestJSONOutput_ErrorsWrittenAsJSON(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		args []string
		code string
	}{
		{"search", []string{"search", "--index", "nope", "--format", "json"}, amerrors.ErrCodeInvalidInput},
		{"status", []string{"status", "--outcome", "maybe", "--json"}, amerrors.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, errOut, err := executeStreams(t, append([]string{"--config", env.configPath}, tt.args...)...)

			require.Error(t, err)
			assert.True(t, Reported(err))
			assert.Equal(t, tt.code, amerrors.GetCode(err))
			assert.Empty(t, out)

			var got struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			}
			require.NoError(t, json.Unmarshal([]byte(errOut), &got))
			assert.Equal(t, tt.code, got.Code)
			assert.NotEmpty(t, got.Message)
		})
	}
}

func TestSearch_TextErrorsLeftToCaller(t *testing.T) {
	env := newTestEnv(t)

	_, errOut, err := executeStreams(t, "--config", env.configPath, "search", "--index", "nope")

	require.Error(t, err)
	assert.False(t, Reported(err))
	assert.Empty(t, errOut)
}

func TestSearch_TextOutput(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "a.txt", "hello")
	_, err := env.run(t, "index", "--index", "docs", env.contentDir)
	require.NoError(t, err)

	out, err := env.run(t, "search", "--index", "docs", "hello")

	require.NoError(t, err)
	assert.Contains(t, out, "1 of 1 documents")
	assert.Contains(t, out, "#1")
	assert.Contains(t, out, "a.txt")
}
