package content

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
)

func TestID_Comparable(t *testing.T) {
	a := ID{Type: TypeFile, Key: "a.xml", ConfigID: "default"}
	b := ID{Type: TypeFile, Key: "a.xml", ConfigID: "default"}
	c := ID{Type: TypeFile, Key: "a.xml", ConfigID: "other"}

	assert.Equal(t, a, b)
	assert.True(t, a == b)
	assert.False(t, a == c)

	seen := map[ID]int{a: 1}
	assert.Equal(t, 1, seen[b])
	assert.Equal(t, "file:a.xml#default", a.String())
	assert.Equal(t, "url:x", ID{Type: TypeURL, Key: "x"}.String())
}

func TestContent_EffectiveConfigID(t *testing.T) {
	c := &Content{ID: ID{ConfigID: "from-id"}}
	assert.Equal(t, "from-id", c.EffectiveConfigID())

	c.ConfigID = "override"
	assert.Equal(t, "override", c.EffectiveConfigID())
}

func TestDeleteRule_Valid(t *testing.T) {
	var none *DeleteRule
	assert.False(t, none.Valid())
	assert.Equal(t, "<none>", none.String())
	assert.False(t, (&DeleteRule{Field: "docid"}).Valid())
	assert.True(t, (&DeleteRule{Field: "docid", Value: "1"}).Valid())
}

func TestMemoryFetcher(t *testing.T) {
	ctx := context.Background()
	f := NewMemoryFetcher()
	id := ID{Type: TypeFile, Key: "k"}

	// Given: nothing stored
	_, err := f.Fetch(ctx, id)
	assert.ErrorIs(t, err, amerrors.ErrContentNotFound)

	// When: content is put
	f.Put(&Content{ID: id, MimeType: "text/xml", Source: []byte("<a/>")})

	// Then: a copy is returned
	got, err := f.Fetch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "text/xml", got.MimeType)
	got.MimeType = "changed"
	again, _ := f.Fetch(ctx, id)
	assert.Equal(t, "text/xml", again.MimeType)

	f.Remove(id)
	_, err = f.Fetch(ctx, id)
	assert.ErrorIs(t, err, amerrors.ErrContentNotFound)
}

func TestDirFetcher_Fetch(t *testing.T) {
	// Given: a root with one xml file in a subdirectory
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "books"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "books", "one.xml"), []byte("<book/>"), 0o644))

	f, err := NewDirFetcher(root, nil)
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("present file", func(t *testing.T) {
		id := ID{Type: TypeFile, Key: "books/one.xml"}
		c, err := f.Fetch(ctx, id)
		require.NoError(t, err)
		assert.False(t, c.Deleted)
		assert.Equal(t, "text/xml", c.MimeType)
		assert.Equal(t, []byte("<book/>"), c.Source)
		assert.Equal(t, &DeleteRule{Field: FieldURI, Value: "books/one.xml"}, c.DeleteRule)
	})

	t.Run("missing file is a deletion", func(t *testing.T) {
		c, err := f.Fetch(ctx, ID{Type: TypeFile, Key: "books/gone.xml"})
		require.NoError(t, err)
		assert.True(t, c.Deleted)
		assert.Empty(t, c.Source)
		assert.Equal(t, "books/gone.xml", c.DeleteRule.Value)
	})

	t.Run("escaping the root is rejected", func(t *testing.T) {
		_, err := f.Fetch(ctx, ID{Type: TypeFile, Key: "../etc/passwd"})
		assert.ErrorIs(t, err, amerrors.ErrInvalidInput)
	})
}

func TestDirFetcher_RootMustBeDirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	_, err := NewDirFetcher(file, nil)
	assert.ErrorIs(t, err, amerrors.ErrInvalidInput)

	_, err = NewDirFetcher(filepath.Join(t.TempDir(), "missing"), nil)
	assert.ErrorIs(t, err, amerrors.ErrIOFailure)
}

func TestDirFetcher_IDForAndWalk(t *testing.T) {
	root := t.TempDir()
	for _, p := range []string{"a.xml", "sub/b.txt", ".hidden/c.xml", "sub/.d.xml"} {
		full := filepath.Join(root, filepath.FromSlash(p))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte("x"), 0o644))
	}

	f, err := NewDirFetcher(root, nil)
	require.NoError(t, err)
	f.WithConfigID("cfg")

	id, err := f.IDFor(filepath.Join(f.Root(), "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, ID{Type: TypeFile, Key: "sub/b.txt", ConfigID: "cfg"}, id)

	var keys []string
	require.NoError(t, f.Walk(context.Background(), func(id ID) error {
		keys = append(keys, id.Key)
		return nil
	}))
	sort.Strings(keys)
	assert.Equal(t, []string{"a.xml", "sub/b.txt"}, keys)
}

func TestMimeTypeOf(t *testing.T) {
	assert.Equal(t, "text/xml", MimeTypeOf("x.xml"))
	assert.Equal(t, "text/xml", MimeTypeOf("X.XML"))
	assert.Equal(t, "text/plain", MimeTypeOf("x.txt"))
	assert.Equal(t, DefaultMimeType, MimeTypeOf("x.unknownext"))
}
