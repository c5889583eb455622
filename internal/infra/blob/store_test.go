package blob_test

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Actiegen/collab-whiteboard-backend/internal/infra/blob"
)

func TestDiskStore_PutOpenRemove(t *testing.T) {
	store, err := blob.NewDiskStore(t.TempDir())
	require.NoError(t, err)

	name, size, err := store.Put(strings.NewReader("hello world"), "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(11), size)
	assert.True(t, strings.HasSuffix(name, ".txt"))

	f, err := store.Open(name)
	require.NoError(t, err)
	content, err := io.ReadAll(f)
	f.Close()
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(content))

	require.NoError(t, store.Remove(name))
	_, err = store.Open(name)
	assert.Error(t, err)

	// 重复删除不算错误
	assert.NoError(t, store.Remove(name))
}

func TestDiskStore_RejectsPathTraversal(t *testing.T) {
	store, err := blob.NewDiskStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Open("../etc/passwd")
	assert.Error(t, err)
	_, err = store.Open("a/b")
	assert.Error(t, err)
	assert.Error(t, store.Remove(""))
}

func TestDiskStore_List(t *testing.T) {
	store, err := blob.NewDiskStore(t.TempDir())
	require.NoError(t, err)

	name1, _, err := store.Put(strings.NewReader("a"), "a.png")
	require.NoError(t, err)
	name2, _, err := store.Put(strings.NewReader("b"), "b.pdf")
	require.NoError(t, err)

	names, err := store.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{name1, name2}, names)
}
