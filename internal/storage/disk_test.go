package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskPutAndDelete(t *testing.T) {
	d, err := NewDisk(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	url, err := d.Put(ctx, "speeches/s1/b1.mp3", []byte("audio"))
	require.NoError(t, err)
	assert.Equal(t, "/files/speeches/s1/b1.mp3", url)

	data, err := os.ReadFile(filepath.Join(d.Root(), "speeches", "s1", "b1.mp3"))
	require.NoError(t, err)
	assert.Equal(t, []byte("audio"), data)

	require.NoError(t, d.Delete(ctx, "speeches/s1/b1.mp3"))
	_, err = os.Stat(filepath.Join(d.Root(), "speeches", "s1", "b1.mp3"))
	assert.True(t, os.IsNotExist(err))
}

func TestDiskDeleteMissingIsNoop(t *testing.T) {
	d, err := NewDisk(t.TempDir())
	require.NoError(t, err)
	assert.NoError(t, d.Delete(context.Background(), "never/was.mp3"))
}

func TestDiskRejectsTraversal(t *testing.T) {
	d, err := NewDisk(t.TempDir())
	require.NoError(t, err)
	_, err = d.Put(context.Background(), "../outside.mp3", []byte("x"))
	assert.Error(t, err)
}

func TestKeyFromURL(t *testing.T) {
	assert.Equal(t, "speeches/s1/b1.mp3", KeyFromURL("/files/speeches/s1/b1.mp3"))
	assert.Empty(t, KeyFromURL("https://elsewhere.example.com/a.mp3"))
	assert.Empty(t, KeyFromURL(""))
}
