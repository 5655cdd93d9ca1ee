package vfs

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFS_ReadWriteListMoveDelete(t *testing.T) {
	f, err := Open(ModeMemory, "")
	require.NoError(t, err)

	require.NoError(t, f.WriteFile("/home/agent/Documents/notes/todo.txt", []byte("ship it")))

	data, err := f.ReadFile("home/agent/Documents/notes/todo.txt")
	require.NoError(t, err)
	assert.Equal(t, "ship it", string(data))

	entries, err := f.List("/home/agent")
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"Desktop", "Documents", "Downloads"}, names)

	require.NoError(t, f.Move("/home/agent/Documents/notes/todo.txt", "/home/agent/Desktop/todo.txt"))
	info, err := f.Stat("/home/agent/Desktop/todo.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(7), info.Size)
	assert.False(t, info.IsDir)

	require.NoError(t, f.Delete("/home/agent/Desktop/todo.txt"))
	_, err = f.Stat("/home/agent/Desktop/todo.txt")
	assert.True(t, IsNotExist(err))

	assert.Error(t, f.Delete("/"))
	assert.True(t, IsNotExist(f.Delete("/missing")))
}

func TestFS_SubConfinesPaths(t *testing.T) {
	base := New(afero.NewMemMapFs())
	require.NoError(t, base.WriteFile("/secret.txt", []byte("top secret")))

	sub, err := base.Sub("/sandbox")
	require.NoError(t, err)
	require.NoError(t, sub.WriteFile("/out.txt", []byte("ok")))

	data, err := base.ReadFile("/sandbox/out.txt")
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))

	_, err = sub.ReadFile("/../secret.txt")
	assert.Error(t, err)
}

func TestOpen_OSModeRequiresRoot(t *testing.T) {
	_, err := Open(ModeOS, "")
	assert.Error(t, err)

	f, err := Open(ModeOS, t.TempDir())
	require.NoError(t, err)
	_, err = f.Stat("/home/agent/Desktop")
	assert.NoError(t, err)
}
