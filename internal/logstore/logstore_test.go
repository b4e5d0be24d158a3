package logstore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vibeorchestrator/engine/internal/msgstore"
	"github.com/vibeorchestrator/engine/internal/store"
)

func TestForwardPersistsOnlyRawKinds(t *testing.T) {
	dir := t.TempDir()
	ls, err := New(dir, store.NewMemory())
	require.NoError(t, err)

	ms := msgstore.New()
	ms.Push(msgstore.Stdout("building"))
	ms.Push(msgstore.SessionID("sess-123"))
	ms.Push(msgstore.JSONPatch(msgstore.Patch{Op: "add", Path: "/entries/0", Value: "x"}))
	ms.Push(msgstore.Stderr("warn"))
	ms.Push(msgstore.Finished)

	ls.Forward("proc-1", ms)

	entries, err := ls.ReadRaw("proc-1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "stdout", entries[0].Kind)
	require.Equal(t, "session_id", entries[1].Kind)
	require.Equal(t, "stderr", entries[2].Kind)
}

func TestReadRawMissingFileReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	ls, err := New(dir, nil)
	require.NoError(t, err)

	entries, err := ls.ReadRaw("never-existed")
	require.NoError(t, err)
	require.Empty(t, entries)
}
