package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vibeorchestrator/engine/internal/model"
	"github.com/vibeorchestrator/engine/internal/msgstore"
)

func TestSpawnAndReconcileSuccess(t *testing.T) {
	ctx := context.Background()
	sup := New(zerolog.Nop())
	store := msgstore.New()

	child, err := sup.Spawn(ctx, Spawnable{
		Command: "sh",
		Args:    []string{"-c", "echo hello; echo err-line 1>&2"},
		Dir:     t.TempDir(),
	}, store, nil, "")
	require.NoError(t, err)

	result := sup.Reconcile(ctx, child)
	require.Equal(t, model.ProcessCompleted, result.Status)
	require.NotNil(t, result.ExitCode)
	require.Equal(t, 0, *result.ExitCode)

	history := store.History()
	require.NotEmpty(t, history)
	require.Equal(t, msgstore.KindFinished, history[len(history)-1].Kind)
}

func TestSpawnAndReconcileFailure(t *testing.T) {
	ctx := context.Background()
	sup := New(zerolog.Nop())
	store := msgstore.New()

	child, err := sup.Spawn(ctx, Spawnable{
		Command: "sh",
		Args:    []string{"-c", "exit 3"},
		Dir:     t.TempDir(),
	}, store, nil, "")
	require.NoError(t, err)

	result := sup.Reconcile(ctx, child)
	require.Equal(t, model.ProcessFailed, result.Status)
	require.Equal(t, 3, *result.ExitCode)
}

func TestPreCommandFailureAbortsSpawn(t *testing.T) {
	ctx := context.Background()
	sup := New(zerolog.Nop())
	store := msgstore.New()

	_, err := sup.Spawn(ctx, Spawnable{
		Command:     "sh",
		Args:        []string{"-c", "echo should-not-run"},
		Dir:         t.TempDir(),
		PreCommands: []string{"exit 1"},
	}, store, nil, "")
	require.Error(t, err)
}

func TestStopIsIdempotentAndPushesFinished(t *testing.T) {
	ctx := context.Background()
	sup := New(zerolog.Nop())
	store := msgstore.New()

	child, err := sup.Spawn(ctx, Spawnable{
		Command: "sh",
		Args:    []string{"-c", "sleep 30"},
		Dir:     t.TempDir(),
	}, store, nil, "")
	require.NoError(t, err)

	child.Stop()
	child.Stop() // idempotent

	history := store.History()
	require.Equal(t, msgstore.KindFinished, history[len(history)-1].Kind)

	result := sup.Reconcile(ctx, child)
	require.Equal(t, model.ProcessKilled, result.Status)
}

func TestFireExitSignalWinsRace(t *testing.T) {
	ctx := context.Background()
	sup := New(zerolog.Nop())
	store := msgstore.New()

	child, err := sup.Spawn(ctx, Spawnable{
		Command: "sh",
		Args:    []string{"-c", "sleep 30"},
		Dir:     t.TempDir(),
	}, store, nil, "")
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		child.FireExitSignal(ExitSignal{Success: true})
	}()

	result := sup.Reconcile(ctx, child)
	require.Equal(t, model.ProcessCompleted, result.Status)
}
