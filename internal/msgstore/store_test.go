package msgstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, ch <-chan Message, timeout time.Duration) []Message {
	t.Helper()
	var out []Message
	deadline := time.After(timeout)
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, msg)
		case <-deadline:
			t.Fatal("timed out waiting for channel to close")
		}
	}
}

func TestSubscribeBeforeFinishedSeesHistoryThenLive(t *testing.T) {
	s := New()
	s.Push(Stdout("hello"))

	history, live := s.Subscribe()
	require.Len(t, history, 1)
	require.Equal(t, KindStdout, history[0].Kind)

	s.Push(Stderr("world"))
	s.Push(Finished)

	got := drain(t, live, time.Second)
	require.Len(t, got, 2)
	require.Equal(t, KindStderr, got[0].Kind)
	require.Equal(t, KindFinished, got[1].Kind)
}

func TestSubscribeAfterFinishedGetsEmptyLiveChannel(t *testing.T) {
	s := New()
	s.Push(Stdout("a"))
	s.Push(Finished)

	history, live := s.Subscribe()
	require.Len(t, history, 2)
	got := drain(t, live, time.Second)
	require.Empty(t, got)
}

func TestPushAfterFinishedIsDropped(t *testing.T) {
	s := New()
	s.Push(Finished)
	s.Push(Stdout("too late"))
	require.Len(t, s.History(), 1)
}

func TestReleaseClosesLiveSubscribers(t *testing.T) {
	s := New()
	_, live := s.Subscribe()
	s.Release()
	got := drain(t, live, time.Second)
	require.Empty(t, got)

	_, live2 := s.Subscribe()
	got2 := drain(t, live2, time.Second)
	require.Empty(t, got2)
}

func TestEncodePointerSegmentEscapesTildeAndSlash(t *testing.T) {
	require.Equal(t, "a~1b~0c", EncodePointerSegment("a/b~c"))
}
