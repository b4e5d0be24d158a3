package logging

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultsToInfoOnBadLevel(t *testing.T) {
	log := New(Options{Level: "not-a-level"})
	require.Equal(t, zerolog.InfoLevel, log.GetLevel())
}

func TestNewHonorsExplicitLevel(t *testing.T) {
	log := New(Options{Level: "debug"})
	require.Equal(t, zerolog.DebugLevel, log.GetLevel())
}

func TestNewPrettyDoesNotPanic(t *testing.T) {
	require.NotPanics(t, func() {
		New(Options{Pretty: true})
	})
}
