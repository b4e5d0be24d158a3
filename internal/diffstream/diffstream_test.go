package diffstream

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vibeorchestrator/engine/internal/gitutil"
	"github.com/vibeorchestrator/engine/internal/msgstore"
)

func strp(s string) *string { return &s }

func TestApplyOmitPolicyStatsOnlyAlwaysStrips(t *testing.T) {
	s := New(gitutil.New(), "/tmp/wt", "base", true, msgstore.New())
	d := Diff{Path: "a.go", OldContent: strp("a\nb\n"), NewContent: strp("a\nb\nc\n")}
	s.applyOmitPolicy(&d)
	require.True(t, d.ContentOmitted)
	require.Nil(t, d.OldContent)
	require.Nil(t, d.NewContent)
}

func TestApplyOmitPolicyChargesUnderBudget(t *testing.T) {
	s := New(gitutil.New(), "/tmp/wt", "base", false, msgstore.New())
	d := Diff{Path: "a.go", OldContent: strp("hello"), NewContent: strp("hello world")}
	s.applyOmitPolicy(&d)
	require.False(t, d.ContentOmitted)
	require.NotNil(t, d.OldContent)
	require.Equal(t, len("hello")+len("hello world"), s.cumulativeSent)
}

func TestApplyOmitPolicyStripsOverBudget(t *testing.T) {
	s := New(gitutil.New(), "/tmp/wt", "base", false, msgstore.New())
	s.cumulativeSent = MaxCumulativeDiffBytes - 5
	d := Diff{Path: "big.go", OldContent: strp("0123456789"), NewContent: strp("")}
	s.applyOmitPolicy(&d)
	require.True(t, d.ContentOmitted)
	require.Nil(t, d.OldContent)
}

func TestFullSentPathNeverDowngraded(t *testing.T) {
	s := New(gitutil.New(), "/tmp/wt", "base", false, msgstore.New())
	d := Diff{Path: "a.go", ContentOmitted: false}
	s.rememberFull(d)
	require.True(t, s.wasFullySent("a.go"))
}

func TestLineChangeCounts(t *testing.T) {
	add, del := lineChangeCounts("a\nb\nc\n", "a\nb\nd\ne\n")
	require.Equal(t, 2, add)
	require.Equal(t, 1, del)
}

func TestNormalizeWatchPathPrunesGitAndEscapes(t *testing.T) {
	_, ok := normalizeWatchPath("/repo/wt", "/repo/wt/.git/HEAD")
	require.False(t, ok)

	rel, ok := normalizeWatchPath("/repo/wt", "/repo/wt/src/main.go")
	require.True(t, ok)
	require.Equal(t, "src/main.go", rel)

	_, ok = normalizeWatchPath("/repo/wt", "/repo/other/file.go")
	require.False(t, ok)
}
