package insights

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingAlerter struct {
	calls []string
}

func (r *recordingAlerter) Alert(severity, message string) error {
	r.calls = append(r.calls, severity+": "+message)
	return nil
}

func TestRecordSuccessResetsConsecutiveFailures(t *testing.T) {
	tr := New(DefaultConfig(), nil)
	tr.RecordFailure("src-1")
	tr.RecordFailure("src-1")
	require.Equal(t, 2, tr.State("src-1").ConsecutiveFailures)

	tr.RecordSuccess("src-1")
	st := tr.State("src-1")
	require.Equal(t, 0, st.ConsecutiveFailures)
	require.Greater(t, st.Reliability, 0.5)
}

func TestShouldHealFiresOnceThenResets(t *testing.T) {
	tr := New(Config{HealThreshold: 3, QuarantineThreshold: 10, ReliabilityAlpha: 0.3}, nil)
	for i := 0; i < 2; i++ {
		tr.RecordFailure("src-1")
	}
	require.False(t, tr.ShouldHeal("src-1"), "below threshold")

	tr.RecordFailure("src-1")
	require.True(t, tr.ShouldHeal("src-1"))
	require.False(t, tr.ShouldHeal("src-1"), "only one in-flight attempt per streak")

	tr.ResetHealAttempt("src-1")
	tr.RecordFailure("src-1")
	require.True(t, tr.ShouldHeal("src-1"))
}

func TestQuarantineFiresAlertAndStopsScheduling(t *testing.T) {
	al := &recordingAlerter{}
	tr := New(Config{HealThreshold: 3, QuarantineThreshold: 3, ReliabilityAlpha: 0.3}, al)
	tr.RecordFailure("src-1")
	tr.RecordFailure("src-1")
	st := tr.RecordFailure("src-1")
	require.True(t, st.Quarantined)
	require.Len(t, al.calls, 1)

	tr.Reinstate("src-1")
	require.False(t, tr.State("src-1").Quarantined)
}

func TestReliabilityBounded(t *testing.T) {
	tr := New(DefaultConfig(), nil)
	for i := 0; i < 50; i++ {
		tr.RecordFailure("flaky")
	}
	require.GreaterOrEqual(t, tr.State("flaky").Reliability, 0.0)
	for i := 0; i < 50; i++ {
		tr.RecordSuccess("flaky")
	}
	require.LessOrEqual(t, tr.State("flaky").Reliability, 1.0)
}

func TestPreferredStrategyMajority(t *testing.T) {
	tr := New(DefaultConfig(), nil)
	tr.RecordRun(RunInsight{SourceID: "s", WinningStrategy: "json_ld"})
	tr.RecordRun(RunInsight{SourceID: "s", WinningStrategy: "json_ld"})
	tr.RecordRun(RunInsight{SourceID: "s", WinningStrategy: "dom_selectors"})

	best, ok := tr.PreferredStrategy("s")
	require.True(t, ok)
	require.Equal(t, "json_ld", best)

	_, ok = tr.PreferredStrategy("unknown")
	require.False(t, ok)
}

func TestAlertTerminalIsNoopWithoutAlerter(t *testing.T) {
	tr := New(DefaultConfig(), nil)
	require.NotPanics(t, func() { tr.AlertTerminal("src-1", errors.New("boom").Error()) })
}
