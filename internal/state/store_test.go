package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guofeng201507/shark-quant-trader-sub001/internal/risk"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "risk_state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testAssessment(asOf time.Time, level risk.Level) *risk.Assessment {
	return &risk.Assessment{
		ID:                "01TEST" + asOf.Format("150405"),
		AsOf:              asOf,
		Level:             level,
		PortfolioDrawdown: 0.09,
		Violations:        []string{"risk_level_0_to_2"},
		Actions:           level.Actions(),
	}
}

func TestStoreLoadUnknownPortfolioReturnsInitialState(t *testing.T) {
	store := openTestStore(t)
	now := time.Now().UTC()

	st, err := store.Load("main", now)
	require.NoError(t, err)
	assert.Equal(t, risk.LevelNormal, st.Level)
	assert.False(t, st.RecoveryMode)
	assert.Equal(t, now, st.UpdatedAt)
}

func TestStoreCommitAndLoadRoundtrip(t *testing.T) {
	store := openTestStore(t)
	asOf := time.Date(2026, 3, 2, 21, 0, 0, 0, time.UTC)

	st := risk.State{
		Level:          risk.LevelReduced,
		LevelEnteredAt: asOf,
		UpdatedAt:      asOf,
	}
	require.NoError(t, store.Commit("main", st, testAssessment(asOf, risk.LevelReduced)))

	loaded, err := store.Load("main", time.Now())
	require.NoError(t, err)
	assert.Equal(t, risk.LevelReduced, loaded.Level)
	assert.True(t, loaded.LevelEnteredAt.Equal(asOf))
	assert.True(t, loaded.UpdatedAt.Equal(asOf))
}

func TestStoreRejectsStaleCommit(t *testing.T) {
	store := openTestStore(t)
	asOf := time.Date(2026, 3, 2, 21, 0, 0, 0, time.UTC)

	fresh := risk.State{Level: risk.LevelWarning, UpdatedAt: asOf}
	require.NoError(t, store.Commit("main", fresh, testAssessment(asOf, risk.LevelWarning)))

	// A commit carrying an older as-of must be rejected even if it finishes
	// later in wall-clock terms.
	stale := risk.State{Level: risk.LevelNormal, UpdatedAt: asOf.Add(-time.Minute)}
	err := store.Commit("main", stale, testAssessment(asOf.Add(-time.Minute), risk.LevelNormal))
	assert.ErrorIs(t, err, risk.ErrStaleAssessment)

	// Same timestamp is also rejected: strictly newer wins.
	err = store.Commit("main", fresh, testAssessment(asOf, risk.LevelWarning))
	assert.ErrorIs(t, err, risk.ErrStaleAssessment)

	loaded, err := store.Load("main", time.Now())
	require.NoError(t, err)
	assert.Equal(t, risk.LevelWarning, loaded.Level)
}

func TestStoreSaveStateAppliesStaleGuard(t *testing.T) {
	store := openTestStore(t)
	asOf := time.Date(2026, 3, 2, 21, 0, 0, 0, time.UTC)

	st := risk.State{Level: risk.LevelEmergency, RecoveryMode: true, UpdatedAt: asOf}
	require.NoError(t, store.SaveState("main", st))

	resumed := st
	resumed.RecoveryMode = false
	resumed.ForcedResume = true
	resumed.UpdatedAt = asOf.Add(time.Second)
	require.NoError(t, store.SaveState("main", resumed))

	err := store.SaveState("main", st)
	assert.ErrorIs(t, err, risk.ErrStaleAssessment)

	loaded, err := store.Load("main", time.Now())
	require.NoError(t, err)
	assert.True(t, loaded.ForcedResume)
}

func TestStoreRecentEventsNewestFirst(t *testing.T) {
	store := openTestStore(t)
	base := time.Date(2026, 3, 2, 21, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		asOf := base.Add(time.Duration(i) * time.Minute)
		st := risk.State{Level: risk.Level(i), UpdatedAt: asOf}
		require.NoError(t, store.Commit("main", st, testAssessment(asOf, risk.Level(i))))
	}

	events, err := store.RecentEvents("main", 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, risk.Level(2), events[0].Level)
	assert.Equal(t, risk.Level(1), events[1].Level)
	assert.Equal(t, []string{"risk_level_0_to_2"}, events[0].Violations)
}

func TestStorePortfoliosAreIsolated(t *testing.T) {
	store := openTestStore(t)
	asOf := time.Now().UTC()

	st := risk.State{Level: risk.LevelEmergency, UpdatedAt: asOf}
	require.NoError(t, store.Commit("book-a", st, testAssessment(asOf, risk.LevelEmergency)))

	other, err := store.Load("book-b", asOf)
	require.NoError(t, err)
	assert.Equal(t, risk.LevelNormal, other.Level)
}
