package journal

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guofeng201507/shark-quant-trader-sub001/internal/risk"
)

func readEntries(t *testing.T, path string) []Entry {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue // torn line
		}
		entries = append(entries, e)
	}
	require.NoError(t, scanner.Err())
	return entries
}

func TestJournalAppendAndIdempotency(t *testing.T) {
	path := filepath.Join(t.TempDir(), "directives.jsonl")
	jnl, err := Open(path)
	require.NoError(t, err)

	a := &risk.Assessment{
		ID:    "01ARZ3NDEKTSV4RRFFQ69G5FAV",
		AsOf:  time.Date(2026, 3, 2, 21, 0, 0, 0, time.UTC),
		Level: risk.LevelReduced,
	}
	directives := []risk.Directive{
		{Kind: risk.DirectiveStopExit, Symbol: "NVDA", Reason: "single_asset_stop_exit"},
		{Kind: risk.DirectiveLeverageCap, Value: 1.5, Reason: "leverage_ceiling"},
	}

	require.NoError(t, jnl.Append(a, directives))
	require.NoError(t, jnl.Append(a, directives)) // repeat is a no-op

	entries := readEntries(t, path)
	require.Len(t, entries, 1)
	assert.Equal(t, a.ID, entries[0].AssessmentID)
	assert.Equal(t, risk.LevelReduced, entries[0].Level)
	assert.Len(t, entries[0].Directives, 2)
}

func TestJournalIdempotencySurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "directives.jsonl")

	first, err := Open(path)
	require.NoError(t, err)
	a := &risk.Assessment{ID: "01TESTREOPEN", AsOf: time.Now().UTC()}
	require.NoError(t, first.Append(a, nil))

	reopened, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, reopened.Append(a, nil))

	assert.Len(t, readEntries(t, path), 1)
}

func TestJournalToleratesTornTrailingLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "directives.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"assessment_id":"01GOOD","as_of":"2026-03-02T21:00:00Z","level":0,"directives":null,"written_at":"2026-03-02T21:00:01Z"}
{"assessment_id":"01TORN","as_of":"2026-03-0
`), 0o644))

	jnl, err := Open(path)
	require.NoError(t, err)

	// The intact line is deduped; the torn one is not.
	require.NoError(t, jnl.Append(&risk.Assessment{ID: "01GOOD"}, nil))
	require.NoError(t, jnl.Append(&risk.Assessment{ID: "01TORN"}, nil))

	var ids []string
	for _, e := range readEntries(t, path) {
		ids = append(ids, e.AssessmentID)
	}
	assert.Contains(t, ids, "01TORN")
}
