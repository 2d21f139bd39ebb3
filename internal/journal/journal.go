package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/guofeng201507/shark-quant-trader-sub001/internal/risk"
)

// Entry is one journaled evaluation: the assessment identity plus the
// directives it produced. The assessment ID doubles as the idempotency key,
// so replaying a tick over identical inputs never journals twice.
type Entry struct {
	AssessmentID string           `json:"assessment_id"`
	AsOf         time.Time        `json:"as_of"`
	Level        risk.Level       `json:"level"`
	Directives   []risk.Directive `json:"directives"`
	WrittenAt    time.Time        `json:"written_at"`
}

// Journal is an append-only JSONL record of emitted directives. Downstream
// execution consumes this file; the engine never talks to brokers directly.
type Journal struct {
	mu   sync.Mutex
	path string
	seen map[string]bool
}

// Open prepares the journal at path, loading existing assessment IDs for
// idempotent appends across restarts.
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}
	j := &Journal{path: path, seen: make(map[string]bool)}
	if err := j.loadSeen(); err != nil {
		return nil, err
	}
	return j, nil
}

// Append journals one evaluation. A repeated assessment ID is a no-op.
func (j *Journal) Append(a *risk.Assessment, directives []risk.Directive) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.seen[a.ID] {
		return nil
	}

	entry := Entry{
		AssessmentID: a.ID,
		AsOf:         a.AsOf,
		Level:        a.Level,
		Directives:   directives,
		WrittenAt:    time.Now().UTC(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode journal entry: %w", err)
	}

	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append journal: %w", err)
	}
	j.seen[a.ID] = true
	return nil
}

func (j *Journal) loadSeen() error {
	f, err := os.Open(j.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			// A torn trailing line from a crash is tolerated; anything it
			// recorded is re-emitted with the same idempotency key.
			continue
		}
		j.seen[entry.AssessmentID] = true
	}
	return scanner.Err()
}
