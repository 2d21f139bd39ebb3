package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/guofeng201507/shark-quant-trader-sub001/internal/portfolio"
)

// Feed supplies the evaluation loop with one portfolio snapshot plus the
// per-symbol return windows. Implementations own their own timeouts; the
// risk engine itself never does I/O.
type Feed interface {
	Fetch(ctx context.Context) (*portfolio.Snapshot, map[string][]float64, error)
}

// fileDocument is the on-disk exchange format the upstream data pipeline
// writes each tick.
type fileDocument struct {
	Snapshot portfolio.Snapshot   `json:"snapshot"`
	Returns  map[string][]float64 `json:"returns"`
}

// FileFeed reads snapshot and return windows from a JSON file rewritten by
// the upstream pipeline. Reads are atomic from the consumer's view as long
// as the producer writes to a temp file and renames.
type FileFeed struct {
	path string
}

func NewFileFeed(path string) *FileFeed {
	return &FileFeed{path: path}
}

func (f *FileFeed) Fetch(ctx context.Context) (*portfolio.Snapshot, map[string][]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	b, err := os.ReadFile(f.path)
	if err != nil {
		return nil, nil, fmt.Errorf("read feed file: %w", err)
	}
	var doc fileDocument
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, nil, fmt.Errorf("decode feed file %s: %w", f.path, err)
	}
	return &doc.Snapshot, doc.Returns, nil
}
