/*
PURPOSE:
  Writes benchmark turn records as JSON Lines (one object per turn).

REQUIREMENTS:
  Implementation-discovered:
  - One line per record so partial runs are still parseable (jq -s, pandas).
  - Durations are emitted as nanoseconds, matching encoding/json defaults.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine (Runner)
  - Consumes: internal/model.TurnRecord

ERROR HANDLING:
  - Returns error on file creation or write failure.

USAGE:
  w, err := output.NewJSONWriter("results.jsonl")
  w.Write(record)
  w.Close()
*/

package output

import (
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/daryltucker/agent-bench/internal/model"
)

// JSONWriter appends TurnRecords to a JSON Lines stream. Safe for concurrent use.
type JSONWriter struct {
	mu      sync.Mutex
	enc     *json.Encoder
	closer  io.Closer
	records int
}

// NewJSONWriter creates (or truncates) path.
func NewJSONWriter(path string) (*JSONWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return newJSONWriter(f, f), nil
}

func newJSONWriter(w io.Writer, c io.Closer) *JSONWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONWriter{enc: enc, closer: c}
}

// Write encodes r as one line.
func (jw *JSONWriter) Write(r model.TurnRecord) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.enc.Encode(r); err != nil {
		return err
	}
	jw.records++
	return nil
}

// Records reports how many lines were written.
func (jw *JSONWriter) Records() int {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	return jw.records
}

// Close closes the underlying file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if jw.closer == nil {
		return nil
	}
	return jw.closer.Close()
}
