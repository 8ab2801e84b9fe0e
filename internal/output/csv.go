/*
PURPOSE:
  Benchmark result sink in CSV form. One row per turn, with the tool
  round trip flattened into columns.

REQUIREMENTS:
  - Header row written once, when the file is created.
  - Each row is on disk before Write returns, so an interrupted run
    still leaves every finished turn readable.
  - Parallel provider runs share one writer.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine (Runner)
  - Consumes: internal/model.TurnRecord

ERROR HANDLING:
  - Creation and write errors are returned; the runner logs them.

USAGE:
  w, err := output.NewCSVWriter(output.NextAvailablePath("results.csv"))
  defer w.Close()
  w.Write(rec)
*/

package output

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/daryltucker/agent-bench/internal/model"
)

var csvHeader = []string{
	"session_id", "provider", "model", "timestamp", "duration_s",
	"prompt", "first_reply", "tool_kind", "tool_argument",
	"tool_success", "tool_error", "tool_duration_s",
	"final_reply", "input_tokens", "output_tokens", "error",
}

// CSVWriter appends turn records to a CSV file. Safe for concurrent use.
type CSVWriter struct {
	closer io.Closer
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVWriter truncates path and writes the header row. Callers pick a
// fresh path with NextAvailablePath to keep earlier results.
func NewCSVWriter(path string) (*CSVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	cw, err := newCSVWriter(f, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return cw, nil
}

func newCSVWriter(w io.Writer, c io.Closer) (*CSVWriter, error) {
	cw := &CSVWriter{closer: c, writer: csv.NewWriter(w)}
	if err := cw.writer.Write(csvHeader); err != nil {
		return nil, err
	}
	cw.writer.Flush()
	return cw, cw.writer.Error()
}

func (cw *CSVWriter) Write(r model.TurnRecord) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if err := cw.writer.Write(csvRow(r)); err != nil {
		return err
	}
	cw.writer.Flush()
	return cw.writer.Error()
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 4, 64)
}

// csvRow must stay in step with csvHeader.
func csvRow(r model.TurnRecord) []string {
	return []string{
		r.SessionID,
		string(r.Provider),
		r.Model,
		r.Timestamp.Format(time.RFC3339),
		seconds(r.Duration),
		r.Prompt,
		r.FirstReply,
		string(r.ToolKind),
		r.ToolArgument,
		strconv.FormatBool(r.ToolSuccess),
		r.ToolError,
		seconds(r.ToolDuration),
		r.FinalReply,
		strconv.Itoa(r.InputTokens),
		strconv.Itoa(r.OutputTokens),
		r.Error,
	}
}

// Close flushes and closes the underlying file.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if cw.closer == nil {
		return cw.writer.Error()
	}
	return cw.closer.Close()
}
