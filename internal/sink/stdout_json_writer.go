package sink

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"edgesync/internal/netmon"
	"edgesync/internal/scheduler"
)

// JSONStdoutWriter prints results and samples as JSON lines.
type JSONStdoutWriter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewJSONStdoutWriter creates a JSONStdoutWriter writing to os.Stdout.
func NewJSONStdoutWriter() *JSONStdoutWriter {
	return &JSONStdoutWriter{out: os.Stdout}
}

func (w *JSONStdoutWriter) print(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = fmt.Fprintln(w.out, string(data))
	return err
}

// WriteResult outputs a sync result in JSON format.
func (w *JSONStdoutWriter) WriteResult(r scheduler.Result) error {
	return w.print(r)
}

// WriteResults outputs a dispatch worth of results.
func (w *JSONStdoutWriter) WriteResults(rs []scheduler.Result) error {
	for _, r := range rs {
		if err := w.WriteResult(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteCondition outputs a link sample in JSON format.
func (w *JSONStdoutWriter) WriteCondition(c netmon.Condition) error {
	return w.print(c)
}
