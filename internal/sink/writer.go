// Package sink holds the destinations for sync results and network samples.
package sink

import (
	"os"

	"golang.org/x/term"

	"edgesync/internal/netmon"
	"edgesync/internal/scheduler"
)

// Writer receives both sync results and link samples.
type Writer interface {
	scheduler.ResultWriter
	netmon.ConditionWriter
}

// batchWriter is implemented by writers that accept a whole dispatch at once.
type batchWriter interface {
	WriteResults([]scheduler.Result) error
}

// NewStdoutWriter picks the colored writer for terminals and JSON lines
// otherwise.
func NewStdoutWriter(f *os.File) Writer {
	if term.IsTerminal(int(f.Fd())) {
		return NewColorStdoutWriter(f)
	}
	return &JSONStdoutWriter{out: f}
}
