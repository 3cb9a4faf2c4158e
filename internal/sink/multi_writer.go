package sink

import (
	"errors"
	"io"

	"edgesync/internal/netmon"
	"edgesync/internal/scheduler"
)

// MultiWriter fans results and samples out to several writers.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a new MultiWriter. Nil writers are skipped.
func NewMultiWriter(ws ...Writer) *MultiWriter {
	mw := &MultiWriter{}
	for _, w := range ws {
		if w != nil {
			mw.writers = append(mw.writers, w)
		}
	}
	return mw
}

// WriteResult sends a result to all writers.
func (mw *MultiWriter) WriteResult(r scheduler.Result) error {
	var errs []error
	for _, w := range mw.writers {
		errs = append(errs, w.WriteResult(r))
	}
	return errors.Join(errs...)
}

// WriteResults sends a batch to all writers, using batch writes if supported.
func (mw *MultiWriter) WriteResults(rs []scheduler.Result) error {
	var errs []error
	for _, w := range mw.writers {
		if bw, ok := w.(batchWriter); ok {
			errs = append(errs, bw.WriteResults(rs))
			continue
		}
		for _, r := range rs {
			errs = append(errs, w.WriteResult(r))
		}
	}
	return errors.Join(errs...)
}

// WriteCondition sends a sample to all writers.
func (mw *MultiWriter) WriteCondition(c netmon.Condition) error {
	var errs []error
	for _, w := range mw.writers {
		errs = append(errs, w.WriteCondition(c))
	}
	return errors.Join(errs...)
}

// Close closes every writer that holds resources.
func (mw *MultiWriter) Close() error {
	var errs []error
	for _, w := range mw.writers {
		if c, ok := w.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
