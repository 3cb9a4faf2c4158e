package sink

import (
	"encoding/json"
	"errors"
	"os"
	"sync"

	"edgesync/internal/netmon"
	"edgesync/internal/scheduler"
)

// FileWriter writes results and samples to JSONL files.
type FileWriter struct {
	mu       sync.Mutex
	resFile  *os.File
	condFile *os.File
	resEnc   *json.Encoder
	condEnc  *json.Encoder
}

// NewFileWriter creates a FileWriter. conditionsPath may be empty to skip
// the sample log.
func NewFileWriter(resultsPath, conditionsPath string) (*FileWriter, error) {
	rf, err := os.Create(resultsPath)
	if err != nil {
		return nil, err
	}
	fw := &FileWriter{resFile: rf, resEnc: json.NewEncoder(rf)}
	if conditionsPath != "" {
		cf, err := os.Create(conditionsPath)
		if err != nil {
			rf.Close()
			return nil, err
		}
		fw.condFile = cf
		fw.condEnc = json.NewEncoder(cf)
	}
	return fw, nil
}

// WriteResult logs a single result.
func (f *FileWriter) WriteResult(r scheduler.Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resEnc.Encode(r)
}

// WriteResults logs multiple results.
func (f *FileWriter) WriteResults(rs []scheduler.Result) error {
	for _, r := range rs {
		if err := f.WriteResult(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteCondition logs a single sample, if enabled.
func (f *FileWriter) WriteCondition(c netmon.Condition) error {
	if f.condEnc == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.condEnc.Encode(c)
}

// Close closes any underlying files.
func (f *FileWriter) Close() error {
	var errs []error
	if f.resFile != nil {
		errs = append(errs, f.resFile.Close())
	}
	if f.condFile != nil {
		errs = append(errs, f.condFile.Close())
	}
	return errors.Join(errs...)
}
