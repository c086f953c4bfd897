package logging

import (
	"io"

	"go.uber.org/multierr"
)

// CombinedWriter fans writes out to several writers and collects their errors.
type CombinedWriter struct {
	writers []io.Writer
}

// NewCombinedWriter builds a CombinedWriter over writers.
func NewCombinedWriter(writers ...io.Writer) *CombinedWriter {
	return &CombinedWriter{writers: writers}
}

// Write writes p to every writer. It reports len(p) when at least one writer
// accepted the full payload.
func (cw *CombinedWriter) Write(p []byte) (int, error) {
	var (
		err      error
		accepted bool
	)
	for _, w := range cw.writers {
		n, werr := w.Write(p)
		if werr != nil {
			err = multierr.Append(err, werr)
			continue
		}
		if n == len(p) {
			accepted = true
		}
	}
	if accepted {
		return len(p), err
	}
	return 0, err
}
