package pipeline

import (
	"errors"
	"fmt"

	"github.com/Wisny97/Projet-1/models"
)

// MultiWriter fans each batch out to several writers for one category. The
// first writer is the primary output reported by Path.
type MultiWriter struct {
	writers []RecordWriter
}

// OpenMulti opens a writer per opener, in order. If any open fails the
// writers already opened are closed.
func OpenMulti(openers ...func() (RecordWriter, error)) (*MultiWriter, error) {
	if len(openers) == 0 {
		return nil, errors.New("no writers to open")
	}

	mw := &MultiWriter{writers: make([]RecordWriter, 0, len(openers))}
	for _, open := range openers {
		w, err := open()
		if err != nil {
			_ = mw.Close()
			return nil, err
		}
		mw.writers = append(mw.writers, w)
	}
	return mw, nil
}

// Write hands records to every writer and stops at the first failure.
func (mw *MultiWriter) Write(records []*models.ProductRecord) error {
	for _, w := range mw.writers {
		if err := w.Write(records); err != nil {
			return fmt.Errorf("%s: %w", w.Path(), err)
		}
	}
	return nil
}

// Close closes every writer, even after a failure.
func (mw *MultiWriter) Close() error {
	var errs []error
	for _, w := range mw.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", w.Path(), err))
		}
	}
	return errors.Join(errs...)
}

func (mw *MultiWriter) Validate() error {
	var errs []error
	for _, w := range mw.writers {
		if err := w.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", w.Path(), err))
		}
	}
	return errors.Join(errs...)
}

func (mw *MultiWriter) Path() string {
	return mw.writers[0].Path()
}

// Paths lists every output file in open order.
func (mw *MultiWriter) Paths() []string {
	paths := make([]string, len(mw.writers))
	for i, w := range mw.writers {
		paths[i] = w.Path()
	}
	return paths
}
