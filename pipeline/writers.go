package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Wisny97/Projet-1/models"
)

// RecordWriter persists one category's records.
type RecordWriter interface {
	Write(records []*models.ProductRecord) error
	Close() error
	Validate() error
	Path() string
}

// WriterFactory opens the writer for a category file base.
type WriterFactory func(fileBase string) (RecordWriter, error)

// Output formats accepted by NewWriterFactory.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
	FormatDual = "dual"
)

// NewWriterFactory returns a factory creating <dir>/<file base>.csv and/or
// <dir>/<file base>.jsonl depending on format.
func NewWriterFactory(dir, format string, columns []string) (WriterFactory, error) {
	if len(columns) == 0 {
		columns = models.DefaultColumns
	}
	cols := append([]string(nil), columns...)

	switch format {
	case FormatCSV, "":
		return func(fileBase string) (RecordWriter, error) {
			return NewCSVWriter(filepath.Join(dir, fileBase+".csv"), cols)
		}, nil
	case FormatJSON:
		return func(fileBase string) (RecordWriter, error) {
			return NewJSONWriter(filepath.Join(dir, fileBase+".jsonl"), cols)
		}, nil
	case FormatDual:
		return func(fileBase string) (RecordWriter, error) {
			return OpenMulti(
				func() (RecordWriter, error) { return NewCSVWriter(filepath.Join(dir, fileBase+".csv"), cols) },
				func() (RecordWriter, error) { return NewJSONWriter(filepath.Join(dir, fileBase+".jsonl"), cols) },
			)
		}, nil
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
}

// CSVWriter writes records to CSV.
type CSVWriter struct {
	path    string
	columns []string
	file    *os.File
	writer  *csv.Writer
	mu      sync.Mutex
}

// NewCSVWriter initialises a CSV writer and writes the header row.
func NewCSVWriter(filename string, columns []string) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}

	writer := csv.NewWriter(f)
	if err := writer.Write(columns); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush csv header: %w", err)
	}

	return &CSVWriter{
		path:    filename,
		columns: columns,
		file:    f,
		writer:  writer,
	}, nil
}

// Write appends records to the CSV output.
func (cw *CSVWriter) Write(records []*models.ProductRecord) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for _, record := range records {
		row, err := record.Row(cw.columns)
		if err != nil {
			return fmt.Errorf("render csv record: %w", err)
		}
		if err := cw.writer.Write(row); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

// Validate ensures the file has at least its header.
func (cw *CSVWriter) Validate() error {
	info, err := cw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat csv file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("csv file is empty")
	}
	return nil
}

// Path returns the file being written.
func (cw *CSVWriter) Path() string {
	return cw.path
}

// JSONWriter writes newline-delimited JSON records keyed by column name.
type JSONWriter struct {
	path    string
	columns []string
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	written int
	mu      sync.Mutex
}

// NewJSONWriter initialises the JSON writer.
func NewJSONWriter(filename string, columns []string) (*JSONWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create json file: %w", err)
	}

	buffer := bufio.NewWriter(f)
	return &JSONWriter{
		path:    filename,
		columns: columns,
		file:    f,
		writer:  buffer,
		encoder: json.NewEncoder(buffer),
	}, nil
}

// Write appends records in JSONL format.
func (jw *JSONWriter) Write(records []*models.ProductRecord) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, record := range records {
		fields, err := record.Fields(jw.columns)
		if err != nil {
			return fmt.Errorf("render json record: %w", err)
		}
		if err := jw.encoder.Encode(fields); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
		jw.written++
	}

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}

	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return jw.file.Close()
}

// Validate ensures written records reached the file. A category without
// records legitimately yields an empty file.
func (jw *JSONWriter) Validate() error {
	jw.mu.Lock()
	written := jw.written
	jw.mu.Unlock()

	info, err := jw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat json file: %w", err)
	}
	if written > 0 && info.Size() <= 0 {
		return fmt.Errorf("json file is empty")
	}
	return nil
}

// Path returns the file being written.
func (jw *JSONWriter) Path() string {
	return jw.path
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
