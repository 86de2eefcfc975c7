// Package export writes harvested records to CSV or JSONL files.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"xharvest/internal/types"
)

// Format selects the output encoding.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatJSONL Format = "jsonl"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatCSV, FormatJSONL:
		return Format(s), nil
	}
	return "", fmt.Errorf("invalid save mode %q (want csv or jsonl)", s)
}

// Writer saves harvests into a directory, one timestamped file per
// harvest.
type Writer struct {
	dir string
}

// NewWriter creates the output directory on first use.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Save writes posts in the requested format and returns the file path.
func (w *Writer) Save(posts []types.Post, format Format) (string, error) {
	switch format {
	case FormatCSV:
		return w.SaveCSV(posts)
	case FormatJSONL:
		return w.SaveJSONL(posts)
	}
	return "", fmt.Errorf("invalid save mode %q", format)
}

// SaveCSV writes one row per record, nested structures stringified.
func (w *Writer) SaveCSV(posts []types.Post) (string, error) {
	path, err := w.outputPath(len(posts), "csv")
	if err != nil {
		return "", err
	}

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(types.CSVHeader()); err != nil {
		return "", err
	}
	for i := range posts {
		if err := cw.Write(posts[i].CSVRow()); err != nil {
			return "", err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return "", err
	}
	return path, nil
}

// SaveJSONL writes one JSON record per line, nested structures kept
// nested.
func (w *Writer) SaveJSONL(posts []types.Post) (string, error) {
	path, err := w.outputPath(len(posts), "jsonl")
	if err != nil {
		return "", err
	}

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for i := range posts {
		if err := enc.Encode(&posts[i]); err != nil {
			return "", err
		}
	}
	return path, nil
}

func (w *Writer) outputPath(count int, ext string) (string, error) {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s_tweets_1-%d.%s",
		time.Now().Format("2006-01-02_15-04-05"), count, ext)
	return filepath.Join(w.dir, name), nil
}
