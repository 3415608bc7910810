// Package csvio reads input tables and writes output tables as delimited
// text. Output writing is incremental so large batches never buffer the
// whole result set.
package csvio

import (
	"encoding/csv"
	"fmt"
	"os"

	"api-retriever/internal/logging"
)

// ReadInput reads the input table and returns one field map per row.
// The header row is required; every column must be a declared input
// parameter and every declared parameter must appear as a column.
func ReadInput(path string, delimiter rune, inputParams []string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file '%s': %w", path, err)
	}
	defer f.Close()

	// The header row fixes the field count for the rest of the file.
	reader := csv.NewReader(f)
	reader.Comma = delimiter

	all, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read input file '%s': %w", path, err)
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("input file '%s' is missing a header row", path)
	}

	header := all[0]
	declared := make(map[string]bool, len(inputParams))
	for _, param := range inputParams {
		declared[param] = true
	}
	columnIndex := make(map[string]int, len(header))
	for i, col := range header {
		if !declared[col] {
			return nil, fmt.Errorf("unknown column '%s' in input file '%s'", col, path)
		}
		columnIndex[col] = i
	}
	for _, param := range inputParams {
		if _, ok := columnIndex[param]; !ok {
			return nil, fmt.Errorf("input file '%s' is missing column '%s'", path, param)
		}
	}

	rows := make([]map[string]string, 0, len(all)-1)
	for rowNum, record := range all[1:] {
		row := make(map[string]string, len(inputParams))
		for _, param := range inputParams {
			value := record[columnIndex[param]]
			if value == "" {
				return nil, fmt.Errorf("row %d of '%s': no value for parameter '%s'", rowNum+2, path, param)
			}
			row[param] = value
		}
		rows = append(rows, row)
	}
	logging.Logf(logging.Info, "Read %d rows from %s", len(rows), path)
	return rows, nil
}

// Writer appends output rows to a delimited file with a fixed column set.
type Writer struct {
	file    *os.File
	csv     *csv.Writer
	columns []string
}

// NewWriter opens the output file. With appendMode the file is opened for
// append and no header is written, so a resumed run continues the same
// table; otherwise the file is truncated and the header written.
func NewWriter(path string, delimiter rune, columns []string, appendMode bool) (*Writer, error) {
	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open output file '%s': %w", path, err)
	}
	w := &Writer{file: f, csv: csv.NewWriter(f), columns: columns}
	w.csv.Comma = delimiter

	if !appendMode {
		if err := w.csv.Write(columns); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write header to '%s': %w", path, err)
		}
	}
	return w, nil
}

// WriteRecords appends one line per record and flushes, so written chunks
// are durable before the checkpoint advances.
func (w *Writer) WriteRecords(records []map[string]string) error {
	line := make([]string, len(w.columns))
	for _, rec := range records {
		for i, col := range w.columns {
			line[i] = rec[col]
		}
		if err := w.csv.Write(line); err != nil {
			return fmt.Errorf("failed to write output record: %w", err)
		}
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return fmt.Errorf("failed to flush output: %w", err)
	}
	return w.file.Sync()
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}
