package services

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// ErrMalformedCSV is returned for CSV input that cannot be mapped to a table
var ErrMalformedCSV = errors.New("malformed csv")

// ConvertCSVToParquet converts a CSV document with a header row into a Parquet file.
// Every header field becomes a required string column. It returns the encoded file and
// the number of data rows.
func ConvertCSVToParquet(data []byte) ([]byte, int, error) {
	reader := csv.NewReader(bytes.NewReader(data))

	header, err := reader.Read()
	if err == io.EOF {
		return nil, 0, fmt.Errorf("%w: missing header row", ErrMalformedCSV)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrMalformedCSV, err)
	}

	schema, columnIndex, err := schemaFromHeader(header)
	if err != nil {
		return nil, 0, err
	}

	var rows []parquet.Row
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrMalformedCSV, err)
		}

		row := make(parquet.Row, len(record))
		for i, field := range record {
			column := columnIndex[i]
			row[column] = parquet.ValueOf(field).Level(0, 0, column)
		}
		rows = append(rows, row)
	}

	var buf bytes.Buffer
	writer := parquet.NewWriter(&buf, schema)
	if len(rows) > 0 {
		if _, err := writer.WriteRows(rows); err != nil {
			return nil, 0, fmt.Errorf("failed to write parquet rows: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, 0, fmt.Errorf("failed to finalize parquet file: %w", err)
	}

	return buf.Bytes(), len(rows), nil
}

// schemaFromHeader builds the schema and maps each CSV position to its leaf column.
// Group fields are ordered by name, so the column index differs from the CSV position.
func schemaFromHeader(header []string) (*parquet.Schema, []int, error) {
	group := parquet.Group{}
	for i, name := range header {
		name = strings.TrimSpace(name)
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		if name == "" {
			return nil, nil, fmt.Errorf("%w: empty column name at position %d", ErrMalformedCSV, i+1)
		}
		if _, exists := group[name]; exists {
			return nil, nil, fmt.Errorf("%w: duplicate column name %q", ErrMalformedCSV, name)
		}
		group[name] = parquet.Required(parquet.String())
		header[i] = name
	}

	schema := parquet.NewSchema("csv", group)

	positions := make(map[string]int, len(header))
	for i, field := range schema.Fields() {
		positions[field.Name()] = i
	}

	columnIndex := make([]int, len(header))
	for i, name := range header {
		columnIndex[i] = positions[name]
	}

	return schema, columnIndex, nil
}
