package importer

import (
	"bytes"
	"encoding/csv"
	"io"
	"strings"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Parse turns raw upload bytes into trimmed, sanitized rows. It is a pure
// transformation: no I/O, no shared state.
//
// Rows with a different column count than the header are padded or truncated
// to header width rather than failing the whole file; the resulting gaps
// surface as row-level validation errors later.
func Parse(content []byte, limits Limits) (*ParseResult, error) {
	if limits.MaxBytes > 0 && int64(len(content)) > limits.MaxBytes {
		return nil, &LimitExceededError{Limit: "bytes", Max: limits.MaxBytes}
	}

	content = bytes.TrimPrefix(content, utf8BOM)

	if !utf8.Valid(content) {
		return nil, &FormatError{Reason: "content is not valid UTF-8 text"}
	}
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, &FormatError{Reason: "file is empty"}
	}

	reader := csv.NewReader(bytes.NewReader(content))
	reader.FieldsPerRecord = -1 // tolerate ragged rows, normalized below
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, &FormatError{Reason: "unable to read header row: " + err.Error()}
	}

	headers := make([]string, len(header))
	for i, h := range header {
		headers[i] = strings.TrimSpace(h)
	}
	width := len(headers)

	var rows []RawRow
	num := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		num++
		if limits.MaxRows > 0 && num > limits.MaxRows {
			return nil, &LimitExceededError{Limit: "rows", Max: int64(limits.MaxRows)}
		}
		cells := make([]string, width)
		if err == nil {
			for i := 0; i < width && i < len(record); i++ {
				cells[i] = sanitizeCell(strings.TrimSpace(record[i]))
			}
		}
		// On a per-line parse error the row is kept empty so the file keeps
		// its row numbering and the row fails field validation instead.
		rows = append(rows, RawRow{Number: num, Cells: cells})
	}

	return &ParseResult{Headers: headers, Rows: rows}, nil
}

// sanitizeCell neutralizes spreadsheet formula injection: a value starting
// with =, +, - or @ would be evaluated if the exported data were opened in
// spreadsheet software, so it gets a literal-quote prefix.
func sanitizeCell(s string) string {
	if s == "" {
		return s
	}
	switch s[0] {
	case '=', '+', '-', '@':
		return "'" + s
	}
	return s
}
