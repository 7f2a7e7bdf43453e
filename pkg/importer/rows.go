// Package importer reads spreadsheet-style CSV uploads into header-keyed rows.
package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

const bom = "\ufeff"

// Row maps a normalised header to its trimmed cell value.
type Row map[string]string

// Get returns the first non-empty value among keys, matched case-insensitively
// and ignoring spaces and underscores ("Roll Number" == "roll_number" == "RollNumber").
func (r Row) Get(keys ...string) string {
	for _, key := range keys {
		if v, ok := r[fold(key)]; ok && v != "" {
			return v
		}
	}
	return ""
}

// ReadRows parses a CSV document with a header line. Header names are trimmed
// and stripped of a UTF-8 BOM; blank lines are skipped.
func ReadRows(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	keys := make([]string, len(header))
	for i, h := range header {
		keys[i] = fold(strings.TrimPrefix(strings.TrimSpace(h), bom))
	}

	var rows []Row
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		row := make(Row, len(keys))
		empty := true
		for i, key := range keys {
			if key == "" || i >= len(record) {
				continue
			}
			value := strings.TrimSpace(record[i])
			if value != "" {
				empty = false
			}
			row[key] = value
		}
		if !empty {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func fold(key string) string {
	key = strings.TrimPrefix(key, bom)
	key = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(key)
	return strings.ToLower(strings.TrimSpace(key))
}
