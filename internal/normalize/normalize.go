// Package normalize turns raw CSV bytes into fully materialized rows keyed
// by canonical field name.
//
// The first non-empty line is the header. Header cells are folded with
// food.CanonicalField; data cells are passed through untouched. Blank lines
// are skipped and never produce a row. Any structural defect (wrong column
// count, a stray quote) fails the whole input with a *food.ParseError: the
// caller either gets every row or none.
package normalize

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/JonMunkholm/foodingest/internal/food"
)

// Bytes normalizes an in-memory CSV document.
func Bytes(data []byte) ([]food.Row, error) {
	return Reader(bytes.NewReader(data))
}

// Reader normalizes a CSV document read from r. A leading UTF-8 BOM is
// skipped. An empty document, or one holding only a header, yields zero rows.
func Reader(r io.Reader) ([]food.Row, error) {
	cr := csv.NewReader(NewBOMSkippingReader(r))
	cr.FieldsPerRecord = 0 // every row must match the header width

	header, err := cr.Read()
	if err == io.EOF {
		return []food.Row{}, nil
	}
	if err != nil {
		return nil, asParseError(err)
	}

	keys, err := headerKeys(header)
	if err != nil {
		return nil, err
	}

	rows := make([]food.Row, 0, 64)
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, asParseError(err)
		}

		row := make(food.Row, len(keys))
		for i, key := range keys {
			if key == "" {
				continue
			}
			row[key] = record[i]
		}
		rows = append(rows, row)
	}

	return rows, nil
}

// headerKeys canonicalizes the header row. Columns with an empty name are
// kept positionally but their values are dropped. Two columns folding to the
// same name make the file ambiguous and are rejected.
func headerKeys(header []string) ([]string, error) {
	keys := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		key := food.CanonicalField(h)
		if key != "" {
			if prev, dup := seen[key]; dup {
				return nil, &food.ParseError{
					Line: 1,
					Err:  fmt.Errorf("header columns %d and %d both normalize to %q", prev+1, i+1, key),
				}
			}
			seen[key] = i
		}
		keys[i] = key
	}
	return keys, nil
}

func asParseError(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &food.ParseError{Line: pe.Line, Err: pe.Err}
	}
	return &food.ParseError{Err: err}
}
