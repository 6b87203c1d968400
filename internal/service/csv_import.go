package service

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"narration-service/internal/entity"
)

// MaxImportRows caps a single CSV import.
const MaxImportRows = 10000

var requiredColumns = []string{"title", "details"}

// ParseRows reads a CSV with a header row naming at least title and details
// (category and reference are optional, order is free). Blank rows are
// skipped; row contents are validated later by the pipeline.
func ParseRows(r io.Reader) ([]entity.ItemSource, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &entity.ValidationError{Field: "csv", Reason: "empty input"}
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	cols := map[string]int{}
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		cols[name] = i
	}
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			return nil, &entity.ValidationError{Field: "csv", Reason: "missing column " + c}
		}
	}

	field := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var rows []entity.ItemSource
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			return nil, &entity.ValidationError{Field: "csv", Reason: perr.Error()}
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		if blank(rec) {
			continue
		}
		if len(rows) == MaxImportRows {
			return nil, &entity.ValidationError{Field: "csv", Reason: fmt.Sprintf("more than %d rows", MaxImportRows)}
		}
		rows = append(rows, entity.ItemSource{
			Title:     field(rec, "title"),
			Details:   field(rec, "details"),
			Category:  field(rec, "category"),
			Reference: field(rec, "reference"),
		})
	}
	if len(rows) == 0 {
		return nil, &entity.ValidationError{Field: "csv", Reason: "no data rows"}
	}
	return rows, nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
