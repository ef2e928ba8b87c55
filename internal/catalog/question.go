// Package catalog loads the past-question bank and answers filtered,
// paginated queries over it.
package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

var ErrMissingColumn = errors.New("catalog: required column missing")

// Question is one row of the question bank.
type Question struct {
	ID          int       `json:"id"`
	CourseCode  string    `json:"course_code"`
	Year        string    `json:"year"`
	Topic       string    `json:"topic"`
	Text        string    `json:"question"`
	Options     [4]string `json:"options"`
	Answer      string    `json:"answer"`
	Explanation string    `json:"explanation,omitempty"`
	Image       string    `json:"image,omitempty"`
}

var requiredColumns = []string{"course_code", "year", "topic", "q"}

// ParseCSV reads a question bank export with columns
// course_code,year,topic,q,a,b,c,d,ans,exp,img. Column order is free and
// header names are case-insensitive; blank rows are skipped.
func ParseCSV(r io.Reader) ([]Question, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("catalog: read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	idx := headerIndex(header)
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}

	var out []Question
	lineNum := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		lineNum++
		if err != nil {
			return nil, fmt.Errorf("catalog: line %d: %w", lineNum, err)
		}
		q := Question{
			CourseCode:  cell(record, idx, "course_code"),
			Year:        normalizeYear(cell(record, idx, "year")),
			Topic:       cell(record, idx, "topic"),
			Text:        cell(record, idx, "q"),
			Options:     [4]string{cell(record, idx, "a"), cell(record, idx, "b"), cell(record, idx, "c"), cell(record, idx, "d")},
			Answer:      cell(record, idx, "ans"),
			Explanation: cell(record, idx, "exp"),
			Image:       cell(record, idx, "img"),
		}
		if q.Text == "" && q.CourseCode == "" {
			continue
		}
		q.ID = len(out) + 1
		out = append(out, q)
	}
	return out, nil
}

func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, field := range header {
		idx[strings.TrimSpace(strings.ToLower(field))] = i
	}
	return idx
}

func safeField(record []string, idx map[string]int, key string) string {
	if pos, ok := idx[key]; ok && pos < len(record) {
		return record[pos]
	}
	return ""
}

// cell is safeField with spreadsheet missing-value markers blanked.
func cell(record []string, idx map[string]int, key string) string {
	v := strings.TrimSpace(safeField(record, idx, key))
	switch strings.ToLower(v) {
	case "nan", "none", "null":
		return ""
	}
	return v
}

// normalizeYear keeps years as text; exports that went through a float
// column write 2019 as "2019.0".
func normalizeYear(v string) string {
	if strings.HasSuffix(v, ".0") {
		trimmed := strings.TrimSuffix(v, ".0")
		if trimmed != "" && strings.Trim(trimmed, "0123456789") == "" {
			return trimmed
		}
	}
	return v
}
