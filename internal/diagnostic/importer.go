package diagnostic

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ImportConfig defines how a question workbook is read. Content teams author
// question metadata in spreadsheets; one row per question with columns
// id, text, kind, topic, style, weight, answer, options. Options are
// semicolon-separated entries of the form "text|style|pace|correct".
type ImportConfig struct {
	SheetName  string
	SkipHeader bool
}

// DefaultImportConfig returns the standard workbook layout.
func DefaultImportConfig() ImportConfig {
	return ImportConfig{
		SheetName:  "Sheet1",
		SkipHeader: true,
	}
}

// ImportResult summarizes a workbook import.
type ImportResult struct {
	Processed int
	Added     int
	Errors    []string
}

// ImportWorkbook loads questions from an Excel workbook into the bank.
// Invalid rows are collected in the result rather than aborting the import.
func (b *Bank) ImportWorkbook(path string, cfg ImportConfig) (*ImportResult, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(cfg.SheetName)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", cfg.SheetName, err)
	}

	result := &ImportResult{}
	for i, row := range rows {
		if i == 0 && cfg.SkipHeader {
			continue
		}
		if len(row) == 0 || strings.TrimSpace(cell(row, 0)) == "" {
			continue
		}
		result.Processed++

		q, err := questionFromRow(row)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", i+1, err))
			continue
		}
		if err := b.Add(q); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", i+1, err))
			continue
		}
		result.Added++
	}
	return result, nil
}

func questionFromRow(row []string) (Question, error) {
	q := Question{
		ID:     strings.TrimSpace(cell(row, 0)),
		Text:   strings.TrimSpace(cell(row, 1)),
		Kind:   Kind(strings.TrimSpace(cell(row, 2))),
		Topic:  strings.TrimSpace(cell(row, 3)),
		Style:  strings.TrimSpace(cell(row, 4)),
		Answer: strings.TrimSpace(cell(row, 6)),
	}

	if w := strings.TrimSpace(cell(row, 5)); w != "" {
		weight, err := strconv.ParseFloat(w, 64)
		if err != nil {
			return Question{}, fmt.Errorf("weight %q: %w", w, err)
		}
		q.Weight = weight
	}

	if opts := strings.TrimSpace(cell(row, 7)); opts != "" {
		for _, entry := range strings.Split(opts, ";") {
			parts := strings.Split(entry, "|")
			opt := Option{Text: strings.TrimSpace(parts[0])}
			if len(parts) > 1 {
				opt.Style = strings.TrimSpace(parts[1])
			}
			if len(parts) > 2 {
				opt.Pace = strings.TrimSpace(parts[2])
			}
			if len(parts) > 3 {
				opt.Correct = strings.EqualFold(strings.TrimSpace(parts[3]), "true")
			}
			q.Options = append(q.Options, opt)
		}
	}
	return q, nil
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
