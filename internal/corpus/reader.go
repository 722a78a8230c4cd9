package corpus

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/ruiji/internal/models"
)

// FieldMap names the source fields holding each record attribute.
// An empty Key field numbers records from 1 in file order.
type FieldMap struct {
	Key   string
	Text  string
	Label string
}

// DefaultFields matches the quote corpus layout.
var DefaultFields = FieldMap{Text: "quote", Label: "movie"}

// ReadFile reads raw records from path, choosing the format by extension:
// .json (array of objects), .csv (header row) or .xlsx (first sheet, header row).
func ReadFile(path string, fields FieldMap) ([]models.RawRecord, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open corpus: %w", err)
		}
		defer f.Close()
		return ReadJSON(f, fields)
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open corpus: %w", err)
		}
		defer f.Close()
		return ReadCSV(f, fields)
	case ".xlsx":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open corpus: %w", err)
		}
		defer f.Close()
		return ReadXLSX(f, fields)
	default:
		return nil, fmt.Errorf("unsupported corpus format %q", ext)
	}
}

// ReadJSON decodes a JSON array of objects. Non-string field values are formatted as text.
func ReadJSON(r io.Reader, fields FieldMap) ([]models.RawRecord, error) {
	var rows []map[string]any
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, fmt.Errorf("parse json corpus: %w", err)
	}
	out := make([]models.RawRecord, 0, len(rows))
	for i, row := range rows {
		out = append(out, fields.record(i, func(name string) string {
			return jsonField(row[name])
		}))
	}
	return out, nil
}

func jsonField(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// ReadCSV reads a CSV file whose first row names the columns.
func ReadCSV(r io.Reader, fields FieldMap) ([]models.RawRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv corpus: %w", err)
	}
	return fields.fromRows(rows)
}

// ReadXLSX reads the first sheet of a workbook whose first row names the columns.
func ReadXLSX(r io.Reader, fields FieldMap) ([]models.RawRecord, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx corpus: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("xlsx corpus has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return fields.fromRows(rows)
}

// fromRows maps a header row plus data rows to records.
func (m FieldMap) fromRows(rows [][]string) ([]models.RawRecord, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	col := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		col[strings.TrimSpace(name)] = i
	}
	if _, ok := col[m.Text]; !ok {
		return nil, fmt.Errorf("corpus has no %q column", m.Text)
	}
	out := make([]models.RawRecord, 0, len(rows)-1)
	for i, row := range rows[1:] {
		out = append(out, m.record(i, func(name string) string {
			j, ok := col[name]
			if !ok || j >= len(row) {
				return ""
			}
			return row[j]
		}))
	}
	return out, nil
}

func (m FieldMap) record(i int, get func(string) string) models.RawRecord {
	rec := models.RawRecord{Text: get(m.Text)}
	if m.Label != "" {
		rec.Label = get(m.Label)
	}
	if m.Key != "" {
		rec.Key = get(m.Key)
	}
	if rec.Key == "" {
		rec.Key = strconv.Itoa(i + 1)
	}
	return rec
}
