package e2e

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/ruiji/internal/models"
)

// SupportedFileExtensions lists the corpus source formats exercised by e2e tests.
var SupportedFileExtensions = []string{".json", ".csv", ".xlsx"}

// EncodeCorpus renders records as a corpus source file of the given extension with
// key, quote and movie columns.
func EncodeCorpus(ext string, records []models.RawRecord) ([]byte, error) {
	switch ext {
	case ".json":
		rows := make([]map[string]string, len(records))
		for i, r := range records {
			rows[i] = map[string]string{"key": r.Key, "quote": r.Text, "movie": r.Label}
		}
		return json.Marshal(rows)
	case ".csv":
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		_ = w.Write([]string{"key", "quote", "movie"})
		for _, r := range records {
			_ = w.Write([]string{r.Key, r.Text, r.Label})
		}
		w.Flush()
		return buf.Bytes(), w.Error()
	case ".xlsx":
		return encodeXLSX(records)
	default:
		return nil, fmt.Errorf("unsupported extension %s", ext)
	}
}

func encodeXLSX(records []models.RawRecord) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	if err := f.SetSheetRow(sheet, "A1", &[]interface{}{"key", "quote", "movie"}); err != nil {
		return nil, err
	}
	for i, r := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &[]interface{}{r.Key, r.Text, r.Label}); err != nil {
			return nil, err
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
