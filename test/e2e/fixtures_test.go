package e2e

import (
	"bytes"
	"testing"

	"github.com/hyperjump/ruiji/internal/corpus"
)

func TestEncodeCorpus_roundTripsThroughReader(t *testing.T) {
	records := BuildCorpus(5).Records
	fields := corpus.FieldMap{Key: "key", Text: "quote", Label: "movie"}
	for _, ext := range SupportedFileExtensions {
		t.Run(ext, func(t *testing.T) {
			data, err := EncodeCorpus(ext, records)
			if err != nil {
				t.Fatal(err)
			}
			var got []string
			switch ext {
			case ".json":
				raws, err := corpus.ReadJSON(bytes.NewReader(data), fields)
				if err != nil {
					t.Fatal(err)
				}
				for _, r := range raws {
					got = append(got, r.Key+"|"+r.Text+"|"+r.Label)
				}
			case ".csv":
				raws, err := corpus.ReadCSV(bytes.NewReader(data), fields)
				if err != nil {
					t.Fatal(err)
				}
				for _, r := range raws {
					got = append(got, r.Key+"|"+r.Text+"|"+r.Label)
				}
			case ".xlsx":
				raws, err := corpus.ReadXLSX(bytes.NewReader(data), fields)
				if err != nil {
					t.Fatal(err)
				}
				for _, r := range raws {
					got = append(got, r.Key+"|"+r.Text+"|"+r.Label)
				}
			}
			if len(got) != len(records) {
				t.Fatalf("records = %d, want %d", len(got), len(records))
			}
			for i, r := range records {
				if want := r.Key + "|" + r.Text + "|" + r.Label; got[i] != want {
					t.Errorf("record %d = %q, want %q", i, got[i], want)
				}
			}
		})
	}
}

func TestEncodeCorpus_unsupported(t *testing.T) {
	if _, err := EncodeCorpus(".pdf", nil); err == nil {
		t.Error("expected error for .pdf")
	}
}
