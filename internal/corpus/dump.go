package corpus

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"

	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/storage"
)

const dumpPageSize = 500

// WriteCSV writes records as key,text,label,vector rows with the vector as a JSON array.
func WriteCSV(w io.Writer, records []*models.CorpusRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"key", "text", "label", "vector"}); err != nil {
		return err
	}
	for _, r := range records {
		vec, err := json.Marshal(r.Vector)
		if err != nil {
			return fmt.Errorf("encode vector for %q: %w", r.Key, err)
		}
		if err := cw.Write([]string{r.Key, r.Text, r.Label, string(vec)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Dump pages through the store's corpus and writes it with WriteCSV.
func Dump(ctx context.Context, w io.Writer, store storage.VectorStore) (int, error) {
	var all []*models.CorpusRecord
	for offset := 0; ; offset += dumpPageSize {
		page, err := store.ListRecords(ctx, offset, dumpPageSize)
		if err != nil {
			return 0, fmt.Errorf("list records: %w", err)
		}
		all = append(all, page...)
		if len(page) < dumpPageSize {
			break
		}
	}
	return len(all), WriteCSV(w, all)
}
