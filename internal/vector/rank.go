package vector

import (
	"sort"

	"github.com/hyperjump/ruiji/internal/models"
)

// Rank scores every record against query by cosine similarity and returns the top limit
// results ordered by score descending. Ties keep ascending Seq order.
func Rank(query []float32, records []*models.CorpusRecord, limit int) []*models.RankedResult {
	if limit <= 0 || len(records) == 0 {
		return nil
	}
	type scored struct {
		rec   *models.CorpusRecord
		score float64
	}
	scores := make([]scored, len(records))
	for i, r := range records {
		scores[i] = scored{rec: r, score: CosineSimilarity(r.Vector, query)}
	}
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		return scores[i].rec.Seq < scores[j].rec.Seq
	})
	if limit > len(scores) {
		limit = len(scores)
	}
	out := make([]*models.RankedResult, limit)
	for i := 0; i < limit; i++ {
		out[i] = &models.RankedResult{
			Key:   scores[i].rec.Key,
			Text:  scores[i].rec.Text,
			Label: scores[i].rec.Label,
			Score: scores[i].score,
			Rank:  i + 1,
		}
	}
	return out
}
