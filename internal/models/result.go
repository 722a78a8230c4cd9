package models

// RankedResult is a single similarity hit, in ranking order.
type RankedResult struct {
	Key   string  `json:"key"`
	Text  string  `json:"text"`
	Label string  `json:"label,omitempty"`
	Score float64 `json:"score"`
	Rank  int     `json:"rank"`
}

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Results   []*RankedResult `json:"results"`
	Total     int             `json:"total"`
	QueryTime int64           `json:"query_time_ms"`
	Query     string          `json:"query"`
}
