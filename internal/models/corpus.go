// Package models defines core data structures for corpus records, queries, and ranked results.
package models

import "time"

// RawRecord is an un-embedded corpus entry as read from a source file or API request.
type RawRecord struct {
	Key   string `json:"key,omitempty"`
	Text  string `json:"text"`
	Label string `json:"label,omitempty"`
}

// CorpusRecord is an embedded corpus entry owned by the vector store.
// Seq is the insertion order and breaks score ties.
type CorpusRecord struct {
	Seq    int64     `json:"seq" db:"seq"`
	Key    string    `json:"key" db:"key"`
	Text   string    `json:"text" db:"text"`
	Label  string    `json:"label,omitempty" db:"label"`
	Vector []float32 `json:"vector,omitempty" db:"vector"`
}

// CorpusMeta describes the corpus currently held by a store.
type CorpusMeta struct {
	Records    int64     `json:"records"`
	Dimensions int       `json:"dimensions"`
	Model      string    `json:"model,omitempty"`
	BuiltAt    time.Time `json:"built_at,omitempty"`
}
