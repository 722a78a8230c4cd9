package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/hyperjump/ruiji/internal/corpus"
	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/storage"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

func (s *Server) handleSearchGet(w http.ResponseWriter, r *http.Request) {
	query := models.SearchQuery{Query: r.URL.Query().Get("query")}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		query.Limit = n
	}
	s.search(w, r, &query)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.search(w, r, &query)
}

func (s *Server) search(w http.ResponseWriter, r *http.Request, query *models.SearchQuery) {
	s.logger.Debug("search request", zap.Int("query_length", len(query.Query)), zap.Int("limit", query.Limit))
	response, err := s.engine.Search(r.Context(), query)
	if err != nil {
		if models.IsValidationError(err) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "search failed")
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

type rebuildRequest struct {
	Records []models.RawRecord `json:"records"`
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	if s.builder == nil {
		s.respondError(w, http.StatusNotImplemented, "corpus rebuild not enabled")
		return
	}
	var req rebuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var (
		n   int
		err error
	)
	switch {
	case req.Records != nil:
		n, err = s.builder.Build(r.Context(), req.Records)
	case s.config.Corpus.SourcePath != "":
		n, err = s.builder.BuildFile(r.Context(), s.config.Corpus.SourcePath, fieldMap(s))
	default:
		s.respondError(w, http.StatusBadRequest, "no records given and no corpus source configured")
		return
	}
	if err != nil {
		if isInputError(err) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("corpus rebuild failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "corpus rebuild failed")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"records": n, "status": "rebuilt"})
}

func fieldMap(s *Server) corpus.FieldMap {
	return corpus.FieldMap{
		Key:   s.config.Corpus.KeyField,
		Text:  s.config.Corpus.TextField,
		Label: s.config.Corpus.LabelField,
	}
}

func isInputError(err error) bool {
	return errors.Is(err, corpus.ErrEmptyText) ||
		errors.Is(err, corpus.ErrTextTooLong) ||
		errors.Is(err, corpus.ErrDuplicateKey)
}

func (s *Server) handleListCorpus(w http.ResponseWriter, r *http.Request) {
	offset, err := intParam(r, "offset", 0)
	if err != nil || offset < 0 {
		s.respondError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}
	limit, err := intParam(r, "limit", defaultPageSize)
	if err != nil || limit < 1 {
		s.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	records, err := s.store.ListRecords(r.Context(), offset, limit)
	if err != nil {
		s.logger.Error("list corpus failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "list corpus failed")
		return
	}
	for _, rec := range records {
		rec.Vector = nil
	}
	if records == nil {
		records = []*models.CorpusRecord{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"offset":  offset,
		"limit":   limit,
	})
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	meta, err := s.store.Meta(r.Context())
	if err != nil {
		s.logger.Error("status: read corpus meta failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "status unavailable")
		return
	}
	resp := map[string]interface{}{
		"corpus":           meta,
		"slot_mode":        s.engine.SlotMode(),
		"cleanup_failures": s.engine.CleanupFailures(),
	}

	configInfo := map[string]interface{}{
		"storage_driver":     s.config.Storage.Driver,
		"embedding_provider": s.config.Embedding.Provider,
		"embedding_model":    s.config.Embedding.Model,
		"max_query_length":   s.config.Search.MaxQueryLength,
		"default_limit":      s.config.Search.DefaultLimit,
	}
	if s.config.Storage.Driver == "sqlite" {
		configInfo["database_path"] = s.config.Storage.DatabasePath
		if diskBytes, err := storage.SQLiteDiskUsage(s.config.Storage.DatabasePath); err == nil {
			resp["disk_usage_bytes"] = diskBytes
		}
	}
	if s.config.Corpus.SourcePath != "" {
		configInfo["corpus_source"] = s.config.Corpus.SourcePath
	}
	resp["config"] = configInfo
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
