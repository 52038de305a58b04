package httpserver

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/paperpulse/analysis-service/internal/repository"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// listPapers handles GET /api/v1/papers with optional category and
// published-date filters.
func (s *Server) listPapers(w http.ResponseWriter, r *http.Request) {
	limit, err := parseIntParam(r, "limit", defaultPageSize)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if limit == 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	offset, err := parseIntParam(r, "offset", 0)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	filter := repository.PaperFilter{
		Category: strings.TrimSpace(r.URL.Query().Get("category")),
		Limit:    limit,
		Offset:   offset,
	}
	if raw := r.URL.Query().Get("published_from"); raw != "" {
		parsed, err := parseDate(raw, "published_from")
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		filter.PublishedFrom = &parsed
	}
	if raw := r.URL.Query().Get("published_to"); raw != "" {
		parsed, err := parseDate(raw, "published_to")
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		filter.PublishedTo = &parsed
	}

	papers, err := s.deps.Papers.List(r.Context(), filter)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	resp := listPapersResponse{
		Papers: make([]paperResponse, len(papers)),
		Limit:  limit,
		Offset: offset,
	}
	for i, p := range papers {
		resp.Papers[i] = domainPaperToResponse(p)
	}
	writeJSON(w, http.StatusOK, resp)
}

// getPaper handles GET /api/v1/papers/{paperID}.
func (s *Server) getPaper(w http.ResponseWriter, r *http.Request) {
	paperID, err := parseUUID(chi.URLParam(r, "paperID"), "paper_id")
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	paper, err := s.deps.Papers.GetByID(r.Context(), paperID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domainPaperToResponse(paper))
}
