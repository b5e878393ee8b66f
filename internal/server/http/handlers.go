package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/format"
	"github.com/helixir/paper-search-service/internal/observability"
	"github.com/helixir/paper-search-service/internal/retrieval"
)

const maxRequestBodySize = 1 << 20 // 1 MB limit for request bodies

// searchRequest is the JSON request body for a paper search.
type searchRequest struct {
	Query      string   `json:"query" validate:"required,max=2000"`
	MaxResults *int     `json:"max_results,omitempty" validate:"omitempty,min=1,max=50"`
	Sources    []string `json:"sources,omitempty" validate:"omitempty,max=4,dive,oneof=arxiv semantic_scholar"`
	Format     string   `json:"format,omitempty" validate:"omitempty,oneof=json markdown md text txt yaml yml"`
}

// searchPapers handles POST /api/v1/search.
func (s *Server) searchPapers(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var req searchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	cfg, err := s.requestConfig(req)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	outFormat := format.JSON
	if req.Format != "" {
		// The validator already restricted the value to known names.
		outFormat, _ = format.ParseFormat(req.Format)
	}

	searchID := uuid.NewString()
	ctx := observability.WithSearchID(r.Context(), searchID)
	logger := observability.WithRequestContext(s.logger, observability.RequestContextFromContext(ctx))

	result, err := s.searcher.Retrieve(ctx, domain.Query{Text: req.Query, MaxResults: req.MaxResults}, cfg)
	if err != nil {
		logger.Warn().Err(err).Msg("search failed")
		writeDomainError(w, err)
		return
	}

	w.Header().Set("X-Search-ID", searchID)
	writeResult(w, searchID, result, outFormat)
}

// requestConfig applies per-request overrides to the base configuration.
// Requested sources must be enabled in the base configuration.
func (s *Server) requestConfig(req searchRequest) (retrieval.Config, error) {
	cfg := s.search
	if len(req.Sources) == 0 {
		return cfg, nil
	}

	requested, err := domain.ParseSourceTypes(req.Sources)
	if err != nil {
		return cfg, err
	}
	enabled := make(map[domain.SourceType]bool, len(cfg.EnabledSources))
	for _, st := range cfg.EnabledSources {
		enabled[st] = true
	}
	for _, st := range requested {
		if cfg.EnabledSources != nil && !enabled[st] {
			return cfg, fmt.Errorf("%w: source %q is disabled", domain.ErrInvalidInput, st)
		}
	}
	cfg.EnabledSources = requested
	return cfg, nil
}

// validationMessage turns validator errors into a client-facing message
// that names the offending field but never echoes its value.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch field {
	case "maxresults":
		field = "max_results"
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max":
		if fe.Kind().String() == "string" {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", strings.TrimRight(field, "]0123456789["), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// writeDomainError maps pipeline errors to HTTP responses. Internal error
// details are never sent to the client.
func writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var invalid *domain.InvalidQueryError
	var analysis *domain.AnalysisError

	switch {
	case errors.As(err, &invalid):
		writeError(w, http.StatusBadRequest, invalid.Error())
	case errors.As(err, &analysis):
		writeError(w, http.StatusUnprocessableEntity, domain.MessageUnclearQuery)
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limited")
	case errors.Is(err, domain.ErrServiceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
