package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/himanshu-nimonkar/TerraMind/internal/domain"
	"github.com/himanshu-nimonkar/TerraMind/internal/orchestrator"
)

// maxQueryLength caps query text at the API boundary.
const maxQueryLength = 500

// dangerousChars are stripped from queries before they reach prompts.
var dangerousChars = regexp.MustCompile(`[;'"\\<>]`)

type analyzeRequest struct {
	Query     string   `json:"query"`
	Lat       *float64 `json:"lat,omitempty"`
	Lon       *float64 `json:"lon,omitempty"`
	Crop      string   `json:"crop,omitempty"`
	SessionID string   `json:"session_id,omitempty"`
}

func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	query, err := sanitizeQuery(req.Query)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	q := domain.Query{
		Text:      query,
		CropHint:  strings.TrimSpace(req.Crop),
		SessionID: req.SessionID,
	}
	if q.SessionID == "" {
		q.SessionID = "default"
	}
	if req.Lat != nil && req.Lon != nil {
		q.Coordinates = &domain.Coordinates{Lat: *req.Lat, Lon: *req.Lon}
	}

	resp, err := h.orch.Handle(r.Context(), q)
	if err != nil {
		if errors.Is(err, orchestrator.ErrHardDeadline) {
			Error(w, http.StatusGatewayTimeout, "analysis timed out")
			return
		}
		slog.Error("Analyze request failed", "session_id", q.SessionID, "error", err)
		Error(w, http.StatusInternalServerError, "analysis failed")
		return
	}

	JSON(w, http.StatusOK, resp)
}

type resetRequest struct {
	SessionID string `json:"session_id"`
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		// Tolerate an empty body: reset the default session.
		req.SessionID = ""
	}
	if req.SessionID == "" {
		req.SessionID = "default"
	}

	newID, err := h.store.Reset(r.Context(), req.SessionID)
	if err != nil {
		slog.Error("Session reset failed", "session_id", req.SessionID, "error", err)
		Error(w, http.StatusInternalServerError, "reset failed")
		return
	}

	JSON(w, http.StatusOK, map[string]string{
		"status":         "ok",
		"new_session_id": newID,
	})
}

func sanitizeQuery(raw string) (string, error) {
	query := strings.TrimSpace(raw)
	if query == "" {
		return "", errors.New("query cannot be empty")
	}
	if len(query) > maxQueryLength {
		return "", errors.New("query max length exceeded (500 chars)")
	}
	return dangerousChars.ReplaceAllString(query, ""), nil
}
