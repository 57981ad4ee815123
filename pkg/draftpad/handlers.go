package draftpad

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/draftpad/draftpad/pkg/idempotency"
	"github.com/draftpad/draftpad/pkg/models"
	"github.com/draftpad/draftpad/pkg/retry"
)

// IdempotencyKeyHeader carries the client-supplied request identifier that
// opts a create request into deduplication.
const IdempotencyKeyHeader = "Idempotency-Key"

// pageUpdateRequest is the body of PUT .../pages/{id}. V is a pointer so an
// absent version is distinguishable from an explicit 0; absent is treated as
// 0, the first-write assumption.
type pageUpdateRequest struct {
	Title   *string `json:"title,omitempty"`
	Content *string `json:"content,omitempty"`
	V       *int64  `json:"v,omitempty"`
}

// Workspace handlers

func (a *App) handleCreateWorkspace(w http.ResponseWriter, r *http.Request) {
	var workspace models.Workspace
	if err := json.NewDecoder(r.Body).Decode(&workspace); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if err := a.CreateWorkspace(r.Context(), &workspace); err != nil {
		a.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, workspace)
}

func (a *App) handleGetWorkspace(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParseWorkspaceID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid workspace ID")
		return
	}

	workspace, err := a.GetWorkspace(r.Context(), id)
	if err != nil {
		a.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, workspace)
}

func (a *App) handleDeleteWorkspace(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParseWorkspaceID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid workspace ID")
		return
	}

	if err := a.DeleteWorkspace(r.Context(), id); err != nil {
		a.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusNoContent, nil)
}

// Page handlers

func (a *App) handleCreatePage(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := models.ParseWorkspaceID(mux.Vars(r)["workspaceId"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid workspace ID")
		return
	}

	var page models.Page
	if err := json.NewDecoder(r.Body).Decode(&page); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if err := a.CreatePage(r.Context(), workspaceID, &page); err != nil {
		a.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, page)
}

func (a *App) handleGetPage(w http.ResponseWriter, r *http.Request) {
	workspaceID, pageID, ok := pagePath(w, r)
	if !ok {
		return
	}

	page, err := a.GetPage(r.Context(), workspaceID, pageID)
	if err != nil {
		a.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, page)
}

func (a *App) handleListPages(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := models.ParseWorkspaceID(mux.Vars(r)["workspaceId"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid workspace ID")
		return
	}

	pages, err := a.ListPages(r.Context(), workspaceID)
	if err != nil {
		a.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, pages)
}

func (a *App) handleUpdatePage(w http.ResponseWriter, r *http.Request) {
	workspaceID, pageID, ok := pagePath(w, r)
	if !ok {
		return
	}

	var req pageUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	// Absent version means 0: the client has never seen a committed version.
	var clientVersion int64
	if req.V != nil {
		clientVersion = *req.V
	}

	page, err := a.UpdatePage(r.Context(), workspaceID, pageID, req.Title, req.Content, clientVersion)
	if err != nil {
		a.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, page)
}

func (a *App) handleDeletePage(w http.ResponseWriter, r *http.Request) {
	workspaceID, pageID, ok := pagePath(w, r)
	if !ok {
		return
	}

	if err := a.DeletePage(r.Context(), workspaceID, pageID); err != nil {
		a.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusNoContent, nil)
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

func pagePath(w http.ResponseWriter, r *http.Request) (models.WorkspaceID, models.PageID, bool) {
	vars := mux.Vars(r)
	workspaceID, err := models.ParseWorkspaceID(vars["workspaceId"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid workspace ID")
		return models.WorkspaceID{}, models.PageID{}, false
	}
	pageID, err := models.ParsePageID(vars["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid page ID")
		return models.WorkspaceID{}, models.PageID{}, false
	}
	return workspaceID, pageID, true
}

// idempotent wraps a handler with request-id deduplication. The cache key is
// scoped to method and path, so the same client token used against two
// endpoints never collides. Requests without the header pass straight
// through and are never cached.
func (a *App) idempotent(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(IdempotencyKeyHeader)
		if key == "" {
			next(w, r)
			return
		}
		scoped := r.Method + " " + r.URL.Path + " " + key

		resp, replayed, err := a.dedupe.Do(r.Context(), scoped, func() (*idempotency.Response, error) {
			rec := newResponseRecorder()
			next(rec, r)
			return &idempotency.Response{Status: rec.status, Body: rec.body.Bytes()}, nil
		})
		if err != nil {
			a.logger.Error().Err(err).Str("key", key).Msg("idempotent request failed")
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if replayed {
			a.logger.Info().Str("key", key).Msg("replayed cached response")
			w.Header().Set("Idempotency-Replayed", "true")
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.Status)
		if len(resp.Body) > 0 {
			_, _ = w.Write(resp.Body)
		}
	}
}

// responseRecorder captures a handler's status and body so the first
// response under an idempotency key can be stored and replayed verbatim.
type responseRecorder struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newResponseRecorder() *responseRecorder {
	return &responseRecorder{header: make(http.Header), status: http.StatusOK}
}

func (r *responseRecorder) Header() http.Header { return r.header }

func (r *responseRecorder) WriteHeader(status int) { r.status = status }

func (r *responseRecorder) Write(b []byte) (int, error) { return r.body.Write(b) }

// respondServiceError translates the service error taxonomy to HTTP:
// validation 400, not-found 404, version conflict 409 with the descriptor as
// the body, exhausted retry budget 503 with a retry hint. Anything else is a
// 500.
func (a *App) respondServiceError(w http.ResponseWriter, err error) {
	var vErr *models.ValidationError
	if errors.As(err, &vErr) {
		respondJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": vErr.Fields,
		})
		return
	}

	if errors.Is(err, ErrWorkspaceNotFound) || errors.Is(err, ErrPageNotFound) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}

	var conflict *models.ConflictError
	if errors.As(err, &conflict) {
		a.logger.Info().
			Int64("server_version", conflict.ServerVersion).
			Int64("client_version", conflict.ClientVersion).
			Msg("version conflict")
		respondJSON(w, http.StatusConflict, conflict)
		return
	}

	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		retryAfter := int(exhausted.RetryAfter.Round(time.Second) / time.Second)
		if retryAfter < 1 {
			retryAfter = 1
		}
		a.logger.Warn().Err(exhausted.Err).
			Str("op", exhausted.Op).
			Int("attempts", exhausted.Attempts).
			Msg("storage retries exhausted")
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{
			"message":    "service temporarily unavailable",
			"retryAfter": retryAfter,
		})
		return
	}

	a.logger.Error().Err(err).Msg("request failed")
	respondError(w, http.StatusInternalServerError, err.Error())
}

// respondJSON sends a JSON response with the given status and payload.
func respondJSON(w http.ResponseWriter, status int, payload any) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_, _ = w.Write(response)
	}
}

// respondError sends a standardized JSON error body.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
