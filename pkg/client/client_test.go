package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftpad/draftpad/pkg/client"
	"github.com/draftpad/draftpad/pkg/draftpad"
	"github.com/draftpad/draftpad/pkg/idempotency"
	"github.com/draftpad/draftpad/pkg/models"
	"github.com/draftpad/draftpad/pkg/retry"
	"github.com/draftpad/draftpad/pkg/store/memory"
)

func fastConfig(delays *[]time.Duration) retry.Config {
	return retry.Config{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2,
		Sleep: func(_ context.Context, d time.Duration) error {
			if delays != nil {
				*delays = append(*delays, d)
			}
			return nil
		},
	}
}

func TestRetriesOn503ThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	page := models.Page{ID: models.NewPageID(), Title: "Draft", Version: 1}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]any{"message": "storage unavailable", "retryAfter": 2})
			return
		}
		json.NewEncoder(w).Encode(page)
	}))
	defer srv.Close()

	var delays []time.Duration
	c := client.NewClientWithConfig(srv.URL, fastConfig(&delays))

	got, err := c.GetPage(context.Background(), models.NewWorkspaceID(), page.ID)
	require.NoError(t, err)
	assert.Equal(t, page.ID, got.ID)
	assert.Equal(t, int32(3), calls.Load())

	// The server's hint overrides the computed backoff.
	require.Len(t, delays, 2)
	assert.Equal(t, 2*time.Second, delays[0])
	assert.Equal(t, 2*time.Second, delays[1])
}

func TestRetryBudgetExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := client.NewClientWithConfig(srv.URL, fastConfig(nil))

	_, err := c.GetPage(context.Background(), models.NewWorkspaceID(), models.NewPageID())
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	// Initial attempt plus MaxRetries.
	assert.Equal(t, int32(4), calls.Load())
}

func TestConflictDecodedWithoutRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(models.ConflictError{
			Message:       "your copy is stale",
			ServerVersion: 4,
			ClientVersion: 2,
			ServerTitle:   "theirs",
			ClientTitle:   "mine",
		})
	}))
	defer srv.Close()

	c := client.NewClientWithConfig(srv.URL, fastConfig(nil))

	title := "mine"
	_, err := c.UpdatePage(context.Background(), models.NewWorkspaceID(), models.NewPageID(), &title, nil, 2)
	var conflict *models.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, int64(4), conflict.ServerVersion)
	assert.Equal(t, int64(2), conflict.ClientVersion)
	assert.Equal(t, "theirs", conflict.ServerTitle)
	assert.Equal(t, int32(1), calls.Load(), "conflicts are not retried automatically")
}

func TestValidationErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error":  "validation failed",
			"fields": map[string]string{"title": "must be between 1 and 100 characters"},
		})
	}))
	defer srv.Close()

	c := client.NewClientWithConfig(srv.URL, fastConfig(nil))

	_, err := c.CreatePage(context.Background(), models.NewWorkspaceID(), &models.Page{}, "")
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "validation failed", apiErr.Message)
	assert.Contains(t, apiErr.Fields, "title")
	assert.Equal(t, int32(1), calls.Load())
}

func TestTransportFailureRetried(t *testing.T) {
	// A server that closes immediately leaves nothing listening.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	cfg := fastConfig(nil)
	cfg.MaxRetries = 1
	c := client.NewClientWithConfig(srv.URL, cfg)

	_, err := c.GetPage(context.Background(), models.NewWorkspaceID(), models.NewPageID())
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 0, apiErr.StatusCode, "transport failures have no status")
}

func TestResubmitWithServerVersionConverges(t *testing.T) {
	// Every round another writer has already moved the page forward, until
	// the client catches up at version 3.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Title *string `json:"title"`
			V     int64   `json:"v"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body.V < 3 {
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(models.ConflictError{
				Message:       "your copy is stale",
				ServerVersion: body.V + 1,
				ClientVersion: body.V,
			})
			return
		}
		json.NewEncoder(w).Encode(models.Page{Title: *body.Title, Version: body.V + 1})
	}))
	defer srv.Close()

	c := client.NewClientWithConfig(srv.URL, fastConfig(nil))

	title := "mine"
	conflict := &models.ConflictError{ServerVersion: 1}
	page, err := c.ResubmitWithServerVersion(context.Background(), models.NewWorkspaceID(), models.NewPageID(), &title, nil, conflict)
	require.NoError(t, err)
	assert.Equal(t, "mine", page.Title)
	assert.Equal(t, int64(4), page.Version)
}

func TestResubmitGivesUpUnderSustainedContention(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var body struct {
			V int64 `json:"v"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(models.ConflictError{
			Message:       "your copy is stale",
			ServerVersion: body.V + 1,
			ClientVersion: body.V,
		})
	}))
	defer srv.Close()

	c := client.NewClientWithConfig(srv.URL, fastConfig(nil))

	title := "mine"
	conflict := &models.ConflictError{ServerVersion: 1}
	_, err := c.ResubmitWithServerVersion(context.Background(), models.NewWorkspaceID(), models.NewPageID(), &title, nil, conflict)
	require.ErrorIs(t, err, client.ErrNoConvergence)
	assert.Equal(t, int32(client.DefaultMaxConflictRounds), calls.Load())
}

// TestEndToEndConflictFlow drives the typed client against the real handler
// stack: create, concurrent edit, conflict, resubmit.
func TestEndToEndConflictFlow(t *testing.T) {
	ctx := context.Background()
	app := draftpad.NewWithStore(memory.New(), idempotency.NewMemory(0), &draftpad.Config{
		IdempotencyTTL: time.Minute,
		Retry:          fastConfig(nil),
		ServerPort:     "0",
	}, zerolog.Nop())
	srv := httptest.NewServer(app.Router())
	defer srv.Close()

	c := client.NewClientWithConfig(srv.URL, fastConfig(nil))

	ws, err := c.CreateWorkspace(ctx, &models.Workspace{Title: "Notes"}, "ws-key-1")
	require.NoError(t, err)

	page, err := c.CreatePage(ctx, ws.ID, &models.Page{Title: "Draft", Content: "first take"}, "page-key-1")
	require.NoError(t, err)
	require.Equal(t, int64(0), page.Version)

	// Replaying the create with the same key returns the same page.
	replay, err := c.CreatePage(ctx, ws.ID, &models.Page{Title: "Draft", Content: "first take"}, "page-key-1")
	require.NoError(t, err)
	assert.Equal(t, page.ID, replay.ID)

	// Writer A commits at v=0.
	titleA := "Draft v2"
	updated, err := c.UpdatePage(ctx, ws.ID, page.ID, &titleA, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated.Version)

	// Writer B, still at v=0, conflicts.
	titleB := "Draft v2 (B)"
	_, err = c.UpdatePage(ctx, ws.ID, page.ID, &titleB, nil, 0)
	var conflict *models.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, int64(1), conflict.ServerVersion)
	assert.Equal(t, "Draft v2", conflict.ServerTitle)

	// B decides to overwrite at the server's version.
	final, err := c.ResubmitWithServerVersion(ctx, ws.ID, page.ID, &titleB, nil, conflict)
	require.NoError(t, err)
	assert.Equal(t, "Draft v2 (B)", final.Title)
	assert.Equal(t, int64(2), final.Version)
}
