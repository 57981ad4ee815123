package draftpad

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// Router builds the HTTP routing table:
//
//	GET    /api/health
//	POST   /api/workspaces                            (idempotency-key aware)
//	GET    /api/workspaces/{id}
//	DELETE /api/workspaces/{id}
//	POST   /api/workspaces/{workspaceId}/pages        (idempotency-key aware)
//	GET    /api/workspaces/{workspaceId}/pages
//	GET    /api/workspaces/{workspaceId}/pages/{id}
//	PUT    /api/workspaces/{workspaceId}/pages/{id}   (versioned update)
//	DELETE /api/workspaces/{workspaceId}/pages/{id}
//
// Exposed separately from Run so tests can mount the routes on an httptest
// server.
func (a *App) Router() *mux.Router {
	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", a.handleHealth).Methods("GET")

	api.HandleFunc("/workspaces", a.idempotent(a.handleCreateWorkspace)).Methods("POST")
	api.HandleFunc("/workspaces/{id}", a.handleGetWorkspace).Methods("GET")
	api.HandleFunc("/workspaces/{id}", a.handleDeleteWorkspace).Methods("DELETE")

	api.HandleFunc("/workspaces/{workspaceId}/pages", a.idempotent(a.handleCreatePage)).Methods("POST")
	api.HandleFunc("/workspaces/{workspaceId}/pages", a.handleListPages).Methods("GET")
	api.HandleFunc("/workspaces/{workspaceId}/pages/{id}", a.handleGetPage).Methods("GET")
	api.HandleFunc("/workspaces/{workspaceId}/pages/{id}", a.handleUpdatePage).Methods("PUT")
	api.HandleFunc("/workspaces/{workspaceId}/pages/{id}", a.handleDeletePage).Methods("DELETE")

	return router
}

// Run starts the HTTP server and blocks until ctx is cancelled or the server
// fails. On cancellation active requests get five seconds to finish.
func (a *App) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%s", a.config.ServerPort)
	a.logger.Info().Str("addr", addr).Msg("starting draftpad server")

	server := &http.Server{
		Addr:    addr,
		Handler: a.Router(),
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}
