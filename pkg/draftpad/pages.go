package draftpad

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/draftpad/draftpad/pkg/models"
	"github.com/draftpad/draftpad/pkg/retry"
)

// Not-found sentinels, mapped to HTTP 404 at the boundary.
var (
	ErrWorkspaceNotFound = errors.New("workspace not found")
	ErrPageNotFound      = errors.New("page not found")
)

// CreateWorkspace validates and persists a new workspace.
func (a *App) CreateWorkspace(ctx context.Context, ws *models.Workspace) error {
	if fields := validateTitle(ws.Title); len(fields) > 0 {
		return &models.ValidationError{Fields: fields}
	}
	_, err := retry.Do(ctx, a.retryCfg, "create workspace", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, a.store.CreateWorkspace(ctx, ws)
	})
	return err
}

// GetWorkspace loads a workspace, or ErrWorkspaceNotFound.
func (a *App) GetWorkspace(ctx context.Context, id models.WorkspaceID) (*models.Workspace, error) {
	ws, err := retry.Do(ctx, a.retryCfg, "get workspace", func(ctx context.Context) (*models.Workspace, error) {
		return a.store.GetWorkspace(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	if ws == nil {
		return nil, ErrWorkspaceNotFound
	}
	return ws, nil
}

// DeleteWorkspace removes a workspace and all of its pages. The store
// guarantees the cascade order: pages first, then the workspace record.
func (a *App) DeleteWorkspace(ctx context.Context, id models.WorkspaceID) error {
	if _, err := a.GetWorkspace(ctx, id); err != nil {
		return err
	}
	_, err := retry.Do(ctx, a.retryCfg, "delete workspace", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, a.store.DeleteWorkspace(ctx, id)
	})
	return err
}

// CreatePage validates and persists a new page in the workspace. The page
// starts at version 0.
func (a *App) CreatePage(ctx context.Context, workspaceID models.WorkspaceID, page *models.Page) error {
	fields := validateTitle(page.Title)
	for k, v := range validateContent(page.Content) {
		fields[k] = v
	}
	if len(fields) > 0 {
		return &models.ValidationError{Fields: fields}
	}

	if _, err := a.GetWorkspace(ctx, workspaceID); err != nil {
		return err
	}

	page.WorkspaceID = workspaceID
	_, err := retry.Do(ctx, a.retryCfg, "create page", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, a.store.CreatePage(ctx, page)
	})
	return err
}

// GetPage loads a page scoped to its workspace, or ErrPageNotFound.
func (a *App) GetPage(ctx context.Context, workspaceID models.WorkspaceID, id models.PageID) (*models.Page, error) {
	page, err := retry.Do(ctx, a.retryCfg, "get page", func(ctx context.Context) (*models.Page, error) {
		return a.store.GetPage(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	if page == nil || page.WorkspaceID != workspaceID {
		return nil, ErrPageNotFound
	}
	return page, nil
}

// ListPages returns the workspace's pages, or ErrWorkspaceNotFound.
func (a *App) ListPages(ctx context.Context, workspaceID models.WorkspaceID) ([]*models.Page, error) {
	if _, err := a.GetWorkspace(ctx, workspaceID); err != nil {
		return nil, err
	}
	return retry.Do(ctx, a.retryCfg, "list pages", func(ctx context.Context) ([]*models.Page, error) {
		return a.store.ListPages(ctx, workspaceID)
	})
}

// DeletePage hard-deletes a page. Deletes carry no version predicate.
func (a *App) DeletePage(ctx context.Context, workspaceID models.WorkspaceID, id models.PageID) error {
	if _, err := a.GetPage(ctx, workspaceID, id); err != nil {
		return err
	}
	_, err := retry.Do(ctx, a.retryCfg, "delete page", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, a.store.DeletePage(ctx, id)
	})
	return err
}

// UpdatePage applies a versioned edit to a page.
//
// The flow is read, compare, conditionally write:
//
//  1. Load the page; absent (or in another workspace) means ErrPageNotFound.
//  2. A version mismatch returns a *models.ConflictError built from the
//     stored page and the submitted edit. Storage is not touched.
//  3. On a match, the store performs one atomic conditional update
//     predicated on the version it just compared against. If that predicate
//     misses — another writer committed between the read and the write — the
//     page is re-read and the conflict is reported against the state that
//     actually won, never swallowed.
//
// clientVersion is the version the caller last saw; callers that have never
// seen the page submit 0. Of two updates racing on the same stale version,
// exactly one succeeds; the other gets a conflict.
func (a *App) UpdatePage(ctx context.Context, workspaceID models.WorkspaceID, id models.PageID, title, content *string, clientVersion int64) (*models.Page, error) {
	fields := map[string]string{}
	if title != nil {
		fields = validateTitle(*title)
	}
	if content != nil {
		for k, v := range validateContent(*content) {
			fields[k] = v
		}
	}
	if clientVersion < 0 {
		fields["v"] = "must be a non-negative integer"
	}
	if len(fields) > 0 {
		return nil, &models.ValidationError{Fields: fields}
	}

	page, err := a.GetPage(ctx, workspaceID, id)
	if err != nil {
		return nil, err
	}

	if page.Version != clientVersion {
		return nil, conflictFor(page, clientVersion, title, content)
	}

	type updateResult struct {
		page    *models.Page
		matched bool
	}
	res, err := retry.Do(ctx, a.retryCfg, "update page", func(ctx context.Context) (updateResult, error) {
		updated, matched, err := a.store.UpdatePageAtVersion(ctx, id, title, content, clientVersion)
		return updateResult{page: updated, matched: matched}, err
	})
	if err != nil {
		return nil, err
	}
	if res.matched {
		return res.page, nil
	}

	// Lost the race between the read above and the conditional write. Re-read
	// and report a conflict against the just-committed state.
	current, err := a.GetPage(ctx, workspaceID, id)
	if err != nil {
		return nil, err
	}
	a.logger.Debug().
		Stringer("page_id", id).
		Int64("client_version", clientVersion).
		Int64("server_version", current.Version).
		Msg("conditional update lost a write race")
	return nil, conflictFor(current, clientVersion, title, content)
}

// conflictFor builds the conflict descriptor from the server's current page
// and the submitted edit. Fields the client did not submit fall back to the
// server's values, meaning "no change intended" on that side of the diff.
func conflictFor(server *models.Page, clientVersion int64, title, content *string) *models.ConflictError {
	clientTitle := server.Title
	if title != nil {
		clientTitle = *title
	}
	clientContent := server.Content
	if content != nil {
		clientContent = *content
	}
	return models.NewConflictError(server, clientVersion, clientTitle, clientContent)
}

func validateTitle(title string) map[string]string {
	fields := map[string]string{}
	n := utf8.RuneCountInString(title)
	if n < models.TitleMinLen || n > models.TitleMaxLen {
		fields["title"] = fmt.Sprintf("must be between %d and %d characters", models.TitleMinLen, models.TitleMaxLen)
	}
	return fields
}

func validateContent(content string) map[string]string {
	fields := map[string]string{}
	if utf8.RuneCountInString(content) > models.ContentMaxLen {
		fields["content"] = fmt.Sprintf("must be at most %d characters", models.ContentMaxLen)
	}
	return fields
}
