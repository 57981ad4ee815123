// Package store defines the persistence abstraction for draftpad.
//
// The [Store] interface is a generic CRUD surface keyed by opaque typed IDs,
// with one non-generic operation: [Store.UpdatePageAtVersion],
// the conditional write that backs optimistic concurrency control. The
// version check and the field update must be a single atomic storage
// operation — a separate read followed by a separate write is a race and is
// not an acceptable implementation. Implementations report "predicate did
// not match" through the returned bool; they never decide what a conflict
// means, that is the application's job.
//
// Two implementations ship with the repository:
//
//   - [github.com/draftpad/draftpad/pkg/store/postgres.Store]: GORM over
//     PostgreSQL; the conditional write is a single UPDATE ... WHERE
//     id = ? AND version = ? checked via RowsAffected.
//   - [github.com/draftpad/draftpad/pkg/store/memory.Store]: mutex-guarded
//     in-memory maps for development and tests.
//
// Both follow the same conventions: Get methods return (nil, nil) for a
// missing record, List methods return empty slices rather than nil, and all
// methods take a context for cancellation.
package store

import (
	"context"

	"github.com/draftpad/draftpad/pkg/models"
)

// Store is the persistence interface the application is written against.
type Store interface {
	// CreateWorkspace persists a new workspace, generating its ID when unset.
	CreateWorkspace(ctx context.Context, workspace *models.Workspace) error

	// GetWorkspace returns the workspace or (nil, nil) when absent.
	GetWorkspace(ctx context.Context, id models.WorkspaceID) (*models.Workspace, error)

	// DeleteWorkspace removes a workspace and every page referencing it.
	// Pages are deleted first; if that fails the workspace record must
	// survive. Deleting an absent workspace is not an error.
	DeleteWorkspace(ctx context.Context, id models.WorkspaceID) error

	// CreatePage persists a new page with Version 0.
	CreatePage(ctx context.Context, page *models.Page) error

	// GetPage returns the page or (nil, nil) when absent.
	GetPage(ctx context.Context, id models.PageID) (*models.Page, error)

	// ListPages returns all pages in the workspace.
	ListPages(ctx context.Context, workspaceID models.WorkspaceID) ([]*models.Page, error)

	// UpdatePageAtVersion atomically sets the page's title and/or content and
	// increments its version by exactly 1, but only if the stored version
	// still equals expected at write time. Nil title or content leaves that
	// field untouched.
	//
	// Returns the updated page and true when the predicate matched. Returns
	// (nil, false, nil) when it did not — because the page is gone or because
	// another writer committed first; the caller re-reads to tell the two
	// apart.
	UpdatePageAtVersion(ctx context.Context, id models.PageID, title, content *string, expected int64) (*models.Page, bool, error)

	// DeletePage removes a page. No version check: deletes are hard and
	// last-writer-wins.
	DeletePage(ctx context.Context, id models.PageID) error

	// Migrate initializes or updates the backing schema. Idempotent.
	Migrate(ctx context.Context) error

	// Close releases the store's resources.
	Close() error
}
