// Package memory provides an in-memory implementation of the
// [github.com/draftpad/draftpad/pkg/store.Store] interface.
//
// It backs development mode and the test suite. All operations take a single
// mutex, which makes [Store.UpdatePageAtVersion] trivially atomic: the
// version predicate and the field update happen under one critical section,
// so two writers racing on the same stale version can never both succeed.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/draftpad/draftpad/pkg/models"
	"github.com/draftpad/draftpad/pkg/store"
)

// Store keeps workspaces and pages in maps guarded by a mutex.
type Store struct {
	mu         sync.Mutex
	workspaces map[models.WorkspaceID]*models.Workspace
	pages      map[models.PageID]*models.Page
}

var _ store.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		workspaces: make(map[models.WorkspaceID]*models.Workspace),
		pages:      make(map[models.PageID]*models.Page),
	}
}

func (s *Store) CreateWorkspace(ctx context.Context, workspace *models.Workspace) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if workspace.ID.IsZero() {
		workspace.ID = models.NewWorkspaceID()
	}
	if workspace.Status == "" {
		workspace.Status = models.StatusActive
	}
	now := time.Now().UTC()
	workspace.CreatedAt = now
	workspace.UpdatedAt = now

	cp := *workspace
	s.workspaces[workspace.ID] = &cp
	return nil
}

func (s *Store) GetWorkspace(ctx context.Context, id models.WorkspaceID) (*models.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws, ok := s.workspaces[id]
	if !ok {
		return nil, nil
	}
	cp := *ws
	return &cp, nil
}

func (s *Store) DeleteWorkspace(ctx context.Context, id models.WorkspaceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for pageID, page := range s.pages {
		if page.WorkspaceID == id {
			delete(s.pages, pageID)
		}
	}
	delete(s.workspaces, id)
	return nil
}

func (s *Store) CreatePage(ctx context.Context, page *models.Page) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if page.ID.IsZero() {
		page.ID = models.NewPageID()
	}
	if page.Status == "" {
		page.Status = models.StatusActive
	}
	page.Version = 0
	now := time.Now().UTC()
	page.CreatedAt = now
	page.UpdatedAt = now

	cp := *page
	s.pages[page.ID] = &cp
	return nil
}

func (s *Store) GetPage(ctx context.Context, id models.PageID) (*models.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	page, ok := s.pages[id]
	if !ok {
		return nil, nil
	}
	cp := *page
	return &cp, nil
}

func (s *Store) ListPages(ctx context.Context, workspaceID models.WorkspaceID) ([]*models.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pages := []*models.Page{}
	for _, page := range s.pages {
		if page.WorkspaceID == workspaceID {
			cp := *page
			pages = append(pages, &cp)
		}
	}
	return pages, nil
}

func (s *Store) UpdatePageAtVersion(ctx context.Context, id models.PageID, title, content *string, expected int64) (*models.Page, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	page, ok := s.pages[id]
	if !ok || page.Version != expected {
		return nil, false, nil
	}

	if title != nil {
		page.Title = *title
	}
	if content != nil {
		page.Content = *content
	}
	page.Version = expected + 1
	page.UpdatedAt = time.Now().UTC()

	cp := *page
	return &cp, true, nil
}

func (s *Store) DeletePage(ctx context.Context, id models.PageID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pages, id)
	return nil
}

func (s *Store) Migrate(ctx context.Context) error { return nil }

func (s *Store) Close() error { return nil }
