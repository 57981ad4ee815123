// Package storetest provides store test doubles for exercising the failure
// paths of the retry machinery.
package storetest

import (
	"context"
	"errors"
	"sync"

	"github.com/draftpad/draftpad/pkg/models"
	"github.com/draftpad/draftpad/pkg/retry"
	"github.com/draftpad/draftpad/pkg/store"
)

// FlakyStore wraps a store and fails a configured number of operations with
// a transient error before letting calls through. The failure budget is
// per-instance state, injectable wherever a store is accepted, so tests can
// simulate an outage without any global toggles.
type FlakyStore struct {
	inner store.Store

	mu        sync.Mutex
	remaining int
	err       error
}

var _ store.Store = (*FlakyStore)(nil)

// NewFlaky returns a store that fails the next `failures` operations with
// err before delegating to inner. A nil err defaults to a tagged transient
// connection failure.
func NewFlaky(inner store.Store, failures int, err error) *FlakyStore {
	if err == nil {
		err = retry.Unavailable(errors.New("storage connection refused"))
	}
	return &FlakyStore{inner: inner, remaining: failures, err: err}
}

// SetFailures resets the failure budget.
func (s *FlakyStore) SetFailures(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remaining = n
}

func (s *FlakyStore) fail() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.remaining > 0 {
		s.remaining--
		return s.err
	}
	return nil
}

func (s *FlakyStore) CreateWorkspace(ctx context.Context, workspace *models.Workspace) error {
	if err := s.fail(); err != nil {
		return err
	}
	return s.inner.CreateWorkspace(ctx, workspace)
}

func (s *FlakyStore) GetWorkspace(ctx context.Context, id models.WorkspaceID) (*models.Workspace, error) {
	if err := s.fail(); err != nil {
		return nil, err
	}
	return s.inner.GetWorkspace(ctx, id)
}

func (s *FlakyStore) DeleteWorkspace(ctx context.Context, id models.WorkspaceID) error {
	if err := s.fail(); err != nil {
		return err
	}
	return s.inner.DeleteWorkspace(ctx, id)
}

func (s *FlakyStore) CreatePage(ctx context.Context, page *models.Page) error {
	if err := s.fail(); err != nil {
		return err
	}
	return s.inner.CreatePage(ctx, page)
}

func (s *FlakyStore) GetPage(ctx context.Context, id models.PageID) (*models.Page, error) {
	if err := s.fail(); err != nil {
		return nil, err
	}
	return s.inner.GetPage(ctx, id)
}

func (s *FlakyStore) ListPages(ctx context.Context, workspaceID models.WorkspaceID) ([]*models.Page, error) {
	if err := s.fail(); err != nil {
		return nil, err
	}
	return s.inner.ListPages(ctx, workspaceID)
}

func (s *FlakyStore) UpdatePageAtVersion(ctx context.Context, id models.PageID, title, content *string, expected int64) (*models.Page, bool, error) {
	if err := s.fail(); err != nil {
		return nil, false, err
	}
	return s.inner.UpdatePageAtVersion(ctx, id, title, content, expected)
}

func (s *FlakyStore) DeletePage(ctx context.Context, id models.PageID) error {
	if err := s.fail(); err != nil {
		return err
	}
	return s.inner.DeletePage(ctx, id)
}

func (s *FlakyStore) Migrate(ctx context.Context) error { return s.inner.Migrate(ctx) }

func (s *FlakyStore) Close() error { return s.inner.Close() }
