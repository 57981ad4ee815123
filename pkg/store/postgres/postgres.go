// Package postgres implements the [github.com/draftpad/draftpad/pkg/store.Store]
// interface on PostgreSQL using GORM.
//
// The interesting part is [Store.UpdatePageAtVersion]: the optimistic-
// concurrency check is pushed down into a single conditional UPDATE
//
//	UPDATE pages SET ... , version = version + 1
//	WHERE id = $1 AND version = $2
//
// so the version predicate and the field mutation commit atomically.
// RowsAffected == 0 is the authoritative conflict signal; the earlier read
// the application performs exists only to produce a friendly conflict
// message, never to decide whether the write is safe.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/draftpad/draftpad/pkg/models"
	"github.com/draftpad/draftpad/pkg/store"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store implements the store interface using PostgreSQL with GORM.
type Store struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

// New connects to PostgreSQL and returns a store. The DSN is passed through
// to the pgx driver unchanged.
func New(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying GORM handle so other database-backed components
// (the idempotency cache) can share the connection pool.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Migrate creates or updates the workspaces and pages tables. Safe to run
// repeatedly; AutoMigrate only adds missing schema elements.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&models.Workspace{},
		&models.Page{},
	)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Workspace operations

func (s *Store) CreateWorkspace(ctx context.Context, workspace *models.Workspace) error {
	return s.db.WithContext(ctx).Create(workspace).Error
}

func (s *Store) GetWorkspace(ctx context.Context, id models.WorkspaceID) (*models.Workspace, error) {
	var workspace models.Workspace
	err := s.db.WithContext(ctx).First(&workspace, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &workspace, nil
}

// DeleteWorkspace removes dependent pages and then the workspace record
// inside one transaction, so a failed page deletion leaves the workspace in
// place.
func (s *Store) DeleteWorkspace(ctx context.Context, id models.WorkspaceID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.Page{}, "workspace_id = ?", id).Error; err != nil {
			return fmt.Errorf("failed to delete workspace pages: %w", err)
		}
		return tx.Delete(&models.Workspace{}, "id = ?", id).Error
	})
}

// Page operations

func (s *Store) CreatePage(ctx context.Context, page *models.Page) error {
	page.Version = 0
	return s.db.WithContext(ctx).Create(page).Error
}

func (s *Store) GetPage(ctx context.Context, id models.PageID) (*models.Page, error) {
	var page models.Page
	err := s.db.WithContext(ctx).First(&page, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &page, nil
}

func (s *Store) ListPages(ctx context.Context, workspaceID models.WorkspaceID) ([]*models.Page, error) {
	pages := []*models.Page{}
	err := s.db.WithContext(ctx).Where("workspace_id = ?", workspaceID).Order("created_at").Find(&pages).Error
	return pages, err
}

func (s *Store) UpdatePageAtVersion(ctx context.Context, id models.PageID, title, content *string, expected int64) (*models.Page, bool, error) {
	updates := map[string]any{
		"version": expected + 1,
	}
	if title != nil {
		updates["title"] = *title
	}
	if content != nil {
		updates["content"] = *content
	}

	res := s.db.WithContext(ctx).Model(&models.Page{}).
		Where("id = ? AND version = ?", id, expected).
		Updates(updates)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, false, nil
	}

	page, err := s.GetPage(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if page == nil {
		// Committed and then hard-deleted by another request. Report the
		// predicate miss; the caller's re-read will see the page gone.
		return nil, false, nil
	}
	return page, true, nil
}

func (s *Store) DeletePage(ctx context.Context, id models.PageID) error {
	return s.db.WithContext(ctx).Delete(&models.Page{}, "id = ?", id).Error
}
