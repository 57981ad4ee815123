package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Record is the database row backing [StoreCache]. The response itself is a
// CBOR-encoded [Response] blob, kept opaque so the schema never changes when
// the response shape grows.
type Record struct {
	Key       string    `gorm:"primaryKey"`
	Payload   []byte    `gorm:"not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	CreatedAt time.Time
}

// TableName keeps the table distinct from domain tables.
func (Record) TableName() string { return "idempotency_records" }

// StoreCache is a database-backed Cache, for deployments where several
// instances must agree on which request keys have already been served.
// First-writer-wins is enforced by the primary key: a conflicting insert is
// simply dropped.
type StoreCache struct {
	db *gorm.DB
}

var _ Cache = (*StoreCache)(nil)

// NewStoreCache wraps an open GORM handle.
func NewStoreCache(db *gorm.DB) *StoreCache {
	return &StoreCache{db: db}
}

// Migrate creates the idempotency_records table if needed.
func (c *StoreCache) Migrate(ctx context.Context) error {
	return c.db.WithContext(ctx).AutoMigrate(&Record{})
}

func (c *StoreCache) Get(ctx context.Context, key string) (*Response, bool, error) {
	var rec Record
	err := c.db.WithContext(ctx).
		Where("key = ? AND expires_at > ?", key, time.Now()).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var resp Response
	if err := cbor.Unmarshal(rec.Payload, &resp); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached response: %w", err)
	}
	return &resp, true, nil
}

func (c *StoreCache) Set(ctx context.Context, key string, resp *Response, ttl time.Duration) error {
	payload, err := cbor.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	rec := Record{
		Key:       key,
		Payload:   payload,
		ExpiresAt: time.Now().Add(ttl),
	}
	return c.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rec).Error
}

// Sweep deletes expired records. Intended to run periodically from a cron or
// an application ticker.
func (c *StoreCache) Sweep(ctx context.Context) error {
	return c.db.WithContext(ctx).
		Where("expires_at <= ?", time.Now()).
		Delete(&Record{}).Error
}
