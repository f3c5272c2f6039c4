package statestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/ArtFox/app/models"
)

// BlobBackend stores the whole document in a single state_documents row.
// It is the legacy remote representation kept as a fallback for the
// normalized tables.
type BlobBackend[D any] struct {
	db      *gorm.DB
	key     string
	version int
	codec   Codec[D]
}

// NewBlobBackend creates a blob backend writing to the row identified by key.
func NewBlobBackend[D any](db *gorm.DB, key string, version int, codec Codec[D]) *BlobBackend[D] {
	return &BlobBackend[D]{db: db, key: key, version: version, codec: codec}
}

func (b *BlobBackend[D]) Name() string {
	return "blob:" + b.key
}

func (b *BlobBackend[D]) Load(ctx context.Context) (D, bool, error) {
	var zero D
	var row models.StateDocument
	err := b.db.WithContext(ctx).Where("store_key = ?", b.key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, err
	}
	if strings.TrimSpace(row.Payload) == "" {
		return zero, false, nil
	}
	doc, err := b.codec.Decode([]byte(row.Payload))
	if err != nil {
		return zero, false, fmt.Errorf("failed to decode blob %s: %w", b.key, err)
	}
	return doc, true, nil
}

func (b *BlobBackend[D]) Save(ctx context.Context, doc D) error {
	data, err := b.codec.Encode(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	row := models.StateDocument{
		StoreKey: b.key,
		Version:  b.version,
		Payload:  string(data),
	}
	return b.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "store_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"version", "payload", "updated_at"}),
	}).Create(&row).Error
}
