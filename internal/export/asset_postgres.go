package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var ErrDuplicateName = errors.New("asset name already registered")

// AssetRecord is one exported artifact in the registry
type AssetRecord struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name          string    `gorm:"uniqueIndex;not null" json:"name"`
	EntityTag     string    `gorm:"index;not null" json:"entity_tag"`
	VertexCount   int       `json:"vertex_count"`
	TriangleCount int       `json:"triangle_count"`
	Fingerprint   string    `gorm:"size:64;index" json:"fingerprint"`
	StoragePath   string    `json:"storage_path"`
	MinX          float32   `json:"min_x"`
	MinY          float32   `json:"min_y"`
	MinZ          float32   `json:"min_z"`
	MaxX          float32   `json:"max_x"`
	MaxY          float32   `json:"max_y"`
	MaxZ          float32   `json:"max_z"`
	CreatedAt     time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (AssetRecord) TableName() string {
	return "baked_assets"
}

// AssetRepository stores and lists asset records
type AssetRepository interface {
	Create(ctx context.Context, rec *AssetRecord) error
	ListRecent(ctx context.Context, limit int) ([]AssetRecord, error)
	LatestByTag(ctx context.Context, tag string) (*AssetRecord, error)
}

// AssetPostgresRepo is the gorm backed registry
type AssetPostgresRepo struct {
	db *gorm.DB
}

// constructor for AssetPostgresRepo
func NewAssetPostgresRepo(db *gorm.DB) *AssetPostgresRepo {
	return &AssetPostgresRepo{db: db}
}

// Create inserts rec; a name collision is reported as ErrDuplicateName
func (r *AssetPostgresRepo) Create(ctx context.Context, rec *AssetRecord) error {
	if r == nil || r.db == nil {
		// No-op when no database is configured
		return nil
	}
	err := r.db.WithContext(ctx).Create(rec).Error
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrDuplicateName, rec.Name)
	}
	if err != nil {
		return fmt.Errorf("failed to save asset record: %w", err)
	}
	return nil
}

// ListRecent returns up to limit records, newest first
func (r *AssetPostgresRepo) ListRecent(ctx context.Context, limit int) ([]AssetRecord, error) {
	if r == nil || r.db == nil {
		return []AssetRecord{}, nil
	}
	var records []AssetRecord
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	return records, nil
}

// LatestByTag returns the newest record for tag, nil if there is none
func (r *AssetPostgresRepo) LatestByTag(ctx context.Context, tag string) (*AssetRecord, error) {
	if r == nil || r.db == nil {
		return nil, nil
	}
	var rec AssetRecord
	err := r.db.WithContext(ctx).
		Where("entity_tag = ?", tag).
		Order("created_at DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest asset: %w", err)
	}
	return &rec, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
