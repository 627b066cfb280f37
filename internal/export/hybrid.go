package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"meshhub/internal/scene"
)

var (
	ErrUnchanged       = errors.New("geometry unchanged since last export")
	ErrExportThrottled = errors.New("export rate limit exceeded")
)

// HybridExporter writes baked meshes to the file store and records them in
// the asset registry.
// File store: the durable artifact, always written
// Registry: optional Postgres index of what was exported (nil = disabled)
type HybridExporter struct {
	store    *FileStore
	registry AssetRepository
	limiter  *rate.Limiter // bakes are expensive, cap how often they run
	logger   *slog.Logger
	now      func() time.Time

	mu   sync.Mutex
	last map[string]string // entity tag -> fingerprint of the last export
}

// NewHybridExporter creates an exporter; ratePerSec <= 0 disables throttling
func NewHybridExporter(store *FileStore, registry AssetRepository, ratePerSec float64) *HybridExporter {
	limit := rate.Inf
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
	}
	return &HybridExporter{
		store:    store,
		registry: registry,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   slog.Default(),
		now:      time.Now,
		last:     make(map[string]string),
	}
}

// SetLogger replaces the default logger
func (x *HybridExporter) SetLogger(logger *slog.Logger) {
	x.logger = logger
}

// Restore seeds the dedupe state for tag from the newest registry record, so a
// restarted receiver does not export the same geometry again
func (x *HybridExporter) Restore(ctx context.Context, tag string) error {
	if x.registry == nil {
		return nil
	}
	rec, err := x.registry.LatestByTag(ctx, tag)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}

	x.mu.Lock()
	x.last[tag] = rec.Fingerprint
	x.mu.Unlock()
	return nil
}

// Export bakes e under AssetName(nameHint, now).
// Identical geometry is not exported twice in a row; ErrUnchanged is returned.
// Exports run one at a time so the dedupe check and the record it guards
// cannot interleave.
func (x *HybridExporter) Export(ctx context.Context, e scene.Entity, nameHint string) (scene.AssetRef, error) {
	now := x.now()
	baked, err := Bake(e, AssetName(nameHint, now), now)
	if err != nil {
		return scene.AssetRef{}, err
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.last[e.Tag] == baked.Fingerprint {
		return scene.AssetRef{}, ErrUnchanged
	}

	// check rate limit after dedupe so repeats don't burn tokens
	if !x.limiter.Allow() {
		x.logger.Warn("export_throttled",
			"tag", e.Tag,
			"asset_name", baked.Name,
		)
		return scene.AssetRef{}, ErrExportThrottled
	}

	if x.store.Exists(baked.Name) {
		baked.Name = fmt.Sprintf("%s_%s", baked.Name, uuid.NewString()[:8])
	}
	path, err := x.store.Save(baked)
	if err != nil {
		return scene.AssetRef{}, err
	}

	rec := newAssetRecord(baked, path)
	if err := x.register(ctx, rec); err != nil {
		x.logger.Error("asset_register_failed",
			"asset_name", rec.Name,
			"path", path,
			"error", err,
		)
		// an artifact the registry does not list is dropped so a retry starts clean
		if rmErr := x.store.Remove(baked.Name); rmErr != nil {
			x.logger.Warn("orphan_artifact_remove_failed",
				"path", path,
				"error", rmErr.Error(),
			)
		}
		return scene.AssetRef{}, err
	}

	x.last[e.Tag] = baked.Fingerprint

	x.logger.Info("bake_success",
		"asset_id", rec.ID.String(),
		"asset_name", rec.Name,
		"vertices", rec.VertexCount,
		"triangles", rec.TriangleCount,
		"path", path,
	)
	return scene.AssetRef{ID: rec.ID, Name: rec.Name, Path: path}, nil
}

// register inserts rec, retrying once under a suffixed name when two exports
// land in the same second
func (x *HybridExporter) register(ctx context.Context, rec *AssetRecord) error {
	if x.registry == nil {
		return nil
	}
	err := x.registry.Create(ctx, rec)
	if !errors.Is(err, ErrDuplicateName) {
		return err
	}
	rec.ID = uuid.New()
	rec.Name = fmt.Sprintf("%s_%s", rec.Name, rec.ID.String()[:8])
	return x.registry.Create(ctx, rec)
}

func newAssetRecord(b *BakedMesh, path string) *AssetRecord {
	return &AssetRecord{
		ID:            uuid.New(),
		Name:          b.Name,
		EntityTag:     b.EntityTag,
		VertexCount:   len(b.Positions),
		TriangleCount: len(b.Triangles),
		Fingerprint:   b.Fingerprint,
		StoragePath:   path,
		MinX:          b.Min.X,
		MinY:          b.Min.Y,
		MinZ:          b.Min.Z,
		MaxX:          b.Max.X,
		MaxY:          b.Max.Y,
		MaxZ:          b.Max.Z,
		CreatedAt:     b.CreatedAt,
	}
}
