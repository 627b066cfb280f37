package service

import (
	"context"
	"errors"
	"fmt"

	"meshhub/internal/export"
	"meshhub/internal/microservices/http-api/dto"
	"meshhub/internal/protocol"
	"meshhub/internal/scene"
)

var (
	ErrNoTarget       = errors.New("no mesh received yet")
	ErrExportDisabled = errors.New("export is disabled")
)

const (
	DefaultAssetLimit = 20
)

type TargetService interface {
	Target(ctx context.Context) (*dto.TargetResponse, error)
	Export(ctx context.Context) (*dto.ExportResponse, error)
	RecentAssets(ctx context.Context, limit int) ([]dto.AssetResponse, error)
}

// EntityReader is the read side of the scene
type EntityReader interface {
	EntityByTag(tag string) (scene.Entity, bool)
}

type targetService struct {
	scene    EntityReader
	tag      string
	exporter scene.Exporter // nil when export is disabled
	nameHint string
	assets   export.AssetRepository
}

func NewTargetService(sc EntityReader, tag string, exporter scene.Exporter, nameHint string, assets export.AssetRepository) TargetService {
	return &targetService{
		scene:    sc,
		tag:      tag,
		exporter: exporter,
		nameHint: nameHint,
		assets:   assets,
	}
}

func (s *targetService) Target(ctx context.Context) (*dto.TargetResponse, error) {
	e, ok := s.scene.EntityByTag(s.tag)
	if !ok || e.Mesh == nil {
		return nil, ErrNoTarget
	}

	mesh := protocol.MeshPayload{Positions: e.Mesh.Positions, Indices: e.Mesh.Indices}
	lo, hi := mesh.Bounds()
	return &dto.TargetResponse{
		EntityID:      e.ID.String(),
		Tag:           e.Tag,
		Label:         e.Label,
		VertexCount:   mesh.VertexCount(),
		TriangleCount: mesh.TriangleCount(),
		Material:      e.Mesh.Material,
		Revision:      e.Mesh.Revision,
		Min:           dto.Vec3{X: lo.X, Y: lo.Y, Z: lo.Z},
		Max:           dto.Vec3{X: hi.X, Y: hi.Y, Z: hi.Z},
		UpdatedAt:     e.Mesh.UpdatedAt,
	}, nil
}

// Export bakes the current target on demand
func (s *targetService) Export(ctx context.Context) (*dto.ExportResponse, error) {
	if s.exporter == nil {
		return nil, ErrExportDisabled
	}
	e, ok := s.scene.EntityByTag(s.tag)
	if !ok || e.Mesh == nil {
		return nil, ErrNoTarget
	}

	ref, err := s.exporter.Export(ctx, e, s.nameHint)
	if err != nil {
		return nil, err
	}
	return &dto.ExportResponse{
		AssetID: ref.ID.String(),
		Name:    ref.Name,
		Path:    ref.Path,
	}, nil
}

func (s *targetService) RecentAssets(ctx context.Context, limit int) ([]dto.AssetResponse, error) {
	if limit <= 0 {
		limit = DefaultAssetLimit
	}
	if s.assets == nil {
		return []dto.AssetResponse{}, nil
	}

	records, err := s.assets.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	resp := make([]dto.AssetResponse, 0, len(records))
	for _, r := range records {
		resp = append(resp, dto.AssetResponse{
			ID:            r.ID.String(),
			Name:          r.Name,
			EntityTag:     r.EntityTag,
			VertexCount:   r.VertexCount,
			TriangleCount: r.TriangleCount,
			Fingerprint:   r.Fingerprint,
			StoragePath:   r.StoragePath,
			CreatedAt:     r.CreatedAt,
		})
	}
	return resp, nil
}
