package scene

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"meshhub/internal/protocol"
)

// Host is the part of the scene graph the sync step drives.
// *Scene implements it; tests substitute mocks.
type Host interface {
	FindTaggedEntity(tag string) (uuid.UUID, bool)
	SpawnEntity(tag, label string) (uuid.UUID, error)
	EnsureMeshComponent(id uuid.UUID) error
	ReplaceMeshBuffers(id uuid.UUID, positions []protocol.Vec3, indices []uint32) error
	MaterialOf(id uuid.UUID) (string, error)
	AssignMaterial(id uuid.UUID, name string) error
	DefaultMaterial() (string, bool)
	RequestViewportRefresh()
	Entity(id uuid.UUID) (Entity, bool)
}

// AssetRef identifies a durable artifact produced from an entity's mesh
type AssetRef struct {
	ID   uuid.UUID
	Name string
	Path string
}

// Exporter bakes an entity's current mesh into a named durable artifact.
type Exporter interface {
	Export(ctx context.Context, e Entity, nameHint string) (AssetRef, error)
}

// SyncOptions configures MeshSync
type SyncOptions struct {
	Tag           string // stable lookup key of the target entity
	Label         string // display label given when the entity is spawned
	NameHint      string // prefix for exported asset names, empty disables export
	ExportTimeout time.Duration
	Exporter      Exporter // nil disables export
	Logger        *slog.Logger
}

// MeshSync keeps the single tagged target entity in step with incoming meshes.
// It holds only the tag between calls, never an entity handle.
type MeshSync struct {
	host Host
	opts SyncOptions
	log  *slog.Logger
}

// constructor for MeshSync
func NewMeshSync(host Host, opts SyncOptions) *MeshSync {
	if opts.Tag == "" {
		opts.Tag = "BlenderTarget"
	}
	if opts.Label == "" {
		opts.Label = "ReceivedMesh"
	}
	if opts.ExportTimeout <= 0 {
		opts.ExportTimeout = 10 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &MeshSync{host: host, opts: opts, log: logger}
}

// Tag returns the tag of the target entity
func (s *MeshSync) Tag() string {
	return s.opts.Tag
}

// Apply replaces the target entity's mesh with p, creating the entity the
// first time. Refresh and export are best effort: once the buffers are
// replaced, later failures are logged and do not undo the update.
func (s *MeshSync) Apply(ctx context.Context, p *protocol.MeshPayload) error {
	id, err := s.resolveTarget()
	if err != nil {
		s.log.Error("scene_target_unavailable",
			"tag", s.opts.Tag,
			"error", err.Error(),
		)
		return err
	}

	if err := s.host.ReplaceMeshBuffers(id, p.Positions, p.Indices); err != nil {
		s.log.Error("scene_mesh_replace_failed",
			"entity_id", id.String(),
			"error", err.Error(),
		)
		return err
	}

	s.ensureMaterial(id)

	s.log.Info("scene_mesh_updated",
		"entity_id", id.String(),
		"tag", s.opts.Tag,
		"vertices", p.VertexCount(),
		"triangles", p.TriangleCount(),
	)

	s.host.RequestViewportRefresh()

	s.export(ctx, id)
	return nil
}

// resolveTarget finds the tagged entity or spawns it with an empty mesh component
func (s *MeshSync) resolveTarget() (uuid.UUID, error) {
	id, found := s.host.FindTaggedEntity(s.opts.Tag)
	if !found {
		s.log.Warn("scene_target_not_found_spawning",
			"tag", s.opts.Tag,
			"label", s.opts.Label,
		)
		var err error
		id, err = s.host.SpawnEntity(s.opts.Tag, s.opts.Label)
		if err != nil {
			return uuid.Nil, wrapSceneError("spawn", s.opts.Tag, err)
		}
	}
	// an existing entity may have lost its component, so always check
	if err := s.host.EnsureMeshComponent(id); err != nil {
		return uuid.Nil, wrapSceneError("attach_mesh", s.opts.Tag, err)
	}
	return id, nil
}

func (s *MeshSync) ensureMaterial(id uuid.UUID) {
	current, err := s.host.MaterialOf(id)
	if err != nil || current != "" {
		return
	}
	name, ok := s.host.DefaultMaterial()
	if !ok {
		s.log.Warn("default_material_missing", "entity_id", id.String())
		return
	}
	if err := s.host.AssignMaterial(id, name); err != nil {
		s.log.Warn("default_material_assign_failed",
			"entity_id", id.String(),
			"material", name,
			"error", err.Error(),
		)
	}
}

func (s *MeshSync) export(ctx context.Context, id uuid.UUID) {
	if s.opts.Exporter == nil || s.opts.NameHint == "" {
		return
	}
	e, ok := s.host.Entity(id)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.ExportTimeout)
	defer cancel()

	ref, err := s.opts.Exporter.Export(ctx, e, s.opts.NameHint)
	if err != nil {
		s.log.Warn("mesh_export_failed",
			"entity_id", id.String(),
			"error", err.Error(),
		)
		return
	}
	s.log.Info("mesh_exported",
		"entity_id", id.String(),
		"asset_id", ref.ID.String(),
		"asset_name", ref.Name,
		"path", ref.Path,
	)
}

func wrapSceneError(op, tag string, err error) error {
	var se *SceneError
	if errors.As(err, &se) {
		return err
	}
	return &SceneError{Op: op, Tag: tag, Err: err}
}
