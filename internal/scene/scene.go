package scene

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"meshhub/internal/protocol"
)

var (
	ErrSceneFull      = errors.New("scene entity capacity exhausted")
	ErrEntityNotFound = errors.New("entity not found")
	ErrNoMesh         = errors.New("entity has no mesh component")
	ErrBadIndex       = errors.New("index references a missing vertex")
)

// SceneError reports a scene graph mutation that could not be performed.
type SceneError struct {
	Op  string
	Tag string
	Err error
}

func (e *SceneError) Error() string {
	if e.Tag == "" {
		return fmt.Sprintf("scene %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("scene %s (tag %q): %v", e.Op, e.Tag, e.Err)
}

func (e *SceneError) Unwrap() error {
	return e.Err
}

// Transform places an entity in the world
type Transform struct {
	Location protocol.Vec3
	Rotation protocol.Vec3 // pitch, yaw, roll in degrees
	Scale    protocol.Vec3
}

// Identity is the transform new entities are spawned with: at the origin, unrotated
var Identity = Transform{Scale: protocol.Vec3{X: 1, Y: 1, Z: 1}}

// MeshComponent holds one entity's renderable triangle buffers.
// Normals, UVs and colors are left to the renderer to derive.
type MeshComponent struct {
	Name      string
	Positions []protocol.Vec3
	Indices   []uint32
	Material  string
	Revision  uint64 // bumped on every buffer replacement
	UpdatedAt time.Time
}

// Entity is a scene object. Values handed out by the Scene are copies.
type Entity struct {
	ID        uuid.UUID
	Tag       string
	Label     string
	Transform Transform
	Mesh      *MeshComponent
	CreatedAt time.Time
}

// RefreshListener is notified after a viewport refresh is requested.
// Calls for one listener are serialized and arrive in increasing refresh
// order; refreshes requested while a call is running collapse into the newest.
type RefreshListener interface {
	ViewportRefreshed(revision uint64)
}

// refresher delivers refreshes to one listener from at most one goroutine
type refresher struct {
	l RefreshListener

	mu        sync.Mutex
	latest    uint64
	delivered uint64
	running   bool
}

// notify records rev and starts the delivery goroutine if none is running
func (r *refresher) notify(rev uint64, wg *sync.WaitGroup) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rev > r.latest {
		r.latest = rev
	}
	if r.running {
		return
	}
	r.running = true
	wg.Add(1)
	go r.run(wg)
}

func (r *refresher) run(wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		r.mu.Lock()
		if r.latest <= r.delivered {
			r.running = false
			r.mu.Unlock()
			return
		}
		rev := r.latest
		r.delivered = rev
		r.mu.Unlock()

		r.l.ViewportRefreshed(rev)
	}
}

// Scene is an in-memory scene graph with a tag index.
// The poll loop mutates it; the admin API reads it concurrently.
type Scene struct {
	mu          sync.RWMutex
	entities    map[uuid.UUID]*Entity
	byTag       map[string]uuid.UUID // tag -> entity, kept in step with entities
	materials   *MaterialLibrary
	maxEntities int

	refreshers []*refresher
	refreshes  atomic.Uint64
	refreshWG sync.WaitGroup

	logger *slog.Logger
}

// constructor for Scene, maxEntities <= 0 means unlimited
func NewScene(maxEntities int, materials *MaterialLibrary) *Scene {
	if materials == nil {
		materials = NewMaterialLibrary()
	}
	return &Scene{
		entities:    make(map[uuid.UUID]*Entity),
		byTag:       make(map[string]uuid.UUID),
		materials:   materials,
		maxEntities: maxEntities,
		logger:      slog.Default(),
	}
}

// SetLogger replaces the default logger
func (s *Scene) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// AddRefreshListener registers l; call before the scene is shared.
func (s *Scene) AddRefreshListener(l RefreshListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshers = append(s.refreshers, &refresher{l: l})
}

// FindTaggedEntity looks the tag up in the index
func (s *Scene) FindTaggedEntity(tag string) (uuid.UUID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byTag[tag]
	return id, ok
}

// SpawnEntity creates a tagged entity at the origin.
// If the tag is already taken the existing entity is returned, so only one
// entity ever carries a given tag.
func (s *Scene) SpawnEntity(tag, label string) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byTag[tag]; ok {
		return id, nil
	}
	if s.maxEntities > 0 && len(s.entities) >= s.maxEntities {
		return uuid.Nil, &SceneError{Op: "spawn", Tag: tag, Err: ErrSceneFull}
	}

	e := &Entity{
		ID:        uuid.New(),
		Tag:       tag,
		Label:     label,
		Transform: Identity,
		CreatedAt: time.Now(),
	}
	s.entities[e.ID] = e
	if tag != "" {
		s.byTag[tag] = e.ID
	}
	s.logger.Info("entity_spawned",
		"entity_id", e.ID.String(),
		"tag", tag,
		"label", label,
	)
	return e.ID, nil
}

// EnsureMeshComponent attaches an empty mesh component if the entity has none
func (s *Scene) EnsureMeshComponent(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[id]
	if !ok {
		return &SceneError{Op: "attach_mesh", Err: ErrEntityNotFound}
	}
	if e.Mesh == nil {
		e.Mesh = &MeshComponent{Name: "ProcMesh"}
	}
	return nil
}

// ReplaceMeshBuffers discards the entity's old geometry and stores copies of
// positions and indices. Indices must all name a vertex in positions.
func (s *Scene) ReplaceMeshBuffers(id uuid.UUID, positions []protocol.Vec3, indices []uint32) error {
	n := uint32(len(positions))
	for _, idx := range indices {
		if idx >= n {
			return &SceneError{Op: "replace_mesh", Err: fmt.Errorf("%w: %d of %d", ErrBadIndex, idx, n)}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[id]
	if !ok {
		return &SceneError{Op: "replace_mesh", Err: ErrEntityNotFound}
	}
	if e.Mesh == nil {
		return &SceneError{Op: "replace_mesh", Tag: e.Tag, Err: ErrNoMesh}
	}

	e.Mesh.Positions = append([]protocol.Vec3(nil), positions...)
	e.Mesh.Indices = append([]uint32(nil), indices...)
	e.Mesh.Revision++
	e.Mesh.UpdatedAt = time.Now()
	return nil
}

// MaterialOf returns the material assigned to the entity's mesh, "" if none
func (s *Scene) MaterialOf(id uuid.UUID) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[id]
	if !ok {
		return "", &SceneError{Op: "material", Err: ErrEntityNotFound}
	}
	if e.Mesh == nil {
		return "", &SceneError{Op: "material", Tag: e.Tag, Err: ErrNoMesh}
	}
	return e.Mesh.Material, nil
}

// AssignMaterial sets the mesh material; the name must be in the library
func (s *Scene) AssignMaterial(id uuid.UUID, name string) error {
	if _, ok := s.materials.Lookup(name); !ok {
		return &SceneError{Op: "assign_material", Err: fmt.Errorf("unknown material %q", name)}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[id]
	if !ok {
		return &SceneError{Op: "assign_material", Err: ErrEntityNotFound}
	}
	if e.Mesh == nil {
		return &SceneError{Op: "assign_material", Tag: e.Tag, Err: ErrNoMesh}
	}
	e.Mesh.Material = name
	return nil
}

// DefaultMaterial returns the library's default visible material
func (s *Scene) DefaultMaterial() (string, bool) {
	m, ok := s.materials.Default()
	return m.Name, ok
}

// RequestViewportRefresh notifies every listener without waiting for them
func (s *Scene) RequestViewportRefresh() {
	rev := s.refreshes.Add(1)

	s.mu.RLock()
	refreshers := append([]*refresher(nil), s.refreshers...)
	s.mu.RUnlock()

	for _, r := range refreshers {
		r.notify(rev, &s.refreshWG)
	}
}

// RefreshCount is the number of refreshes requested so far
func (s *Scene) RefreshCount() uint64 {
	return s.refreshes.Load()
}

// WaitRefreshes blocks until in-flight listener calls return
func (s *Scene) WaitRefreshes() {
	s.refreshWG.Wait()
}

// Entity returns a copy of the entity with its buffers
func (s *Scene) Entity(id uuid.UUID) (Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[id]
	if !ok {
		return Entity{}, false
	}
	return e.clone(), true
}

// EntityByTag returns a copy of the tagged entity
func (s *Scene) EntityByTag(tag string) (Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byTag[tag]
	if !ok {
		return Entity{}, false
	}
	return s.entities[id].clone(), true
}

// Len returns the number of entities in the scene
func (s *Scene) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities)
}

// CountTagged returns how many entities carry tag; used to check the single target invariant
func (s *Scene) CountTagged(tag string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.entities {
		if e.Tag == tag {
			n++
		}
	}
	return n
}

func (e *Entity) clone() Entity {
	c := *e
	if e.Mesh != nil {
		m := *e.Mesh
		m.Positions = append([]protocol.Vec3(nil), e.Mesh.Positions...)
		m.Indices = append([]uint32(nil), e.Mesh.Indices...)
		c.Mesh = &m
	}
	return c
}
