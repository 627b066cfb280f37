package scene

import (
	"context"
	"errors"
	gosync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"meshhub/internal/protocol"
)

const testTag = "BlenderTarget"

// --- MOCKS ---

type MockExporter struct {
	mock.Mock
}

func (m *MockExporter) Export(ctx context.Context, e Entity, nameHint string) (AssetRef, error) {
	args := m.Called(ctx, e, nameHint)
	return args.Get(0).(AssetRef), args.Error(1)
}

type countingListener struct {
	calls atomic.Int32
	last  atomic.Uint64
}

func (l *countingListener) ViewportRefreshed(rev uint64) {
	l.calls.Add(1)
	l.last.Store(rev)
}

// orderListener records every revision it is handed
type orderListener struct {
	mu   gosync.Mutex
	seen []uint64
}

func (l *orderListener) ViewportRefreshed(rev uint64) {
	l.mu.Lock()
	l.seen = append(l.seen, rev)
	l.mu.Unlock()
	time.Sleep(10 * time.Microsecond)
}

type refreshFunc func(uint64)

func (f refreshFunc) ViewportRefreshed(rev uint64) { f(rev) }

// fullHost is a Host whose scene has no room left
type fullHost struct {
	*Scene
}

func (h fullHost) SpawnEntity(tag, label string) (uuid.UUID, error) {
	return uuid.Nil, &SceneError{Op: "spawn", Tag: tag, Err: ErrSceneFull}
}

// --- HELPERS ---

func cube() *protocol.MeshPayload {
	return &protocol.MeshPayload{
		Positions: []protocol.Vec3{
			{X: -1, Y: -1, Z: -1}, {X: 1, Y: -1, Z: -1}, {X: 1, Y: 1, Z: -1}, {X: -1, Y: 1, Z: -1},
			{X: -1, Y: -1, Z: 1}, {X: 1, Y: -1, Z: 1}, {X: 1, Y: 1, Z: 1}, {X: -1, Y: 1, Z: 1},
		},
		Indices: []uint32{0, 1, 2, 0, 2, 3},
	}
}

func triangle() *protocol.MeshPayload {
	return &protocol.MeshPayload{
		Positions: []protocol.Vec3{{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 0, Y: 1, Z: 0}},
		Indices:   []uint32{0, 1, 2},
	}
}

// --- TESTS ---

func TestApply_CreatesTargetOnFirstPayload(t *testing.T) {
	sc := NewScene(0, nil)
	sync := NewMeshSync(sc, SyncOptions{Tag: testTag, Label: "ReceivedMesh"})

	require.NoError(t, sync.Apply(context.Background(), &protocol.MeshPayload{
		Positions: []protocol.Vec3{{X: 1, Y: 2, Z: 3}},
		Indices:   []uint32{0, 0, 0},
	}))

	e, ok := sc.EntityByTag(testTag)
	require.True(t, ok)
	assert.Equal(t, "ReceivedMesh", e.Label)
	assert.Equal(t, Identity, e.Transform)
	require.NotNil(t, e.Mesh)
	assert.Equal(t, []protocol.Vec3{{X: 1, Y: 2, Z: 3}}, e.Mesh.Positions)
	assert.Equal(t, []uint32{0, 0, 0}, e.Mesh.Indices)
	assert.Equal(t, DefaultMaterialName, e.Mesh.Material)
}

func TestApply_IdempotentTargetResolution(t *testing.T) {
	sc := NewScene(0, nil)
	sync := NewMeshSync(sc, SyncOptions{Tag: testTag})

	require.NoError(t, sync.Apply(context.Background(), cube()))
	first, _ := sc.FindTaggedEntity(testTag)
	require.NoError(t, sync.Apply(context.Background(), triangle()))
	second, _ := sc.FindTaggedEntity(testTag)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, sc.CountTagged(testTag))
	assert.Equal(t, 1, sc.Len())
}

func TestApply_WholesaleReplacement(t *testing.T) {
	sc := NewScene(0, nil)
	sync := NewMeshSync(sc, SyncOptions{Tag: testTag})

	require.NoError(t, sync.Apply(context.Background(), cube()))
	require.NoError(t, sync.Apply(context.Background(), triangle()))

	e, ok := sc.EntityByTag(testTag)
	require.True(t, ok)
	assert.Equal(t, triangle().Positions, e.Mesh.Positions)
	assert.Equal(t, triangle().Indices, e.Mesh.Indices)
	assert.EqualValues(t, 2, e.Mesh.Revision)
}

func TestApply_KeepsAssignedMaterial(t *testing.T) {
	lib := NewMaterialLibrary()
	lib.Register(Material{Name: "Clay", Path: "/Game/Materials/Clay"})
	sc := NewScene(0, lib)
	sync := NewMeshSync(sc, SyncOptions{Tag: testTag})

	require.NoError(t, sync.Apply(context.Background(), cube()))
	id, _ := sc.FindTaggedEntity(testTag)
	require.NoError(t, sc.AssignMaterial(id, "Clay"))
	require.NoError(t, sync.Apply(context.Background(), triangle()))

	mat, err := sc.MaterialOf(id)
	require.NoError(t, err)
	assert.Equal(t, "Clay", mat)
}

func TestApply_MissingDefaultMaterialIsNotFatal(t *testing.T) {
	sc := NewScene(0, NewEmptyMaterialLibrary())
	sync := NewMeshSync(sc, SyncOptions{Tag: testTag})

	require.NoError(t, sync.Apply(context.Background(), cube()))
	e, _ := sc.EntityByTag(testTag)
	assert.Empty(t, e.Mesh.Material)
}

func TestApply_RequestsRefresh(t *testing.T) {
	sc := NewScene(0, nil)
	l := &countingListener{}
	sc.AddRefreshListener(l)
	sync := NewMeshSync(sc, SyncOptions{Tag: testTag})

	require.NoError(t, sync.Apply(context.Background(), cube()))
	require.NoError(t, sync.Apply(context.Background(), cube()))
	sc.WaitRefreshes()

	assert.EqualValues(t, 2, sc.RefreshCount())
	// the second request may fold into the first delivery
	assert.GreaterOrEqual(t, l.calls.Load(), int32(1))
	assert.EqualValues(t, 2, l.last.Load())
}

func TestScene_RefreshesArriveInOrder(t *testing.T) {
	sc := NewScene(0, nil)
	l := &orderListener{}
	sc.AddRefreshListener(l)

	const n = 2000
	for i := 0; i < n; i++ {
		sc.RequestViewportRefresh()
	}
	sc.WaitRefreshes()

	l.mu.Lock()
	defer l.mu.Unlock()
	require.NotEmpty(t, l.seen)
	for i := 1; i < len(l.seen); i++ {
		require.Greater(t, l.seen[i], l.seen[i-1], "delivery %d went backwards", i)
	}
	assert.EqualValues(t, n, l.seen[len(l.seen)-1])
}

func TestScene_RefreshReadsLatestRevision(t *testing.T) {
	sc := NewScene(0, nil)
	sync := NewMeshSync(sc, SyncOptions{Tag: testTag})

	var stored atomic.Uint64
	sc.AddRefreshListener(refreshFunc(func(uint64) {
		e, ok := sc.EntityByTag(testTag)
		if ok && e.Mesh != nil {
			stored.Store(e.Mesh.Revision)
		}
	}))

	for i := 0; i < 200; i++ {
		require.NoError(t, sync.Apply(context.Background(), triangle()))
	}
	sc.WaitRefreshes()

	e, ok := sc.EntityByTag(testTag)
	require.True(t, ok)
	assert.Equal(t, e.Mesh.Revision, stored.Load())
}

func TestApply_ExportFailureDoesNotRollBack(t *testing.T) {
	sc := NewScene(0, nil)
	exp := new(MockExporter)
	exp.On("Export", mock.Anything, mock.AnythingOfType("scene.Entity"), "SM_BlenderMesh").
		Return(AssetRef{}, errors.New("disk full")).Once()

	sync := NewMeshSync(sc, SyncOptions{Tag: testTag, NameHint: "SM_BlenderMesh", Exporter: exp})
	require.NoError(t, sync.Apply(context.Background(), cube()))

	e, ok := sc.EntityByTag(testTag)
	require.True(t, ok)
	assert.Len(t, e.Mesh.Positions, 8)
	exp.AssertExpectations(t)
}

func TestApply_ExportReceivesCurrentGeometry(t *testing.T) {
	sc := NewScene(0, nil)
	exp := new(MockExporter)
	exp.On("Export", mock.Anything, mock.MatchedBy(func(e Entity) bool {
		return e.Tag == testTag && len(e.Mesh.Indices) == 3
	}), "SM_BlenderMesh").Return(AssetRef{ID: uuid.New(), Name: "SM_BlenderMesh_120000"}, nil).Once()

	sync := NewMeshSync(sc, SyncOptions{Tag: testTag, NameHint: "SM_BlenderMesh", Exporter: exp})
	require.NoError(t, sync.Apply(context.Background(), triangle()))
	exp.AssertExpectations(t)
}

func TestApply_NoExportWithoutNameHint(t *testing.T) {
	sc := NewScene(0, nil)
	exp := new(MockExporter)
	sync := NewMeshSync(sc, SyncOptions{Tag: testTag, Exporter: exp})

	require.NoError(t, sync.Apply(context.Background(), cube()))
	exp.AssertNotCalled(t, "Export", mock.Anything, mock.Anything, mock.Anything)
}

func TestApply_SpawnFailureIsSceneError(t *testing.T) {
	sc := NewScene(0, nil)
	sync := NewMeshSync(fullHost{sc}, SyncOptions{Tag: testTag})

	err := sync.Apply(context.Background(), cube())
	var se *SceneError
	require.ErrorAs(t, err, &se)
	assert.ErrorIs(t, err, ErrSceneFull)
	assert.Zero(t, sc.Len())
	assert.Zero(t, sc.RefreshCount())
}

func TestScene_CapacityExhausted(t *testing.T) {
	sc := NewScene(1, nil)
	_, err := sc.SpawnEntity("other", "Other")
	require.NoError(t, err)

	sync := NewMeshSync(sc, SyncOptions{Tag: testTag})
	err = sync.Apply(context.Background(), cube())
	assert.ErrorIs(t, err, ErrSceneFull)

	// the sync keeps working once room is available on another scene
	sc2 := NewScene(1, nil)
	assert.NoError(t, NewMeshSync(sc2, SyncOptions{Tag: testTag}).Apply(context.Background(), cube()))
}

func TestScene_ReattachesMissingComponent(t *testing.T) {
	sc := NewScene(0, nil)
	id, err := sc.SpawnEntity(testTag, "Placed by hand")
	require.NoError(t, err)

	sync := NewMeshSync(sc, SyncOptions{Tag: testTag})
	require.NoError(t, sync.Apply(context.Background(), triangle()))

	e, _ := sc.Entity(id)
	require.NotNil(t, e.Mesh)
	assert.Equal(t, "Placed by hand", e.Label)
}

func TestScene_ReplaceRejectsOutOfRangeIndex(t *testing.T) {
	sc := NewScene(0, nil)
	id, _ := sc.SpawnEntity(testTag, "x")
	require.NoError(t, sc.EnsureMeshComponent(id))

	err := sc.ReplaceMeshBuffers(id, []protocol.Vec3{{}}, []uint32{0, 0, 1})
	assert.ErrorIs(t, err, ErrBadIndex)
}

func TestScene_EntityIsACopy(t *testing.T) {
	sc := NewScene(0, nil)
	sync := NewMeshSync(sc, SyncOptions{Tag: testTag})
	require.NoError(t, sync.Apply(context.Background(), triangle()))

	e, _ := sc.EntityByTag(testTag)
	e.Mesh.Positions[0] = protocol.Vec3{X: 99}

	again, _ := sc.EntityByTag(testTag)
	assert.Equal(t, protocol.Vec3{}, again.Mesh.Positions[0])
}
