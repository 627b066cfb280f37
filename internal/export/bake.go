package export

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"math"
	"time"

	"golang.org/x/crypto/blake2b"

	"meshhub/internal/protocol"
	"meshhub/internal/scene"
)

var ErrNoGeometry = errors.New("entity has no mesh geometry")

// BakedMesh is a frozen copy of an entity's mesh ready to be written out.
type BakedMesh struct {
	Name        string
	EntityTag   string
	Positions   []protocol.Vec3
	Triangles   [][3]uint32
	Min, Max    protocol.Vec3
	Fingerprint string // hex blake2b-256 of positions + indices
	CreatedAt   time.Time
}

// AssetName appends the wall clock time to the hint, e.g. SM_BlenderMesh_142501
func AssetName(hint string, now time.Time) string {
	return hint + "_" + now.Format("150405")
}

// Bake groups the entity's index buffer into triangles and computes the
// bounding box and fingerprint.
func Bake(e scene.Entity, name string, now time.Time) (*BakedMesh, error) {
	if e.Mesh == nil || len(e.Mesh.Positions) == 0 {
		return nil, ErrNoGeometry
	}
	p := &protocol.MeshPayload{Positions: e.Mesh.Positions, Indices: e.Mesh.Indices}
	if err := p.ValidateIndices(); err != nil {
		return nil, err
	}

	tris := make([][3]uint32, 0, p.TriangleCount())
	for i := 0; i+2 < len(p.Indices); i += 3 {
		tris = append(tris, [3]uint32{p.Indices[i], p.Indices[i+1], p.Indices[i+2]})
	}
	lo, hi := p.Bounds()

	return &BakedMesh{
		Name:        name,
		EntityTag:   e.Tag,
		Positions:   p.Positions,
		Triangles:   tris,
		Min:         lo,
		Max:         hi,
		Fingerprint: Fingerprint(p.Positions, p.Indices),
		CreatedAt:   now,
	}, nil
}

// Fingerprint hashes the geometry in wire byte order so two identical
// uploads produce the same value.
func Fingerprint(positions []protocol.Vec3, indices []uint32) string {
	h, _ := blake2b.New256(nil) // only fails for keys over 64 bytes
	var word [4]byte
	put := func(v uint32) {
		binary.LittleEndian.PutUint32(word[:], v)
		h.Write(word[:])
	}
	put(uint32(len(positions)))
	for _, v := range positions {
		put(math.Float32bits(v.X))
		put(math.Float32bits(v.Y))
		put(math.Float32bits(v.Z))
	}
	put(uint32(len(indices)))
	for _, idx := range indices {
		put(idx)
	}
	return hex.EncodeToString(h.Sum(nil))
}
