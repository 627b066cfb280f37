package protocol

import (
	"encoding/binary"
	"math"

	"github.com/chewxy/math32"
)

// Vec3 is one vertex position as received, no axis remapping applied.
type Vec3 struct {
	X, Y, Z float32
}

// MeshPayload is one decoded message body.
type MeshPayload struct {
	Positions []Vec3
	Indices   []uint32
}

// VertexCount returns the number of positions
func (p *MeshPayload) VertexCount() int {
	return len(p.Positions)
}

// TriangleCount returns the number of triangles
func (p *MeshPayload) TriangleCount() int {
	return len(p.Indices) / indicesPerTri
}

// DecodePayload extracts vertexFloatCount floats followed by indexCount
// indices from b. Every value is read through an explicit offset so nothing
// past the declared size is ever touched; bytes beyond it are ignored.
func DecodePayload(b []byte, vertexFloatCount, indexCount int32) (*MeshPayload, error) {
	h := Header{Magic: Magic, VertexFloatCount: vertexFloatCount, IndexCount: indexCount}
	if err := h.Validate(Limits{}); err != nil {
		return nil, err
	}
	need := h.BodySize()
	if int64(len(b)) < need {
		return nil, newProtocolError(KindTruncated, "body is %d bytes, want %d", len(b), need)
	}

	p := &MeshPayload{
		Positions: make([]Vec3, 0, h.VertexCount()),
		Indices:   make([]uint32, 0, indexCount),
	}

	off := 0
	for i := 0; i < h.VertexCount(); i++ {
		p.Positions = append(p.Positions, Vec3{
			X: readFloat(b, off),
			Y: readFloat(b, off+wordSize),
			Z: readFloat(b, off+2*wordSize),
		})
		off += floatsPerVertex * wordSize
	}

	for i := int32(0); i < indexCount; i++ {
		idx := int32(binary.LittleEndian.Uint32(b[off : off+wordSize]))
		if idx < 0 {
			return nil, newProtocolError(KindInvalidCounts, "index %d is negative (%d)", i, idx)
		}
		p.Indices = append(p.Indices, uint32(idx))
		off += wordSize
	}
	return p, nil
}

func readFloat(b []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b[off : off+wordSize]))
}

// ValidateIndices rejects any index that does not name a received vertex.
// Mesh buffer consumers index positions directly, so this must pass before
// the payload reaches the scene.
func (p *MeshPayload) ValidateIndices() error {
	n := uint32(len(p.Positions))
	for i, idx := range p.Indices {
		if idx >= n {
			return newProtocolError(KindInvalidCounts, "index %d references vertex %d of %d", i, idx, n)
		}
	}
	return nil
}

// ValidateFinite rejects NaN or infinite coordinates.
func (p *MeshPayload) ValidateFinite() error {
	for i, v := range p.Positions {
		if !finite(v.X) || !finite(v.Y) || !finite(v.Z) {
			return newProtocolError(KindInvalidCounts, "vertex %d is not finite (%v, %v, %v)", i, v.X, v.Y, v.Z)
		}
	}
	return nil
}

func finite(f float32) bool {
	return !math32.IsNaN(f) && !math32.IsInf(f, 0)
}

// Bounds returns the axis-aligned bounding box of the positions.
// An empty payload returns two zero vectors.
func (p *MeshPayload) Bounds() (lo, hi Vec3) {
	if len(p.Positions) == 0 {
		return Vec3{}, Vec3{}
	}
	lo, hi = p.Positions[0], p.Positions[0]
	for _, v := range p.Positions[1:] {
		lo.X = math32.Min(lo.X, v.X)
		lo.Y = math32.Min(lo.Y, v.Y)
		lo.Z = math32.Min(lo.Z, v.Z)
		hi.X = math32.Max(hi.X, v.X)
		hi.Y = math32.Max(hi.Y, v.Y)
		hi.Z = math32.Max(hi.Z, v.Z)
	}
	return lo, hi
}
