package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeMessage builds header + body for p, the way the authoring tool sends
// it. extra is appended after the indices untouched; the Blender exporter
// uses that slot for per-vertex normals which receivers ignore.
func EncodeMessage(p *MeshPayload, extra []float32) ([]byte, error) {
	if len(p.Positions)*floatsPerVertex > math.MaxInt32 || len(p.Indices) > math.MaxInt32 {
		return nil, fmt.Errorf("mesh too large to encode: %d vertices, %d indices", len(p.Positions), len(p.Indices))
	}
	if len(p.Indices)%indicesPerTri != 0 {
		return nil, newProtocolError(KindInvalidCounts, "index count %d is not a triangle list", len(p.Indices))
	}

	h := Header{
		Magic:            Magic,
		VertexFloatCount: int32(len(p.Positions) * floatsPerVertex),
		IndexCount:       int32(len(p.Indices)),
	}
	buf := make([]byte, 0, int64(HeaderSize)+h.BodySize()+int64(len(extra))*wordSize)
	buf = append(buf, h.Encode()...)
	for _, v := range p.Positions {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v.X))
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v.Y))
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v.Z))
	}
	for _, idx := range p.Indices {
		buf = binary.LittleEndian.AppendUint32(buf, idx)
	}
	for _, f := range extra {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
	}
	return buf, nil
}
