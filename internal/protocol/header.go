package protocol

import (
	"encoding/binary"
)

const (
	// Magic marks the start of every message; a mismatch usually means the
	// sender packed the header with the wrong byte order.
	Magic uint32 = 0xDEADBEEF

	// HeaderSize is magic + vertex float count + index count
	HeaderSize = 12

	// DefaultPort matches the authoring-tool exporter
	DefaultPort = 8080

	floatsPerVertex = 3
	indicesPerTri   = 3
	wordSize        = 4
)

// Header is the fixed 12 byte message prefix.
type Header struct {
	Magic            uint32
	VertexFloatCount int32 // total floats, three per vertex
	IndexCount       int32 // triangle list indices, three per triangle
}

// Limits caps the declared counts so a hostile header cannot force a huge
// body allocation. A zero field means no cap.
type Limits struct {
	MaxVertexFloats int32
	MaxIndices      int32
}

// DefaultLimits allows roughly two million vertices and four million triangles
var DefaultLimits = Limits{
	MaxVertexFloats: 3 * (1 << 21),
	MaxIndices:      3 * (1 << 22),
}

// DecodeHeader reads the header fields in little-endian order.
// Only the magic is checked here; counts are checked by Validate before the
// body size is computed.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) != HeaderSize {
		return Header{}, newProtocolError(KindTruncated, "header is %d bytes, want %d", len(b), HeaderSize)
	}
	h := Header{
		Magic:            binary.LittleEndian.Uint32(b[0:4]),
		VertexFloatCount: int32(binary.LittleEndian.Uint32(b[4:8])),
		IndexCount:       int32(binary.LittleEndian.Uint32(b[8:12])),
	}
	if h.Magic != Magic {
		return h, newProtocolError(KindBadMagic, "got 0x%08X, want 0x%08X", h.Magic, Magic)
	}
	return h, nil
}

// Validate enforces non-negative, multiple-of-three counts and the limits.
func (h Header) Validate(limits Limits) error {
	if h.VertexFloatCount < 0 || h.VertexFloatCount%floatsPerVertex != 0 {
		return newProtocolError(KindInvalidCounts, "vertex float count %d", h.VertexFloatCount)
	}
	if h.IndexCount < 0 || h.IndexCount%indicesPerTri != 0 {
		return newProtocolError(KindInvalidCounts, "index count %d", h.IndexCount)
	}
	if limits.MaxVertexFloats > 0 && h.VertexFloatCount > limits.MaxVertexFloats {
		return newProtocolError(KindOversized, "vertex float count %d exceeds %d", h.VertexFloatCount, limits.MaxVertexFloats)
	}
	if limits.MaxIndices > 0 && h.IndexCount > limits.MaxIndices {
		return newProtocolError(KindOversized, "index count %d exceeds %d", h.IndexCount, limits.MaxIndices)
	}
	return nil
}

// BodySize is the number of bytes following the header.
// Computed in int64 so two max int32 counts cannot overflow.
func (h Header) BodySize() int64 {
	return int64(h.VertexFloatCount)*wordSize + int64(h.IndexCount)*wordSize
}

// VertexCount is the number of positions the body carries
func (h Header) VertexCount() int {
	return int(h.VertexFloatCount) / floatsPerVertex
}

// Encode writes the header into a new 12 byte slice.
func (h Header) Encode() []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint32(b[4:8], uint32(h.VertexFloatCount))
	binary.LittleEndian.PutUint32(b[8:12], uint32(h.IndexCount))
	return b
}
