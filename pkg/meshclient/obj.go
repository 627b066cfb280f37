package meshclient

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"meshhub/internal/protocol"
)

// LoadOBJ reads a Wavefront OBJ file
func LoadOBJ(path string) (*protocol.MeshPayload, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return ParseOBJ(f)
}

// ParseOBJ reads "v" and "f" records; everything else is skipped.
// Polygons are split into a triangle fan around their first vertex.
// Face references may be negative (relative) and may carry /vt/vn parts.
func ParseOBJ(r io.Reader) (*protocol.MeshPayload, error) {
	p := &protocol.MeshPayload{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "v":
			v, err := parseVertex(fields[1:])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			p.Positions = append(p.Positions, v)
		case "f":
			face, err := parseFace(fields[1:], len(p.Positions))
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			for i := 1; i+1 < len(face); i++ {
				p.Indices = append(p.Indices, face[0], face[i], face[i+1])
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read obj: %w", err)
	}
	return p, nil
}

func parseVertex(fields []string) (protocol.Vec3, error) {
	if len(fields) < 3 {
		return protocol.Vec3{}, fmt.Errorf("vertex needs 3 coordinates, got %d", len(fields))
	}
	var xyz [3]float32
	for i := range xyz {
		f, err := strconv.ParseFloat(fields[i], 32)
		if err != nil {
			return protocol.Vec3{}, fmt.Errorf("bad coordinate %q: %w", fields[i], err)
		}
		xyz[i] = float32(f)
	}
	return protocol.Vec3{X: xyz[0], Y: xyz[1], Z: xyz[2]}, nil
}

func parseFace(fields []string, vertexCount int) ([]uint32, error) {
	if len(fields) < 3 {
		return nil, fmt.Errorf("face needs at least 3 vertices, got %d", len(fields))
	}
	face := make([]uint32, 0, len(fields))
	for _, ref := range fields {
		idx, _, _ := strings.Cut(ref, "/")
		n, err := strconv.Atoi(idx)
		if err != nil {
			return nil, fmt.Errorf("bad face index %q: %w", ref, err)
		}
		if n < 0 {
			n = vertexCount + n + 1
		}
		if n < 1 || n > vertexCount {
			return nil, fmt.Errorf("face index %d out of range (1..%d)", n, vertexCount)
		}
		face = append(face, uint32(n-1))
	}
	return face, nil
}
