package meshclient

// client.go sends meshes to a receiver, one message per connection.

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/chewxy/math32"

	"meshhub/internal/protocol"
)

// Options tunes a Send
type Options struct {
	DialTimeout   time.Duration // default 5s
	WriteTimeout  time.Duration // default 30s
	AppendNormals bool          // trail the body with per-vertex normals like the Blender add-on
}

// Send connects to addr, writes p as one message and closes.
// The receiver never replies; success means the bytes were handed to the socket.
func Send(ctx context.Context, addr string, p *protocol.MeshPayload, opts Options) (int, error) {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 30 * time.Second
	}

	var extra []float32
	if opts.AppendNormals {
		extra = VertexNormals(p)
	}
	msg, err := protocol.EncodeMessage(p, extra)
	if err != nil {
		return 0, err
	}

	dialer := net.Dialer{Timeout: opts.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer conn.Close()

	if err := conn.SetWriteDeadline(time.Now().Add(opts.WriteTimeout)); err != nil {
		return 0, fmt.Errorf("failed to set write deadline: %w", err)
	}
	n, err := conn.Write(msg)
	if err != nil {
		return n, fmt.Errorf("failed to send mesh: %w", err)
	}
	return n, nil
}

// VertexNormals returns flat x,y,z normals, one per vertex, averaged from
// the area weighted normals of the triangles that use it.
func VertexNormals(p *protocol.MeshPayload) []float32 {
	acc := make([]protocol.Vec3, len(p.Positions))
	for t := 0; t+2 < len(p.Indices); t += 3 {
		i0, i1, i2 := p.Indices[t], p.Indices[t+1], p.Indices[t+2]
		if int(i0) >= len(acc) || int(i1) >= len(acc) || int(i2) >= len(acc) {
			continue
		}
		a, b, c := p.Positions[i0], p.Positions[i1], p.Positions[i2]
		n := cross(sub(b, a), sub(c, a))
		for _, i := range []uint32{i0, i1, i2} {
			acc[i].X += n.X
			acc[i].Y += n.Y
			acc[i].Z += n.Z
		}
	}

	out := make([]float32, 0, len(acc)*3)
	for _, n := range acc {
		l := math32.Sqrt(n.X*n.X + n.Y*n.Y + n.Z*n.Z)
		if l > 0 {
			n.X, n.Y, n.Z = n.X/l, n.Y/l, n.Z/l
		}
		out = append(out, n.X, n.Y, n.Z)
	}
	return out
}

func sub(a, b protocol.Vec3) protocol.Vec3 {
	return protocol.Vec3{X: a.X - b.X, Y: a.Y - b.Y, Z: a.Z - b.Z}
}

func cross(a, b protocol.Vec3) protocol.Vec3 {
	return protocol.Vec3{
		X: a.Y*b.Z - a.Z*b.Y,
		Y: a.Z*b.X - a.X*b.Z,
		Z: a.X*b.Y - a.Y*b.X,
	}
}

// Cube is a unit cube centred on the origin, 8 vertices and 12 triangles
func Cube() *protocol.MeshPayload {
	return &protocol.MeshPayload{
		Positions: []protocol.Vec3{
			{X: -0.5, Y: -0.5, Z: -0.5}, {X: 0.5, Y: -0.5, Z: -0.5},
			{X: 0.5, Y: 0.5, Z: -0.5}, {X: -0.5, Y: 0.5, Z: -0.5},
			{X: -0.5, Y: -0.5, Z: 0.5}, {X: 0.5, Y: -0.5, Z: 0.5},
			{X: 0.5, Y: 0.5, Z: 0.5}, {X: -0.5, Y: 0.5, Z: 0.5},
		},
		Indices: []uint32{
			0, 2, 1, 0, 3, 2, // bottom
			4, 5, 6, 4, 6, 7, // top
			0, 1, 5, 0, 5, 4, // front
			2, 3, 7, 2, 7, 6, // back
			1, 2, 6, 1, 6, 5, // right
			3, 0, 4, 3, 4, 7, // left
		},
	}
}
