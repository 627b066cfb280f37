package viewport

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"meshhub/internal/scene"
)

// RefreshChannel is where revision notices are published
const RefreshChannel = "mesh:refresh"

// Snapshot is the msgpack document external viewers read after a refresh.
type Snapshot struct {
	EntityID  string    `msgpack:"entity_id"`
	Tag       string    `msgpack:"tag"`
	Label     string    `msgpack:"label"`
	Revision  uint64    `msgpack:"revision"`
	Refresh   uint64    `msgpack:"refresh"`
	Positions []float32 `msgpack:"positions"` // flat x,y,z
	Indices   []uint32  `msgpack:"indices"`
	Material  string    `msgpack:"material"`
	UpdatedAt time.Time `msgpack:"updated_at"`
}

// EntitySource is the read side of the scene the publisher needs
type EntitySource interface {
	EntityByTag(tag string) (scene.Entity, bool)
}

// RedisPublisher mirrors the target entity into Redis whenever the scene
// asks for a viewport refresh.
type RedisPublisher struct {
	client  *redis.Client
	source  EntitySource
	tag     string
	ttl     time.Duration
	timeout time.Duration
	logger  *slog.Logger
}

// constructor for RedisPublisher, verifies the connection like the other Redis repos
func NewRedisPublisher(redisAddr, password string, source EntitySource, tag string) (*RedisPublisher, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         redisAddr,
		Password:     password,
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return newRedisPublisher(rdb, source, tag), nil
}

func newRedisPublisher(rdb *redis.Client, source EntitySource, tag string) *RedisPublisher {
	return &RedisPublisher{
		client:  rdb,
		source:  source,
		tag:     tag,
		ttl:     24 * time.Hour,
		timeout: 3 * time.Second,
		logger:  slog.Default(),
	}
}

// SnapshotKey is the key holding the latest snapshot of tag
func SnapshotKey(tag string) string {
	return fmt.Sprintf("mesh:target:%s", tag)
}

// ViewportRefreshed implements scene.RefreshListener
func (p *RedisPublisher) ViewportRefreshed(refresh uint64) {
	if p == nil || p.client == nil {
		// No-op when Redis is not configured
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.Publish(ctx, refresh); err != nil {
		p.logger.Warn("viewport_publish_failed",
			"tag", p.tag,
			"refresh", refresh,
			"error", err.Error(),
		)
	}
}

// Publish stores the current snapshot and announces its revision
func (p *RedisPublisher) Publish(ctx context.Context, refresh uint64) error {
	e, ok := p.source.EntityByTag(p.tag)
	if !ok || e.Mesh == nil {
		return nil
	}
	snap := NewSnapshot(e, refresh)
	data, err := msgpack.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	key := SnapshotKey(p.tag)
	pipe := p.client.TxPipeline()
	pipe.Set(ctx, key, data, p.ttl)
	pipe.Publish(ctx, RefreshChannel, fmt.Sprintf("%s:%d", p.tag, snap.Revision))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}

	p.logger.Debug("viewport_published",
		"tag", p.tag,
		"revision", snap.Revision,
		"bytes", len(data),
	)
	return nil
}

// Close closes the Redis client
func (p *RedisPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}

// NewSnapshot flattens an entity's mesh for the wire
func NewSnapshot(e scene.Entity, refresh uint64) *Snapshot {
	s := &Snapshot{
		EntityID: e.ID.String(),
		Tag:      e.Tag,
		Label:    e.Label,
		Refresh:  refresh,
	}
	if e.Mesh == nil {
		return s
	}
	s.Revision = e.Mesh.Revision
	s.Material = e.Mesh.Material
	s.UpdatedAt = e.Mesh.UpdatedAt
	s.Indices = e.Mesh.Indices
	s.Positions = make([]float32, 0, len(e.Mesh.Positions)*3)
	for _, v := range e.Mesh.Positions {
		s.Positions = append(s.Positions, v.X, v.Y, v.Z)
	}
	return s
}

// DecodeSnapshot parses a stored snapshot
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &s, nil
}
