package dto

import "time"

// DTOs for the admin API over the received mesh

type Vec3 struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

type TargetResponse struct {
	EntityID      string    `json:"entity_id"`
	Tag           string    `json:"tag"`
	Label         string    `json:"label"`
	VertexCount   int       `json:"vertex_count"`
	TriangleCount int       `json:"triangle_count"`
	Material      string    `json:"material"`
	Revision      uint64    `json:"revision"`
	Min           Vec3      `json:"min"`
	Max           Vec3      `json:"max"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type ExportResponse struct {
	AssetID string `json:"asset_id"`
	Name    string `json:"name"`
	Path    string `json:"path"`
}

type AssetResponse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	EntityTag     string    `json:"entity_tag"`
	VertexCount   int       `json:"vertex_count"`
	TriangleCount int       `json:"triangle_count"`
	Fingerprint   string    `json:"fingerprint"`
	StoragePath   string    `json:"storage_path"`
	CreatedAt     time.Time `json:"created_at"`
}

type ListAssetsRequest struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Listening bool   `json:"listening"`
}
