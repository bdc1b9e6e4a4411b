package models

import (
	"github.com/google/uuid"
)

// DefaultOrigin is stored when a registration does not name its origin.
const DefaultOrigin = "unknown"

// MaxOriginLength matches the width of the origin column.
const MaxOriginLength = 64

// Target is one registered face. The same UUID may own several Targets when an identity
// is enrolled more than once.
type Target struct {
	UUID      uuid.UUID
	Origin    string
	Embedding []float32
}

// SearchQuery is a unit-normalized probe embedding plus ranking parameters.
type SearchQuery struct {
	Embedding []float32
	Threshold float32
	Limit     int
}

type SearchResult struct {
	UUID       uuid.UUID `json:"target_uuid"`
	Origin     string    `json:"origin"`
	Similarity float32   `json:"similarity"`
}

// Registration is a decoded registration request.
type Registration struct {
	UUID   uuid.UUID
	Origin string
	Image  []byte
}

// Probe is a decoded search request. Threshold and Limit are already defaulted.
type Probe struct {
	Image     []byte
	Threshold float32
	Limit     int
}

type RegisterTargetRequest struct {
	TargetUUID  uuid.UUID `json:"target_uuid"  validate:"required"`
	ImageBase64 string    `json:"image_base64" validate:"required"`
	Origin      string    `json:"origin"       validate:"max=64"`
}

type SearchTargetsRequest struct {
	ImageBase64 string   `json:"image_base64" validate:"required"`
	Threshold   *float32 `json:"threshold"`
	Limit       *int     `json:"limit"`
}

type SearchTargetsResponse struct {
	Results []SearchResult `json:"results"`
}

type StoreStats struct {
	Targets    int `json:"targets"`
	Dimensions int `json:"dimensions"`
}
