// internal/model/upload.go
package model

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// UploadRequest
// ------------------------------------------------------------
// What the HTTP layer hands to the pipeline for one upload.
// Built once per request and never modified afterwards.
type UploadRequest struct {
	SystemID  string // path parameter, may be empty
	AccountID string // X-Account header, may be empty
	UserAgent string // User-Agent header, "Unknown" when absent
}

// UploadMetadata
// ------------------------------------------------------------
// Attached to the evaluation result under "upload" right before
// serialisation. Size is measured on disk, never taken from headers.
type UploadMetadata struct {
	Size   int64  `json:"size"`
	Client string `json:"client"`
	UUID   string `json:"uuid"`
}

// NewUploadMetadata stamps a fresh 128-bit correlation id (hex, no dashes).
func NewUploadMetadata(size int64, client string) UploadMetadata {
	id := uuid.New()
	return UploadMetadata{
		Size:   size,
		Client: client,
		UUID:   hex.EncodeToString(id[:]),
	}
}

// Map renders the metadata the way it is merged into the result document.
func (m UploadMetadata) Map() map[string]any {
	return map[string]any{
		"size":   m.Size,
		"client": m.Client,
		"uuid":   m.UUID,
	}
}
