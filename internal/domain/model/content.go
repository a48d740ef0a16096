package model

import (
	"time"

	"github.com/contentgate/backend/internal/domain/enums"
)

// ContentItem describes one deliverable entry of the catalog. StorageRef is an
// opaque reference understood by the delivery storage router, e.g.
// "drive:<file-id>" or "s3:<object-key>".
type ContentItem struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Aliases    []string       `json:"aliases,omitempty"`
	StorageRef string         `json:"storage_ref"`
	Kind       enums.FileKind `json:"kind"`
	CreatedAt  time.Time      `json:"created_at"`
}
