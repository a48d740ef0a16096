package dto

import "time"

type CatalogUpsertRequest struct {
	Name       string   `json:"name"`
	Aliases    []string `json:"aliases,omitempty"`
	StorageRef string   `json:"storage_ref"`
	Kind       string   `json:"kind,omitempty"`
}

type CatalogItemResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Aliases    []string  `json:"aliases,omitempty"`
	StorageRef string    `json:"storage_ref"`
	Kind       string    `json:"kind"`
	CreatedAt  time.Time `json:"created_at"`
}

type CatalogListResponse struct {
	Items []CatalogItemResponse `json:"items"`
}

type CatalogImportRowResponse struct {
	Line  int    `json:"line"`
	Name  string `json:"name,omitempty"`
	ID    string `json:"id,omitempty"`
	Error string `json:"error,omitempty"`
}

type CatalogImportResponse struct {
	Imported int                        `json:"imported"`
	Failed   int                        `json:"failed"`
	Rows     []CatalogImportRowResponse `json:"rows"`
}
