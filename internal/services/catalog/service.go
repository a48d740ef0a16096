package catalog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	pgrepo "github.com/contentgate/backend/internal/repo/postgres"

	"github.com/contentgate/backend/internal/domain/enums"
	"github.com/contentgate/backend/internal/domain/model"
)

var (
	ErrValidation      = errors.New("validation error")
	ErrContentNotFound = errors.New("content item not found")
)

type Store interface {
	Upsert(ctx context.Context, name string, aliases []string, storageRef string, kind enums.FileKind) (model.ContentItem, error)
	Get(ctx context.Context, contentID string) (model.ContentItem, error)
	List(ctx context.Context) ([]model.ContentItem, error)
}

type SnapshotInvalidator interface {
	InvalidateCatalogSnapshot(ctx context.Context) error
}

type Service struct {
	store Store
	cache SnapshotInvalidator
}

type UpsertInput struct {
	Name       string
	Aliases    []string
	StorageRef string
	Kind       string
}

type ImportRowResult struct {
	Line  int    `json:"line"`
	Name  string `json:"name"`
	ID    string `json:"id,omitempty"`
	Error string `json:"error,omitempty"`
}

type ImportReport struct {
	Imported int               `json:"imported"`
	Failed   int               `json:"failed"`
	Rows     []ImportRowResult `json:"rows"`
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

func (s *Service) AttachCache(cache SnapshotInvalidator) {
	s.cache = cache
}

func (s *Service) Upsert(ctx context.Context, in UpsertInput) (model.ContentItem, error) {
	if s.store == nil {
		return model.ContentItem{}, fmt.Errorf("catalog store is nil")
	}

	name := strings.TrimSpace(in.Name)
	storageRef := strings.TrimSpace(in.StorageRef)
	if name == "" || storageRef == "" {
		return model.ContentItem{}, ErrValidation
	}

	item, err := s.store.Upsert(ctx, name, cleanAliases(in.Aliases), storageRef, enums.ParseFileKind(in.Kind))
	if err != nil {
		return model.ContentItem{}, fmt.Errorf("upsert content: %w", err)
	}

	if s.cache != nil {
		_ = s.cache.InvalidateCatalogSnapshot(ctx)
	}

	return item, nil
}

func (s *Service) Get(ctx context.Context, contentID string) (model.ContentItem, error) {
	if s.store == nil {
		return model.ContentItem{}, fmt.Errorf("catalog store is nil")
	}

	item, err := s.store.Get(ctx, contentID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrContentNotFound) {
			return model.ContentItem{}, ErrContentNotFound
		}
		return model.ContentItem{}, err
	}

	return item, nil
}

func (s *Service) List(ctx context.Context) ([]model.ContentItem, error) {
	if s.store == nil {
		return nil, fmt.Errorf("catalog store is nil")
	}
	return s.store.List(ctx)
}

// ImportCSV bulk-loads catalog entries. Expected header:
// name,ref,type,aliases with aliases separated by ';'. Bad rows are reported
// per line and do not abort the rest of the file.
func (s *Service) ImportCSV(ctx context.Context, r io.Reader) (ImportReport, error) {
	if s.store == nil {
		return ImportReport{}, fmt.Errorf("catalog store is nil")
	}
	if r == nil {
		return ImportReport{}, ErrValidation
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return ImportReport{}, fmt.Errorf("read csv header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := columns["name"]; !ok {
		return ImportReport{}, fmt.Errorf("csv header is missing the name column")
	}
	if _, ok := columns["ref"]; !ok {
		return ImportReport{}, fmt.Errorf("csv header is missing the ref column")
	}

	var report ImportReport
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			report.Failed++
			report.Rows = append(report.Rows, ImportRowResult{Line: line, Error: err.Error()})
			continue
		}

		in := UpsertInput{
			Name:       field(record, columns, "name"),
			StorageRef: field(record, columns, "ref"),
			Kind:       field(record, columns, "type"),
		}
		if aliases := field(record, columns, "aliases"); aliases != "" {
			in.Aliases = strings.Split(aliases, ";")
		}

		item, err := s.Upsert(ctx, in)
		if err != nil {
			report.Failed++
			report.Rows = append(report.Rows, ImportRowResult{Line: line, Name: in.Name, Error: err.Error()})
			continue
		}

		report.Imported++
		report.Rows = append(report.Rows, ImportRowResult{Line: line, Name: item.Name, ID: item.ID})
	}

	return report, nil
}

func field(record []string, columns map[string]int, name string) string {
	idx, ok := columns[name]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func cleanAliases(raw []string) []string {
	var aliases []string
	seen := make(map[string]struct{}, len(raw))
	for _, alias := range raw {
		alias = strings.TrimSpace(alias)
		if alias == "" {
			continue
		}
		key := strings.ToLower(alias)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		aliases = append(aliases, alias)
	}
	return aliases
}
