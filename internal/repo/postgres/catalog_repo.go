package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/contentgate/backend/internal/domain/enums"
	"github.com/contentgate/backend/internal/domain/model"
)

var ErrContentNotFound = errors.New("content item not found")

type CatalogRepo struct {
	pool *pgxpool.Pool
}

func NewCatalogRepo(pool *pgxpool.Pool) *CatalogRepo {
	return &CatalogRepo{pool: pool}
}

const contentColumns = `id, name, aliases, storage_ref, kind, created_at`

// Upsert keys content by name: re-adding an existing title updates its
// aliases, storage reference and kind. Historical deliveries keep pointing at
// the same content id, so edits never rewrite what was already delivered.
func (r *CatalogRepo) Upsert(ctx context.Context, name string, aliases []string, storageRef string, kind enums.FileKind) (model.ContentItem, error) {
	if r.pool == nil {
		return model.ContentItem{}, fmt.Errorf("postgres pool is nil")
	}
	name = strings.TrimSpace(name)
	storageRef = strings.TrimSpace(storageRef)
	if name == "" || storageRef == "" {
		return model.ContentItem{}, fmt.Errorf("invalid content upsert payload")
	}
	if aliases == nil {
		aliases = []string{}
	}

	row := r.pool.QueryRow(ctx, `
INSERT INTO content_items (id, name, aliases, storage_ref, kind, created_at)
VALUES ($1, $2, $3, $4, $5, NOW())
ON CONFLICT (name) DO UPDATE
SET aliases = EXCLUDED.aliases,
	storage_ref = EXCLUDED.storage_ref,
	kind = EXCLUDED.kind
RETURNING `+contentColumns, uuid.NewString(), name, aliases, storageRef, string(kind))

	item, err := scanContentItem(row)
	if err != nil {
		return model.ContentItem{}, fmt.Errorf("upsert content item: %w", err)
	}

	return item, nil
}

func (r *CatalogRepo) Get(ctx context.Context, contentID string) (model.ContentItem, error) {
	if r.pool == nil {
		return model.ContentItem{}, fmt.Errorf("postgres pool is nil")
	}
	contentID = strings.TrimSpace(contentID)
	if contentID == "" {
		return model.ContentItem{}, ErrContentNotFound
	}

	item, err := scanContentItem(r.pool.QueryRow(ctx, `
SELECT `+contentColumns+`
FROM content_items
WHERE id = $1
LIMIT 1`, contentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ContentItem{}, ErrContentNotFound
		}
		return model.ContentItem{}, fmt.Errorf("get content item: %w", err)
	}

	return item, nil
}

// List returns the whole catalog, newest first. Matcher tie-breaking relies on
// this ordering.
func (r *CatalogRepo) List(ctx context.Context) ([]model.ContentItem, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}

	rows, err := r.pool.Query(ctx, `
SELECT `+contentColumns+`
FROM content_items
ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list content items: %w", err)
	}
	defer rows.Close()

	var items []model.ContentItem
	for rows.Next() {
		item, err := scanContentItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan content item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate content items: %w", err)
	}

	return items, nil
}

func scanContentItem(row pgx.Row) (model.ContentItem, error) {
	var (
		item model.ContentItem
		kind string
	)
	if err := row.Scan(
		&item.ID,
		&item.Name,
		&item.Aliases,
		&item.StorageRef,
		&kind,
		&item.CreatedAt,
	); err != nil {
		return model.ContentItem{}, err
	}
	item.Kind = enums.ParseFileKind(kind)
	return item, nil
}
