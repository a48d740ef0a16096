package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	catalogsvc "github.com/contentgate/backend/internal/services/catalog"
	"github.com/contentgate/backend/internal/transport/http/dto"

	"github.com/contentgate/backend/internal/domain/enums"
	"github.com/contentgate/backend/internal/domain/model"
)

type catalogStoreStub struct {
	nextID int
	byName map[string]model.ContentItem
}

func newCatalogStoreStub() *catalogStoreStub {
	return &catalogStoreStub{nextID: 1, byName: make(map[string]model.ContentItem)}
}

func (s *catalogStoreStub) Upsert(_ context.Context, name string, aliases []string, storageRef string, kind enums.FileKind) (model.ContentItem, error) {
	item, ok := s.byName[name]
	if !ok {
		item = model.ContentItem{ID: "item-" + strconv.Itoa(s.nextID), Name: name}
		s.nextID++
	}
	item.Aliases = aliases
	item.StorageRef = storageRef
	item.Kind = kind
	s.byName[name] = item
	return item, nil
}

func (s *catalogStoreStub) Get(_ context.Context, contentID string) (model.ContentItem, error) {
	for _, item := range s.byName {
		if item.ID == contentID {
			return item, nil
		}
	}
	return model.ContentItem{}, errors.New("content not found")
}

func (s *catalogStoreStub) List(_ context.Context) ([]model.ContentItem, error) {
	items := make([]model.ContentItem, 0, len(s.byName))
	for _, item := range s.byName {
		items = append(items, item)
	}
	return items, nil
}

func TestCatalogUpsertReturnsItem(t *testing.T) {
	h := NewCatalogHandler(catalogsvc.NewService(newCatalogStoreStub()))

	body := `{"name":"Trading Course","storage_ref":"drive:abc","kind":"video","aliases":["курс"]}`
	req := httptest.NewRequest(http.MethodPost, "/admin/catalog", strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.Upsert(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d, body %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	var resp dto.CatalogItemResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID == "" || resp.Name != "Trading Course" || resp.Kind != "video" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestCatalogUpsertRejectsEmptyName(t *testing.T) {
	h := NewCatalogHandler(catalogsvc.NewService(newCatalogStoreStub()))

	body := `{"name":"","storage_ref":"drive:abc"}`
	req := httptest.NewRequest(http.MethodPost, "/admin/catalog", strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.Upsert(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestCatalogImportReportsRows(t *testing.T) {
	h := NewCatalogHandler(catalogsvc.NewService(newCatalogStoreStub()))

	csvBody := "name,ref,type,aliases\nGuide,drive:abc,document,\n,drive:bad,document,\n"
	req := httptest.NewRequest(http.MethodPost, "/admin/catalog/import", strings.NewReader(csvBody))
	rr := httptest.NewRecorder()
	h.Import(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d, body %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	var resp dto.CatalogImportResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Imported != 1 || resp.Failed != 1 {
		t.Fatalf("unexpected report: %+v", resp)
	}
}

func TestCatalogImportRejectsBadHeader(t *testing.T) {
	h := NewCatalogHandler(catalogsvc.NewService(newCatalogStoreStub()))

	req := httptest.NewRequest(http.MethodPost, "/admin/catalog/import", strings.NewReader("foo,bar\n1,2\n"))
	rr := httptest.NewRecorder()
	h.Import(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusBadRequest)
	}
}
