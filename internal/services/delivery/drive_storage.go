package delivery

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// DriveStorage downloads files from the Google Drive v3 REST API using an API
// key. The stored reference is the drive file id.
type DriveStorage struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

func NewDriveStorage(baseURL, apiKey string) *DriveStorage {
	return &DriveStorage{
		client:  &http.Client{Timeout: 2 * time.Minute},
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

func (s *DriveStorage) Fetch(ctx context.Context, fileID string) (Object, error) {
	endpoint := fmt.Sprintf("%s/files/%s", s.baseURL, url.PathEscape(fileID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Object{}, fmt.Errorf("build drive request: %w", err)
	}

	q := req.URL.Query()
	q.Set("alt", "media")
	if s.apiKey != "" {
		q.Set("key", s.apiKey)
	}
	req.URL.RawQuery = q.Encode()

	resp, err := s.client.Do(req)
	if err != nil {
		return Object{}, fmt.Errorf("fetch drive file %s: %w", fileID, err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		switch resp.StatusCode {
		case http.StatusNotFound, http.StatusForbidden, http.StatusGone:
			return Object{}, fmt.Errorf("drive file %s returned %d: %w", fileID, resp.StatusCode, ErrDeliveryPermanent)
		default:
			return Object{}, fmt.Errorf("drive file %s returned %d", fileID, resp.StatusCode)
		}
	}

	return Object{
		Body:        resp.Body,
		Size:        resp.ContentLength,
		Name:        fileID,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}
