package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrDeliveryPermanent marks fetch failures that retrying cannot fix, such as
// a storage reference pointing at a deleted object. Anything else is treated
// as transient and the request stays paid for the sweeper to retry.
var ErrDeliveryPermanent = errors.New("permanent delivery failure")

func IsPermanent(err error) bool {
	return errors.Is(err, ErrDeliveryPermanent)
}

// Object is a fetched content payload. Body must be closed by the caller.
type Object struct {
	Body        io.ReadCloser
	Size        int64
	Name        string
	ContentType string
}

type Storage interface {
	Fetch(ctx context.Context, ref string) (Object, error)
}

// Router dispatches storage references by scheme prefix, e.g. "drive:<id>"
// or "s3:<key>".
type Router struct {
	backends map[string]Storage
}

func NewRouter() *Router {
	return &Router{backends: make(map[string]Storage)}
}

func (r *Router) Register(scheme string, backend Storage) {
	r.backends[strings.ToLower(scheme)] = backend
}

func (r *Router) Fetch(ctx context.Context, ref string) (Object, error) {
	scheme, rest, ok := strings.Cut(ref, ":")
	if !ok || rest == "" {
		return Object{}, fmt.Errorf("storage ref %q has no scheme: %w", ref, ErrDeliveryPermanent)
	}

	backend, ok := r.backends[strings.ToLower(scheme)]
	if !ok {
		return Object{}, fmt.Errorf("no storage backend for scheme %q: %w", scheme, ErrDeliveryPermanent)
	}

	return backend.Fetch(ctx, rest)
}
