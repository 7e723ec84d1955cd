// Package store is the document store gateway: a small create/query surface over a
// schema-less backend, addressed by entity type.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samacharai/backend/internal/metrics"
)

var (
	// ErrUnavailable is returned by every operation when no store connection exists.
	ErrUnavailable = errors.New("document store unavailable")
	// ErrNotFound is returned by Get when no document has the requested identifier.
	ErrNotFound = errors.New("document not found")
)

// IDField is the key backends use for the store-native identifier of a raw document.
const IDField = "_id"

// DefaultLimit bounds Query when the caller passes a non-positive limit.
const DefaultLimit = 20

// Document is a schema-less record.
type Document map[string]any

// Backend is implemented by concrete document stores. Raw documents returned by a backend carry
// their identifier under IDField in whatever representation the backend uses.
type Backend interface {
	Name() string
	Insert(ctx context.Context, collection string, doc Document) (any, error)
	Find(ctx context.Context, collection string, filter Document, limit int) ([]Document, error)
	Get(ctx context.Context, collection, id string) (Document, error)
	Collections(ctx context.Context) ([]string, error)
	DeleteOlderThan(ctx context.Context, collection, field string, cutoff time.Time, batchSize int) (int64, error)
}

// HealthChecker is implemented by backends that can report server-side health beyond reachability.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Gateway is either Connected (it has a backend) or Unavailable. The state never changes after New.
type Gateway struct {
	backend Backend
}

// New returns a gateway over backend. A nil backend yields an Unavailable gateway.
func New(backend Backend) *Gateway {
	return &Gateway{backend: backend}
}

// Available reports whether a store connection exists.
func (g *Gateway) Available() bool {
	return g != nil && g.backend != nil
}

// Name returns the backend's database name, or an empty string when unavailable.
func (g *Gateway) Name() string {
	if !g.Available() {
		return ""
	}
	return g.backend.Name()
}

// CollectionName maps an entity type to its collection.
func CollectionName(entityType string) string {
	return strings.ToLower(strings.TrimSpace(entityType))
}

// Create inserts doc into the collection of entityType and returns the store-assigned identifier.
// doc can be a Document or any value that encodes to a JSON object.
func (g *Gateway) Create(ctx context.Context, entityType string, doc any) (_ string, err error) {
	defer observe("create", entityType, &err)
	if !g.Available() {
		return "", ErrUnavailable
	}

	flat, err := toDocument(doc)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", entityType, err)
	}
	delete(flat, IDField)
	delete(flat, "id")

	id, err := g.backend.Insert(ctx, CollectionName(entityType), flat)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", entityType, err)
	}
	return stringID(id), nil
}

// Query returns up to limit documents of entityType matching filter, in store order.
// An empty filter matches everything.
func (g *Gateway) Query(ctx context.Context, entityType string, filter Document, limit int) (_ []Document, err error) {
	defer observe("query", entityType, &err)
	if !g.Available() {
		return nil, ErrUnavailable
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	docs, err := g.backend.Find(ctx, CollectionName(entityType), filter, limit)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", entityType, err)
	}

	out := make([]Document, 0, len(docs))
	for _, doc := range docs {
		out = append(out, normalize(doc))
	}
	return out, nil
}

// Get returns a single document of entityType by its normalised identifier.
func (g *Gateway) Get(ctx context.Context, entityType, id string) (_ Document, err error) {
	defer observe("get", entityType, &err)
	if !g.Available() {
		return nil, ErrUnavailable
	}

	doc, err := g.backend.Get(ctx, CollectionName(entityType), id)
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", entityType, id, err)
	}
	return normalize(doc), nil
}

// Collections lists the collection names known to the store.
func (g *Gateway) Collections(ctx context.Context) ([]string, error) {
	if !g.Available() {
		return nil, ErrUnavailable
	}
	return g.backend.Collections(ctx)
}

// Health reports backend health. Backends without a health check are healthy while connected.
func (g *Gateway) Health(ctx context.Context) error {
	if !g.Available() {
		return ErrUnavailable
	}
	if hc, ok := g.backend.(HealthChecker); ok {
		return hc.Health(ctx)
	}
	return nil
}

// Purge deletes documents of entityType whose time field is older than maxAge.
func (g *Gateway) Purge(ctx context.Context, entityType, field string, maxAge time.Duration, batchSize int) (_ int64, err error) {
	defer observe("purge", entityType, &err)
	if !g.Available() {
		return 0, ErrUnavailable
	}
	cutoff := time.Now().Add(-maxAge).UTC()
	deleted, err := g.backend.DeleteOlderThan(ctx, CollectionName(entityType), field, cutoff, batchSize)
	if err != nil {
		return deleted, fmt.Errorf("purge %s: %w", entityType, err)
	}
	return deleted, nil
}

func observe(operation, entityType string, err *error) {
	result := metrics.ResultOK
	switch {
	case *err == nil:
	case errors.Is(*err, ErrUnavailable):
		result = metrics.ResultUnavailable
	default:
		result = metrics.ResultError
	}
	metrics.ObserveStore(operation, CollectionName(entityType), result)
}

// Decode converts a normalised document into v.
func Decode(doc Document, v any) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("unmarshal document: %w", err)
	}
	return nil
}

func toDocument(v any) (Document, error) {
	if doc, ok := v.(Document); ok {
		out := make(Document, len(doc))
		for k, val := range doc {
			out[k] = val
		}
		return out, nil
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("document must be a JSON object: %w", err)
	}
	return doc, nil
}

// normalize replaces the backend identifier with a plain string "id" field.
func normalize(raw Document) Document {
	out := make(Document, len(raw))
	for k, v := range raw {
		if k == IDField {
			continue
		}
		out[k] = v
	}
	if id, ok := raw[IDField]; ok {
		out["id"] = stringID(id)
	}
	return out
}

func stringID(id any) string {
	switch v := id.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
