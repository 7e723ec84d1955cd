package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/samacharai/backend/internal/store"
)

// Client wraps go-elasticsearch as a document store backend. Each collection lives in
// its own index named <prefix><collection>.
type Client struct {
	es     *elasticsearch.Client
	prefix string
	log    *slog.Logger
}

// Options configure the connection.
type Options struct {
	Addr        string
	Username    string
	Password    string
	IndexPrefix string
}

var _ store.Backend = (*Client)(nil)

// New instantiates the Elasticsearch client. It does not contact the cluster.
func New(opts Options, logger *slog.Logger) (*Client, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{opts.Addr},
	}
	if opts.Username != "" {
		cfg.Username = opts.Username
		cfg.Password = opts.Password
	}

	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{es: es, prefix: strings.ToLower(opts.IndexPrefix), log: logger}, nil
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping failed: %s", res.Status())
	}

	return nil
}

// Health asks the cluster for its health status. A red cluster is reported as an error.
func (c *Client) Health(ctx context.Context) error {
	res, err := c.es.Cluster.Health(c.es.Cluster.Health.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("cluster health: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(res.Body)
		return fmt.Errorf("cluster health bad: %s", strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("decode cluster health: %w", err)
	}
	if parsed.Status == "red" {
		return fmt.Errorf("cluster health is red")
	}
	return nil
}

// Name reports the index prefix, which plays the role of a database name.
func (c *Client) Name() string {
	if name := strings.Trim(c.prefix, "-_."); name != "" {
		return name
	}
	return "elasticsearch"
}

func (c *Client) index(collection string) string {
	return c.prefix + collection
}

// Insert indexes doc and lets Elasticsearch assign its identifier.
func (c *Client) Insert(ctx context.Context, collection string, doc store.Document) (any, error) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal doc: %w", err)
	}

	req := esapi.IndexRequest{
		Index:   c.index(collection),
		Body:    bytes.NewReader(payload),
		Refresh: "wait_for",
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return nil, fmt.Errorf("index doc: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("index doc failed: %s", strings.TrimSpace(string(body)))
	}

	var parsed struct {
		ID string `json:"_id"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode index response: %w", err)
	}
	if parsed.ID == "" {
		return nil, fmt.Errorf("index response has no _id")
	}

	c.log.Debug("indexed document", slog.String("index", c.index(collection)), slog.String("id", parsed.ID))
	return parsed.ID, nil
}

// Find runs a filtered search. A missing index yields no documents.
func (c *Client) Find(ctx context.Context, collection string, filter store.Document, limit int) ([]store.Document, error) {
	body := map[string]any{
		"size":  limit,
		"query": buildQuery(filter),
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index(collection)),
		c.es.Search.WithBody(bytes.NewReader(payload)),
		c.es.Search.WithIgnoreUnavailable(true),
	)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("search failed: %s", strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				ID     string         `json:"_id"`
				Source store.Document `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	docs := make([]store.Document, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		doc := hit.Source
		if doc == nil {
			doc = store.Document{}
		}
		doc[store.IDField] = hit.ID
		docs = append(docs, doc)
	}
	return docs, nil
}

// buildQuery turns an equality filter into a bool query. Strings match on the keyword
// sub-field created by dynamic mapping.
func buildQuery(filter store.Document) map[string]any {
	if len(filter) == 0 {
		return map[string]any{"match_all": map[string]any{}}
	}

	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	terms := make([]map[string]any, 0, len(keys))
	for _, k := range keys {
		field := k
		if _, ok := filter[k].(string); ok {
			field += ".keyword"
		}
		terms = append(terms, map[string]any{
			"term": map[string]any{field: filter[k]},
		})
	}

	return map[string]any{
		"bool": map[string]any{"filter": terms},
	}
}

// Get fetches a document by identifier.
func (c *Client) Get(ctx context.Context, collection, id string) (store.Document, error) {
	res, err := c.es.Get(c.index(collection), id, c.es.Get.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("get doc: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, store.ErrNotFound
	}
	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("get doc failed: %s", strings.TrimSpace(string(data)))
	}

	var parsed struct {
		ID     string         `json:"_id"`
		Found  bool           `json:"found"`
		Source store.Document `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode get response: %w", err)
	}
	if !parsed.Found {
		return nil, store.ErrNotFound
	}

	doc := parsed.Source
	if doc == nil {
		doc = store.Document{}
	}
	doc[store.IDField] = parsed.ID
	return doc, nil
}

// Collections lists indices carrying the prefix, with the prefix stripped.
func (c *Client) Collections(ctx context.Context) ([]string, error) {
	res, err := c.es.Cat.Indices(
		c.es.Cat.Indices.WithContext(ctx),
		c.es.Cat.Indices.WithIndex(c.prefix+"*"),
		c.es.Cat.Indices.WithFormat("json"),
	)
	if err != nil {
		return nil, fmt.Errorf("cat indices: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("cat indices failed: %s", strings.TrimSpace(string(data)))
	}

	var rows []struct {
		Index string `json:"index"`
	}
	if err := json.NewDecoder(res.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode cat indices: %w", err)
	}

	names := make([]string, 0, len(rows))
	for _, row := range rows {
		if !strings.HasPrefix(row.Index, c.prefix) || strings.HasPrefix(row.Index, ".") {
			continue
		}
		names = append(names, strings.TrimPrefix(row.Index, c.prefix))
	}
	sort.Strings(names)
	return names, nil
}

// DeleteOlderThan removes documents whose field is at or before cutoff using batched delete-by-query.
// It loops until a batch returns fewer deleted documents than the requested batchSize.
func (c *Client) DeleteOlderThan(ctx context.Context, collection, field string, cutoff time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	totalDeleted := int64(0)
	body := map[string]any{
		"query": map[string]any{
			"range": map[string]any{
				field: map[string]any{
					"lte": cutoff.UTC().Format(time.RFC3339),
				},
			},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("marshal delete body: %w", err)
	}

	for {
		res, err := c.es.DeleteByQuery(
			[]string{c.index(collection)},
			bytes.NewReader(payload),
			c.es.DeleteByQuery.WithContext(ctx),
			c.es.DeleteByQuery.WithWaitForCompletion(true),
			c.es.DeleteByQuery.WithConflicts("proceed"),
			c.es.DeleteByQuery.WithScrollSize(batchSize),
			c.es.DeleteByQuery.WithMaxDocs(batchSize),
			c.es.DeleteByQuery.WithIgnoreUnavailable(true),
		)
		if err != nil {
			return totalDeleted, fmt.Errorf("delete by query: %w", err)
		}

		if res.IsError() {
			data, _ := io.ReadAll(res.Body)
			res.Body.Close()
			return totalDeleted, fmt.Errorf("delete by query failed: %s", strings.TrimSpace(string(data)))
		}

		var parsed struct {
			Deleted int64 `json:"deleted"`
		}
		if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
			res.Body.Close()
			return totalDeleted, fmt.Errorf("decode delete response: %w", err)
		}
		res.Body.Close()

		totalDeleted += parsed.Deleted

		if parsed.Deleted < int64(batchSize) {
			break
		}
	}

	return totalDeleted, nil
}
