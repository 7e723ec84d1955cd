package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/samacharai/backend/internal/config"
	"github.com/samacharai/backend/internal/epaper"
	"github.com/samacharai/backend/internal/logger"
	"github.com/samacharai/backend/internal/models"
	"github.com/samacharai/backend/internal/store"
)

type stubPublisher struct {
	jobs []epaper.Job
	err  error
}

func (p *stubPublisher) Publish(_ context.Context, job epaper.Job) error {
	if p.err != nil {
		return p.err
	}
	p.jobs = append(p.jobs, job)
	return nil
}

// brokenBackend is connected but fails every operation.
type brokenBackend struct {
	*store.MemoryBackend
}

var errBroken = errors.New("connection reset by peer while talking to the cluster node")

func (brokenBackend) Insert(context.Context, string, store.Document) (any, error) {
	return nil, errBroken
}

func (brokenBackend) Find(context.Context, string, store.Document, int) ([]store.Document, error) {
	return nil, errBroken
}

func (brokenBackend) Collections(context.Context) ([]string, error) {
	return nil, errBroken
}

func testConfig() *config.API {
	return &config.API{
		Common: config.Common{
			StoreDriver:       config.DriverElasticsearch,
			ElasticsearchAddr: "http://test:9200",
			IndexPrefix:       "samachar-",
			EpaperTopic:       "epaper_exports",
		},
		BindAddr:     ":0",
		DefaultLimit: 20,
		MaxLimit:     200,
	}
}

func newTestServer(backend store.Backend) *server {
	return &server{log: logger.Discard(), cfg: testConfig(), store: store.New(backend)}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

const budgetInput = `{"title":"Budget 2024","bullets":["Tax cut","New scheme"],"tone":"journalistic","audience":"general","language":"English"}`

func TestRoot(t *testing.T) {
	rec := do(t, newTestServer(nil).routes(), http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "SamacharAI backend is running", decodeBody[map[string]string](t, rec)["message"])
}

func TestGenerateBudgetScenario(t *testing.T) {
	backend := store.NewMemory("")
	h := newTestServer(backend).routes()

	rec := do(t, h, http.MethodPost, "/api/generate", budgetInput)
	require.Equal(t, http.StatusOK, rec.Code)

	article := decodeBody[map[string]any](t, rec)
	require.True(t, strings.HasPrefix(article["content"].(string), "Key developments:\n\n1. Tax cut\n2. New scheme"))
	require.Equal(t, []any{"Budget 2024", "Budget 2024: What You Need to Know", "Explained | Budget 2024"}, article["headlines"])
	require.NotContains(t, article, "id")
	require.NotContains(t, article, "_id")
	require.NotContains(t, article, "generated_at")

	docs, err := store.New(backend).Query(context.Background(), "Article", nil, 10)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "Budget 2024", docs[0]["title"])
	require.NotEmpty(t, docs[0]["generated_at"])
}

func TestGenerateWithoutStore(t *testing.T) {
	rec := do(t, newTestServer(nil).routes(), http.MethodPost, "/api/generate", budgetInput)
	require.Equal(t, http.StatusOK, rec.Code)

	var article models.Article
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &article))
	require.Len(t, article.Headlines, 3)
	require.Equal(t, "Budget 2024", article.Headlines[0])
}

func TestGenerateSwallowsStoreErrors(t *testing.T) {
	rec := do(t, newTestServer(brokenBackend{store.NewMemory("")}).routes(), http.MethodPost, "/api/generate", budgetInput)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Budget 2024", decodeBody[models.Article](t, rec).Title)
}

func TestGenerateAppliesDefaults(t *testing.T) {
	rec := do(t, newTestServer(nil).routes(), http.MethodPost, "/api/generate", `{"title":"Rain","unknown":1}`)
	require.Equal(t, http.StatusOK, rec.Code)

	article := decodeBody[models.Article](t, rec)
	require.Equal(t, models.ToneJournalistic, article.Tone)
	require.Equal(t, models.AudienceGeneral, article.Audience)
	require.Equal(t, models.LanguageEnglish, article.Language)
}

func TestGenerateValidationFailure(t *testing.T) {
	backend := store.NewMemory("")
	rec := do(t, newTestServer(backend).routes(), http.MethodPost, "/api/generate", `{"tone":"angry","language":"French"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	body := decodeBody[struct {
		Detail []struct {
			Field string `json:"field"`
			Type  string `json:"type"`
		} `json:"detail"`
	}](t, rec)

	fields := make([]string, 0, len(body.Detail))
	for _, d := range body.Detail {
		fields = append(fields, d.Field)
	}
	require.ElementsMatch(t, []string{"language", "title", "tone"}, fields)

	names, err := backend.Collections(context.Background())
	require.NoError(t, err)
	require.Empty(t, names)
}

func TestGenerateMalformedJSON(t *testing.T) {
	rec := do(t, newTestServer(nil).routes(), http.MethodPost, "/api/generate", `{"title":`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestGenerateBodyTooLarge(t *testing.T) {
	big := `{"title":"` + strings.Repeat("x", maxBodyBytes) + `"}`
	rec := do(t, newTestServer(nil).routes(), http.MethodPost, "/api/generate", big)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestSaveThenListRoundTrip(t *testing.T) {
	h := newTestServer(store.NewMemory("")).routes()

	tpl := `{"name":"Front page","description":"Daily","page_size":"A3","columns":4,"margin_mm":15,` +
		`"blocks":[{"type":"headline","x":0,"y":0,"w":12,"h":2},{"type":"image","x":1,"y":2,"w":6,"h":4}]}`
	rec := do(t, h, http.MethodPost, "/api/layout/save", `{"template":`+tpl+`}`)
	require.Equal(t, http.StatusOK, rec.Code)

	saved := decodeBody[createdResponse](t, rec)
	require.True(t, saved.OK)
	require.NotEmpty(t, saved.ID)

	rec = do(t, h, http.MethodGet, "/api/layout/templates", "")
	require.Equal(t, http.StatusOK, rec.Code)

	docs := decodeBody[[]map[string]any](t, rec)
	require.Len(t, docs, 1)
	require.Equal(t, saved.ID, docs[0]["id"])
	require.NotContains(t, docs[0], "_id")

	var want map[string]any
	require.NoError(t, json.Unmarshal([]byte(tpl), &want))
	got := docs[0]
	delete(got, "id")
	require.Equal(t, want, got)
}

func TestSaveAppliesTemplateDefaults(t *testing.T) {
	h := newTestServer(store.NewMemory("")).routes()

	rec := do(t, h, http.MethodPost, "/api/layout/save", `{"template":{"name":"Bare","blocks":[{}]}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	docs := decodeBody[[]models.LayoutTemplate](t, do(t, h, http.MethodGet, "/api/layout/templates", ""))
	require.Len(t, docs, 1)
	require.Equal(t, models.LayoutTemplate{
		Name:     "Bare",
		PageSize: models.PageA4,
		Columns:  3,
		MarginMM: 12,
		Blocks:   []models.LayoutBlock{{Type: models.BlockBody, W: 12, H: 2}},
	}, docs[0])
}

func TestSaveAcceptsWholeFloatColumns(t *testing.T) {
	h := newTestServer(store.NewMemory("")).routes()

	rec := do(t, h, http.MethodPost, "/api/layout/save", `{"template":{"name":"Front","columns":2.0}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	docs := decodeBody[[]models.LayoutTemplate](t, do(t, h, http.MethodGet, "/api/layout/templates", ""))
	require.Len(t, docs, 1)
	require.Equal(t, 2, docs[0].Columns)
}

func TestSaveOverflowIsValidationError(t *testing.T) {
	rec := do(t, newTestServer(store.NewMemory("")).routes(), http.MethodPost, "/api/layout/save", `{"template":{"name":"Front","blocks":[{"h":1e20}]}}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Contains(t, rec.Body.String(), `"field":"template.blocks.0.h"`)
}

func TestSaveRejectsOutOfRangeBeforeStore(t *testing.T) {
	backend := store.NewMemory("")
	h := newTestServer(backend).routes()

	for _, tpl := range []string{
		`{"name":"a","columns":0}`,
		`{"name":"a","columns":7}`,
		`{"name":"a","margin_mm":4}`,
		`{"name":"a","margin_mm":31}`,
	} {
		rec := do(t, h, http.MethodPost, "/api/layout/save", `{"template":`+tpl+`}`)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code, tpl)
	}

	names, err := backend.Collections(context.Background())
	require.NoError(t, err)
	require.Empty(t, names)
}

func TestSaveWithoutStoreReturns503(t *testing.T) {
	rec := do(t, newTestServer(nil).routes(), http.MethodPost, "/api/layout/save", `{"template":{"name":"Front"}}`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	body := decodeBody[map[string]any](t, rec)
	require.NotContains(t, body, "id")
	require.Equal(t, "Database not available", body["detail"])
}

func TestSaveInvalidWithoutStoreIsValidationError(t *testing.T) {
	rec := do(t, newTestServer(nil).routes(), http.MethodPost, "/api/layout/save", `{"template":{"name":"Front","columns":9}}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestSaveStoreError(t *testing.T) {
	rec := do(t, newTestServer(brokenBackend{store.NewMemory("")}).routes(), http.MethodPost, "/api/layout/save", `{"template":{"name":"Front"}}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestListTemplatesWithoutStore(t *testing.T) {
	rec := do(t, newTestServer(nil).routes(), http.MethodGet, "/api/layout/templates", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[]`, rec.Body.String())
}

func TestListTemplatesLimit(t *testing.T) {
	backend := store.NewMemory("")
	gw := store.New(backend)
	for i := 0; i < 30; i++ {
		_, err := gw.Create(context.Background(), "LayoutTemplate", store.Document{"name": fmt.Sprintf("t%d", i)})
		require.NoError(t, err)
	}
	h := newTestServer(backend).routes()

	tests := []struct {
		query string
		want  int
	}{
		{query: "", want: 20},
		{query: "?limit=5", want: 5},
		{query: "?limit=0", want: 20},
		{query: "?limit=1000", want: 30},
	}
	for _, tt := range tests {
		rec := do(t, h, http.MethodGet, "/api/layout/templates"+tt.query, "")
		require.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, decodeBody[[]map[string]any](t, rec), tt.want, tt.query)
	}
}

func TestListRejectsNonIntegerLimit(t *testing.T) {
	for _, backend := range []store.Backend{store.NewMemory(""), nil} {
		rec := do(t, newTestServer(backend).routes(), http.MethodGet, "/api/layout/templates?limit=abc", "")
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		require.JSONEq(t, `{"detail":[{"field":"limit","type":"int_parsing","message":"Input should be a valid integer"}]}`, rec.Body.String())
	}
}

func TestListTemplatesStoreError(t *testing.T) {
	rec := do(t, newTestServer(brokenBackend{store.NewMemory("")}).routes(), http.MethodGet, "/api/layout/templates", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestDiagnosticsConnected(t *testing.T) {
	backend := store.NewMemory("")
	gw := store.New(backend)
	for i := 0; i < 12; i++ {
		_, err := gw.Create(context.Background(), fmt.Sprintf("Collection%02d", i), store.Document{"n": i})
		require.NoError(t, err)
	}

	rec := do(t, newTestServer(backend).routes(), http.MethodGet, "/test", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[diagnosticsResponse](t, rec)
	require.Equal(t, "✅ Running", body.Backend)
	require.Equal(t, "✅ Connected & Working", body.Database)
	require.Equal(t, "Connected", body.ConnectionStatus)
	require.Equal(t, "✅ Set", body.DatabaseURL)
	require.Equal(t, "✅ Set", body.DatabaseName)
	require.Len(t, body.Collections, 10)
	require.Equal(t, "collection00", body.Collections[0])
}

func TestDiagnosticsStoreErrorIsTruncated(t *testing.T) {
	rec := do(t, newTestServer(brokenBackend{store.NewMemory("")}).routes(), http.MethodGet, "/test", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[diagnosticsResponse](t, rec)
	require.Equal(t, "⚠️  Connected but Error: "+errBroken.Error()[:50], body.Database)
	require.Empty(t, body.Collections)
}

type unhealthyBackend struct {
	*store.MemoryBackend
}

func (unhealthyBackend) Health(context.Context) error {
	return errors.New("cluster health is red")
}

func TestDiagnosticsReportsUnhealthyCluster(t *testing.T) {
	rec := do(t, newTestServer(unhealthyBackend{store.NewMemory("")}).routes(), http.MethodGet, "/test", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[diagnosticsResponse](t, rec)
	require.Equal(t, "⚠️  Connected but Error: cluster health is red", body.Database)
	require.Equal(t, "Connected", body.ConnectionStatus)
	require.Empty(t, body.Collections)
}

func TestDiagnosticsUnavailable(t *testing.T) {
	srv := newTestServer(nil)
	srv.cfg.ElasticsearchAddr = ""
	srv.cfg.IndexPrefix = ""

	rec := do(t, srv.routes(), http.MethodGet, "/test", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{
		"backend": "✅ Running",
		"database": "⚠️  Available but not initialized",
		"database_url": "❌ Not Set",
		"database_name": "❌ Not Set",
		"connection_status": "Not Connected",
		"collections": []
	}`, rec.Body.String())
}

func TestEpaperExportQueuesJob(t *testing.T) {
	backend := store.NewMemory("")
	pub := &stubPublisher{}
	srv := newTestServer(backend)
	srv.publisher = pub
	h := srv.routes()

	rec := do(t, h, http.MethodPost, "/api/epaper/export", `{"article_ids":["a1"],"layout_template_id":"t1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[struct {
		ID     string `json:"id"`
		OK     bool   `json:"ok"`
		Queued bool   `json:"queued"`
	}](t, rec)
	require.True(t, resp.OK)
	require.True(t, resp.Queued)
	require.Len(t, pub.jobs, 1)
	require.Equal(t, resp.ID, pub.jobs[0].ExportID)
	require.Equal(t, []string{"a1"}, pub.jobs[0].ArticleIDs)
	require.Equal(t, "t1", pub.jobs[0].LayoutTemplateID)
	require.WithinDuration(t, time.Now(), pub.jobs[0].RequestedAt, time.Minute)

	docs, err := store.New(backend).Query(context.Background(), epaper.ExportEntity, nil, 10)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, resp.ID, docs[0]["id"])
}

func TestEpaperExportPublishFailureStillStores(t *testing.T) {
	srv := newTestServer(store.NewMemory(""))
	srv.publisher = &stubPublisher{err: errors.New("no brokers")}

	rec := do(t, srv.routes(), http.MethodPost, "/api/epaper/export", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, decodeBody[map[string]any](t, rec)["queued"].(bool))
}

func TestEpaperExportWithoutStore(t *testing.T) {
	rec := do(t, newTestServer(nil).routes(), http.MethodPost, "/api/epaper/export", `{}`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestListEditions(t *testing.T) {
	backend := store.NewMemory("")
	_, err := store.New(backend).Create(context.Background(), epaper.EditionEntity, models.EpaperEdition{ExportID: "e1"})
	require.NoError(t, err)

	rec := do(t, newTestServer(backend).routes(), http.MethodGet, "/api/epaper/editions?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	docs := decodeBody[[]map[string]any](t, rec)
	require.Len(t, docs, 1)
	require.Equal(t, "e1", docs[0]["export_id"])

	rec = do(t, newTestServer(nil).routes(), http.MethodGet, "/api/epaper/editions", "")
	require.JSONEq(t, `[]`, rec.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/generate", bytes.NewReader(nil))
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	newTestServer(nil).routes().ServeHTTP(rec, req)

	require.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(nil).routes()
	do(t, h, http.MethodGet, "/", "")

	rec := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestClampInt(t *testing.T) {
	require.Equal(t, 20, clampInt(0, 20, 200))
	require.Equal(t, 20, clampInt(-3, 20, 200))
	require.Equal(t, 7, clampInt(7, 20, 200))
	require.Equal(t, 200, clampInt(900, 20, 200))
}

func TestTruncateCountsRunes(t *testing.T) {
	require.Equal(t, "héllo", truncate("héllo wörld", 5))
	require.Equal(t, "short", truncate("short", 50))
}
