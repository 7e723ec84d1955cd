package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/samacharai/backend/internal/epaper"
	"github.com/samacharai/backend/internal/generator"
	"github.com/samacharai/backend/internal/models"
	"github.com/samacharai/backend/internal/schema"
)

const diagnosticErrorLen = 50

type diagnosticsResponse struct {
	Backend          string   `json:"backend"`
	Database         string   `json:"database"`
	DatabaseURL      string   `json:"database_url"`
	DatabaseName     string   `json:"database_name"`
	ConnectionStatus string   `json:"connection_status"`
	Collections      []string `json:"collections"`
}

// handleDiagnostics never fails: store problems are reported in the body.
func (s *server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	resp := diagnosticsResponse{
		Backend:          "✅ Running",
		Database:         "❌ Not Available",
		ConnectionStatus: "Not Connected",
		Collections:      []string{},
	}

	if s.store.Available() {
		resp.Database = "✅ Available"
		resp.ConnectionStatus = "Connected"

		ctx, cancel := s.storeContext(r)
		defer cancel()

		collections, err := s.store.Collections(ctx)
		if err == nil {
			err = s.store.Health(ctx)
		}
		if err != nil {
			resp.Database = "⚠️  Connected but Error: " + truncate(err.Error(), diagnosticErrorLen)
		} else {
			if len(collections) > 10 {
				collections = collections[:10]
			}
			resp.Collections = append(resp.Collections, collections...)
			resp.Database = "✅ Connected & Working"
		}
	} else {
		resp.Database = "⚠️  Available but not initialized"
	}

	resp.DatabaseURL = setOrNot(s.cfg.ElasticsearchAddr != "")
	resp.DatabaseName = setOrNot(s.cfg.IndexPrefix != "")

	writeJSON(w, http.StatusOK, resp)
}

func setOrNot(ok bool) string {
	if ok {
		return "✅ Set"
	}
	return "❌ Not Set"
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

type storedArticle struct {
	models.Article
	GeneratedAt time.Time `json:"generated_at"`
}

// handleGenerate always answers with the article; persisting it is best effort.
func (s *server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	in, ok := readPayload(w, r, schema.DecodeArticleInput)
	if !ok {
		return
	}

	article := generator.Generate(in)

	if s.store.Available() {
		ctx, cancel := s.storeContext(r)
		defer cancel()

		doc := storedArticle{Article: article, GeneratedAt: time.Now().UTC()}
		if _, err := s.store.Create(ctx, epaper.ArticleEntity, doc); err != nil {
			s.log.Warn("persist generated article", slog.Any("err", err))
		}
	}

	writeJSON(w, http.StatusOK, article)
}

func (s *server) handleSaveLayout(w http.ResponseWriter, r *http.Request) {
	req, ok := readPayload(w, r, schema.DecodeSaveLayoutRequest)
	if !ok {
		return
	}

	if !s.store.Available() {
		writeJSON(w, http.StatusServiceUnavailable, detailResponse{Detail: "Database not available"})
		return
	}

	ctx, cancel := s.storeContext(r)
	defer cancel()

	id, err := s.store.Create(ctx, epaper.TemplateEntity, req.Template)
	if err != nil {
		s.log.Error("save layout template", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, detailResponse{Detail: err.Error()})
		return
	}

	s.log.Info("layout template saved", slog.String("id", id), slog.String("name", req.Template.Name))
	writeJSON(w, http.StatusOK, createdResponse{ID: id, OK: true})
}

func (s *server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	s.listDocuments(w, r, epaper.TemplateEntity)
}

type exportResponse struct {
	createdResponse
	Queued bool `json:"queued"`
}

type storedExport struct {
	models.EpaperExport
	RequestedAt time.Time `json:"requested_at"`
}

func (s *server) handleEpaperExport(w http.ResponseWriter, r *http.Request) {
	exp, ok := readPayload(w, r, schema.DecodeEpaperExport)
	if !ok {
		return
	}

	if !s.store.Available() {
		writeJSON(w, http.StatusServiceUnavailable, detailResponse{Detail: "Database not available"})
		return
	}

	ctx, cancel := s.storeContext(r)
	defer cancel()

	requestedAt := time.Now().UTC()
	id, err := s.store.Create(ctx, epaper.ExportEntity, storedExport{EpaperExport: exp, RequestedAt: requestedAt})
	if err != nil {
		s.log.Error("save epaper export", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, detailResponse{Detail: err.Error()})
		return
	}

	queued := false
	if s.publisher != nil {
		job := epaper.Job{ExportID: id, ArticleIDs: exp.ArticleIDs, RequestedAt: requestedAt}
		if exp.LayoutTemplateID != nil {
			job.LayoutTemplateID = *exp.LayoutTemplateID
		}
		if err := s.publisher.Publish(ctx, job); err != nil {
			s.log.Warn("publish epaper export", slog.String("id", id), slog.Any("err", err))
		} else {
			queued = true
		}
	}

	writeJSON(w, http.StatusOK, exportResponse{createdResponse: createdResponse{ID: id, OK: true}, Queued: queued})
}

func (s *server) handleListEditions(w http.ResponseWriter, r *http.Request) {
	s.listDocuments(w, r, epaper.EditionEntity)
}
