package epaper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samacharai/backend/internal/models"
	"github.com/samacharai/backend/internal/store"
)

// ErrTemplateNotFound is returned when a job references a template that does not exist.
var ErrTemplateNotFound = errors.New("layout template not found")

// Store is the part of the gateway the assembler needs.
type Store interface {
	Get(ctx context.Context, entityType, id string) (store.Document, error)
	Create(ctx context.Context, entityType string, doc any) (string, error)
}

// Assembler resolves a job's template and articles and records the resulting edition.
type Assembler struct {
	store Store
	now   func() time.Time
}

// NewAssembler returns an assembler writing through s.
func NewAssembler(s Store) *Assembler {
	return &Assembler{store: s, now: time.Now}
}

// Assemble builds and stores the edition for job, returning it with its identifier.
// Unknown article ids are listed as missing; an unknown template fails the job.
func (a *Assembler) Assemble(ctx context.Context, job Job) (models.EpaperEdition, string, error) {
	edition := models.EpaperEdition{
		ExportID:          job.ExportID,
		LayoutTemplateID:  job.LayoutTemplateID,
		ArticleIDs:        []string{},
		Headlines:         []string{},
		MissingArticleIDs: []string{},
	}

	if job.LayoutTemplateID != "" {
		doc, err := a.store.Get(ctx, TemplateEntity, job.LayoutTemplateID)
		if errors.Is(err, store.ErrNotFound) {
			return edition, "", fmt.Errorf("%w: %s", ErrTemplateNotFound, job.LayoutTemplateID)
		}
		if err != nil {
			return edition, "", err
		}

		var tpl models.LayoutTemplate
		if err := store.Decode(doc, &tpl); err != nil {
			return edition, "", fmt.Errorf("decode template %s: %w", job.LayoutTemplateID, err)
		}
		edition.TemplateName = tpl.Name
		edition.PageSize = tpl.PageSize
		edition.Columns = tpl.Columns
	}

	for _, id := range job.ArticleIDs {
		doc, err := a.store.Get(ctx, ArticleEntity, id)
		if errors.Is(err, store.ErrNotFound) {
			edition.MissingArticleIDs = append(edition.MissingArticleIDs, id)
			continue
		}
		if err != nil {
			return edition, "", err
		}

		var article models.Article
		if err := store.Decode(doc, &article); err != nil {
			return edition, "", fmt.Errorf("decode article %s: %w", id, err)
		}
		edition.ArticleIDs = append(edition.ArticleIDs, id)
		edition.Headlines = append(edition.Headlines, leadHeadline(article))
	}

	edition.AssembledAt = a.now().UTC()

	id, err := a.store.Create(ctx, EditionEntity, edition)
	if err != nil {
		return edition, "", err
	}
	return edition, id, nil
}

func leadHeadline(article models.Article) string {
	if len(article.Headlines) > 0 {
		return article.Headlines[0]
	}
	return article.Title
}
