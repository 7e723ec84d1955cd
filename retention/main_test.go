package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/samacharai/backend/internal/config"
	"github.com/samacharai/backend/internal/epaper"
	"github.com/samacharai/backend/internal/logger"
	"github.com/samacharai/backend/internal/store"
)

func TestRunOncePurgesOldArticles(t *testing.T) {
	ctx := context.Background()
	gw := store.New(store.NewMemory(""))

	old := time.Now().Add(-48 * time.Hour).UTC().Format(time.RFC3339)
	fresh := time.Now().UTC().Format(time.RFC3339)
	for _, ts := range []string{old, old, fresh} {
		_, err := gw.Create(ctx, epaper.ArticleEntity, store.Document{"title": "x", "generated_at": ts})
		require.NoError(t, err)
	}
	_, err := gw.Create(ctx, epaper.TemplateEntity, store.Document{"name": "kept", "generated_at": old})
	require.NoError(t, err)

	cfg := &config.Retention{MaxAge: 24 * time.Hour, BatchSize: 100, Interval: time.Hour}
	require.Equal(t, int64(2), runOnce(ctx, logger.Discard(), gw, cfg))

	articles, err := gw.Query(ctx, epaper.ArticleEntity, nil, 10)
	require.NoError(t, err)
	require.Len(t, articles, 1)

	templates, err := gw.Query(ctx, epaper.TemplateEntity, nil, 10)
	require.NoError(t, err)
	require.Len(t, templates, 1)
}

func TestRunOnceUnavailableStore(t *testing.T) {
	cfg := &config.Retention{MaxAge: time.Hour, BatchSize: 10, Interval: time.Hour}
	require.Zero(t, runOnce(context.Background(), logger.Discard(), store.New(nil), cfg))
}
