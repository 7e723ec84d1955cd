package schema

import (
	"math"

	"github.com/samacharai/backend/internal/models"
)

// maxGridValue caps grid integers that have no domain bound so every accepted value fits an int.
const maxGridValue = math.MaxInt32

func enumOf[T ~string](values []T) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		out = append(out, string(v))
	}
	return out
}

func nullableString() map[string]any {
	return map[string]any{"type": []any{"string", "null"}}
}

func stringArray() map[string]any {
	return map[string]any{
		"type":  "array",
		"items": map[string]any{"type": "string"},
	}
}

func articleInputSchema() map[string]any {
	return map[string]any{
		"$schema":  "http://json-schema.org/draft-07/schema#",
		"type":     "object",
		"required": []any{"title"},
		"properties": map[string]any{
			"title":    map[string]any{"type": "string", "minLength": 1},
			"bullets":  stringArray(),
			"tone":     map[string]any{"type": "string", "enum": enumOf(models.Tones)},
			"audience": map[string]any{"type": "string", "enum": enumOf(models.Audiences)},
			"language": map[string]any{"type": "string", "enum": enumOf(models.Languages)},
			"source":   nullableString(),
		},
	}
}

func layoutBlockSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"type": map[string]any{"type": "string", "enum": enumOf(models.BlockTypes)},
			"x":    map[string]any{"type": "integer", "minimum": 0, "maximum": maxGridValue},
			"y":    map[string]any{"type": "integer", "minimum": 0, "maximum": maxGridValue},
			"w":    map[string]any{"type": "integer", "minimum": 1, "maximum": models.MaxBlockWidth},
			"h":    map[string]any{"type": "integer", "minimum": 1, "maximum": maxGridValue},
		},
	}
}

func layoutTemplateSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"name"},
		"properties": map[string]any{
			"name":        map[string]any{"type": "string"},
			"description": nullableString(),
			"page_size":   map[string]any{"type": "string", "enum": enumOf(models.PageSizes)},
			"columns": map[string]any{
				"type":    "integer",
				"minimum": models.MinColumns,
				"maximum": models.MaxColumns,
			},
			"margin_mm": map[string]any{
				"type":    "integer",
				"minimum": models.MinMarginMM,
				"maximum": models.MaxMarginMM,
			},
			"blocks": map[string]any{
				"type":  "array",
				"items": layoutBlockSchema(),
			},
		},
	}
}

func saveLayoutSchema() map[string]any {
	return map[string]any{
		"$schema":  "http://json-schema.org/draft-07/schema#",
		"type":     "object",
		"required": []any{"template"},
		"properties": map[string]any{
			"template": layoutTemplateSchema(),
		},
	}
}

func epaperExportSchema() map[string]any {
	return map[string]any{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type":    "object",
		"properties": map[string]any{
			"article_ids":        stringArray(),
			"layout_template_id": nullableString(),
		},
	}
}
