// Package generator produces mock articles from an ArticleInput. Output is fully determined by
// the input; no model or network call is involved.
package generator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samacharai/backend/internal/models"
)

const keyDevelopmentsHeading = "Key developments:"

var defaultSubheads = []string{
	"Context, impact, and what comes next",
	"A clear breakdown for busy readers",
}

// Generate builds an article from in.
func Generate(in models.ArticleInput) models.Article {
	paragraphs := make([]string, 0, 3)
	if len(in.Bullets) > 0 {
		paragraphs = append(paragraphs, keyDevelopmentsHeading, NumberedList(in.Bullets))
	}
	paragraphs = append(paragraphs, fmt.Sprintf(
		"This story has been crafted in a %s tone for a %s audience, emphasizing clarity, context, and accuracy.",
		in.Tone, in.Audience,
	))

	return models.Article{
		Title:     in.Title,
		Content:   strings.Join(paragraphs, "\n\n"),
		Language:  in.Language,
		Tone:      in.Tone,
		Audience:  in.Audience,
		Headlines: Headlines(in.Title),
		Subheads:  append([]string(nil), defaultSubheads...),
	}
}

// NumberedList renders items as "1. a\n2. b", one line per item in input order.
func NumberedList(items []string) string {
	var sb strings.Builder
	for i, item := range items {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(strconv.Itoa(i + 1))
		sb.WriteString(". ")
		sb.WriteString(item)
	}
	return sb.String()
}

// Headlines returns three candidates. The first is the title verbatim.
func Headlines(title string) []string {
	base := strings.TrimSpace(title)
	return []string{
		title,
		base + ": What You Need to Know",
		"Explained | " + base,
	}
}
