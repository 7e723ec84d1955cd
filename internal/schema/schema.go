// Package schema validates untyped request payloads before they are decoded into models.
//
// Every payload kind has a JSON Schema compiled once at start-up. Validation reports all
// violations of a payload at once and ignores properties the schema does not declare.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/samacharai/backend/internal/models"
)

// Kind selects the schema a payload is validated against.
type Kind string

const (
	KindArticleInput      Kind = "ArticleInput"
	KindSaveLayoutRequest Kind = "SaveLayoutRequest"
	KindEpaperExport      Kind = "EpaperExport"
)

// Violation describes one failed constraint.
type Violation struct {
	Field   string `json:"field"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ValidationError is returned when a payload does not conform to its schema.
type ValidationError struct {
	Kind       Kind
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Field+": "+v.Message)
	}
	return fmt.Sprintf("invalid %s: %s", e.Kind, strings.Join(parts, "; "))
}

const rootField = "(root)"

var compiled = map[Kind]*gojsonschema.Schema{
	KindArticleInput:      mustCompile(articleInputSchema()),
	KindSaveLayoutRequest: mustCompile(saveLayoutSchema()),
	KindEpaperExport:      mustCompile(epaperExportSchema()),
}

func mustCompile(doc map[string]any) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(doc))
	if err != nil {
		panic(fmt.Sprintf("compile schema: %v", err))
	}
	return s
}

// Validate checks raw against the schema for kind. It returns a *ValidationError listing every
// violation, or nil when the payload conforms.
func Validate(kind Kind, raw []byte) error {
	s, ok := compiled[kind]
	if !ok {
		return fmt.Errorf("unknown schema kind %q", kind)
	}

	if len(strings.TrimSpace(string(raw))) == 0 || !json.Valid(raw) {
		return &ValidationError{Kind: kind, Violations: []Violation{{
			Field:   "(body)",
			Type:    "json_invalid",
			Message: "request body is not valid JSON",
		}}}
	}

	result, err := s.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("validate %s: %w", kind, err)
	}
	if result.Valid() {
		return nil
	}

	violations := make([]Violation, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		violations = append(violations, Violation{
			Field:   fieldOf(re),
			Type:    re.Type(),
			Message: re.Description(),
		})
	}
	sort.SliceStable(violations, func(i, j int) bool {
		if violations[i].Field == violations[j].Field {
			return violations[i].Type < violations[j].Type
		}
		return violations[i].Field < violations[j].Field
	})

	return &ValidationError{Kind: kind, Violations: violations}
}

// fieldOf names the offending property. Required-property errors are reported by
// gojsonschema against the parent object, so the missing property is appended.
func fieldOf(re gojsonschema.ResultError) string {
	field := re.Field()
	if re.Type() != "required" {
		return field
	}
	prop, ok := re.Details()["property"].(string)
	if !ok {
		return field
	}
	if field == rootField {
		return prop
	}
	return field + "." + prop
}

// DecodeArticleInput validates raw and decodes it with defaults applied.
func DecodeArticleInput(raw []byte) (models.ArticleInput, error) {
	return decode[models.ArticleInput](KindArticleInput, raw)
}

// DecodeSaveLayoutRequest validates raw and decodes it with defaults applied.
func DecodeSaveLayoutRequest(raw []byte) (models.SaveLayoutRequest, error) {
	return decode[models.SaveLayoutRequest](KindSaveLayoutRequest, raw)
}

// DecodeEpaperExport validates raw and decodes it with defaults applied.
func DecodeEpaperExport(raw []byte) (models.EpaperExport, error) {
	return decode[models.EpaperExport](KindEpaperExport, raw)
}

func decode[T any](kind Kind, raw []byte) (T, error) {
	var out T
	if err := Validate(kind, raw); err != nil {
		return out, err
	}

	normalized, err := wholeNumbers(raw)
	if err != nil {
		return out, fmt.Errorf("decode %s: %w", kind, err)
	}

	if err := json.Unmarshal(normalized, &out); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return out, &ValidationError{Kind: kind, Violations: []Violation{typeViolation(typeErr)}}
		}
		return out, fmt.Errorf("decode %s: %w", kind, err)
	}
	return out, nil
}

func typeViolation(err *json.UnmarshalTypeError) Violation {
	field := strings.TrimPrefix(err.Field, ".")
	if field == "" {
		field = rootField
	}
	expected := "value"
	if err.Type != nil {
		expected = err.Type.String()
	}
	return Violation{
		Field:   field,
		Type:    "type",
		Message: fmt.Sprintf("Invalid type. Expected: %s, given: %s", expected, err.Value),
	}
}

// maxExactInt is the largest integer a float64 holds exactly.
const maxExactInt = 1 << 53

// wholeNumbers rewrites integral numbers written with a fraction or exponent, such as 2.0 or 3e1,
// as plain integer literals so they decode into int fields.
func wholeNumbers(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return json.Marshal(rewriteNumbers(v))
}

func rewriteNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = rewriteNumbers(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = rewriteNumbers(e)
		}
		return t
	case json.Number:
		if _, err := t.Int64(); err == nil {
			return t
		}
		f, err := t.Float64()
		if err != nil || f != math.Trunc(f) || math.Abs(f) > maxExactInt {
			return t
		}
		return json.Number(strconv.FormatInt(int64(f), 10))
	default:
		return v
	}
}
