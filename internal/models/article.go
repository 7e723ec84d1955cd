package models

import "encoding/json"

// Tone is the writing register requested for an article.
type Tone string

const (
	ToneFormal       Tone = "formal"
	ToneNeutral      Tone = "neutral"
	ToneEmotional    Tone = "emotional"
	ToneJournalistic Tone = "journalistic"
)

// Audience is the readership an article is written for.
type Audience string

const (
	AudienceGeneral  Audience = "general"
	AudienceYouth    Audience = "youth"
	AudienceRural    Audience = "rural"
	AudienceUrban    Audience = "urban"
	AudienceBusiness Audience = "business"
)

// Language is the language an article is published in.
type Language string

const (
	LanguageEnglish Language = "English"
	LanguageHindi   Language = "Hindi"
	LanguageBengali Language = "Bengali"
	LanguageTamil   Language = "Tamil"
	LanguageMarathi Language = "Marathi"
)

var (
	Tones     = []Tone{ToneFormal, ToneNeutral, ToneEmotional, ToneJournalistic}
	Audiences = []Audience{AudienceGeneral, AudienceYouth, AudienceRural, AudienceUrban, AudienceBusiness}
	Languages = []Language{LanguageEnglish, LanguageHindi, LanguageBengali, LanguageTamil, LanguageMarathi}
)

// ArticleInput is the request body of the generate endpoint.
type ArticleInput struct {
	Title    string   `json:"title"`
	Bullets  []string `json:"bullets"`
	Tone     Tone     `json:"tone"`
	Audience Audience `json:"audience"`
	Language Language `json:"language"`
	Source   *string  `json:"source"`
}

// UnmarshalJSON fills omitted fields with their defaults.
func (in *ArticleInput) UnmarshalJSON(data []byte) error {
	type plain ArticleInput
	p := plain{
		Bullets:  []string{},
		Tone:     ToneJournalistic,
		Audience: AudienceGeneral,
		Language: LanguageEnglish,
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.Bullets == nil {
		p.Bullets = []string{}
	}
	*in = ArticleInput(p)
	return nil
}

// Article is a generated story. It carries tone, audience and language over from its input.
type Article struct {
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	Language  Language `json:"language"`
	Tone      Tone     `json:"tone"`
	Audience  Audience `json:"audience"`
	Headlines []string `json:"headlines"`
	Subheads  []string `json:"subheads"`
}
