package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnparsableResponse is returned when no JSON object can be recovered
// from the model output.
var ErrUnparsableResponse = errors.New("extract: unparsable AI response")

// rawResult mirrors the JSON contract the prompt asks the model to follow.
type rawResult struct {
	Skip        bool     `json:"skip"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Potential   string   `json:"potential"`
	Type        string   `json:"type"`
	Tags        []string `json:"tags"`
	NextSteps   []string `json:"next_steps"`
}

// Localized (Czech) and English tokens accepted for each enum. Lookups are
// lowercase; anything unmapped falls back to the documented default.
var categoryTokens = map[string]Category{
	"business": CategoryBusiness,
	"ai":       CategoryAI,
	"finance":  CategoryFinance,
	"thought":  CategoryThought,
	"myšlenka": CategoryThought,
}

var potentialTokens = map[string]Potential{
	"vysoký":  PotentialHigh,
	"střední": PotentialMedium,
	"nízký":   PotentialLow,
	"high":    PotentialHigh,
	"medium":  PotentialMedium,
	"low":     PotentialLow,
}

var typeTokens = map[string]IdeaType{
	"platforma": TypePlatform,
	"produkt":   TypeProduct,
	"služba":    TypeService,
	"nástroj":   TypeTool,
	"koncept":   TypeConcept,
	"postřeh":   TypeInsight,
	"moudrost":  TypeWisdom,
	"tip":       TypeTip,
	"platform":  TypePlatform,
	"product":   TypeProduct,
	"service":   TypeService,
	"tool":      TypeTool,
	"concept":   TypeConcept,
	"insight":   TypeInsight,
	"wisdom":    TypeWisdom,
}

// Parse recovers the JSON object embedded in free-form model output and
// normalizes it into a Result. The model is asked for bare JSON but often
// wraps it in prose or markdown fences, so parsing takes the substring from
// the first '{' to the last '}'.
func Parse(raw string) (Result, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("%w: no JSON object found", ErrUnparsableResponse)
	}

	var res rawResult
	if err := json.Unmarshal([]byte(raw[start:end+1]), &res); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparsableResponse, err)
	}

	if res.Skip {
		return Skip{}, nil
	}

	return Extracted{Draft: normalize(res)}, nil
}

func normalize(res rawResult) IdeaDraft {
	title := strings.TrimSpace(res.Title)
	if title == "" {
		title = DefaultTitle
	}

	return IdeaDraft{
		Title:       title,
		Description: strings.TrimSpace(res.Description),
		Category:    NormalizeCategory(res.Category),
		Potential:   NormalizePotential(res.Potential),
		Type:        NormalizeType(res.Type),
		Tags:        cleanStrings(res.Tags),
		NextSteps:   cleanStrings(res.NextSteps),
	}
}

// NormalizeCategory maps a localized category token to its canonical value,
// defaulting to THOUGHT.
func NormalizeCategory(token string) Category {
	if c, ok := categoryTokens[strings.ToLower(strings.TrimSpace(token))]; ok {
		return c
	}
	return DefaultCategory
}

// NormalizePotential maps a localized potential token to its canonical
// value, defaulting to MEDIUM.
func NormalizePotential(token string) Potential {
	if p, ok := potentialTokens[strings.ToLower(strings.TrimSpace(token))]; ok {
		return p
	}
	return DefaultPotent
}

// NormalizeType maps a localized type token to its canonical value,
// defaulting to CONCEPT.
func NormalizeType(token string) IdeaType {
	if t, ok := typeTokens[strings.ToLower(strings.TrimSpace(token))]; ok {
		return t
	}
	return DefaultType
}

// cleanStrings trims entries, drops empties and deduplicates while keeping
// the original order. Duplicate tag names in one result must not turn into
// duplicate tag links downstream.
func cleanStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
