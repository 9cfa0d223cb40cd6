// Package prompt renders the note-processing prompt sent to the AI provider.
package prompt

import (
	"fmt"
	"strings"
)

// Placeholder is the literal token a processing template must contain.
// Rendering substitutes it with the note content.
const Placeholder = "{{NOTE_CONTENT}}"

// DefaultTemplate is the built-in processing prompt, used when a user has no
// custom template. It instructs the model to decide whether the note holds an
// actionable idea and to answer with a single JSON object.
const DefaultTemplate = `Jsi expert na analýzu a kategorizaci nápadů. Tvým úkolem je analyzovat surovou poznámku z Google Keep a rozhodnout, zda obsahuje zajímavý nápad.

VSTUP:
Poznámka: """
{{NOTE_CONTENT}}
"""

INSTRUKCE:
1. Přečti poznámku a rozhodni, zda obsahuje potenciálně užitečný nápad (podnikatelský, technologický, finanční, životní moudrost, tip).
2. Pokud poznámka NEOBSAHUJE žádný nápad (je to např. nákupní seznam, připomínka, osobní poznámka bez hodnoty), vrať JSON s "skip": true.
3. Pokud poznámka OBSAHUJE nápad, analyzuj ho a vrať strukturovaný JSON.

VÝSTUP (JSON):
{
  "skip": boolean,           // true pokud není nápad k extrakci
  "title": string,           // stručný název nápadu (max 100 znaků)
  "description": string,     // popis nápadu (2-5 vět)
  "category": string,        // jedna z: "business", "ai", "finance", "thought"
  "potential": string,       // jedna z: "vysoký", "střední", "nízký"
  "type": string,            // jedna z: "platforma", "produkt", "služba", "nástroj", "koncept", "postřeh", "moudrost", "tip"
  "tags": string[],          // 2-5 relevantních tagů
  "next_steps": string[]     // 2-3 konkrétní další kroky (pokud aplikovatelné)
}

Odpověz POUZE validním JSON objektem, bez dalšího textu.`

// Render substitutes the note content into the template. When the note has a
// title, the content block is prefixed with "Title: <title>" on its own
// paragraph. Templates without the placeholder render unchanged; Validate
// exists to reject those at registration time.
func Render(template, title, content string) string {
	body := content
	if title != "" {
		body = fmt.Sprintf("Title: %s\n\n%s", title, content)
	}
	return strings.Replace(template, Placeholder, body, 1)
}

// Validate checks that a custom template carries the placeholder exactly
// once. Zero occurrences would silently send the template without any note
// content; more than one is almost certainly an authoring mistake.
func Validate(template string) error {
	switch n := strings.Count(template, Placeholder); n {
	case 1:
		return nil
	case 0:
		return fmt.Errorf("template must contain the %s placeholder", Placeholder)
	default:
		return fmt.Errorf("template must contain %s exactly once, found %d", Placeholder, n)
	}
}
