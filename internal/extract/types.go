// Package extract parses AI model output into a structured extraction result
// and normalizes localized enum tokens to their canonical values.
package extract

// Category classifies an idea.
type Category string

// Canonical categories.
const (
	CategoryBusiness Category = "BUSINESS"
	CategoryAI       Category = "AI"
	CategoryFinance  Category = "FINANCE"
	CategoryThought  Category = "THOUGHT"
)

// Potential grades how promising an idea is.
type Potential string

// Canonical potentials.
const (
	PotentialHigh   Potential = "HIGH"
	PotentialMedium Potential = "MEDIUM"
	PotentialLow    Potential = "LOW"
)

// IdeaType describes the kind of idea extracted.
type IdeaType string

// Canonical idea types.
const (
	TypePlatform IdeaType = "PLATFORM"
	TypeProduct  IdeaType = "PRODUCT"
	TypeService  IdeaType = "SERVICE"
	TypeTool     IdeaType = "TOOL"
	TypeConcept  IdeaType = "CONCEPT"
	TypeInsight  IdeaType = "INSIGHT"
	TypeWisdom   IdeaType = "WISDOM"
	TypeTip      IdeaType = "TIP"
)

// Defaults applied when the model omits a field or emits an unmapped token.
// These fields are advisory, so availability wins over strictness.
const (
	DefaultCategory = CategoryThought
	DefaultPotent   = PotentialMedium
	DefaultType     = TypeConcept
	DefaultTitle    = "Bez názvu"
)

// IdeaDraft is the normalized payload of a successful extraction.
type IdeaDraft struct {
	Title       string
	Description string
	Category    Category
	Potential   Potential
	Type        IdeaType
	Tags        []string
	NextSteps   []string
}

// Result is the tagged outcome of parsing a model response: either Skip or
// Extracted. Call sites switch on the concrete type.
type Result interface {
	isResult()
}

// Skip means the model judged the note to contain no actionable idea.
type Skip struct{}

func (Skip) isResult() {}

// Extracted carries the normalized idea draft.
type Extracted struct {
	Draft IdeaDraft
}

func (Extracted) isResult() {}
