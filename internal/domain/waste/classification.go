package waste

// Source names the path that produced a classification.
type Source string

const (
	SourcePrimary   Source = "primary"
	SourceSecondary Source = "secondary"
)

func (s Source) Valid() bool {
	return s == SourcePrimary || s == SourceSecondary
}

// Candidate is one ranked prediction from an inference engine.
type Candidate struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// ClassificationResult is produced once per classify request and never mutated.
type ClassificationResult struct {
	Category          string      `json:"category"`
	Name              string      `json:"name"`
	Material          string      `json:"material"`
	Confidence        float64     `json:"confidence"`
	Source            Source      `json:"source"`
	Recyclable        bool        `json:"recyclable"`
	DisposalMethod    string      `json:"disposal_method"`
	Guidance          []string    `json:"guidance"`
	SpecialHandling   []string    `json:"special_handling,omitempty"`
	Region            string      `json:"region"`
	LowConfidence     bool        `json:"low_confidence"`
	PrimaryLabel      string      `json:"primary_label"`
	PrimaryConfidence float64     `json:"primary_confidence"`
	Alternatives      []Candidate `json:"alternatives,omitempty"`
	Description       string      `json:"description,omitempty"`
}
