package classify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/yungbote/recycleright-backend/internal/platform/gemini"
	"github.com/yungbote/recycleright-backend/internal/platform/jsonx"
	"github.com/yungbote/recycleright-backend/internal/platform/openai"
	"github.com/yungbote/recycleright-backend/internal/taxonomy"
)

// ErrMalformedAnalysis means the model replied without a usable JSON object.
var ErrMalformedAnalysis = errors.New("malformed analysis")

// VisionModel is a multimodal LLM that answers with a JSON object.
type VisionModel interface {
	Name() string
	DescribeJSON(ctx context.Context, system, user string, img []byte, mimeType string, schema map[string]any) (map[string]any, error)
}

type openAIVision struct{ c openai.Client }

func OpenAIVision(c openai.Client) VisionModel { return openAIVision{c: c} }

func (v openAIVision) Name() string { return "openai:" + v.c.Model() }

func (v openAIVision) DescribeJSON(ctx context.Context, system, user string, img []byte, mimeType string, schema map[string]any) (map[string]any, error) {
	images := []openai.ImageInput{{ImageURL: openai.DataURL(mimeType, img), Detail: "low"}}
	return v.c.GenerateJSONWithImages(ctx, system, user, images, "waste_classification", schema)
}

type geminiVision struct{ c gemini.Client }

func GeminiVision(c gemini.Client) VisionModel { return geminiVision{c: c} }

func (v geminiVision) Name() string { return "gemini:" + v.c.Model() }

func (v geminiVision) DescribeJSON(ctx context.Context, system, user string, img []byte, mimeType string, schema map[string]any) (map[string]any, error) {
	return v.c.GenerateJSONWithImage(ctx, system, user, img, mimeType, schema)
}

const analyzerSystemPrompt = `You identify waste items in photos so people can dispose of them correctly.
Look at shape, texture, labels and recycling symbols. Answer with a single JSON object and nothing else.`

// LLMAnalyzer is the secondary analyzer backed by a multimodal LLM. The prompt
// enumerates the taxonomy so replies land on known category ids.
type LLMAnalyzer struct {
	model  VisionModel
	user   string
	schema map[string]any
}

func NewLLMAnalyzer(model VisionModel, tax *taxonomy.Taxonomy) (*LLMAnalyzer, error) {
	if model == nil {
		return nil, fmt.Errorf("vision model required")
	}
	if tax == nil {
		return nil, fmt.Errorf("taxonomy required")
	}
	ids := tax.IDs()
	var b strings.Builder
	b.WriteString("Classify the main waste item in this photo into exactly one category id from this list:\n")
	for _, c := range tax.Categories() {
		fmt.Fprintf(&b, "- %s (%s)\n", c.ID, c.Name)
	}
	b.WriteString("Use \"" + taxonomy.Unclassified + "\" if the item is not waste or you cannot tell.\n")
	b.WriteString(`Reply as {"category": "<id>", "confidence": <0..1>, "description": "<one short sentence>"}.`)

	enum := make([]any, 0, len(ids))
	for _, id := range ids {
		enum = append(enum, id)
	}
	schema := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []any{"category", "confidence", "description"},
		"properties": map[string]any{
			"category":    map[string]any{"type": "string", "enum": enum},
			"confidence":  map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
			"description": map[string]any{"type": "string"},
		},
	}
	return &LLMAnalyzer{model: model, user: b.String(), schema: schema}, nil
}

func (a *LLMAnalyzer) Name() string { return a.model.Name() }

func (a *LLMAnalyzer) Analyze(ctx context.Context, img []byte) (Analysis, error) {
	obj, err := a.model.DescribeJSON(ctx, analyzerSystemPrompt, a.user, img, http.DetectContentType(img), a.schema)
	if err != nil {
		if errors.Is(err, jsonx.ErrMalformed) {
			return Analysis{}, fmt.Errorf("%w: %v", ErrMalformedAnalysis, err)
		}
		return Analysis{}, err
	}
	return AnalysisFromJSON(obj)
}

// AnalysisFromJSON reads {"category","confidence","description"}. A missing or
// "unclassified" category yields an empty label.
func AnalysisFromJSON(obj map[string]any) (Analysis, error) {
	if obj == nil {
		return Analysis{}, ErrMalformedAnalysis
	}
	raw, ok := obj["category"]
	if !ok {
		return Analysis{}, fmt.Errorf("%w: missing category", ErrMalformedAnalysis)
	}
	label, ok := raw.(string)
	if !ok {
		return Analysis{}, fmt.Errorf("%w: category is %T", ErrMalformedAnalysis, raw)
	}
	label = strings.TrimSpace(label)
	if taxonomy.Key(label) == taxonomy.Unclassified {
		label = ""
	}
	out := Analysis{Label: label}
	if f, ok := jsonx.Float(obj["confidence"]); ok {
		out.Confidence = f
	}
	if d, ok := obj["description"].(string); ok {
		out.Description = strings.TrimSpace(d)
	}
	return out, nil
}
