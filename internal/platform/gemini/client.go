package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/yungbote/recycleright-backend/internal/observability"
	"github.com/yungbote/recycleright-backend/internal/platform/envutil"
	"github.com/yungbote/recycleright-backend/internal/platform/jsonx"
	"github.com/yungbote/recycleright-backend/internal/platform/logger"
)

type Config struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		APIKey:  envutil.String("GEMINI_API_KEY", ""),
		Model:   envutil.String("GEMINI_MODEL", "gemini-2.5-flash"),
		Timeout: envutil.Duration("GEMINI_TIMEOUT_SECONDS", 30*time.Second),
	}
}

type Client interface {
	Model() string
	// GenerateJSONWithImage sends one inline image plus a prompt and decodes the
	// JSON response constrained by schema (a JSON-schema subset).
	GenerateJSONWithImage(ctx context.Context, system, user string, img []byte, mimeType string, schema map[string]any) (map[string]any, error)
}

// APIError carries the HTTP status of a failed Gemini call.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gemini http %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

type generateFunc func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

type client struct {
	log      *logger.Logger
	model    string
	timeout  time.Duration
	generate generateFunc
}

func NewClient(ctx context.Context, log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing GEMINI_API_KEY")
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return newClient(log, cfg, gc.Models.GenerateContent), nil
}

func newClient(log *logger.Logger, cfg Config, generate generateFunc) *client {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-2.5-flash"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &client{
		log:      log.With("service", "GeminiClient"),
		model:    model,
		timeout:  timeout,
		generate: generate,
	}
}

func (c *client) Model() string { return c.model }

func (c *client) GenerateJSONWithImage(ctx context.Context, system, user string, img []byte, mimeType string, schema map[string]any) (map[string]any, error) {
	if len(img) == 0 {
		return nil, errors.New("image required")
	}
	if strings.TrimSpace(mimeType) == "" {
		mimeType = http.DetectContentType(img)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0),
		ResponseMIMEType: "application/json",
	}
	if strings.TrimSpace(system) != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if schema != nil {
		cfg.ResponseSchema = SchemaFromJSON(schema)
	}
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(img, mimeType),
			genai.NewPartFromText(user),
		}, genai.RoleUser),
	}

	start := time.Now()
	resp, err := c.generate(ctx, c.model, contents, cfg)
	metrics := observability.Current()
	if err != nil {
		err = mapError(err)
		var apiErr *APIError
		status := observability.StatusLabel(0, err)
		if errors.As(err, &apiErr) {
			status = observability.StatusLabel(apiErr.StatusCode, nil)
		}
		metrics.ObserveSecondaryRequest("gemini", status, time.Since(start), 0, 0)
		return nil, err
	}
	in, out := 0, 0
	if resp != nil && resp.UsageMetadata != nil {
		in = int(resp.UsageMetadata.PromptTokenCount)
		out = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	metrics.ObserveSecondaryRequest("gemini", "200", time.Since(start), in, out)

	text := responseText(resp)
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: gemini returned no text", jsonx.ErrMalformed)
	}
	obj, err := jsonx.DecodeObject(text)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	return obj, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil && !p.Thought {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

func mapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{StatusCode: apiErr.Code, Message: apiErr.Message}
	}
	return err
}

// SchemaFromJSON converts the JSON-schema subset used for structured output
// (type, description, enum, properties, required, items, minimum, maximum).
func SchemaFromJSON(m map[string]any) *genai.Schema {
	if m == nil {
		return nil
	}
	s := &genai.Schema{}
	if t, ok := m["type"].(string); ok {
		switch strings.ToLower(t) {
		case "object":
			s.Type = genai.TypeObject
		case "array":
			s.Type = genai.TypeArray
		case "string":
			s.Type = genai.TypeString
		case "number":
			s.Type = genai.TypeNumber
		case "integer":
			s.Type = genai.TypeInteger
		case "boolean":
			s.Type = genai.TypeBoolean
		}
	}
	if d, ok := m["description"].(string); ok {
		s.Description = d
	}
	s.Enum = stringList(m["enum"])
	s.Required = stringList(m["required"])
	if props, ok := m["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			if pm, ok := raw.(map[string]any); ok {
				s.Properties[name] = SchemaFromJSON(pm)
			}
		}
	}
	if items, ok := m["items"].(map[string]any); ok {
		s.Items = SchemaFromJSON(items)
	}
	if v, ok := m["minimum"].(float64); ok {
		s.Minimum = genai.Ptr(v)
	}
	if v, ok := m["maximum"].(float64); ok {
		s.Maximum = genai.Ptr(v)
	}
	return s
}

func stringList(v any) []string {
	switch vals := v.(type) {
	case []string:
		return append([]string(nil), vals...)
	case []any:
		out := make([]string, 0, len(vals))
		for _, x := range vals {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
