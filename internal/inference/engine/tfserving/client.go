package tfserving

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/yungbote/recycleright-backend/internal/domain/waste"
	"github.com/yungbote/recycleright-backend/internal/inference/config"
	"github.com/yungbote/recycleright-backend/internal/inference/engine"
	"github.com/yungbote/recycleright-backend/internal/inference/imageio"
	"github.com/yungbote/recycleright-backend/internal/platform/httpx"
)

// Engine calls a TensorFlow Serving REST endpoint hosting the waste classifier.
type Engine struct {
	baseURL    string
	model      string
	labels     []string
	inputSize  int
	topK       int
	timeout    time.Duration
	maxRetries int

	httpClient *http.Client
}

func New(cfg config.TFServingConfig) (*Engine, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("tfserving: base_url required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, errors.New("tfserving: model required")
	}
	if len(cfg.Labels) == 0 {
		return nil, errors.New("tfserving: labels required")
	}
	timeout := cfg.Timeout.Duration
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	size := cfg.InputSize
	if size <= 0 {
		size = 224
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = 3
	}
	return &Engine{
		baseURL:    baseURL,
		model:      model,
		labels:     append([]string(nil), cfg.Labels...),
		inputSize:  size,
		topK:       topK,
		timeout:    timeout,
		maxRetries: cfg.MaxRetries,
		httpClient: &http.Client{Transport: httpx.NewTransport()},
	}, nil
}

// NewWithHTTPClient is intended for tests; it avoids network access by using a custom RoundTripper.
func NewWithHTTPClient(cfg config.TFServingConfig, httpClient *http.Client) (*Engine, error) {
	e, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if httpClient != nil {
		e.httpClient = httpClient
	}
	return e, nil
}

func (e *Engine) Name() string { return "tfserving:" + e.model }

func (e *Engine) Close() error {
	if t, ok := e.httpClient.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
	return nil
}

type modelStatusResponse struct {
	ModelVersionStatus []struct {
		Version string `json:"version"`
		State   string `json:"state"`
	} `json:"model_version_status"`
}

// Ready checks that at least one version of the model is AVAILABLE.
func (e *Engine) Ready(ctx context.Context) error {
	var resp modelStatusResponse
	if err := e.doJSON(ctx, http.MethodGet, "/v1/models/"+e.model, nil, &resp); err != nil {
		return fmt.Errorf("%w: %v", engine.ErrModelUnavailable, err)
	}
	for _, v := range resp.ModelVersionStatus {
		if strings.EqualFold(v.State, "AVAILABLE") {
			return nil
		}
	}
	return fmt.Errorf("%w: model %s has no available version", engine.ErrModelUnavailable, e.model)
}

type predictRequest struct {
	Instances [][][][3]float32 `json:"instances"`
}

type predictResponse struct {
	Predictions [][]float64 `json:"predictions"`
}

func (e *Engine) Infer(ctx context.Context, img []byte) (engine.Prediction, error) {
	decoded, _, err := imageio.Decode(img)
	if err != nil {
		return engine.Prediction{}, err
	}
	req := predictRequest{Instances: [][][][3]float32{imageio.Tensor(decoded, e.inputSize, imageio.ImageNet)}}

	var resp predictResponse
	attempts := 1 + e.maxRetries
	for attempt := 1; attempt <= attempts; attempt++ {
		err = e.doJSON(ctx, http.MethodPost, "/v1/models/"+e.model+":predict", req, &resp)
		if err == nil {
			break
		}
		if attempt == attempts || !httpx.IsRetryableError(err) {
			return engine.Prediction{}, err
		}
		if serr := httpx.Sleep(ctx, httpx.JitterSleep(200*time.Millisecond)); serr != nil {
			return engine.Prediction{}, serr
		}
	}
	if len(resp.Predictions) == 0 {
		return engine.Prediction{}, errors.New("tfserving: empty predictions")
	}
	scores := resp.Predictions[0]
	if len(scores) != len(e.labels) {
		return engine.Prediction{}, fmt.Errorf("tfserving: got %d scores for %d labels", len(scores), len(e.labels))
	}
	return rank(e.labels, probabilities(scores), e.topK), nil
}

// probabilities passes softmax outputs through and applies softmax to logits.
func probabilities(scores []float64) []float64 {
	sum := 0.0
	isProb := true
	for _, s := range scores {
		if s < 0 || s > 1 {
			isProb = false
		}
		sum += s
	}
	if isProb && math.Abs(sum-1) < 1e-3 {
		return scores
	}
	max := math.Inf(-1)
	for _, s := range scores {
		if s > max {
			max = s
		}
	}
	out := make([]float64, len(scores))
	total := 0.0
	for i, s := range scores {
		out[i] = math.Exp(s - max)
		total += out[i]
	}
	for i := range out {
		out[i] /= total
	}
	return out
}

func rank(labels []string, probs []float64, topK int) engine.Prediction {
	cands := make([]waste.Candidate, len(labels))
	for i := range labels {
		cands[i] = waste.Candidate{Label: labels[i], Confidence: probs[i]}
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].Confidence > cands[j].Confidence })
	if len(cands) > topK {
		cands = cands[:topK]
	}
	return engine.Prediction{Label: cands[0].Label, Confidence: cands[0].Confidence, Candidates: cands}
}

func (e *Engine) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	ctx2, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx2, method, e.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
