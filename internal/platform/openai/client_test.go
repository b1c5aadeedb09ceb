package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/yungbote/recycleright-backend/internal/platform/httpx"
	"github.com/yungbote/recycleright-backend/internal/platform/logger"
)

type roundTripperFunc func(req *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func respond(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

const okBody = `{"output":[{"type":"message","role":"assistant","content":[{"type":"output_text","text":"{\"category\":\"glass_bottle\",\"confidence\":0.9}"}]}],"usage":{"input_tokens":12,"output_tokens":4}}`

func TestGenerateJSONWithImages(t *testing.T) {
	hc := &http.Client{Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/v1/responses" {
			t.Fatalf("path=%s", req.URL.Path)
		}
		if got := req.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Fatalf("auth=%q", got)
		}
		var in map[string]any
		if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
			t.Fatalf("decode: %v", err)
		}
		raw, _ := json.Marshal(in["input"])
		if !strings.Contains(string(raw), `"input_image"`) || !strings.Contains(string(raw), "data:image/png;base64,") {
			t.Fatalf("image not attached: %s", raw)
		}
		return respond(http.StatusOK, okBody), nil
	})}
	c, err := NewClientWithHTTPClient(logger.Nop(), Config{APIKey: "sk-test", BaseURL: "http://oai"}, hc)
	if err != nil {
		t.Fatal(err)
	}
	obj, err := c.GenerateJSONWithImages(context.Background(), "sys", "what is this",
		[]ImageInput{{ImageURL: DataURL("image/png", []byte{1, 2, 3})}},
		"waste", map[string]any{"type": "object"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if obj["category"] != "glass_bottle" {
		t.Fatalf("obj=%v", obj)
	}
}

func TestTemperatureFallback(t *testing.T) {
	var calls int32
	hc := &http.Client{Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		n := atomic.AddInt32(&calls, 1)
		var in map[string]any
		_ = json.NewDecoder(req.Body).Decode(&in)
		if n == 1 {
			if _, ok := in["temperature"]; !ok {
				t.Fatalf("first call should carry temperature")
			}
			return respond(http.StatusBadRequest, `{"error":{"message":"Unsupported parameter: 'temperature'"}}`), nil
		}
		if _, ok := in["temperature"]; ok {
			t.Fatalf("retry should drop temperature")
		}
		return respond(http.StatusOK, okBody), nil
	})}
	temp := 0.0
	c, _ := NewClientWithHTTPClient(logger.Nop(), Config{APIKey: "k", Temperature: &temp}, hc)
	if _, err := c.GenerateJSONWithImages(context.Background(), "s", "u", nil, "n", map[string]any{}); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls=%d", calls)
	}
}

func TestHTTPErrorIsClassified(t *testing.T) {
	hc := &http.Client{Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		return respond(http.StatusTooManyRequests, `{"error":"slow down"}`), nil
	})}
	c, _ := NewClientWithHTTPClient(logger.Nop(), Config{APIKey: "k"}, hc)
	_, err := c.GenerateJSONWithImages(context.Background(), "s", "u", nil, "n", map[string]any{})
	var sc httpx.HTTPStatusCoder
	if !errors.As(err, &sc) || sc.HTTPStatusCode() != http.StatusTooManyRequests {
		t.Fatalf("err=%v", err)
	}
	if !httpx.IsRetryableError(err) {
		t.Fatalf("429 should be retryable")
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(logger.Nop(), Config{}); err == nil {
		t.Fatalf("expected missing key error")
	}
}
