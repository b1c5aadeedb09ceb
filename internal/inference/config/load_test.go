package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDurationUnmarshal(t *testing.T) {
	var v struct {
		A Duration `json:"a"`
		B Duration `json:"b"`
	}
	if err := json.Unmarshal([]byte(`{"a":"250ms","b":1000}`), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.A.Duration != 250*time.Millisecond || v.B.Duration != time.Microsecond {
		t.Fatalf("got a=%v b=%v", v.A.Duration, v.B.Duration)
	}
}

func TestLoadDefaultsToMock(t *testing.T) {
	t.Setenv("INFERENCE_CONFIG_PATH", "")
	t.Setenv("PRIMARY_ENGINE", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine != EngineMock {
		t.Fatalf("engine=%q", cfg.Engine)
	}
}

func TestLoadTFServingFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	labels := filepath.Join(dir, "labels.txt")
	if err := os.WriteFile(labels, []byte("# classes\nglass\n\npaper\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfgPath := filepath.Join(dir, "inference.json")
	body := `{"engine":"tfserving","tfserving":{"model":"wc","timeout":"2s","max_retries":5}}`
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("INFERENCE_CONFIG_PATH", cfgPath)
	t.Setenv("PRIMARY_ENGINE", "")
	t.Setenv("TFSERVING_URL", "http://tfs:8501")
	t.Setenv("TFSERVING_MODEL", "")
	t.Setenv("TFSERVING_LABELS", labels)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TFServing.BaseURL != "http://tfs:8501" || cfg.TFServing.Model != "wc" {
		t.Fatalf("tfserving=%+v", cfg.TFServing)
	}
	if len(cfg.TFServing.Labels) != 2 || cfg.TFServing.Labels[1] != "paper" {
		t.Fatalf("labels=%v", cfg.TFServing.Labels)
	}
	if cfg.TFServing.Timeout.Duration != 2*time.Second || cfg.TFServing.MaxRetries != 1 {
		t.Fatalf("timeout=%v retries=%d", cfg.TFServing.Timeout.Duration, cfg.TFServing.MaxRetries)
	}
	if cfg.TFServing.InputSize != 224 {
		t.Fatalf("input size default lost: %d", cfg.TFServing.InputSize)
	}
}

func TestValidateRejectsUnknownEngine(t *testing.T) {
	cfg := &Config{Engine: "tflite"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error")
	}
	cfg = &Config{Engine: EngineTFServing}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected missing base_url error")
	}
}
