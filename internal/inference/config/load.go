package config

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" {
		d.Duration = 0
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		u, err := strconv.Unquote(s)
		if err != nil {
			return err
		}
		if strings.TrimSpace(u) == "" {
			d.Duration = 0
			return nil
		}
		dd, err := time.ParseDuration(u)
		if err != nil {
			return err
		}
		d.Duration = dd
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("duration must be a JSON string like \"5s\" or an int nanoseconds: %w", err)
	}
	d.Duration = time.Duration(n)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

func defaultConfig() *Config {
	return &Config{
		Engine: EngineMock,
		TFServing: TFServingConfig{
			Model:      "waste_classifier",
			InputSize:  224,
			TopK:       3,
			Timeout:    Duration{Duration: 10 * time.Second},
			MaxRetries: 1,
		},
		GCPVision: GCPVisionConfig{
			MaxResults: 10,
			Timeout:    Duration{Duration: 15 * time.Second},
		},
	}
}

// Load builds the engine config from defaults, then INFERENCE_CONFIG_PATH (JSON),
// then individual environment overrides.
func Load() (*Config, error) {
	cfg := defaultConfig()

	if path := strings.TrimSpace(os.Getenv("INFERENCE_CONFIG_PATH")); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if v := strings.TrimSpace(os.Getenv("PRIMARY_ENGINE")); v != "" {
		cfg.Engine = v
	}
	if v := strings.TrimSpace(os.Getenv("TFSERVING_URL")); v != "" {
		cfg.TFServing.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("TFSERVING_MODEL")); v != "" {
		cfg.TFServing.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("TFSERVING_LABELS")); v != "" {
		cfg.TFServing.LabelsPath = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate normalizes defaults and checks the selected engine has what it needs.
// Labels files are read here so a missing file fails at startup.
func (c *Config) Validate() error {
	c.Engine = strings.ToLower(strings.TrimSpace(c.Engine))
	if c.Engine == "" {
		c.Engine = EngineMock
	}
	if c.TFServing.InputSize <= 0 {
		c.TFServing.InputSize = 224
	}
	if c.TFServing.TopK <= 0 {
		c.TFServing.TopK = 3
	}
	if c.TFServing.MaxRetries < 0 {
		c.TFServing.MaxRetries = 0
	}
	if c.TFServing.MaxRetries > 1 {
		c.TFServing.MaxRetries = 1
	}
	switch c.Engine {
	case EngineMock, EngineGCPVision:
		return nil
	case EngineTFServing:
		if strings.TrimSpace(c.TFServing.BaseURL) == "" {
			return fmt.Errorf("tfserving engine requires base_url (TFSERVING_URL)")
		}
		if len(c.TFServing.Labels) == 0 && strings.TrimSpace(c.TFServing.LabelsPath) != "" {
			labels, err := ReadLabels(c.TFServing.LabelsPath)
			if err != nil {
				return err
			}
			c.TFServing.Labels = labels
		}
		if len(c.TFServing.Labels) == 0 {
			return fmt.Errorf("tfserving engine requires labels or labels_path")
		}
		return nil
	default:
		return fmt.Errorf("unsupported engine type %q", c.Engine)
	}
}

// ReadLabels reads one label per line, skipping blanks and # comments.
func ReadLabels(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read labels %s: %w", path, err)
	}
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(raw))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, sc.Err()
}
