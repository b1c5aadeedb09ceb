package config

import "time"

type Duration struct {
	Duration time.Duration
}

const (
	EngineMock      = "mock"
	EngineTFServing = "tfserving"
	EngineGCPVision = "gcp_vision"
)

type TFServingConfig struct {
	// BaseURL is the TensorFlow Serving REST endpoint, e.g. http://tfserving:8501.
	BaseURL string `json:"base_url,omitempty"`
	Model   string `json:"model,omitempty"`

	// Labels are the model's output classes in index order. LabelsPath points
	// to a newline-separated labels file and is read when Labels is empty.
	Labels     []string `json:"labels,omitempty"`
	LabelsPath string   `json:"labels_path,omitempty"`

	InputSize int      `json:"input_size,omitempty"`
	TopK      int      `json:"top_k,omitempty"`
	Timeout   Duration `json:"timeout,omitempty"`
	// MaxRetries applies to transient upstream failures only.
	MaxRetries int `json:"max_retries,omitempty"`
}

type GCPVisionConfig struct {
	MaxResults int      `json:"max_results,omitempty"`
	Timeout    Duration `json:"timeout,omitempty"`
}

type MockConfig struct {
	Labels []string `json:"labels,omitempty"`
}

type Config struct {
	Engine    string          `json:"engine"`
	TFServing TFServingConfig `json:"tfserving"`
	GCPVision GCPVisionConfig `json:"gcp_vision"`
	Mock      MockConfig      `json:"mock"`
}
