package analysis

// Prediction is the model verdict for a single recording.
type Prediction struct {
	Condition       string   `json:"condition"`
	Severity        string   `json:"severity,omitempty"`
	Confidence      float64  `json:"confidence"`
	HealthScore     float64  `json:"health_score"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// Result is the response body of a successful analysis call.
type Result struct {
	Success    bool               `json:"success"`
	Features   map[string]float64 `json:"features,omitempty"`
	Prediction Prediction         `json:"prediction"`
	Error      string             `json:"error,omitempty"`
}

// HealthStatus is the response body of the service health probe.
type HealthStatus struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	Version     string `json:"version"`
}
