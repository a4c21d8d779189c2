package config

// Default returns a config populated with production defaults. Load starts
// from this and overlays whatever the config file provides.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:   "~/.local/share/vocalis",
			LogDir:    "~/.local/share/vocalis/logs",
			UploadDir: "~/.local/share/vocalis/uploads",
			APIBind:   "127.0.0.1:7710",
		},
		Analysis: Analysis{
			BaseURL:        "http://127.0.0.1:8000",
			RequestTimeout: 30,
			RetryAttempts:  3,
			RetryDelay:     2,
		},
		Artifacts: Artifacts{
			Backend: "fs",
			Minio: Minio{
				Bucket: "vocalis-recordings",
			},
		},
		Queue: Queue{
			MaxAttempts:       3,
			BackoffBase:       2,
			Concurrency:       3,
			PollInterval:      5,
			RateLimit:         10,
			RateWindow:        60,
			SuccessRetention:  86400,
			SuccessMaxCount:   1000,
			FailureRetention:  604800,
			LeaseTimeout:      120,
			ReconcileInterval: 60,
			ReconcileGrace:    300,
		},
		Notifications: Notifications{
			BufferSize: 16,
		},
		Logging: Logging{
			Format: "console",
			Level:  "info",
		},
	}
}
