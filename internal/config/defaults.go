package config

import "time"

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Gateway: GatewayConfig{
			Host:      "",
			Port:      8080,
			Path:      "/",
			ReadLimit: 64 << 10,
		},
		Store: StoreConfig{
			APIBase: "https://api.airtable.com/v0",
			Timeout: Duration(30 * time.Second),
		},
		Classifier: ClassifierConfig{
			Mode:     "model",
			Provider: "gemini",
		},
		Providers: map[string]ProviderConfig{
			"gemini": {
				Enabled:      true,
				APIBase:      "https://generativelanguage.googleapis.com/v1beta",
				DefaultModel: "gemini-2.0-flash",
			},
			"openai": {
				Enabled:      false,
				APIBase:      "https://api.openai.com/v1",
				DefaultModel: "gpt-4o-mini",
			},
			"ollama": {
				Enabled:      false,
				APIBase:      "http://localhost:11434",
				DefaultModel: "llama3.1:8b",
			},
		},
		Relay: RelayConfig{
			GatewayURL:     "ws://localhost:8080",
			TargetThreadID: 2,
			ReconnectDelay: Duration(5 * time.Second),
			PollTimeout:    30,
			Replies:        true,
			MetricsAddr:    "127.0.0.1:9091",
		},
		Audit: AuditConfig{
			Enabled: true,
			DBPath:  "~/.ticketrelay/audit.db",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}
