package config

import "encoding/json"

// Sanitize returns a deep copy of cfg with secrets masked, safe for display.
func Sanitize(cfg *Config) *Config {
	data, err := json.Marshal(cfg)
	if err != nil {
		return cfg
	}
	var copy Config
	if err := json.Unmarshal(data, &copy); err != nil {
		return cfg
	}

	for name, prov := range copy.Providers {
		if prov.APIKey != "" {
			prov.APIKey = maskString(prov.APIKey)
		}
		copy.Providers[name] = prov
	}
	if copy.Store.APIKey != "" {
		copy.Store.APIKey = maskString(copy.Store.APIKey)
	}
	if copy.Relay.Token != "" {
		copy.Relay.Token = maskString(copy.Relay.Token)
	}
	return &copy
}

// maskString shows first 4 and last 4 chars, masks the rest.
func maskString(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
