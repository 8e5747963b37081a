package main

import (
	"fmt"

	"ticketrelay/internal/airtable"
	"ticketrelay/internal/audit"
	"ticketrelay/internal/classify"
	"ticketrelay/internal/config"
	"ticketrelay/internal/provider"
	"ticketrelay/internal/schema"
)

// buildClassifier returns the configured classifier. A model classifier whose
// backend has no credentials degrades to the keyword rules.
func buildClassifier(cfg *config.Config) (classify.Classifier, error) {
	rules := func() (classify.Classifier, error) {
		set := classify.DefaultRules()
		if cfg.Classifier.RulesFile != "" {
			loaded, err := classify.LoadRules(cfg.Classifier.RulesFile)
			if err != nil {
				return nil, err
			}
			set = loaded
		}
		return classify.NewRules(set, logger), nil
	}

	if cfg.Classifier.Mode == "rules" {
		logger.Info("classifier", "mode", "rules")
		return rules()
	}

	name := cfg.Classifier.Provider
	pc := cfg.Providers[name]
	if pc.APIKey == "" && name != "ollama" {
		logger.Warn("classifier backend has no API key, using keyword rules", "provider", name)
		return rules()
	}
	p, err := provider.NewFactory(cfg.Providers, logger).Get(name)
	if err != nil {
		return nil, fmt.Errorf("classifier backend: %w", err)
	}
	logger.Info("classifier", "mode", "model", "provider", name, "model", pc.DefaultModel)
	return classify.NewModel(classify.ModelConfig{Provider: p, Model: pc.DefaultModel, Logger: logger}), nil
}

func buildStore(cfg *config.Config) (*airtable.Client, *schema.Discoverer) {
	client := airtable.NewClient(airtable.Config{
		APIBase: cfg.Store.APIBase,
		APIKey:  cfg.Store.APIKey,
		BaseID:  cfg.Store.BaseID,
		Timeout: cfg.Store.Timeout.Std(),
		Logger:  logger,
	})
	discoverer := schema.NewDiscoverer(schema.Config{
		Lister: client,
		TTL:    cfg.Store.CacheTTL.Std(),
		Logger: logger,
	})
	return client, discoverer
}

func openLedger(cfg *config.Config) (*audit.SQLiteStore, error) {
	if !cfg.Audit.Enabled {
		return nil, nil
	}
	store, err := audit.NewSQLiteStore(cfg.Audit.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("audit store: %w", err)
	}
	return store, nil
}
