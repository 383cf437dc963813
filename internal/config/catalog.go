package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Catalog holds the data-driven members of the allowed pub/sub topic
// set named in spec.md §3/§4.2. The *shape* of validation is fixed in
// Go (a topic must be in this list or the request is rejected); only
// the membership is loaded from YAML via gopkg.in/yaml.v3. Tool kinds
// are not part of the catalog: they are a closed set fixed in Go
// (store.ToolCategory).
type Catalog struct {
	Topics []string `yaml:"topics"`
}

// DefaultCatalog is used when no catalog file is configured. It
// matches the topic examples used throughout spec.md (§4.4 S2 seed
// scenario uses "api_endpoint_created").
func DefaultCatalog() *Catalog {
	return &Catalog{
		Topics: []string{
			"api_endpoint_created",
			"schema_changed",
			"build_failed",
			"build_succeeded",
			"deployment_started",
			"deployment_completed",
			"test_failed",
			"review_requested",
			"review_completed",
			"task_escalation",
		},
	}
}

// LoadCatalog reads the topic catalog from a YAML file. A missing
// path falls back to DefaultCatalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultCatalog(), nil
	}
	if err != nil {
		return nil, err
	}
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, err
	}
	if len(cat.Topics) == 0 {
		return DefaultCatalog(), nil
	}
	return &cat, nil
}

// IsAllowedTopic reports whether topic is in the catalog's closed set.
func (c *Catalog) IsAllowedTopic(topic string) bool {
	for _, t := range c.Topics {
		if t == topic {
			return true
		}
	}
	return false
}
