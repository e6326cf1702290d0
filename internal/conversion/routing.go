package conversion

import (
	"encoding/json"
	"os"
	"reflect"
	"sort"

	"scanflow/internal/services"
)

// RoutingConfig is the converter routing configuration reduced to its
// recognized metadata criteria. Keys keeps first-seen order so fingerprints
// built from different sidecars compare positionally.
type RoutingConfig struct {
	// Criteria is the unique set of criteria objects across all
	// description blocks.
	Criteria []map[string]any
	// Keys is the union of criteria keys in first-seen order.
	Keys []string
	// Values holds one ordered value tuple per criteria entry, aligned
	// with Keys; a criteria entry missing a key contributes nil.
	Values []Fingerprint
}

type routingFile struct {
	Descriptions []struct {
		Criteria map[string]any `json:"criteria"`
	} `json:"descriptions"`
}

// LoadRoutingConfig reads a routing configuration and derives the unique
// criteria set, ordered key list, and value tuples. Missing or malformed
// configuration is fatal.
func LoadRoutingConfig(path string) (*RoutingConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, services.Wrap(
			services.ErrConfig, "conversion", "load routing config",
			"unable to read routing config "+path, err)
	}
	var parsed routingFile
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, services.Wrap(
			services.ErrConfig, "conversion", "load routing config",
			"malformed routing config "+path, err)
	}

	cfg := &RoutingConfig{}
	for _, description := range parsed.Descriptions {
		if description.Criteria == nil {
			continue
		}
		if !cfg.ContainsCriteria(description.Criteria) {
			cfg.Criteria = append(cfg.Criteria, description.Criteria)
		}
	}
	// Keys are gathered per criteria in sorted order so the derived tuple
	// layout is stable across runs.
	for _, criteria := range cfg.Criteria {
		names := make([]string, 0, len(criteria))
		for key := range criteria {
			names = append(names, key)
		}
		sort.Strings(names)
		for _, key := range names {
			if !containsKey(cfg.Keys, key) {
				cfg.Keys = append(cfg.Keys, key)
			}
		}
	}
	for _, criteria := range cfg.Criteria {
		tuple := make(Fingerprint, 0, len(cfg.Keys))
		for _, key := range cfg.Keys {
			tuple = append(tuple, criteria[key])
		}
		if !containsFingerprint(cfg.Values, tuple) {
			cfg.Values = append(cfg.Values, tuple)
		}
	}
	return cfg, nil
}

// ContainsCriteria reports whether the exact criteria object appears in the
// configuration.
func (c *RoutingConfig) ContainsCriteria(criteria map[string]any) bool {
	for _, known := range c.Criteria {
		if reflect.DeepEqual(known, criteria) {
			return true
		}
	}
	return false
}

func containsKey(keys []string, key string) bool {
	for _, known := range keys {
		if known == key {
			return true
		}
	}
	return false
}

func containsFingerprint(values []Fingerprint, tuple Fingerprint) bool {
	for _, known := range values {
		if known.Equal(tuple) {
			return true
		}
	}
	return false
}
