package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"
)

// managedKeys are changed through the profile methods only.
var managedKeys = map[string]bool{
	"profiles":          true,
	"active_profile_id": true,
}

// Update overlays patch onto the configuration and saves it. Keys are the YAML
// names; nested sections take nested maps and only the keys present change.
func (m *Manager) Update(patch map[string]interface{}) (*Config, error) {
	for key := range patch {
		if managedKeys[key] {
			return nil, fmt.Errorf("%w: %s is managed through profiles", ErrInvalid, key)
		}
	}
	return m.mutate(func(cfg *Config) error {
		return decodePatch(patch, cfg)
	})
}

func decodePatch(patch map[string]interface{}, cfg *Config) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "yaml",
		Result:           cfg,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(patch); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Set updates one dotted key such as "input.click_delay_ms".
func (m *Manager) Set(key string, value interface{}) (*Config, error) {
	parts := strings.Split(key, ".")
	var patch interface{} = value
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] == "" {
			return nil, fmt.Errorf("%w: bad key %q", ErrInvalid, key)
		}
		patch = map[string]interface{}{parts[i]: patch}
	}
	return m.Update(patch.(map[string]interface{}))
}

// Lookup returns the value stored under a dotted key.
func (m *Manager) Lookup(key string) (interface{}, error) {
	tree, err := toTree(m.Get())
	if err != nil {
		return nil, err
	}
	var cur interface{} = tree
	for _, part := range strings.Split(key, ".") {
		node, ok := cur.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("unknown key %q", key)
		}
		if cur, ok = node[part]; !ok {
			return nil, fmt.Errorf("unknown key %q", key)
		}
	}
	return cur, nil
}

// Keys lists every leaf key in dotted form, sorted.
func (m *Manager) Keys() ([]string, error) {
	tree, err := toTree(m.Get())
	if err != nil {
		return nil, err
	}
	var keys []string
	var walk func(prefix string, node map[string]interface{})
	walk = func(prefix string, node map[string]interface{}) {
		for k, v := range node {
			if child, ok := v.(map[string]interface{}); ok {
				walk(prefix+k+".", child)
				continue
			}
			keys = append(keys, prefix+k)
		}
	}
	walk("", tree)
	sort.Strings(keys)
	return keys, nil
}

func toTree(cfg *Config) (map[string]interface{}, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	tree := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}
