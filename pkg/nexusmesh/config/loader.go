package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	nmerrors "github.com/randalmurphal/nexusmesh/pkg/nexusmesh/errors"
)

// LoadFile reads a settings file. The format follows the extension:
// .yaml, .yml or .json.
//
// Keys are the names in Defaults; "redis-url" is read as "redis_url". A key
// that names no setting is rejected so a typo cannot fall back to a default.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var raw map[string]any
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	case ".json":
		err = json.Unmarshal(data, &raw)
	default:
		return Config{}, &nmerrors.ValidationError{
			Field:   "config",
			Message: fmt.Sprintf("unsupported file extension %q (want .yaml, .yml or .json)", ext),
		}
	}
	if err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}

	return settingsOnly(raw)
}

// settingsOnly normalizes keys and rejects any that Defaults does not name.
func settingsOnly(raw map[string]any) (Config, error) {
	known := Defaults()
	data := make(map[string]any, len(raw))
	for key, val := range raw {
		norm := strings.ReplaceAll(strings.ToLower(key), "-", "_")
		if _, ok := known[norm]; !ok {
			return Config{}, &nmerrors.ValidationError{Field: key, Message: "unknown setting"}
		}
		data[norm] = val
	}
	return New(data), nil
}
