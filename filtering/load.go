package filtering

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a filter configuration from a JSON or YAML file. The format
// is chosen by extension; anything other than .yaml/.yml is read as JSON.
func LoadFile(path string) (Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Info{}, fmt.Errorf("could not read filter file: %w", err)
	}
	return Decode(data, filepath.Ext(path))
}

// Decode parses a filter configuration and validates every pattern.
func Decode(data []byte, ext string) (Info, error) {
	var info Info
	if len(bytes.TrimSpace(data)) == 0 {
		return info, nil
	}
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &info); err != nil {
			return Info{}, fmt.Errorf("invalid filter file format: %w", err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&info); err != nil {
			return Info{}, fmt.Errorf("invalid filter file format: %w", err)
		}
	}
	if err := info.Validate(); err != nil {
		return Info{}, err
	}
	return info, nil
}
