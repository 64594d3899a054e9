package clinic

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

// DecodeCatalogs parses either a single catalog object or an array of them
// and validates each one.
func DecodeCatalogs(data []byte) ([]*Config, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("clinic: empty catalog")
	}

	var cfgs []*Config
	if data[0] == '[' {
		if err := json.Unmarshal(data, &cfgs); err != nil {
			return nil, fmt.Errorf("clinic: decode catalogs: %w", err)
		}
	} else {
		var cfg Config
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("clinic: decode catalog: %w", err)
		}
		cfgs = append(cfgs, &cfg)
	}

	for _, cfg := range cfgs {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("clinic: catalog %q: %w", cfg.ClinicID, err)
		}
	}
	return cfgs, nil
}

// LoadFile reads catalogs from a JSON file.
func LoadFile(path string) ([]*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("clinic: read %s: %w", path, err)
	}
	return DecodeCatalogs(data)
}

// NewStaticSource indexes catalogs by clinic id.
func NewStaticSource(cfgs []*Config) StaticSource {
	src := make(StaticSource, len(cfgs))
	for _, cfg := range cfgs {
		src[cfg.ClinicID] = cfg
	}
	return src
}
