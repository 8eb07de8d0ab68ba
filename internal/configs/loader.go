package configs

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/glassflow/glassflow-cep/internal/models"
)

type ConfigLoader[C any] struct {
	filePath string
}

func NewConfigLoader[C any](filePath string) (zero *ConfigLoader[C], _ error) {
	if len(filePath) == 0 {
		return zero, fmt.Errorf("config file path is empty")
	}
	return &ConfigLoader[C]{
		filePath: filePath,
	}, nil
}

// Load reads the file as YAML when its extension is .yaml or .yml and as JSON
// otherwise. Unknown keys are rejected.
func (cl *ConfigLoader[C]) Load() (zero C, _ error) {
	data, err := os.ReadFile(cl.filePath)
	if err != nil {
		return zero, fmt.Errorf("failed to read config file: %w", err)
	}

	var config C
	switch strings.ToLower(filepath.Ext(cl.filePath)) {
	case ".yaml", ".yml":
		err = Unmarshal(data, FormatYAML, &config)
	default:
		err = Unmarshal(data, FormatJSON, &config)
	}
	if err != nil {
		return zero, fmt.Errorf("failed to unmarshal config file: %w", err)
	}

	return config, nil
}

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

func Unmarshal(data []byte, format Format, v any) error {
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		return dec.Decode(v)
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		return dec.Decode(v)
	default:
		return fmt.Errorf("unsupported config format %q", format)
	}
}

// LoadAdapterConfig loads an adapter definition and fills its defaults.
func LoadAdapterConfig(filePath string) (zero models.AdapterConfig, _ error) {
	loader, err := NewConfigLoader[models.AdapterConfig](filePath)
	if err != nil {
		return zero, err
	}

	cfg, err := loader.Load()
	if err != nil {
		return zero, err
	}

	return cfg.WithDefaults(), nil
}
