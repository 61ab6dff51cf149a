package providers

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

// CatalogItem describes one provider choice for pickers.
type CatalogItem struct {
	Value       Type   `yaml:"value"`
	Label       string `yaml:"label"`
	Description string `yaml:"description"`
	Detail      string `yaml:"detail"`
}

type catalogFile struct {
	Providers []CatalogItem `yaml:"providers"`
}

// Catalog returns the provider picker entries in display order.
func Catalog() ([]CatalogItem, error) {
	var file catalogFile
	if err := yaml.Unmarshal(catalogYAML, &file); err != nil {
		return nil, fmt.Errorf("failed to parse provider catalog: %w", err)
	}
	return file.Providers, nil
}
