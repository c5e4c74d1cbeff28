package analysis

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/oa-knowledge-pipeline/internal/core/domain"
)

//go:embed requirements.yaml
var requirementsYAML []byte

// CategoryRequirements describes the prompt emphasis and the structured
// metadata fields requested for one business category.
type CategoryRequirements struct {
	Label          string   `yaml:"label"`
	Emphasis       string   `yaml:"emphasis"`
	MetadataFields []string `yaml:"metadata_fields"`
}

type Requirements map[domain.BusinessCategory]CategoryRequirements

// LoadRequirements parses the embedded per-category requirement blocks and
// checks every known category is covered.
func LoadRequirements() (Requirements, error) {
	var file struct {
		Categories map[string]CategoryRequirements `yaml:"categories"`
	}
	if err := yaml.Unmarshal(requirementsYAML, &file); err != nil {
		return nil, fmt.Errorf("parse category requirements: %w", err)
	}

	reqs := make(Requirements, len(file.Categories))
	for name, req := range file.Categories {
		reqs[domain.BusinessCategory(name)] = req
	}
	for _, category := range domain.AllCategories() {
		if _, ok := reqs[category]; !ok {
			return nil, fmt.Errorf("category requirements missing for %s", category)
		}
	}
	return reqs, nil
}
