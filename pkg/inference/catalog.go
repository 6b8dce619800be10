package inference

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultContextTokens is assumed for models missing from the catalog.
const DefaultContextTokens = 2048

// Catalog is the model descriptor source: a YAML list of models with their
// display names and context budgets.
//
//	models:
//	  - id: llama3:8b
//	    name: Llama 3 8B
//	    context_tokens: 8192
type Catalog struct {
	Models []ModelDescriptor `yaml:"models"`
}

func LoadCatalog(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read model catalog %s", path)
	}
	return ParseCatalog(b)
}

func ParseCatalog(b []byte) (*Catalog, error) {
	ret := &Catalog{}
	if err := yaml.Unmarshal(b, ret); err != nil {
		return nil, errors.Wrap(err, "could not parse model catalog")
	}
	return ret, nil
}

// Lookup returns the descriptor for id. Unknown models get a descriptor with
// the default context budget so generation can still proceed.
func (c *Catalog) Lookup(id string) ModelDescriptor {
	for _, m := range c.Models {
		if m.ID == id {
			if m.ContextTokens <= 0 {
				m.ContextTokens = DefaultContextTokens
			}
			return m
		}
	}
	return ModelDescriptor{
		ID:            id,
		Name:          id,
		ContextTokens: DefaultContextTokens,
	}
}
