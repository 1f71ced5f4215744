package achievement

import (
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/trezcool/podium/core"
	appfs "github.com/trezcool/podium/fs"
)

const (
	maskedName        = "???"
	maskedDescription = "Keep going to unlock this secret achievement."
)

// Catalog is the ordered, read-only set of achievement definitions.
// The order of the source file is the evaluation order.
type Catalog struct {
	defs []Definition
	byID map[string]int
}

type catalogFile struct {
	Achievements []Definition `yaml:"achievements"`
}

// LoadCatalog parses and validates a YAML catalog.
func LoadCatalog(data []byte, validate *validator.Validate, translator ut.Translator) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrap(err, "parsing catalog")
	}
	if err := validateDefinitions(file.Achievements, validate, translator); err != nil {
		return nil, err
	}
	return NewCatalog(file.Achievements), nil
}

// LoadCatalogFile reads the catalog at path, see LoadCatalog.
func LoadCatalogFile(path string, validate *validator.Validate, translator ut.Translator) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading catalog")
	}
	return LoadCatalog(data, validate, translator)
}

// LoadConfiguredCatalog loads the configured catalog file, or the embedded default catalog when none is configured.
func LoadConfiguredCatalog(conf *core.Config, validate *validator.Validate, translator ut.Translator) (*Catalog, error) {
	if path := conf.Achievements.CatalogPath; path != "" {
		return LoadCatalogFile(path, validate, translator)
	}
	return LoadCatalog(appfs.DefaultCatalog, validate, translator)
}

// NewCatalog builds a catalog from already validated definitions.
func NewCatalog(defs []Definition) *Catalog {
	cat := &Catalog{
		defs: make([]Definition, len(defs)),
		byID: make(map[string]int, len(defs)),
	}
	copy(cat.defs, defs)
	for i, def := range cat.defs {
		cat.byID[def.ID] = i
	}
	return cat
}

// Definitions returns a copy of every definition, in catalog order.
func (cat *Catalog) Definitions() []Definition {
	defs := make([]Definition, len(cat.defs))
	copy(defs, cat.defs)
	return defs
}

func (cat *Catalog) Get(id string) (Definition, bool) {
	i, ok := cat.byID[id]
	if !ok {
		return Definition{}, false
	}
	return cat.defs[i], true
}

func (cat *Catalog) Len() int {
	return len(cat.defs)
}

// Public lists the catalog as shown to users: hidden definitions keep their slot but are masked.
func (cat *Catalog) Public() []Definition {
	return lo.Map(cat.defs, func(def Definition, _ int) Definition {
		if def.IsHidden {
			return def.Masked()
		}
		return def
	})
}

// Masked hides what a secret achievement is about.
func (def Definition) Masked() Definition {
	def.Name = maskedName
	def.Description = maskedDescription
	def.Type = ""
	def.Threshold = 0
	return def
}
