package achievements

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/aimd54/streakd/internal/models"
)

//go:embed catalog.yaml
var catalogYAML []byte

// Scope tells whether an achievement records the habit that triggered it.
type Scope string

const (
	ScopeUser  Scope = "user"
	ScopeHabit Scope = "habit"
)

// Definition is the display metadata of one achievement type.
type Definition struct {
	Type        models.AchievementType `yaml:"type" json:"type"`
	Name        string                 `yaml:"name" json:"name"`
	Icon        string                 `yaml:"icon" json:"icon"`
	Description string                 `yaml:"description" json:"description"`
	Scope       Scope                  `yaml:"scope" json:"scope"`
}

// Catalog is the ordered, closed set of achievement definitions.
type Catalog struct {
	Definitions []Definition `yaml:"achievements"`
	byType      map[models.AchievementType]Definition
}

// LoadCatalog parses data and checks it covers exactly the known types.
func LoadCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse achievement catalog: %w", err)
	}

	c.byType = make(map[models.AchievementType]Definition, len(c.Definitions))
	for _, def := range c.Definitions {
		if !def.Type.Valid() {
			return nil, fmt.Errorf("unknown achievement type %q in catalog", def.Type)
		}
		if _, dup := c.byType[def.Type]; dup {
			return nil, fmt.Errorf("duplicate achievement type %q in catalog", def.Type)
		}
		if def.Scope != ScopeUser && def.Scope != ScopeHabit {
			return nil, fmt.Errorf("achievement %q has invalid scope %q", def.Type, def.Scope)
		}
		c.byType[def.Type] = def
	}
	for _, t := range models.AllAchievementTypes {
		if _, ok := c.byType[t]; !ok {
			return nil, fmt.Errorf("achievement %q missing from catalog", t)
		}
	}
	return &c, nil
}

// DefaultCatalog returns the embedded catalog. It panics on a malformed
// embedded file, which tests catch.
func DefaultCatalog() *Catalog {
	c, err := LoadCatalog(catalogYAML)
	if err != nil {
		panic(err)
	}
	return c
}

// Lookup returns the definition of t.
func (c *Catalog) Lookup(t models.AchievementType) (Definition, bool) {
	def, ok := c.byType[t]
	return def, ok
}

// HabitScoped reports whether t records a habit reference.
func (c *Catalog) HabitScoped(t models.AchievementType) bool {
	return c.byType[t].Scope == ScopeHabit
}
