// Package catalog loads mission, badge and platform benefit definitions.
//
// The catalog is read once at startup and synchronised into the database;
// it is never mutated by user activity.
package catalog

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dukerupert/freelancequest/internal/badge"
	"github.com/dukerupert/freelancequest/internal/cadence"
)

//go:embed default.yaml
var defaultCatalog []byte

type Mission struct {
	Code        string   `yaml:"code"`
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	Cadence     string   `yaml:"cadence"`
	GoalCount   int      `yaml:"goal_count"`
	XPReward    int      `yaml:"xp_reward"`
	PointReward int      `yaml:"point_reward"`
	Triggers    []string `yaml:"triggers"`
	Active      *bool    `yaml:"active"`
}

// IsActive defaults to true when the field is omitted.
func (m Mission) IsActive() bool {
	return m.Active == nil || *m.Active
}

type Badge struct {
	Code        string     `yaml:"code"`
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Icon        string     `yaml:"icon"`
	Rule        badge.Rule `yaml:"rule"`
}

type Benefit struct {
	Code        string `yaml:"code"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Cost        int64  `yaml:"cost"`
}

type Catalog struct {
	Missions []Mission `yaml:"missions"`
	Badges   []Badge   `yaml:"badges"`
	Benefits []Benefit `yaml:"benefits"`
}

// Default returns the catalog compiled into the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalog file. An empty path loads the default catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks codes are unique and every definition is well formed.
func (c *Catalog) Validate() error {
	seen := make(map[string]bool)
	for _, m := range c.Missions {
		if m.Code == "" {
			return fmt.Errorf("mission without code")
		}
		if seen[m.Code] {
			return fmt.Errorf("duplicate mission code %q", m.Code)
		}
		seen[m.Code] = true

		if !cadence.Cadence(m.Cadence).Valid() {
			return fmt.Errorf("mission %s: unknown cadence %q", m.Code, m.Cadence)
		}
		if m.GoalCount < 1 {
			return fmt.Errorf("mission %s: goal_count must be positive", m.Code)
		}
		if m.XPReward < 0 || m.PointReward < 0 {
			return fmt.Errorf("mission %s: rewards must not be negative", m.Code)
		}
		if len(m.Triggers) == 0 {
			return fmt.Errorf("mission %s: at least one trigger is required", m.Code)
		}
	}

	seen = make(map[string]bool)
	for _, b := range c.Badges {
		if b.Code == "" {
			return fmt.Errorf("badge without code")
		}
		if seen[b.Code] {
			return fmt.Errorf("duplicate badge code %q", b.Code)
		}
		seen[b.Code] = true

		if _, err := b.Rule.Compile(); err != nil {
			return fmt.Errorf("badge %s: %w", b.Code, err)
		}
	}

	seen = make(map[string]bool)
	for _, b := range c.Benefits {
		if b.Code == "" {
			return fmt.Errorf("benefit without code")
		}
		if seen[b.Code] {
			return fmt.Errorf("duplicate benefit code %q", b.Code)
		}
		seen[b.Code] = true

		if b.Cost <= 0 {
			return fmt.Errorf("benefit %s: cost must be positive", b.Code)
		}
	}
	return nil
}
