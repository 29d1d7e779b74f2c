package cds

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jwalitptl/cds-engine/internal/model"
	apperrors "github.com/jwalitptl/cds-engine/pkg/errors"
	"github.com/jwalitptl/cds-engine/pkg/validator"
)

// Catalog is the ordered rule list. Rules are stored by value; callers always receive copies.
// Catalog itself is not synchronized, Engine guards it.
type Catalog struct {
	rules    []model.CDSRule
	index    map[string]int
	validate validator.Validator
}

// NewCatalog validates and loads rules in order.
func NewCatalog(rules ...model.CDSRule) (*Catalog, error) {
	c := &Catalog{
		index:    make(map[string]int, len(rules)),
		validate: validator.New(),
	}
	for _, r := range rules {
		if err := c.Add(r); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// DefaultCatalog loads the built-in clinical rules.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultRules()...)
	if err != nil {
		panic(fmt.Sprintf("built-in rule catalog is invalid: %v", err))
	}
	return c
}

// Add appends a rule after validating it. Rule ids are unique.
func (c *Catalog) Add(rule model.CDSRule) error {
	if err := c.validate.Validate(rule); err != nil {
		return apperrors.BadRequest(fmt.Sprintf("invalid rule %q", rule.ID), err)
	}
	if _, exists := c.index[rule.ID]; exists {
		return apperrors.Conflict(fmt.Sprintf("rule %s already exists", rule.ID), nil)
	}
	c.index[rule.ID] = len(c.rules)
	c.rules = append(c.rules, cloneRule(rule))
	return nil
}

// SetEnabled toggles a rule. The rule definition itself is untouched.
func (c *Catalog) SetEnabled(id string, enabled bool) error {
	i, ok := c.index[id]
	if !ok {
		return apperrors.NotFound("rule "+id, nil)
	}
	c.rules[i].Enabled = enabled
	return nil
}

func (c *Catalog) Get(id string) (model.CDSRule, bool) {
	i, ok := c.index[id]
	if !ok {
		return model.CDSRule{}, false
	}
	return cloneRule(c.rules[i]), true
}

func (c *Catalog) Len() int { return len(c.rules) }

// Rules returns every rule in catalog order.
func (c *Catalog) Rules() []model.CDSRule {
	out := make([]model.CDSRule, len(c.rules))
	for i, r := range c.rules {
		out[i] = cloneRule(r)
	}
	return out
}

// ByCategory returns rules of one category, compared case-insensitively.
func (c *Catalog) ByCategory(category string) []model.CDSRule {
	out := []model.CDSRule{}
	for _, r := range c.rules {
		if strings.EqualFold(r.Category, category) {
			out = append(out, cloneRule(r))
		}
	}
	return out
}

func (c *Catalog) Stats() model.RuleStats {
	stats := model.RuleStats{
		Total:      len(c.rules),
		ByCategory: map[string]int{},
		ByPriority: map[model.Priority]int{},
	}
	for _, r := range c.rules {
		if r.Enabled {
			stats.Enabled++
		} else {
			stats.Disabled++
		}
		stats.ByCategory[r.Category]++
		stats.ByPriority[r.Priority]++
	}
	return stats
}

// LoadRulesFile reads a YAML or JSON list of rules. JSON is chosen by the .json extension.
func LoadRulesFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var rules []model.CDSRule
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &rules)
	} else {
		err = yaml.Unmarshal(data, &rules)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse rules file %s: %w", path, err)
	}
	return NewCatalog(rules...)
}

func cloneRule(r model.CDSRule) model.CDSRule {
	r.Conditions = append([]model.CDSCondition(nil), r.Conditions...)
	r.Actions = append([]model.CDSAction(nil), r.Actions...)
	r.Sources = append([]string(nil), r.Sources...)
	return r
}
