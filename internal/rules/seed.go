package rules

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rumor-ml/commons.systems/budgetter/internal/domain"
)

//go:embed rules.yaml
var embeddedSeed []byte

// SeedRule is one rule of a seeded category.
type SeedRule struct {
	Keywords        string `yaml:"keywords"`
	TransactionType string `yaml:"transaction_type"`
}

// SeedCategory is a category with its starter rules.
type SeedCategory struct {
	Name  string     `yaml:"name"`
	Rules []SeedRule `yaml:"rules"`
}

// Seed is the top-level YAML structure of a seed file.
type Seed struct {
	Categories []SeedCategory `yaml:"categories"`
}

// SeedResult counts what Apply created.
type SeedResult struct {
	Categories int `json:"categories"`
	Rules      int `json:"rules"`
}

// Seeder is the store surface Apply writes through.
type Seeder interface {
	GetCategoryByName(ctx context.Context, name string) (*domain.Category, error)
	CreateCategory(ctx context.Context, c *domain.Category) error
	CreateRule(ctx context.Context, r *domain.CategorizationRule) error
}

// ParseSeed decodes and validates seed YAML.
func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed YAML (check syntax, indentation, and field names): %w", err)
	}

	seen := map[string]bool{}
	for i, c := range seed.Categories {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return nil, fmt.Errorf("category %d: name cannot be empty", i)
		}
		if seen[name] {
			return nil, fmt.Errorf("category %d (%s): duplicate name", i, name)
		}
		seen[name] = true
		for j, r := range c.Rules {
			if strings.TrimSpace(r.Keywords) == "" {
				return nil, fmt.Errorf("category %d (%s) rule %d: keywords cannot be empty", i, name, j)
			}
			if r.TransactionType != "" {
				if _, err := domain.ParseTransactionType(r.TransactionType); err != nil {
					return nil, fmt.Errorf("category %d (%s) rule %d: %w", i, name, j, err)
				}
			}
		}
	}
	return &seed, nil
}

// LoadEmbeddedSeed returns the built-in starter seed.
func LoadEmbeddedSeed() (*Seed, error) {
	seed, err := ParseSeed(embeddedSeed)
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded seed (possible binary corruption): %w", err)
	}
	return seed, nil
}

// LoadSeedFile reads a seed from a filesystem path.
func LoadSeedFile(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	seed, err := ParseSeed(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load seed from %q: %w", path, err)
	}
	return seed, nil
}

// Apply creates the missing categories and the rules of those categories.
// Categories that already exist are left untouched, with their rules, so
// Apply can run repeatedly.
func (s *Seed) Apply(ctx context.Context, dst Seeder) (SeedResult, error) {
	var res SeedResult
	for _, sc := range s.Categories {
		name := strings.TrimSpace(sc.Name)
		_, err := dst.GetCategoryByName(ctx, name)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return res, err
		}

		cat := &domain.Category{Name: name}
		if err := dst.CreateCategory(ctx, cat); err != nil {
			return res, fmt.Errorf("create category %q: %w", name, err)
		}
		res.Categories++

		for _, sr := range sc.Rules {
			rule := &domain.CategorizationRule{Keywords: sr.Keywords, CategoryID: cat.ID}
			if sr.TransactionType != "" {
				t, _ := domain.ParseTransactionType(sr.TransactionType)
				rule.TransactionType = &t
			}
			if err := dst.CreateRule(ctx, rule); err != nil {
				return res, fmt.Errorf("create rule for %q: %w", name, err)
			}
			res.Rules++
		}
	}
	return res, nil
}
