// Package rules categorizes transactions with user-defined keyword and regex
// rules, falling back to an optional classifier.
package rules

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/rumor-ml/commons.systems/budgetter/internal/classify"
	"github.com/rumor-ml/commons.systems/budgetter/internal/domain"
)

// DefaultThreshold is the minimum classifier confidence accepted.
const DefaultThreshold = 0.5

var lower = cases.Lower(language.Und)

// Source loads rules and categories. Both *store.Store and *store.Queries
// satisfy it.
type Source interface {
	AllRules(ctx context.Context) ([]domain.CategorizationRule, error)
	AllCategories(ctx context.Context) ([]domain.Category, error)
}

// token is one comma-separated keyword of a rule, lower-cased, with its
// regex form when it compiles.
type token struct {
	text string
	re   *regexp.Regexp
}

type compiledRule struct {
	rule   domain.CategorizationRule
	tokens []token
}

// compileRule splits keywords on commas. Tokens that are not valid regexes
// still match as substrings.
func compileRule(r domain.CategorizationRule) compiledRule {
	cr := compiledRule{rule: r}
	for _, kw := range strings.Split(r.Keywords, ",") {
		kw = lower.String(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		tok := token{text: kw}
		if re, err := regexp.Compile(kw); err == nil {
			tok.re = re
		}
		cr.tokens = append(cr.tokens, tok)
	}
	return cr
}

// matches reports whether any token is a substring of, or a regex matching,
// the lower-cased name or memo.
func (cr compiledRule) matches(name, memo string, t domain.TransactionType) bool {
	if cr.rule.TransactionType != nil && *cr.rule.TransactionType != t {
		return false
	}
	for _, tok := range cr.tokens {
		if strings.Contains(name, tok.text) || strings.Contains(memo, tok.text) {
			return true
		}
		if tok.re != nil && (tok.re.MatchString(name) || tok.re.MatchString(memo)) {
			return true
		}
	}
	return false
}

// Engine evaluates a fixed set of rules in order.
type Engine struct {
	rules      []compiledRule
	categories map[int64]domain.Category
	byName     map[string]domain.Category
}

// NewEngine compiles rules, which must already be in evaluation order.
// Rules pointing at a category missing from categories never match.
func NewEngine(rules []domain.CategorizationRule, categories []domain.Category) *Engine {
	e := &Engine{
		rules:      make([]compiledRule, 0, len(rules)),
		categories: make(map[int64]domain.Category, len(categories)),
		byName:     make(map[string]domain.Category, len(categories)),
	}
	for _, c := range categories {
		e.categories[c.ID] = c
		e.byName[lower.String(c.Name)] = c
	}
	for _, r := range rules {
		e.rules = append(e.rules, compileRule(r))
	}
	return e
}

// Match returns the category of the first matching rule, or nil.
func (e *Engine) Match(name, memo string, t domain.TransactionType) *domain.Category {
	name, memo = lower.String(name), lower.String(memo)
	for _, cr := range e.rules {
		if !cr.matches(name, memo, t) {
			continue
		}
		if c, ok := e.categories[cr.rule.CategoryID]; ok {
			return &c
		}
	}
	return nil
}

// CategoryNames lists the known category names, sorted.
func (e *Engine) CategoryNames() []string {
	names := make([]string, 0, len(e.byName))
	for _, c := range e.categories {
		names = append(names, c.Name)
	}
	sort.Strings(names)
	return names
}

// Categorizer combines the rule engine with an optional classifier.
type Categorizer struct {
	classifier classify.Classifier
	threshold  float64
	log        zerolog.Logger
}

// NewCategorizer returns a categorizer. A nil classifier disables the
// fallback; a non-positive threshold uses DefaultThreshold.
func NewCategorizer(classifier classify.Classifier, threshold float64, log zerolog.Logger) *Categorizer {
	if classifier == nil {
		classifier = classify.None{}
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Categorizer{classifier: classifier, threshold: threshold, log: log.With().Str("component", "categorizer").Logger()}
}

// Snapshot loads the current rules and categories from src. The snapshot is
// meant for one import or one request.
func (c *Categorizer) Snapshot(ctx context.Context, src Source) (*Snapshot, error) {
	rules, err := src.AllRules(ctx)
	if err != nil {
		return nil, err
	}
	categories, err := src.AllCategories(ctx)
	if err != nil {
		return nil, err
	}
	engine := NewEngine(rules, categories)
	if ca, ok := c.classifier.(classify.CategoryAware); ok {
		ca.SetCategories(engine.CategoryNames())
	}
	return &Snapshot{engine: engine, c: c}, nil
}

// Snapshot categorizes against rules loaded at one point in time.
type Snapshot struct {
	engine *Engine
	c      *Categorizer
}

// Categorize returns the first matching rule's category. When no rule
// matches it asks the classifier and accepts a Ready prediction of a known
// category with confidence at or above the threshold. Classifier failures
// yield nil.
func (s *Snapshot) Categorize(ctx context.Context, name, memo string, t domain.TransactionType) *domain.Category {
	if c := s.engine.Match(name, memo, t); c != nil {
		return c
	}

	p, err := s.c.classifier.Classify(ctx, name, memo)
	if err != nil {
		s.c.log.Debug().Err(err).Str("name", name).Msg("classifier failed")
		return nil
	}
	if p.Status != classify.StatusReady || p.Category == "" || p.Confidence < s.c.threshold {
		return nil
	}
	c, ok := s.engine.byName[lower.String(p.Category)]
	if !ok {
		return nil
	}
	return &c
}
