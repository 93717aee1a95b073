// Package classify suggests a category for a transaction from its text.
// Classifiers are optional helpers of the rule-based categorizer: every
// implementation may report that it is not ready yet, and callers treat
// errors as "no suggestion".
package classify

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Status tells whether a prediction carries a usable answer.
type Status int

const (
	// StatusNotLoaded means the model is not trained or not configured yet.
	StatusNotLoaded Status = iota
	// StatusReady means Category and Confidence are meaningful.
	StatusReady
)

func (s Status) String() string {
	if s == StatusReady {
		return "ready"
	}
	return "not_loaded"
}

// Prediction is a classifier's answer for one transaction.
type Prediction struct {
	Status     Status
	Category   string
	Confidence float64
}

// NotLoaded is the prediction of a classifier that cannot answer yet.
var NotLoaded = Prediction{Status: StatusNotLoaded}

// ErrClosed is returned by classifiers used after Close.
var ErrClosed = errors.New("classifier closed")

// Classifier suggests a category name for a transaction.
type Classifier interface {
	Classify(ctx context.Context, name, memo string) (Prediction, error)
}

// CategoryAware classifiers choose among a caller-supplied list of category
// names instead of learning them.
type CategoryAware interface {
	SetCategories(names []string)
}

// None never suggests anything.
type None struct{}

// Classify always reports NotLoaded.
func (None) Classify(context.Context, string, string) (Prediction, error) {
	return NotLoaded, nil
}

var lower = cases.Lower(language.Und)

// Tokenize lower-cases text and splits it into words of at least two
// letters. Pure numbers (dates, card digits) are dropped.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(lower.String(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) < 2 || strings.IndexFunc(f, unicode.IsLetter) < 0 {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}
