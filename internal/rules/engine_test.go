package rules

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/rumor-ml/commons.systems/budgetter/internal/classify"
	"github.com/rumor-ml/commons.systems/budgetter/internal/domain"
)

var (
	food      = domain.Category{ID: 1, Name: "Food"}
	salary    = domain.Category{ID: 2, Name: "Salary"}
	transport = domain.Category{ID: 3, Name: "Transport"}
	testCats  = []domain.Category{food, salary, transport}
)

func typePtr(t domain.TransactionType) *domain.TransactionType { return &t }

func TestEngine_Match(t *testing.T) {
	rules := []domain.CategorizationRule{
		{ID: 1, Keywords: "grocery, , market", CategoryID: food.ID},
		{ID: 2, Keywords: "salary", CategoryID: salary.ID, TransactionType: typePtr(domain.TransactionTypeIncome)},
		{ID: 3, Keywords: `^uber\s+trip, c++`, CategoryID: transport.ID},
		{ID: 4, Keywords: "store", CategoryID: transport.ID},
		{ID: 5, Keywords: "café", CategoryID: food.ID},
		{ID: 6, Keywords: "orphan", CategoryID: 99},
	}
	engine := NewEngine(rules, testCats)

	tests := []struct {
		name    string
		txName  string
		memo    string
		txType  domain.TransactionType
		wantCat string
	}{
		{"substring in name", "Grocery Store", "", domain.TransactionTypeExpenses, "Food"},
		{"first match wins over later rule", "GROCERY STORE", "", domain.TransactionTypeExpenses, "Food"},
		{"substring in memo", "CB 1234", "Weekly market", domain.TransactionTypeExpenses, "Food"},
		{"type filter accepts", "Salary", "", domain.TransactionTypeIncome, "Salary"},
		{"type filter rejects", "Salary refund", "", domain.TransactionTypeExpenses, ""},
		{"regex", "UBER   TRIP 42", "", domain.TransactionTypeExpenses, "Transport"},
		{"invalid regex falls back to substring", "learn c++ book", "", domain.TransactionTypeExpenses, "Transport"},
		{"unicode lowering", "CAFÉ DE FLORE", "", domain.TransactionTypeExpenses, "Food"},
		{"missing category never matches", "orphan", "", domain.TransactionTypeExpenses, ""},
		{"no match", "Cinema", "", domain.TransactionTypeExpenses, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := engine.Match(tt.txName, tt.memo, tt.txType)
			gotName := ""
			if got != nil {
				gotName = got.Name
			}
			if gotName != tt.wantCat {
				t.Errorf("Match(%q, %q, %s) = %q, want %q", tt.txName, tt.memo, tt.txType, gotName, tt.wantCat)
			}
		})
	}
}

func TestEngine_EmptyKeywordsNeverMatch(t *testing.T) {
	engine := NewEngine([]domain.CategorizationRule{{ID: 1, Keywords: " , ,", CategoryID: food.ID}}, testCats)
	if got := engine.Match("anything", "at all", domain.TransactionTypeExpenses); got != nil {
		t.Errorf("expected no match, got %v", got)
	}
}

func TestEngine_CategoryNames(t *testing.T) {
	names := NewEngine(nil, testCats).CategoryNames()
	want := []string{"Food", "Salary", "Transport"}
	if len(names) != len(want) {
		t.Fatalf("CategoryNames() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("CategoryNames()[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

type fakeSource struct {
	rules []domain.CategorizationRule
	cats  []domain.Category
	err   error
}

func (f fakeSource) AllRules(context.Context) ([]domain.CategorizationRule, error) {
	return f.rules, f.err
}

func (f fakeSource) AllCategories(context.Context) ([]domain.Category, error) {
	return f.cats, nil
}

type stubClassifier struct {
	p          classify.Prediction
	err        error
	calls      int
	categories []string
}

func (s *stubClassifier) Classify(context.Context, string, string) (classify.Prediction, error) {
	s.calls++
	return s.p, s.err
}

func (s *stubClassifier) SetCategories(names []string) { s.categories = names }

func TestCategorizer_ClassifierFallback(t *testing.T) {
	src := fakeSource{
		rules: []domain.CategorizationRule{{ID: 1, Keywords: "grocery", CategoryID: food.ID}},
		cats:  testCats,
	}

	tests := []struct {
		name    string
		p       classify.Prediction
		err     error
		wantCat string
	}{
		{"accepted at threshold", classify.Prediction{Status: classify.StatusReady, Category: "transport", Confidence: 0.5}, nil, "Transport"},
		{"below threshold", classify.Prediction{Status: classify.StatusReady, Category: "Transport", Confidence: 0.49}, nil, ""},
		{"not loaded", classify.Prediction{Status: classify.StatusNotLoaded, Category: "Transport", Confidence: 0.9}, nil, ""},
		{"unknown category", classify.Prediction{Status: classify.StatusReady, Category: "Rent", Confidence: 0.9}, nil, ""},
		{"classifier error swallowed", classify.Prediction{}, errors.New("timeout"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubClassifier{p: tt.p, err: tt.err}
			snap, err := NewCategorizer(stub, 0, zerolog.Nop()).Snapshot(context.Background(), src)
			if err != nil {
				t.Fatalf("Snapshot() error = %v", err)
			}

			got := snap.Categorize(context.Background(), "Uber", "", domain.TransactionTypeExpenses)
			gotName := ""
			if got != nil {
				gotName = got.Name
			}
			if gotName != tt.wantCat {
				t.Errorf("Categorize() = %q, want %q", gotName, tt.wantCat)
			}
			if len(stub.categories) != 3 {
				t.Errorf("classifier should receive the category names, got %v", stub.categories)
			}
		})
	}
}

func TestCategorizer_RuleSkipsClassifier(t *testing.T) {
	stub := &stubClassifier{p: classify.Prediction{Status: classify.StatusReady, Category: "Transport", Confidence: 1}}
	src := fakeSource{rules: []domain.CategorizationRule{{ID: 1, Keywords: "grocery", CategoryID: food.ID}}, cats: testCats}

	snap, err := NewCategorizer(stub, 0.5, zerolog.Nop()).Snapshot(context.Background(), src)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if got := snap.Categorize(context.Background(), "Grocery Store", "", domain.TransactionTypeExpenses); got == nil || got.Name != "Food" {
		t.Errorf("expected Food, got %v", got)
	}
	if stub.calls != 0 {
		t.Errorf("classifier called %d times, want 0", stub.calls)
	}
}

func TestCategorizer_NilClassifier(t *testing.T) {
	snap, err := NewCategorizer(nil, 0, zerolog.Nop()).Snapshot(context.Background(), fakeSource{cats: testCats})
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if got := snap.Categorize(context.Background(), "x", "y", domain.TransactionTypeExpenses); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

func TestCategorizer_SnapshotError(t *testing.T) {
	boom := errors.New("db closed")
	_, err := NewCategorizer(nil, 0, zerolog.Nop()).Snapshot(context.Background(), fakeSource{err: boom})
	if !errors.Is(err, boom) {
		t.Errorf("expected %v, got %v", boom, err)
	}
}
