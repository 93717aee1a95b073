package validate

import (
	"errors"
	"strings"
	"testing"

	"github.com/rumor-ml/commons.systems/budgetter/internal/domain"
)

func fields(err error) []string {
	var r *ValidationResult
	if !errors.As(err, &r) {
		return nil
	}
	out := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		out[i] = e.Field
	}
	return out
}

func TestAccount(t *testing.T) {
	bad := int64(-1)
	tests := []struct {
		name    string
		account domain.Account
		want    []string
	}{
		{"valid minimal", domain.Account{Name: "Checking", AccountID: "111"}, nil},
		{"valid full", domain.Account{Name: "Card", AccountID: "222", AccountType: domain.AccountTypeCreditCard, Status: domain.AccountStatusClosed, Color: "#1e90ff"}, nil},
		{"missing name and id", domain.Account{}, []string{"name", "account_id"}},
		{"blank name", domain.Account{Name: "   ", AccountID: "1"}, []string{"name"}},
		{"bad enums", domain.Account{Name: "A", AccountID: "1", AccountType: "BROKERAGE", Status: "FROZEN"}, []string{"account_type", "status"}},
		{"named color", domain.Account{Name: "A", AccountID: "1", Color: "blue"}, nil},
		{"bad color", domain.Account{Name: "A", AccountID: "1", Color: "red; drop"}, []string{"color"}},
		{"bad bank", domain.Account{Name: "A", AccountID: "1", BankID: &bad}, []string{"bank_id"}},
		{"name too long", domain.Account{Name: strings.Repeat("x", 201), AccountID: "1"}, []string{"name"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Account(&tt.account)
			got := fields(err)
			if len(got) != len(tt.want) {
				t.Fatalf("Account() fields = %v, want %v (err %v)", got, tt.want, err)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("field %d = %s, want %s", i, got[i], tt.want[i])
				}
			}
			if tt.want != nil && !errors.Is(err, domain.ErrInvalidInput) {
				t.Error("validation error should wrap ErrInvalidInput")
			}
		})
	}
}

func TestTransaction(t *testing.T) {
	zero := int64(0)
	valid := domain.Transaction{Name: "Coffee", AccountID: 1}
	if err := Transaction(&valid); err != nil {
		t.Fatalf("Transaction() error = %v", err)
	}

	invalid := domain.Transaction{
		AccountID:       0,
		CategoryID:      &zero,
		Mean:            "CHEQUE",
		TransactionType: "REFUND",
		Comment:         strings.Repeat("c", 1001),
	}
	got := fields(Transaction(&invalid))
	want := []string{"name", "account_id", "category_id", "mean", "transaction_type", "comment"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Transaction() fields = %v, want %v", got, want)
	}
}

func TestBankAndCategory(t *testing.T) {
	if err := Bank(&domain.Bank{Name: "Bank 30004", Swift: "30004", BIC: []string{"BNPAFRPP"}}); err != nil {
		t.Errorf("Bank() error = %v", err)
	}
	if got := fields(Bank(&domain.Bank{BIC: []string{" "}})); strings.Join(got, ",") != "name,swift,bic[0]" {
		t.Errorf("Bank() fields = %v", got)
	}
	if err := Category(&domain.Category{Name: "Food"}); err != nil {
		t.Errorf("Category() error = %v", err)
	}
	if err := Category(&domain.Category{}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("Category() error = %v, want ErrInvalidInput", err)
	}
}

func TestRule(t *testing.T) {
	income := domain.TransactionTypeIncome
	bogus := domain.TransactionType("BOGUS")

	if err := Rule(&domain.CategorizationRule{Keywords: "salary, ^payroll(", CategoryID: 1, TransactionType: &income}); err != nil {
		t.Errorf("Rule() with an invalid regex token should pass, got %v", err)
	}

	got := fields(Rule(&domain.CategorizationRule{Keywords: " , ,", TransactionType: &bogus, Position: -1}))
	want := "keywords,category_id,transaction_type,position"
	if strings.Join(got, ",") != want {
		t.Errorf("Rule() fields = %v, want %s", got, want)
	}
}

func TestPage(t *testing.T) {
	tests := []struct {
		name          string
		offset, limit string
		want          domain.Page
		wantErr       bool
	}{
		{"defaults", "", "", domain.Page{Offset: 0, Limit: 100}, false},
		{"explicit", "20", "5", domain.Page{Offset: 20, Limit: 5}, false},
		{"capped", "0", "5000", domain.Page{Offset: 0, Limit: 1000}, false},
		{"negative offset", "-1", "", domain.Page{}, true},
		{"not a number", "", "ten", domain.Page{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Page(tt.offset, tt.limit)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Page() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("Page() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestID(t *testing.T) {
	if id, err := ID("42"); err != nil || id != 42 {
		t.Errorf("ID(42) = %d, %v", id, err)
	}
	for _, s := range []string{"", "0", "-3", "abc"} {
		if _, err := ID(s); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("ID(%q) error = %v, want ErrInvalidInput", s, err)
		}
	}
}

func TestValidationResultMessage(t *testing.T) {
	err := Category(&domain.Category{})
	if !strings.Contains(err.Error(), "category.name: name cannot be empty") {
		t.Errorf("unexpected message: %s", err.Error())
	}
}
