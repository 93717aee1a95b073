// Package ofx provides OFX/QFX statement parsing
package ofx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/aclindsa/ofxgo"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/budgetter/internal/parser"
)

const (
	// unknownCreditCardBank identifies card statements whose signon carries no FI
	unknownCreditCardBank = "UNKNOWN_CC"
	unknownBank           = "UNKNOWN"

	// amountScale is the number of fractional digits kept from OFX amounts
	amountScale = 4
)

// Parser converts OFX/QFX files into statements. It holds no per-file state
// and is safe for concurrent use.
type Parser struct {
	log zerolog.Logger
}

// NewParser returns an OFX parser that reports oddities to log.
func NewParser(log zerolog.Logger) *Parser {
	return &Parser{log: log.With().Str("parser", "ofx").Logger()}
}

// Name returns the parser identifier
func (p *Parser) Name() string {
	return "ofx"
}

// CanParse checks if this parser can handle the file based on extension and header
func (p *Parser) CanParse(name string, header []byte) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if ext != ".ofx" && ext != ".qfx" {
		return false
	}

	headerUpper := strings.ToUpper(string(header))

	// v1 SGML and v2 XML markers
	return strings.Contains(headerUpper, "OFXHEADER") ||
		strings.Contains(headerUpper, "<?OFX") ||
		strings.Contains(headerUpper, "<OFX>")
}

// Parse extracts every credit card and bank statement, credit cards first,
// each group in file order.
func (p *Parser) Parse(ctx context.Context, r io.Reader, meta *parser.Metadata) ([]parser.Statement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX content: %w", err)
	}

	// ofxgo.ParseResponse does not take a context
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fileName := ""
	if meta != nil {
		fileName = meta.FileName()
	}

	if len(bytes.TrimSpace(content)) == 0 {
		return nil, &parser.ParseError{File: fileName, Err: errors.New("empty file")}
	}

	response, err := ofxgo.ParseResponse(bytes.NewReader(content))
	if err != nil {
		return nil, &parser.ParseError{File: fileName, Err: err}
	}

	institution := strings.TrimSpace(response.Signon.Org.String())

	statements := make([]parser.Statement, 0, len(response.CreditCard)+len(response.Bank))

	for i, msg := range response.CreditCard {
		ccStmt, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok {
			p.log.Warn().Int("index", i).Str("type", fmt.Sprintf("%T", msg)).Msg("skipping unexpected credit card message")
			continue
		}
		stmt, err := p.parseCreditCard(ccStmt, institution)
		if err != nil {
			return nil, &parser.ParseError{File: fileName, Err: fmt.Errorf("credit card statement %d: %w", i, err)}
		}
		statements = append(statements, *stmt)
	}

	for i, msg := range response.Bank {
		bankStmt, ok := msg.(*ofxgo.StatementResponse)
		if !ok {
			p.log.Warn().Int("index", i).Str("type", fmt.Sprintf("%T", msg)).Msg("skipping unexpected bank message")
			continue
		}
		stmt, err := p.parseBank(bankStmt, institution)
		if err != nil {
			return nil, &parser.ParseError{File: fileName, Err: fmt.Errorf("bank statement %d: %w", i, err)}
		}
		statements = append(statements, *stmt)
	}

	if n := len(response.InvStmt); n > 0 {
		p.log.Info().Int("count", n).Str("file", fileName).Msg("investment statements are not imported")
	}

	return statements, nil
}

// parseCreditCard parses credit card statement
func (p *Parser) parseCreditCard(ccStmt *ofxgo.CCStatementResponse, institution string) (*parser.Statement, error) {
	if institution == "" {
		institution = unknownCreditCardBank
	}

	stmt, err := parser.NewStatement(institution, strings.TrimSpace(ccStmt.CCAcctFrom.AcctID.String()), parser.AccountKindCreditCard)
	if err != nil {
		return nil, err
	}

	balance, err := toDecimal(ccStmt.BalAmt)
	if err != nil {
		return nil, fmt.Errorf("closing balance: %w", err)
	}
	stmt.SetBalance(balance, ccStmt.DtAsOf.Time)

	if err := p.fillTransactions(stmt, ccStmt.BankTranList); err != nil {
		return nil, err
	}
	return stmt, nil
}

// parseBank parses bank account statement
func (p *Parser) parseBank(bankStmt *ofxgo.StatementResponse, institution string) (*parser.Statement, error) {
	if bankID := strings.TrimSpace(bankStmt.BankAcctFrom.BankID.String()); bankID != "" {
		institution = bankID
	}
	if institution == "" {
		institution = unknownBank
	}

	stmt, err := parser.NewStatement(institution, strings.TrimSpace(bankStmt.BankAcctFrom.AcctID.String()), mapBankAccountType(bankStmt.BankAcctFrom))
	if err != nil {
		return nil, err
	}

	balance, err := toDecimal(bankStmt.BalAmt)
	if err != nil {
		return nil, fmt.Errorf("closing balance: %w", err)
	}
	stmt.SetBalance(balance, bankStmt.DtAsOf.Time)

	if err := p.fillTransactions(stmt, bankStmt.BankTranList); err != nil {
		return nil, err
	}
	return stmt, nil
}

// fillTransactions copies the transaction list and period onto stmt. A
// statement without a transaction list is a balance-only statement.
func (p *Parser) fillTransactions(stmt *parser.Statement, tranList *ofxgo.TransactionList) error {
	if tranList == nil {
		return nil
	}

	if period, err := parser.NewPeriod(tranList.DtStart.Time, tranList.DtEnd.Time); err == nil {
		stmt.SetPeriod(period)
	} else {
		p.log.Debug().Err(err).Str("account", stmt.AccountID()).Msg("statement period unusable")
	}

	stmt.Transactions = make([]parser.RawTransaction, 0, len(tranList.Transactions))
	for i, txn := range tranList.Transactions {
		raw, err := p.extractTransaction(txn)
		if err != nil {
			return fmt.Errorf("transaction at index %d: %w", i, err)
		}
		stmt.Transactions = append(stmt.Transactions, *raw)
	}
	return nil
}

// mapBankAccountType maps OFX account type to a statement kind. Codes other
// than CHECKING and SAVINGS come back as unknown.
func mapBankAccountType(ofxAcct ofxgo.BankAcct) parser.AccountKind {
	switch ofxAcct.AcctType {
	case ofxgo.AcctTypeChecking:
		return parser.AccountKindChecking
	case ofxgo.AcctTypeSavings:
		return parser.AccountKindSavings
	default:
		return parser.AccountKindUnknown
	}
}

// extractTransaction copies the raw fields of an OFX transaction. Only the
// amount is mandatory; missing dates and names are repaired downstream.
func (p *Parser) extractTransaction(txn ofxgo.Transaction) (*parser.RawTransaction, error) {
	id := strings.TrimSpace(txn.FiTID.String())

	amount, err := toDecimal(txn.TrnAmt)
	if err != nil {
		return nil, fmt.Errorf("transaction %q amount: %w", id, err)
	}

	raw := parser.NewRawTransaction(id, amount)

	var user time.Time
	if txn.DtUser != nil {
		user = txn.DtUser.Time
	}
	raw.SetDates(txn.DtPosted.Time, user)

	name := strings.TrimSpace(txn.Name.String())
	if name == "" && txn.Payee != nil {
		name = strings.TrimSpace(txn.Payee.Name.String())
	}
	raw.SetName(name)
	raw.SetMemo(strings.TrimSpace(txn.Memo.String()))
	raw.SetCheckNumber(strings.TrimSpace(txn.CheckNum.String()))

	txnType := txn.TrnType.String()
	if !txn.TrnType.Valid() {
		p.log.Debug().Str("fitid", id).Msg("transaction without a recognized TRNTYPE")
		txnType = "OTHER"
	}
	raw.SetType(txnType)

	return raw, nil
}

// toDecimal converts an OFX amount without going through float64.
func toDecimal(a ofxgo.Amount) (decimal.Decimal, error) {
	return decimal.NewFromString(a.FloatString(amountScale))
}
