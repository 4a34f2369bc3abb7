package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/insightdelivered/statement-extractor/internal/money"
)

// Transaction is one statement line item. Exactly one of debit/credit
// applies per transaction; Type records which, and Amount holds the
// value. The split Debit/Credit columns exist only in the serialized
// form. Transactions are immutable once emitted by an extractor.
type Transaction struct {
	SerialNo int
	Date     time.Time
	TxnID    string // bank reference, may be absent
	Remarks  string
	Amount   decimal.Decimal
	Balance  decimal.Decimal
	Type     TransactionType
	Page     int // 1-based originating page
}

// DebitAmount returns the debit column value (zero for credits).
func (t Transaction) DebitAmount() decimal.Decimal {
	if t.Type == TypeDebit {
		return t.Amount
	}
	return decimal.Zero
}

// CreditAmount returns the credit column value (zero for debits).
func (t Transaction) CreditAmount() decimal.Decimal {
	if t.Type == TypeCredit {
		return t.Amount
	}
	return decimal.Zero
}

// SignedAmount returns the balance delta this transaction causes.
func (t Transaction) SignedAmount() decimal.Decimal {
	if t.Type == TypeDebit {
		return t.Amount.Neg()
	}
	return t.Amount
}

type transactionJSON struct {
	SerialNo int    `json:"S.No"`
	Date     string `json:"Date"`
	TxnID    string `json:"Transaction_ID,omitempty"`
	Remarks  string `json:"Remarks"`
	Debit    string `json:"Debit"`
	Credit   string `json:"Credit"`
	Balance  string `json:"Balance"`
	Type     string `json:"Transaction_Type"`
	Page     int    `json:"Page_Number"`
}

// MarshalJSON emits the standard record shape: DD-MM-YYYY dates,
// fixed-point amount strings, the unused side of Debit/Credit as an
// empty string, and Transaction_ID omitted when the bank provides none.
func (t Transaction) MarshalJSON() ([]byte, error) {
	out := transactionJSON{
		SerialNo: t.SerialNo,
		Date:     money.FormatDate(t.Date),
		TxnID:    t.TxnID,
		Remarks:  t.Remarks,
		Balance:  money.FormatAmount(t.Balance),
		Type:     string(t.Type),
		Page:     t.Page,
	}
	switch t.Type {
	case TypeDebit:
		out.Debit = money.FormatAmount(t.Amount)
	case TypeCredit:
		out.Credit = money.FormatAmount(t.Amount)
	default:
		return nil, fmt.Errorf("transaction %d: unknown type %q", t.SerialNo, t.Type)
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores a transaction from its serialized shape.
func (t *Transaction) UnmarshalJSON(data []byte) error {
	var in transactionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	date, err := time.Parse(money.DateLayout, in.Date)
	if err != nil {
		return fmt.Errorf("transaction %d: invalid date %q: %w", in.SerialNo, in.Date, err)
	}
	balance, err := decimal.NewFromString(in.Balance)
	if err != nil {
		return fmt.Errorf("transaction %d: invalid balance %q: %w", in.SerialNo, in.Balance, err)
	}

	var amount decimal.Decimal
	var txType TransactionType
	switch {
	case in.Debit != "" && in.Credit != "":
		return fmt.Errorf("transaction %d: both debit and credit populated", in.SerialNo)
	case in.Debit != "":
		txType = TypeDebit
		amount, err = decimal.NewFromString(in.Debit)
	case in.Credit != "":
		txType = TypeCredit
		amount, err = decimal.NewFromString(in.Credit)
	default:
		return fmt.Errorf("transaction %d: neither debit nor credit populated", in.SerialNo)
	}
	if err != nil {
		return fmt.Errorf("transaction %d: invalid amount: %w", in.SerialNo, err)
	}

	*t = Transaction{
		SerialNo: in.SerialNo,
		Date:     date,
		TxnID:    in.TxnID,
		Remarks:  in.Remarks,
		Amount:   amount,
		Balance:  balance,
		Type:     txType,
		Page:     in.Page,
	}
	return nil
}

// StatementPeriod is the from/to range a statement covers, already in
// emission format (DD-MM-YYYY).
type StatementPeriod struct {
	FromDate string `json:"from_date"`
	ToDate   string `json:"to_date"`
}

// StatementMetadata holds the statement-level facts read from the
// header region, typically page 1. Bank-specific fields stay empty for
// banks that do not print them.
type StatementMetadata struct {
	BankName      string          `json:"bank_name"`
	CustomerName  string          `json:"customer_name"`
	AccountNumber string          `json:"account_number"`
	AccountType   string          `json:"account_type"`
	Period        StatementPeriod `json:"statement_period"`
	Currency      string          `json:"currency"`

	IFSCCode      string `json:"ifsc_code,omitempty"`
	HomeBranch    string `json:"home_branch,omitempty"`
	BranchCode    string `json:"branch_code,omitempty"`
	Address       string `json:"address,omitempty"`
	MobileNumber  string `json:"mobile_number,omitempty"`
	CustomerCIFID string `json:"customer_cif_id,omitempty"`
}

// FinancialSummary is the derived aggregate over one statement's
// transactions. It is computed wholesale after extraction and never
// mutated afterward.
type FinancialSummary struct {
	OpeningBalance   decimal.Decimal
	ClosingBalance   decimal.Decimal
	TotalCredits     decimal.Decimal
	TotalDebits      decimal.Decimal
	NetChange        decimal.Decimal
	TransactionCount int
}

type financialSummaryJSON struct {
	OpeningBalance   string `json:"opening_balance"`
	ClosingBalance   string `json:"closing_balance"`
	TotalCredits     string `json:"total_credits"`
	TotalDebits      string `json:"total_debits"`
	NetChange        string `json:"net_change"`
	TransactionCount int    `json:"transaction_count"`
}

func (s FinancialSummary) MarshalJSON() ([]byte, error) {
	return json.Marshal(financialSummaryJSON{
		OpeningBalance:   money.FormatAmount(s.OpeningBalance),
		ClosingBalance:   money.FormatAmount(s.ClosingBalance),
		TotalCredits:     money.FormatAmount(s.TotalCredits),
		TotalDebits:      money.FormatAmount(s.TotalDebits),
		NetChange:        money.FormatAmount(s.NetChange),
		TransactionCount: s.TransactionCount,
	})
}

func (s *FinancialSummary) UnmarshalJSON(data []byte) error {
	var in financialSummaryJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"opening_balance", in.OpeningBalance, &s.OpeningBalance},
		{"closing_balance", in.ClosingBalance, &s.ClosingBalance},
		{"total_credits", in.TotalCredits, &s.TotalCredits},
		{"total_debits", in.TotalDebits, &s.TotalDebits},
		{"net_change", in.NetChange, &s.NetChange},
	}
	for _, f := range fields {
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return fmt.Errorf("financial summary: invalid %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	s.TransactionCount = in.TransactionCount
	return nil
}

// StatementResult is what an extractor hands back: header facts, the
// ordered transaction ledger and the extractor's own summary. The
// assembler recomputes the summary independently before emission.
type StatementResult struct {
	Metadata     StatementMetadata
	Transactions []Transaction
	Summary      FinancialSummary
	Warnings     []string
}

// StandardResponse is the uniform output record for one extraction run,
// identical in shape across every bank.
type StandardResponse struct {
	TotalTransactions int               `json:"total_transactions"`
	ProcessedAt       string            `json:"processed_at"`
	Metadata          StatementMetadata `json:"statement_metadata"`
	Summary           FinancialSummary  `json:"financial_summary"`
	Transactions      []Transaction     `json:"transactions"`
	Warnings          []string          `json:"warnings,omitempty"`
}
