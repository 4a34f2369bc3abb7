package models

// Capability is a feature an extractor declares support for. Callers and
// the resolver use these to decide applicability before running an
// extraction.
type Capability string

const (
	CapPasswordProtected     Capability = "password_protected"
	CapMultiPage             Capability = "multi_page"
	CapTransactions          Capability = "transactions"
	CapFinancialSummary      Capability = "financial_summary"
	CapAccountMetadata       Capability = "account_metadata"
	CapStatementPeriod       Capability = "statement_period"
	CapBalanceCalculation    Capability = "balance_calculation"
	CapTransactionTypes      Capability = "transaction_types"
	CapMultiLineTransactions Capability = "multi_line_transactions"
)

// StandardCapabilities is the full capability set a fully featured
// extractor declares. Individual banks may declare a subset.
func StandardCapabilities() []Capability {
	return []Capability{
		CapPasswordProtected,
		CapMultiPage,
		CapTransactions,
		CapFinancialSummary,
		CapAccountMetadata,
		CapStatementPeriod,
		CapBalanceCalculation,
		CapTransactionTypes,
	}
}

// HasCapability reports whether caps contains c.
func HasCapability(caps []Capability, c Capability) bool {
	for _, have := range caps {
		if have == c {
			return true
		}
	}
	return false
}

// BankID identifies a supported bank format.
type BankID string

const (
	BankCanara    BankID = "canara"
	BankUnionBank BankID = "union_bank"
	BankAPGVB     BankID = "apgvb"
)

// TransactionType marks the direction of a transaction.
type TransactionType string

const (
	TypeDebit  TransactionType = "Debit"
	TypeCredit TransactionType = "Credit"
)
