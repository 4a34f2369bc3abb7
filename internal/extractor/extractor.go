// Package extractor converts raw statement page text into a normalized
// transaction ledger. Each supported bank has its own extractor that
// encodes that bank's column layout, continuation rules and Dr/Cr
// notation behind a single shared contract. The resolver maps bank
// identifiers from configuration onto these implementations at runtime.
package extractor

import (
	"sort"
	"strings"

	"github.com/insightdelivered/statement-extractor/internal/models"
)

// Extractor is the contract every bank-specific implementation
// satisfies. ExtractStatement receives already-decrypted per-page text;
// the password is passed through for banks that re-verify embedded
// hints, most ignore it.
type Extractor interface {
	BankName() string
	Version() string
	Capabilities() []models.Capability
	ExtractStatement(pages []string, password string) (*models.StatementResult, error)
}

// Constructor builds a fresh extractor instance.
type Constructor func() Extractor

var builtins = map[models.BankID]Constructor{}

// Register adds a constructor to the builtin table. Bank files call
// this from init; the table doubles as the allow-list for
// configuration-driven loading.
func Register(id models.BankID, ctor Constructor) {
	builtins[id] = ctor
}

// Builtin returns the registered constructor for id.
func Builtin(id models.BankID) (Constructor, bool) {
	ctor, ok := builtins[id]
	return ctor, ok
}

// BuiltinIDs lists registered bank ids in stable order.
func BuiltinIDs() []models.BankID {
	ids := make([]models.BankID, 0, len(builtins))
	for id := range builtins {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// New instantiates the extractor for id directly, bypassing
// configuration. Used by the CLI and tests; the service path goes
// through the Resolver.
func New(id models.BankID) (Extractor, error) {
	ctor, ok := builtins[id]
	if !ok {
		return nil, Errorf(CodeUnknownBank, "unsupported bank %q", id)
	}
	return ctor(), nil
}

// bankIdentifiers are lowercase substrings that identify a bank's
// statement text. IFSC prefixes catch statements whose header omits the
// full bank name.
var bankIdentifiers = map[models.BankID][]string{
	models.BankCanara:    {"canara bank", "cnrb0"},
	models.BankUnionBank: {"union bank of india", "ubin0"},
	models.BankAPGVB:     {"andhra pradesh grameena vikas bank", "apgvb", "apgv0"},
}

// DetectBank guesses the bank from statement text. It checks page 1
// first since headers live there, then the rest.
func DetectBank(pages []string) (models.BankID, error) {
	for _, page := range pages {
		lower := strings.ToLower(page)
		for _, id := range BuiltinIDs() {
			for _, ident := range bankIdentifiers[id] {
				if strings.Contains(lower, ident) {
					return id, nil
				}
			}
		}
	}
	return "", Errorf(CodeUnknownBank, "could not identify bank from statement text")
}
