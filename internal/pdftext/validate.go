package pdftext

import (
	"bytes"
	"errors"
	"fmt"
)

// Upload acceptance limits.
const (
	MaxFileSizeMB = 25
	MaxPages      = 200
	MinTextChars  = 100
)

// ValidationCode classifies why an upload was accepted or rejected.
type ValidationCode string

const (
	Valid               ValidationCode = "VALID"
	NotPDF              ValidationCode = "NOT_PDF"
	Corrupted           ValidationCode = "CORRUPTED"
	FileTooLarge        ValidationCode = "FILE_TOO_LARGE"
	EncryptedNoPassword ValidationCode = "ENCRYPTED_NO_PASSWORD"
	WrongPassword       ValidationCode = "WRONG_PASSWORD"
	NoTextContent       ValidationCode = "NO_TEXT_CONTENT"
	EmptyPDF            ValidationCode = "EMPTY_PDF"
	TooManyPages        ValidationCode = "TOO_MANY_PAGES"
)

// ValidationResult reports whether an uploaded file is a processable
// statement PDF and, when it is not, why.
type ValidationResult struct {
	Valid     bool           `json:"valid"`
	Code      ValidationCode `json:"code"`
	Message   string         `json:"message,omitempty"`
	PageCount int            `json:"page_count,omitempty"`
	Encrypted bool           `json:"encrypted,omitempty"`
}

var pdfMagic = []byte("%PDF-")

// Validate runs the full acceptance pipeline: magic header, size cap,
// decryption, page limits and a text-content probe. It never returns
// an error; failures land in the result code.
func Validate(data []byte, password string) ValidationResult {
	if len(data) == 0 {
		return invalid(NotPDF, "file is empty")
	}
	if len(data) > MaxFileSizeMB<<20 {
		return invalid(FileTooLarge,
			fmt.Sprintf("file is %.1f MB, limit is %d MB", float64(len(data))/(1<<20), MaxFileSizeMB))
	}
	if !bytes.HasPrefix(data, pdfMagic) {
		return invalid(NotPDF, "file does not start with a PDF header")
	}

	r, err := open(data, password)
	if err != nil {
		switch {
		case errors.Is(err, ErrPasswordRequired):
			return ValidationResult{Code: EncryptedNoPassword, Encrypted: true,
				Message: "pdf is encrypted; supply a password"}
		case errors.Is(err, ErrWrongPassword):
			return ValidationResult{Code: WrongPassword, Encrypted: true,
				Message: "pdf password is incorrect; passwords are case-sensitive"}
		default:
			return invalid(Corrupted, err.Error())
		}
	}

	n := numPages(r)
	if n == 0 {
		return invalid(EmptyPDF, "pdf has no pages")
	}
	if n > MaxPages {
		return invalid(TooManyPages, fmt.Sprintf("pdf has %d pages, limit is %d", n, MaxPages))
	}

	pages, err := ExtractPages(data, password)
	if err != nil || textLength(pages) < MinTextChars {
		return ValidationResult{Code: NoTextContent, PageCount: n, Encrypted: isEncrypted(r),
			Message: "pdf has no extractable text; scanned statements are not supported"}
	}

	return ValidationResult{Valid: true, Code: Valid, PageCount: n, Encrypted: isEncrypted(r)}
}

func invalid(code ValidationCode, msg string) ValidationResult {
	return ValidationResult{Code: code, Message: msg}
}
