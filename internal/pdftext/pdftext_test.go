package pdftext

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
)

// buildPDF assembles a one-page uncompressed PDF whose content stream
// shows each line at a descending Y position. Offsets in the xref
// table are computed from the actual buffer, so the file is valid for
// structured readers and for the raw scan alike.
func buildPDF(t *testing.T, lines []string) []byte {
	t.Helper()

	var content strings.Builder
	content.WriteString("BT\n/F1 12 Tf\n72 760 Td\n")
	for i, line := range lines {
		if strings.ContainsAny(line, "()\\") {
			t.Fatalf("line %d needs escaping: %q", i, line)
		}
		if i > 0 {
			content.WriteString("0 -16 Td\n")
		}
		fmt.Fprintf(&content, "(%s) Tj\n", line)
	}
	content.WriteString("ET")

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] " +
			"/Resources << /Font << /F1 4 0 R >> >> /Contents 5 0 R >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", content.Len(), content.String()),
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects)+1)
	for i, obj := range objects {
		offsets[i+1] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xrefPos := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i <= len(objects); i++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n",
		len(objects)+1, xrefPos)
	return buf.Bytes()
}

func statementLines() []string {
	return []string{
		"Canara Bank",
		"Statement of Account",
		"Account Number: 110012345678",
		"Date Particulars Debit Credit Balance",
		"02-04-2024 UPI payment to merchant 500.00 9500.00",
		"05-04-2024 NEFT salary credit 25000.00 34500.00",
		"Closing Balance 34500.00",
	}
}

func TestExtractPages(t *testing.T) {
	data := buildPDF(t, statementLines())

	pages, err := ExtractPages(data, "")
	if err != nil {
		t.Fatalf("ExtractPages: %v", err)
	}
	if len(pages) == 0 {
		t.Fatal("no pages returned")
	}

	text := strings.Join(pages, "\n")
	for _, want := range []string{"Canara Bank", "Statement of Account", "9500.00", "NEFT salary credit"} {
		if !strings.Contains(text, want) {
			t.Errorf("extracted text missing %q:\n%s", want, text)
		}
	}
}

func TestValidateAcceptsStatementPDF(t *testing.T) {
	v := Validate(buildPDF(t, statementLines()), "")
	if !v.Valid {
		t.Fatalf("expected valid, got %s: %s", v.Code, v.Message)
	}
	if v.Code != Valid {
		t.Errorf("code: got %s", v.Code)
	}
	if v.PageCount != 1 {
		t.Errorf("page count: got %d, want 1", v.PageCount)
	}
	if v.Encrypted {
		t.Error("plain pdf reported encrypted")
	}
}

func TestValidateRejections(t *testing.T) {
	big := make([]byte, MaxFileSizeMB<<20+1)

	tests := []struct {
		name string
		data []byte
		want ValidationCode
	}{
		{"empty", nil, NotPDF},
		{"oversized before magic check", big, FileTooLarge},
		{"wrong magic", []byte("GIF89a not a pdf"), NotPDF},
		{"truncated after magic", []byte("%PDF-1.4\nnot really a pdf"), Corrupted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Validate(tt.data, "")
			if v.Valid {
				t.Fatal("expected rejection")
			}
			if v.Code != tt.want {
				t.Errorf("code: got %s, want %s", v.Code, tt.want)
			}
			if v.Message == "" {
				t.Error("rejection without message")
			}
		})
	}
}

func TestValidateNoTextContent(t *testing.T) {
	// Structurally fine, but far below the text floor.
	v := Validate(buildPDF(t, []string{"Hi"}), "")
	if v.Valid {
		t.Fatal("expected rejection")
	}
	if v.Code != NoTextContent {
		t.Errorf("code: got %s, want %s", v.Code, NoTextContent)
	}
	if v.PageCount != 1 {
		t.Errorf("page count: got %d, want 1", v.PageCount)
	}
}

func TestPasswordCandidates(t *testing.T) {
	if got := passwordCandidates(""); got != nil {
		t.Errorf("empty password: got %v, want nil", got)
	}
	if got := passwordCandidates("secret"); len(got) != 1 || got[0] != "secret" {
		t.Errorf("plain password: got %v", got)
	}
	got := passwordCandidates(" secret ")
	if len(got) != 2 || got[0] != " secret " || got[1] != "secret" {
		t.Errorf("padded password: got %v", got)
	}
}

func TestReadable(t *testing.T) {
	tests := []struct {
		name  string
		pages []string
		want  bool
	}{
		{
			"statement text",
			[]string{"Canara Bank Statement of Account for the period 01-04-2024 to 30-04-2024"},
			true,
		},
		{"too short", []string{"Bank statement"}, false},
		{
			"no statement terms",
			[]string{"the quick brown fox jumps over the lazy dog again and again and again"},
			false,
		},
		{
			"decoder garbage",
			[]string{strings.Repeat("\u00c3\u00a4\u00c3\u00b6\u00c3\u00bc\u00e2\u0080\u0099", 20)},
			false,
		},
		{"empty", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := readable(tt.pages); got != tt.want {
				t.Errorf("readable: got %v, want %v", got, tt.want)
			}
		})
	}
}
