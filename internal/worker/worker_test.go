package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/insightdelivered/statement-extractor/internal/assembler"
	"github.com/insightdelivered/statement-extractor/internal/bankconfig"
	"github.com/insightdelivered/statement-extractor/internal/extractor"
	"github.com/insightdelivered/statement-extractor/internal/models"
	"github.com/insightdelivered/statement-extractor/internal/store"
)

func newTestPool(t *testing.T) (*Pool, *store.Store, string) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "jobs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := bankconfig.New("", 0, logger)
	resolver := extractor.NewResolver(registry, 0, logger)
	asm := assembler.New(resolver, logger)
	return NewPool(st, asm, 1, logger), st, dir
}

func writeJobFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// buildPDF assembles a one-page uncompressed PDF showing each line at
// its own Y position, with xref offsets taken from the real buffer.
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

func canaraStatementPDF(t *testing.T) []byte {
	return buildPDF(t, []string{
		"Canara Bank",
		"Statement for A/c 110012345678 between 1-Apr-2024 and 30-Apr-2024",
		"Opening Balance 10,000.00",
		"Date Particulars Chq Number Withdrawals Deposits Balance",
		"01-04-2024 UPI/DR/409912345678/SWIGGY",
		"Chq: -",
		"250.00 9,750.00",
		"03-04-2024 NEFT/CR/UTR304123/ACME CORP SALARY",
		"Chq: -",
		"25,000.00 34,750.00",
	})
}

func TestProcessCompletesJob(t *testing.T) {
	pool, st, dir := newTestPool(t)
	ctx := context.Background()

	path := writeJobFile(t, dir, "stmt.pdf", canaraStatementPDF(t))
	if err := st.CreateJob(ctx, store.Job{ID: "job-1", FileName: "stmt.pdf", FilePath: path, Bank: "canara"}); err != nil {
		t.Fatal(err)
	}
	job, ok, err := st.ClaimNextUploaded(ctx)
	if err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}

	pool.process(ctx, 0, job)

	j, err := st.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	if j.Status != store.StatusCompleted {
		t.Fatalf("status: got %q, want %q (error: %s %s)", j.Status, store.StatusCompleted, j.ErrorCode, j.Error)
	}

	raw, err := st.GetResult(ctx, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	var resp models.StandardResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("stored result does not decode: %v", err)
	}
	if resp.TotalTransactions != 2 {
		t.Errorf("transactions: got %d, want 2", resp.TotalTransactions)
	}
	if resp.Summary.ClosingBalance.StringFixed(2) != "34750.00" {
		t.Errorf("closing balance: got %s", resp.Summary.ClosingBalance.StringFixed(2))
	}
}

func TestProcessRecordsExtractionFailure(t *testing.T) {
	pool, st, dir := newTestPool(t)
	ctx := context.Background()

	path := writeJobFile(t, dir, "bad.pdf", []byte("%PDF-1.4\nnot really a pdf"))
	if err := st.CreateJob(ctx, store.Job{ID: "job-1", FileName: "bad.pdf", FilePath: path}); err != nil {
		t.Fatal(err)
	}
	job, ok, err := st.ClaimNextUploaded(ctx)
	if err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}

	pool.process(ctx, 0, job)

	j, err := st.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	if j.Status != store.StatusFailed {
		t.Fatalf("status: got %q, want %q", j.Status, store.StatusFailed)
	}
	if j.ErrorCode != string(extractor.CodeFormatMismatch) {
		t.Errorf("error code: got %q, want %s", j.ErrorCode, extractor.CodeFormatMismatch)
	}
	if j.Error == "" {
		t.Error("failure without message")
	}
}

func TestProcessMissingFile(t *testing.T) {
	pool, st, _ := newTestPool(t)
	ctx := context.Background()

	if err := st.CreateJob(ctx, store.Job{ID: "job-1", FileName: "gone.pdf", FilePath: "/nonexistent/gone.pdf"}); err != nil {
		t.Fatal(err)
	}
	job, ok, err := st.ClaimNextUploaded(ctx)
	if err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}

	pool.process(ctx, 0, job)

	j, err := st.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	if j.Status != store.StatusFailed {
		t.Fatalf("status: got %q, want %q", j.Status, store.StatusFailed)
	}
	if j.ErrorCode != internalError {
		t.Errorf("error code: got %q, want %s", j.ErrorCode, internalError)
	}
}

func TestProcessPanicContained(t *testing.T) {
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "jobs.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	// A nil assembler panics on use; the pool must contain it and
	// record the failure.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pool := NewPool(st, nil, 1, logger)
	ctx := context.Background()

	path := writeJobFile(t, dir, "stmt.pdf", []byte("%PDF-1.4 data"))
	if err := st.CreateJob(ctx, store.Job{ID: "job-1", FileName: "stmt.pdf", FilePath: path}); err != nil {
		t.Fatal(err)
	}
	job, ok, err := st.ClaimNextUploaded(ctx)
	if err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}

	pool.process(ctx, 0, job)

	j, err := st.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	if j.Status != store.StatusFailed {
		t.Fatalf("status: got %q, want %q", j.Status, store.StatusFailed)
	}
	if j.ErrorCode != internalError {
		t.Errorf("error code: got %q, want %s", j.ErrorCode, internalError)
	}
	if !strings.Contains(j.Error, "internal error") {
		t.Errorf("error message: got %q", j.Error)
	}
}

func TestDrainEmptiesQueue(t *testing.T) {
	pool, st, dir := newTestPool(t)
	ctx := context.Background()

	data := canaraStatementPDF(t)
	for _, id := range []string{"job-1", "job-2"} {
		path := writeJobFile(t, dir, id+".pdf", data)
		if err := st.CreateJob(ctx, store.Job{ID: id, FileName: id + ".pdf", FilePath: path, Bank: "canara"}); err != nil {
			t.Fatal(err)
		}
	}

	pool.drain(ctx, 0)

	counts, err := st.CountByStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts[store.StatusCompleted] != 2 {
		t.Errorf("completed: got %d, want 2 (all: %v)", counts[store.StatusCompleted], counts)
	}
}

func TestWakeNeverBlocks(t *testing.T) {
	pool, _, _ := newTestPool(t)
	// No worker is draining the channel; repeated wakes must not block.
	for i := 0; i < 3; i++ {
		pool.Wake()
	}
}

func TestPoolLifecycle(t *testing.T) {
	pool, st, dir := newTestPool(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := writeJobFile(t, dir, "stmt.pdf", canaraStatementPDF(t))
	if err := st.CreateJob(ctx, store.Job{ID: "job-1", FileName: "stmt.pdf", FilePath: path, Bank: "canara"}); err != nil {
		t.Fatal(err)
	}

	pool.Start(ctx)
	pool.Wake()

	deadline := time.Now().Add(10 * time.Second)
	for {
		j, err := st.GetJob(ctx, "job-1")
		if err != nil {
			t.Fatal(err)
		}
		if j.Status == store.StatusCompleted {
			break
		}
		if j.Status == store.StatusFailed {
			t.Fatalf("job failed: %s %s", j.ErrorCode, j.Error)
		}
		if time.Now().After(deadline) {
			t.Fatalf("job still %q after deadline", j.Status)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	pool.Wait()
}
