package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/insightdelivered/statement-extractor/internal/assembler"
	"github.com/insightdelivered/statement-extractor/internal/bankconfig"
	"github.com/insightdelivered/statement-extractor/internal/extractor"
	"github.com/insightdelivered/statement-extractor/internal/models"
	"github.com/insightdelivered/statement-extractor/internal/store"
	"github.com/insightdelivered/statement-extractor/internal/worker"
)

func newTestServer(t *testing.T) *Server {
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
	pool := worker.NewPool(st, asm, 1, logger)

	return New(Deps{
		Store:      st,
		Assembler:  asm,
		Registry:   registry,
		Resolver:   resolver,
		Pool:       pool,
		Logger:     logger,
		UploadsDir: filepath.Join(dir, "uploads"),
		Version:    "test",
	})
}

func multipartBody(t *testing.T, fileName string, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if fileName != "" {
		fw, err := w.CreateFormFile("file", fileName)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write(data); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field %s: %v", k, err)
		}
	}
	w.Close()
	return &buf, w.FormDataContentType()
}

func decodeError(t *testing.T, body io.Reader) errorDetail {
	t.Helper()
	var out errorBody
	if err := json.NewDecoder(body).Decode(&out); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return out.Error
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest("GET", "/api/health", nil)
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	var result map[string]string
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if result["status"] != "ok" {
		t.Errorf("expected status=ok, got %q", result["status"])
	}

	if result["engine"] != "fiber" {
		t.Errorf("expected engine=fiber, got %q", result["engine"])
	}
}

func TestUploadRequiresFile(t *testing.T) {
	s := newTestServer(t)

	buf, ct := multipartBody(t, "", nil, nil)
	req := httptest.NewRequest("POST", "/api/v1/statements", buf)
	req.Header.Set("Content-Type", ct)
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
	if e := decodeError(t, resp.Body); e.Code != "NO_FILE" {
		t.Errorf("expected code NO_FILE, got %q", e.Code)
	}
}

func TestUploadRejectsNonPDFData(t *testing.T) {
	s := newTestServer(t)

	buf, ct := multipartBody(t, "statement.pdf", []byte("plain text, no pdf header"), nil)
	req := httptest.NewRequest("POST", "/api/v1/statements", buf)
	req.Header.Set("Content-Type", ct)
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
	if e := decodeError(t, resp.Body); e.Code != "NOT_PDF" {
		t.Errorf("expected code NOT_PDF, got %q", e.Code)
	}
}

func TestUploadRejectsUnknownBank(t *testing.T) {
	s := newTestServer(t)

	buf, ct := multipartBody(t, "statement.pdf", []byte("%PDF-1.4 stub"), map[string]string{"bank": "atlantis"})
	req := httptest.NewRequest("POST", "/api/v1/statements", buf)
	req.Header.Set("Content-Type", ct)
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
	if e := decodeError(t, resp.Body); e.Code != "UNKNOWN_BANK" {
		t.Errorf("expected code UNKNOWN_BANK, got %q", e.Code)
	}
}

func TestUploadRejectsWrongExtension(t *testing.T) {
	s := newTestServer(t)

	buf, ct := multipartBody(t, "notes.txt", []byte("hello"), nil)
	req := httptest.NewRequest("POST", "/api/v1/statements", buf)
	req.Header.Set("Content-Type", ct)
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestExtractRejectsUnparseablePDF(t *testing.T) {
	s := newTestServer(t)

	buf, ct := multipartBody(t, "statement.pdf", []byte("%PDF-1.4\nnot really a pdf"), nil)
	req := httptest.NewRequest("POST", "/api/v1/extract", buf)
	req.Header.Set("Content-Type", ct)
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	if resp.StatusCode != fiber.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", resp.StatusCode)
	}
	if e := decodeError(t, resp.Body); e.Code != "FORMAT_MISMATCH" {
		t.Errorf("expected code FORMAT_MISMATCH, got %q", e.Code)
	}
}

func TestJobStatusNotFound(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest("GET", "/api/v1/jobs/absent", nil)
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
	if e := decodeError(t, resp.Body); e.Code != "NOT_FOUND" {
		t.Errorf("expected code NOT_FOUND, got %q", e.Code)
	}
}

func completedResponse(t *testing.T) []byte {
	t.Helper()
	resp := models.StandardResponse{
		TotalTransactions: 2,
		ProcessedAt:       time.Now().UTC().Format(time.RFC3339),
		Metadata: models.StatementMetadata{
			BankName:      "Canara Bank",
			AccountNumber: "110012345678",
			Currency:      "INR",
			Period:        models.StatementPeriod{FromDate: "01-04-2024", ToDate: "30-04-2024"},
		},
		Summary: models.FinancialSummary{
			OpeningBalance:   decimal.NewFromInt(1000),
			ClosingBalance:   decimal.NewFromInt(1300),
			TotalCredits:     decimal.NewFromInt(500),
			TotalDebits:      decimal.NewFromInt(200),
			NetChange:        decimal.NewFromInt(300),
			TransactionCount: 2,
		},
		Transactions: []models.Transaction{
			{SerialNo: 1, Date: time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC), Remarks: "UPI/CR/409912",
				Amount: decimal.NewFromInt(500), Balance: decimal.NewFromInt(1500), Type: models.TypeCredit, Page: 1},
			{SerialNo: 2, Date: time.Date(2024, 4, 5, 0, 0, 0, 0, time.UTC), Remarks: "ATM WDL",
				Amount: decimal.NewFromInt(200), Balance: decimal.NewFromInt(1300), Type: models.TypeDebit, Page: 1},
		},
	}
	raw, err := json.Marshal(&resp)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	return raw
}

func TestJobLifecycle(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	job := store.Job{ID: "job-1", FileName: "statement.pdf", FilePath: "/tmp/none.pdf"}
	if err := s.store.CreateJob(ctx, job); err != nil {
		t.Fatalf("create job: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/v1/jobs/job-1", nil)
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status endpoint: expected 200, got %d", resp.StatusCode)
	}
	var jb jobBody
	if err := json.NewDecoder(resp.Body).Decode(&jb); err != nil {
		t.Fatalf("decode job body: %v", err)
	}
	if jb.Status != store.StatusUploaded {
		t.Errorf("expected status %q, got %q", store.StatusUploaded, jb.Status)
	}

	// Result before completion is a conflict, not a 404.
	req = httptest.NewRequest("GET", "/api/v1/jobs/job-1/result", nil)
	resp, err = s.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusConflict {
		t.Errorf("pending result: expected 409, got %d", resp.StatusCode)
	}

	if err := s.store.MarkCompleted(ctx, "job-1", completedResponse(t)); err != nil {
		t.Fatalf("mark completed: %v", err)
	}

	req = httptest.NewRequest("GET", "/api/v1/jobs/job-1/result", nil)
	resp, err = s.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("result endpoint: expected 200, got %d", resp.StatusCode)
	}
	var result models.StandardResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.TotalTransactions != 2 {
		t.Errorf("expected 2 transactions, got %d", result.TotalTransactions)
	}

	req = httptest.NewRequest("GET", "/api/v1/jobs/job-1/export?format=csv", nil)
	resp, err = s.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("csv export: expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/csv" {
		t.Errorf("csv export: expected text/csv, got %q", ct)
	}
	cd := resp.Header.Get("Content-Disposition")
	if !bytes.Contains([]byte(cd), []byte(".csv")) {
		t.Errorf("csv export: disposition %q lacks .csv filename", cd)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte("UPI/CR/409912")) {
		t.Errorf("csv export missing transaction remark:\n%s", body)
	}

	req = httptest.NewRequest("GET", "/api/v1/jobs/job-1/export?format=excel", nil)
	resp, err = s.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("excel export: expected 200, got %d", resp.StatusCode)
	}
	if cd := resp.Header.Get("Content-Disposition"); !bytes.Contains([]byte(cd), []byte(".xlsx")) {
		t.Errorf("excel export: disposition %q lacks .xlsx filename", cd)
	}

	req = httptest.NewRequest("GET", "/api/v1/jobs/job-1/export?format=doc", nil)
	resp, err = s.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("bad format: expected 400, got %d", resp.StatusCode)
	}
}

func TestListBanks(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest("GET", "/api/v1/banks", nil)
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var out struct {
		Banks []bankBody `json:"banks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode banks: %v", err)
	}
	if len(out.Banks) != 3 {
		t.Fatalf("expected 3 builtin banks, got %d", len(out.Banks))
	}
	want := []models.BankID{models.BankAPGVB, models.BankCanara, models.BankUnionBank}
	for i, b := range out.Banks {
		if b.ID != want[i] {
			t.Errorf("bank %d: expected %q, got %q", i, want[i], b.ID)
		}
		if b.Status != bankconfig.StatusActive {
			t.Errorf("bank %s: expected active, got %q", b.ID, b.Status)
		}
	}
}

func TestReloadBanks(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest("POST", "/api/v1/banks/reload", nil)
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	req = httptest.NewRequest("POST", "/api/v1/banks/atlantis/reload", nil)
	resp, err = s.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("unknown bank reload: expected 404, got %d", resp.StatusCode)
	}
}
