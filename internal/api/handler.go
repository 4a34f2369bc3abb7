package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/insightdelivered/statement-extractor/internal/export"
	"github.com/insightdelivered/statement-extractor/internal/extractor"
	"github.com/insightdelivered/statement-extractor/internal/models"
	"github.com/insightdelivered/statement-extractor/internal/pdftext"
	"github.com/insightdelivered/statement-extractor/internal/store"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type jobBody struct {
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	FileName  string `json:"file_name"`
	Bank      string `json:"bank,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
	Error     string `json:"error,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type bankBody struct {
	ID           models.BankID       `json:"id"`
	Name         string              `json:"name"`
	Status       string              `json:"status"`
	Version      string              `json:"version"`
	Capabilities []models.Capability `json:"capabilities"`
	Loaded       bool                `json:"loaded"`
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"engine":  "fiber",
		"version": s.version,
	})
}

// handleUpload accepts a statement PDF, validates it, stores it under
// the dated uploads tree and enqueues a job. Responds 202 with the
// job id.
func (s *Server) handleUpload(c *fiber.Ctx) error {
	data, fileName, err := s.readUpload(c)
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, "NO_FILE", err.Error())
	}
	bank := c.FormValue("bank")
	password := c.FormValue("password")

	if bank != "" {
		if _, ok := s.registry.Lookup(models.BankID(bank)); !ok {
			return writeError(c, fiber.StatusBadRequest, string(extractor.CodeUnknownBank),
				fmt.Sprintf("unsupported bank %q", bank))
		}
	}

	if v := pdftext.Validate(data, password); !v.Valid {
		status := fiber.StatusBadRequest
		if v.Code == pdftext.WrongPassword {
			status = fiber.StatusUnauthorized
		}
		return writeError(c, status, string(v.Code), v.Message)
	}

	jobID := uuid.NewString()
	path, err := s.storeUpload(jobID, fileName, data)
	if err != nil {
		s.logger.Error("upload not stored", "error", err)
		return writeError(c, fiber.StatusInternalServerError, "STORAGE_ERROR",
			"uploaded file could not be stored")
	}

	job := store.Job{
		ID:       jobID,
		FileName: fileName,
		FilePath: path,
		Bank:     bank,
		Password: password,
	}
	if err := s.store.CreateJob(c.Context(), job); err != nil {
		s.logger.Error("job not created", "error", err)
		return writeError(c, fiber.StatusInternalServerError, "STORAGE_ERROR",
			"job could not be created")
	}
	s.pool.Wake()

	s.logger.Info("statement accepted", "job", jobID, "file", fileName, "bank", bank)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"job_id": jobID,
		"status": store.StatusUploaded,
	})
}

func (s *Server) handleJobStatus(c *fiber.Ctx) error {
	job, err := s.store.GetJob(c.Context(), c.Params("id"))
	if errors.Is(err, store.ErrNotFound) {
		return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "job not found")
	}
	if err != nil {
		return writeError(c, fiber.StatusInternalServerError, "STORAGE_ERROR", err.Error())
	}
	return c.JSON(toJobBody(job))
}

func (s *Server) handleListJobs(c *fiber.Ctx) error {
	jobs, err := s.store.ListJobs(c.Context(), c.QueryInt("limit", 50))
	if err != nil {
		return writeError(c, fiber.StatusInternalServerError, "STORAGE_ERROR", err.Error())
	}
	out := make([]jobBody, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, toJobBody(j))
	}
	return c.JSON(fiber.Map{"jobs": out})
}

func (s *Server) handleJobResult(c *fiber.Ctx) error {
	raw, err := s.jobResult(c.Context(), c.Params("id"))
	if err != nil {
		return s.resultError(c, err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(raw)
}

// handleJobExport streams the result as csv (default) or excel with
// a statement-derived download filename.
func (s *Server) handleJobExport(c *fiber.Ctx) error {
	jobID := c.Params("id")
	raw, err := s.jobResult(c.Context(), jobID)
	if err != nil {
		return s.resultError(c, err)
	}

	var resp models.StandardResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		s.logger.Error("stored result unreadable", "job", jobID, "error", err)
		return writeError(c, fiber.StatusInternalServerError, "STORAGE_ERROR",
			"stored result could not be decoded")
	}

	var buf bytes.Buffer
	format := c.Query("format", "csv")
	switch format {
	case "csv":
		if err := export.WriteCSV(&buf, &resp); err != nil {
			return writeError(c, fiber.StatusInternalServerError, "EXPORT_ERROR", err.Error())
		}
		c.Set(fiber.HeaderContentType, "text/csv")
	case "excel", "xlsx":
		if err := export.WriteExcel(&buf, &resp); err != nil {
			return writeError(c, fiber.StatusInternalServerError, "EXPORT_ERROR", err.Error())
		}
		c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		format = "xlsx"
	default:
		return writeError(c, fiber.StatusBadRequest, "BAD_FORMAT",
			fmt.Sprintf("unsupported export format %q; use csv or excel", format))
	}

	name := export.Filename(resp.Metadata, jobID, format)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	return c.Send(buf.Bytes())
}

// handleExtract runs the pipeline synchronously and returns the
// statement JSON. Nothing is stored.
func (s *Server) handleExtract(c *fiber.Ctx) error {
	data, _, err := s.readUpload(c)
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, "NO_FILE", err.Error())
	}

	resp, err := s.asm.Process(c.Context(), data,
		models.BankID(c.FormValue("bank")), c.FormValue("password"))
	if err != nil {
		return writeExtractionError(c, err)
	}
	return c.JSON(resp)
}

func (s *Server) handleListBanks(c *fiber.Ctx) error {
	entries := s.registry.All()
	out := make([]bankBody, 0, len(entries))
	for _, e := range entries {
		out = append(out, bankBody{
			ID:           e.ID,
			Name:         e.Name,
			Status:       e.Status,
			Version:      e.Version,
			Capabilities: e.Capabilities,
			Loaded:       s.resolver.Cached(e.ID),
		})
	}
	return c.JSON(fiber.Map{"banks": out})
}

func (s *Server) handleReloadBanks(c *fiber.Ctx) error {
	if err := s.registry.Reload(); err != nil {
		return writeError(c, fiber.StatusInternalServerError, "RELOAD_ERROR", err.Error())
	}
	s.resolver.InvalidateAll()
	s.logger.Info("bank registry reloaded")
	return c.JSON(fiber.Map{"status": "reloaded"})
}

func (s *Server) handleReloadBank(c *fiber.Ctx) error {
	id := models.BankID(c.Params("id"))
	if _, ok := s.registry.Lookup(id); !ok {
		return writeError(c, fiber.StatusNotFound, string(extractor.CodeUnknownBank),
			fmt.Sprintf("unsupported bank %q", id))
	}
	s.resolver.Invalidate(id)
	return c.JSON(fiber.Map{"status": "reloaded", "bank": id})
}

func (s *Server) readUpload(c *fiber.Ctx) ([]byte, string, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return nil, "", errors.New("no file uploaded; use form field 'file'")
	}
	name := sanitizeFilename(fh.Filename)
	if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		return nil, "", errors.New("only PDF files are supported")
	}
	data, err := readAll(fh)
	if err != nil {
		return nil, "", fmt.Errorf("uploaded file could not be read: %w", err)
	}
	return data, name, nil
}

func readAll(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// storeUpload writes the PDF under uploads/YYYY/MM/DD/{job}_{name}.
func (s *Server) storeUpload(jobID, fileName string, data []byte) (string, error) {
	dir := filepath.Join(s.uploadsDir, time.Now().UTC().Format("2006/01/02"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, jobID+"_"+fileName)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9._-]`)

func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = unsafeFilename.ReplaceAllString(name, "_")
	if name == "" || name == "." {
		name = "statement.pdf"
	}
	return name
}

func (s *Server) jobResult(ctx context.Context, id string) ([]byte, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != store.StatusCompleted {
		return nil, fmt.Errorf("%w: job is %s", errNotReady, job.Status)
	}
	return s.store.GetResult(ctx, id)
}

var errNotReady = errors.New("result not ready")

func (s *Server) resultError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "job not found")
	case errors.Is(err, errNotReady):
		return writeError(c, fiber.StatusConflict, "NOT_READY", err.Error())
	default:
		return writeError(c, fiber.StatusInternalServerError, "STORAGE_ERROR", err.Error())
	}
}

// writeExtractionError maps taxonomy codes onto HTTP statuses.
func writeExtractionError(c *fiber.Ctx, err error) error {
	code := extractor.CodeOf(err)
	status := fiber.StatusInternalServerError
	switch code {
	case extractor.CodePasswordRequired, extractor.CodeUnknownBank:
		status = fiber.StatusBadRequest
	case extractor.CodeWrongPassword:
		status = fiber.StatusUnauthorized
	case extractor.CodeInactiveBank:
		status = fiber.StatusForbidden
	case extractor.CodeFormatMismatch, extractor.CodeNoTransactions,
		extractor.CodeAmountParse, extractor.CodeDateParse:
		status = fiber.StatusUnprocessableEntity
	case extractor.CodeLoadError:
		status = fiber.StatusInternalServerError
	}
	if code == "" {
		return writeError(c, status, "INTERNAL_ERROR", err.Error())
	}
	return writeError(c, status, string(code), err.Error())
}

func writeError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(errorBody{Error: errorDetail{Code: code, Message: message}})
}

func toJobBody(j store.Job) jobBody {
	return jobBody{
		JobID:     j.ID,
		Status:    j.Status,
		FileName:  j.FileName,
		Bank:      j.Bank,
		ErrorCode: j.ErrorCode,
		Error:     j.Error,
		CreatedAt: j.CreatedAt.Format(time.RFC3339),
		UpdatedAt: j.UpdatedAt.Format(time.RFC3339),
	}
}
