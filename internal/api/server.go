// Package api serves the extraction HTTP interface on fiber:
// asynchronous statement jobs, a synchronous extract endpoint, bank
// registry management and exports.
package api

import (
	"log/slog"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/insightdelivered/statement-extractor/internal/assembler"
	"github.com/insightdelivered/statement-extractor/internal/bankconfig"
	"github.com/insightdelivered/statement-extractor/internal/extractor"
	"github.com/insightdelivered/statement-extractor/internal/store"
	"github.com/insightdelivered/statement-extractor/internal/worker"
)

// Deps carries everything the handlers need.
type Deps struct {
	Store      *store.Store
	Assembler  *assembler.Assembler
	Registry   *bankconfig.Registry
	Resolver   *extractor.Resolver
	Pool       *worker.Pool
	Logger     *slog.Logger
	UploadsDir string
	BodyLimit  int
	Version    string
}

type Server struct {
	app        *fiber.App
	store      *store.Store
	asm        *assembler.Assembler
	registry   *bankconfig.Registry
	resolver   *extractor.Resolver
	pool       *worker.Pool
	logger     *slog.Logger
	uploadsDir string
	version    string
}

func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.BodyLimit <= 0 {
		deps.BodyLimit = 30 << 20
	}

	s := &Server{
		store:      deps.Store,
		asm:        deps.Assembler,
		registry:   deps.Registry,
		resolver:   deps.Resolver,
		pool:       deps.Pool,
		logger:     deps.Logger,
		uploadsDir: deps.UploadsDir,
		version:    deps.Version,
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "statement-extractor",
		BodyLimit:             deps.BodyLimit,
		DisableStartupMessage: true,
	})
	s.app.Use(recover.New())
	s.app.Use(logger.New())
	s.app.Use(cors.New())
	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Get("/api/health", s.handleHealth)
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	v1 := s.app.Group("/api/v1")
	v1.Post("/statements", s.handleUpload)
	v1.Get("/jobs", s.handleListJobs)
	v1.Get("/jobs/:id", s.handleJobStatus)
	v1.Get("/jobs/:id/result", s.handleJobResult)
	v1.Get("/jobs/:id/export", s.handleJobExport)
	v1.Post("/extract", s.handleExtract)
	v1.Get("/banks", s.handleListBanks)
	v1.Post("/banks/reload", s.handleReloadBanks)
	v1.Post("/banks/:id/reload", s.handleReloadBank)
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Listen(addr string) error {
	s.logger.Info("http server listening", "addr", addr)
	return s.app.Listen(addr)
}

func (s *Server) Shutdown() error {
	return s.app.ShutdownWithTimeout(10 * time.Second)
}
