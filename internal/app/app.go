package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/RubachokBoss/exam-grading/import-service/internal/config"
	"github.com/RubachokBoss/exam-grading/import-service/internal/delivery/httpd"
	"github.com/RubachokBoss/exam-grading/import-service/internal/metrics"
	"github.com/RubachokBoss/exam-grading/import-service/internal/middleware"
	"github.com/RubachokBoss/exam-grading/import-service/internal/repository"
	"github.com/RubachokBoss/exam-grading/import-service/internal/service"
	"github.com/RubachokBoss/exam-grading/import-service/internal/service/analyzer"
	"github.com/RubachokBoss/exam-grading/import-service/internal/service/extractor"
	"github.com/RubachokBoss/exam-grading/import-service/internal/service/scanner"
	"github.com/RubachokBoss/exam-grading/import-service/internal/service/validator"
	"github.com/RubachokBoss/exam-grading/import-service/internal/worker"
	"github.com/RubachokBoss/exam-grading/import-service/internal/worker/queue"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

const queryTimeout = 30 * time.Second

type App struct {
	server        *http.Server
	logger        zerolog.Logger
	config        *config.Config
	db            *sql.DB
	pool          *worker.WorkerPool
	importService service.ImportService
	importWorker  worker.ImportWorker
	rabbitMQRepo  repository.RabbitMQRepository
	publisher     queue.RabbitMQPublisher
	cancel        context.CancelFunc
}

func New(cfg *config.Config, log zerolog.Logger, db *sql.DB) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		logger: log,
		config: cfg,
		db:     db,
		cancel: cancel,
	}

	if err := a.build(ctx); err != nil {
		cancel()
		a.closeBroker()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.config
	log := a.logger

	storage, err := repository.NewFileStorage(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize file storage: %w", err)
	}

	jobRepo := repository.NewImportJobRepository(a.db, log)
	repos := service.Repositories{
		Jobs:        jobRepo,
		Submissions: repository.NewSubmissionRepository(a.db, log),
		Violations:  repository.NewViolationRepository(a.db, log),
		Groups:      repository.NewDuplicateGroupRepository(a.db, log),
		References:  repository.NewReferenceRepository(a.db, log),
		Storage:     storage,
	}

	filenameValidator, err := validator.NewFilenameValidator(validator.Config{
		Pattern:       cfg.Import.FilenamePattern,
		CodeDigits:    cfg.Import.CodeDigits,
		PrefixLetters: cfg.Import.CodePrefixLength,
	})
	if err != nil {
		return fmt.Errorf("invalid filename pattern: %w", err)
	}

	ruleScanner, err := scanner.NewRuleViolationScanner(scanner.Config{
		SourceExtensions:    cfg.Scanner.SourceExtensions,
		AllowedNameChars:    cfg.Scanner.AllowedNameChars,
		LeadingPattern:      cfg.Scanner.LeadingPattern,
		MaxNameLength:       cfg.Scanner.MaxNameLength,
		ForbiddenConstructs: cfg.Scanner.ForbiddenConstructs,
		EntryPoints:         cfg.Scanner.EntryPoints,
		TemplateMarkers:     cfg.Scanner.TemplateMarkers,
		UnlockMarkers:       cfg.Scanner.UnlockMarkers,
	}, log)
	if err != nil {
		return fmt.Errorf("invalid scanner configuration: %w", err)
	}

	thresholds := analyzer.Thresholds{
		Duplicate: cfg.Similarity.DuplicateThreshold,
		ZeroScore: cfg.Similarity.ZeroScoreThreshold,
	}
	tokenizer := analyzer.NewTokenizer(cfg.Similarity.MinTokenLength, cfg.Similarity.MaxTokenLength)
	scorer := analyzer.NewSimilarityScorer(tokenizer, log)

	m := metrics.New()
	registry := service.NewJobRegistry(cfg.Import.ProgressLogLimit)
	a.pool = worker.NewWorkerPool(cfg.Import.MaxWorkers, cfg.Import.QueueSize, cfg.Import.SubmitTimeout, log)

	plagiarismService := service.NewPlagiarismService(
		repos.Submissions,
		repos.Violations,
		scorer,
		m,
		log,
		thresholds,
		cfg.Import.SystemUser,
	)

	var publisher service.EventPublisher = queue.NopEventPublisher{}
	if cfg.RabbitMQ.Enabled {
		a.rabbitMQRepo, err = repository.NewRabbitMQRepository(cfg.RabbitMQ.URL, log)
		if err != nil {
			return err
		}
		if err := a.rabbitMQRepo.DeclareExchange(cfg.RabbitMQ.Exchange); err != nil {
			return err
		}
		if err := a.rabbitMQRepo.SetupQueue(
			cfg.RabbitMQ.Exchange,
			cfg.RabbitMQ.ImportQueue,
			cfg.RabbitMQ.ImportRoutingKey,
		); err != nil {
			return err
		}

		a.publisher = queue.NewRabbitMQPublisher(a.rabbitMQRepo.Channel(), log)
		publisher = queue.NewEventPublisher(a.publisher, cfg.RabbitMQ.Exchange, cfg.RabbitMQ.EventsPrefix, log)
	}

	a.importService = service.NewImportService(
		repos,
		service.Pipeline{
			Extractor:  extractor.NewArchiveExtractor(cfg.Storage.RootPath, log),
			Validator:  filenameValidator,
			Scanner:    ruleScanner,
			Content:    analyzer.NewContentExtractor(cfg.Scanner.SourceExtensions, cfg.Import.MaxFileSize, log),
			Grouper:    analyzer.NewDuplicateGrouper(),
			Plagiarism: plagiarismService,
		},
		registry,
		a.pool,
		publisher,
		m,
		log,
		service.ImportConfig{
			MaxFileSize:          cfg.Import.MaxFileSize,
			UploadDir:            filepath.Join(cfg.Storage.RootPath, "uploads"),
			SystemUser:           cfg.Import.SystemUser,
			Thresholds:           thresholds,
			ZeroScoreOnForbidden: cfg.Scanner.ZeroScoreOnForbidden,
			PairwiseOnImport:     cfg.Similarity.PairwiseOnImport,
			Instance:             cfg.Import.Instance("server"),
		},
	)

	if cfg.RabbitMQ.Enabled {
		consumer := queue.NewImportRequestConsumer(
			a.rabbitMQRepo.Channel(),
			cfg.RabbitMQ.ImportQueue,
			cfg.RabbitMQ.ConsumerTag,
			cfg.RabbitMQ.PrefetchCount,
			log,
		)
		a.importWorker = worker.NewImportWorker(a.pool, consumer, a.importService, log)
	}

	deps := httpd.Dependencies{
		Imports:         a.importService,
		Jobs:            service.NewJobStatusStore(repos, registry, log),
		Plagiarism:      plagiarismService,
		Database:        jobRepo,
		StorageProvider: storage.Provider(),
		Pool:            a.pool,
		Metrics:         m.Handler(),
		MaxUploadSize:   cfg.Server.MaxUploadSize,
		QueryTimeout:    queryTimeout,
	}
	if a.rabbitMQRepo != nil {
		deps.Broker = a.rabbitMQRepo
	}
	if cfg.RateLimit.Requests > 0 {
		deps.UploadLimiter = middleware.RateLimiter(ctx, cfg.RateLimit.Requests, cfg.RateLimit.Window, m.RateLimited.Inc)
	}
	handler := httpd.NewHandler(deps, log)

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.Metrics(m))
	router.Use(middleware.NewCORS(
		cfg.CORS.AllowedOrigins,
		cfg.CORS.AllowedMethods,
		cfg.CORS.AllowedHeaders,
		cfg.CORS.ExposedHeaders,
		cfg.CORS.AllowCredentials,
		cfg.CORS.MaxAge,
	))

	handler.RegisterRoutes(router)

	a.server = &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return nil
}

// Start brings up the background side of the service: the worker pool, the
// recovery of jobs left unfinished by a previous process and, when enabled,
// the queue consumer.
func (a *App) Start(ctx context.Context) error {
	if err := a.pool.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}

	n, err := a.importService.RecoverInterrupted(ctx)
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to recover interrupted import jobs")
	} else if n > 0 {
		a.logger.Warn().Int64("jobs", n).Msg("Marked interrupted import jobs as failed")
	}

	if a.importWorker != nil {
		if err := a.importWorker.Start(ctx); err != nil {
			return fmt.Errorf("failed to start import worker: %w", err)
		}
	}
	return nil
}

func (a *App) Run() error {
	a.logger.Info().Str("address", a.config.Server.Address).Msg("Starting HTTP server")

	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info().Msg("Shutting down application...")

	var firstErr error
	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Error().Err(err).Msg("Failed to shutdown HTTP server")
		firstErr = err
	}

	if a.importWorker != nil {
		if err := a.importWorker.Stop(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to stop import worker")
		}
	}

	// Imports still running when ctx expires are abandoned; the next start
	// of this instance fails them through RecoverInterrupted.
	if err := a.pool.Stop(ctx); err != nil {
		a.logger.Error().Err(err).Msg("Failed to stop worker pool")
		if firstErr == nil {
			firstErr = err
		}
	}

	a.cancel()
	a.closeBroker()

	a.logger.Info().Msg("Application shutdown complete")
	return firstErr
}

func (a *App) closeBroker() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close RabbitMQ publisher")
		}
	}
	if a.rabbitMQRepo != nil {
		if err := a.rabbitMQRepo.Close(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close RabbitMQ connection")
		}
	}
}
