package app

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/menuocr/internal/async"
	"github.com/joseph-ayodele/menuocr/internal/common"
	"github.com/joseph-ayodele/menuocr/internal/consensus"
	"github.com/joseph-ayodele/menuocr/internal/export"
	"github.com/joseph-ayodele/menuocr/internal/llm/openai"
	"github.com/joseph-ayodele/menuocr/internal/menu"
	"github.com/joseph-ayodele/menuocr/internal/ocr"
	"github.com/joseph-ayodele/menuocr/internal/ocr/ocrspace"
	"github.com/joseph-ayodele/menuocr/internal/ocr/vision"
	"github.com/joseph-ayodele/menuocr/internal/pipeline"
	"github.com/joseph-ayodele/menuocr/internal/repository"
	"github.com/joseph-ayodele/menuocr/internal/server"
	"github.com/joseph-ayodele/menuocr/internal/storage"
)

// App is the wired object graph shared by the daemon and the CLI.
type App struct {
	Config     *common.Config
	Logger     *slog.Logger
	Structured *ocrspace.Adapter
	Vision     *vision.Adapter
	Arbiter    *consensus.Arbiter
	Validator  *menu.Validator
	Heuristic  menu.Heuristic
	Processor  *pipeline.Processor
	Resolver   *storage.Resolver   // trusted: local files, azblob:// and HEIC
	Menus      *server.MenuService // network-facing: inline images and URLs only
	LocalMenus *server.MenuService // CLI: resolves through Resolver
	Store      *repository.Store   // nil without DB_URL
	Exporter   *export.Service     // nil without DB_URL
}

// NewLogger builds the process logger. Text output drops time and level so
// lines stay readable in a terminal; JSON output keeps them.
func NewLogger(w io.Writer, verbose, asJSON bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	if asJSON {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && (a.Key == slog.TimeKey || a.Key == slog.LevelKey) {
				return slog.Attr{}
			}
			return a
		},
	}))
}

// Build wires every component from cfg. Provider keys are not checked here:
// a missing key fails the affected call and the pipeline degrades.
func Build(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Logger: logger}

	chat := openai.NewClient(openai.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Timeout:        cfg.LLM.Timeout,
		RequestsPerSec: cfg.LLM.RequestsPerSec,
	}, logger)

	a.Structured = ocrspace.New(ocrspace.Config{
		APIKey:         cfg.OCRSpace.APIKey,
		URL:            cfg.OCRSpace.URL,
		Timeout:        cfg.OCRSpace.Timeout,
		RequestsPerSec: cfg.OCRSpace.RequestsPerSec,
	}, logger)
	a.Vision = vision.New(chat, vision.Config{
		Model:           cfg.LLM.VisionModel,
		FlattenMarkdown: cfg.LLM.VisionMarkdown,
		Timeout:         cfg.LLM.VisionTimeout,
	}, logger)

	opts := ocr.DefaultOptions()
	opts.Language = cfg.OCRSpace.Language
	opts.Engine = cfg.OCRSpace.Engine
	a.Arbiter = consensus.NewArbiter(a.Structured, a.Vision, chat, consensus.Config{
		Model:              cfg.LLM.ArbiterModel,
		EngineTimeout:      cfg.Consensus.EngineTimeout,
		ArbiterTimeout:     cfg.Consensus.ArbiterTimeout,
		FallbackConfidence: cfg.Consensus.FallbackConfidence,
		Lenient:            cfg.LLM.LenientOptional,
		Options:            opts,
	}, logger)

	a.Validator = menu.NewValidator(chat, menu.ValidatorConfig{
		Model:     cfg.LLM.ValidatorModel,
		Threshold: cfg.Consensus.MenuThreshold,
		Lenient:   cfg.LLM.LenientOptional,
		Timeout:   cfg.Consensus.ValidatorTimeout,
	}, logger)
	a.Heuristic = a.Validator.Heuristic()

	var recorder pipeline.Recorder
	if cfg.Database.DSN != "" {
		store, err := repository.Open(ctx, repository.Config{
			Driver:           cfg.Database.Driver,
			DSN:              cfg.Database.DSN,
			MaxConns:         cfg.Database.MaxConns,
			MinConns:         cfg.Database.MinConns,
			MaxConnLifetime:  cfg.Database.MaxConnLifetime,
			MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
			DialTimeout:      cfg.Database.DialTimeout,
			StatementTimeout: cfg.Database.StatementTimeout,
		}, logger)
		if err != nil {
			return nil, common.WrapError(err, "open database")
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		a.Store = store
		a.Exporter = export.NewService(store, logger)
		recorder = store
	} else {
		logger.Warn("DB_URL not set, runs will not be recorded")
	}

	a.Processor = pipeline.NewProcessor(logger, a.Arbiter, a.Validator,
		pipeline.NewGate(cfg.Consensus.AcceptThreshold, a.Heuristic), recorder)

	var blobs storage.BlobStore
	if cfg.Storage.AzureAccount != "" && cfg.Storage.AzureKey != "" {
		b, err := storage.NewAzureStorage(cfg.Storage.AzureAccount, cfg.Storage.AzureKey)
		if err != nil {
			a.Close()
			return nil, common.NewAppError(common.CodeConfig, "azure storage credentials", err)
		}
		blobs = b
	}
	heic := ocr.NewHEICConverter(ocr.HEICConfig{
		Converter: cfg.Storage.HEICConverter,
		CacheDir:  cfg.Storage.HEICCacheDir,
	}, logger)
	a.Resolver = storage.NewResolver(blobs, logger, storage.WithLocalSources(), storage.WithHEICConverter(heic))
	a.Menus = server.NewMenuService(a.Processor, storage.NewResolver(nil, logger), a.Heuristic, logger)
	a.LocalMenus = server.NewMenuService(a.Processor, a.Resolver, a.Heuristic, logger)
	return a, nil
}

// JobHandler resolves a queued source and runs the pipeline on it.
func (a *App) JobHandler() async.Handler {
	return func(ctx context.Context, job async.Job) error {
		img, err := a.Resolver.Resolve(ctx, job.Source)
		if err != nil {
			return err
		}
		out, err := a.Processor.ProcessAndValidateMenu(common.WithSource(ctx, job.Source), img)
		if err != nil {
			return err
		}
		a.Logger.Info("inbox.job.done",
			"source", job.Source,
			"hash", job.HashHex,
			"run_id", out.RunID,
			"decision", out.Decision,
			"queued_ms", time.Since(job.SubmittedAt).Milliseconds(),
		)
		return nil
	}
}

// Close releases the database, if any.
func (a *App) Close() {
	if a.Store == nil {
		return
	}
	if err := a.Store.Close(); err != nil {
		a.Logger.Error("failed to close database", "error", err)
	}
}
