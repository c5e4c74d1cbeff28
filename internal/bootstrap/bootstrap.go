package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/oa-knowledge-pipeline/internal/config"
	"github.com/kirillkom/oa-knowledge-pipeline/internal/core/analysis"
	"github.com/kirillkom/oa-knowledge-pipeline/internal/core/domain"
	"github.com/kirillkom/oa-knowledge-pipeline/internal/core/ports"
	"github.com/kirillkom/oa-knowledge-pipeline/internal/core/usecase"
	"github.com/kirillkom/oa-knowledge-pipeline/internal/datimport"
	"github.com/kirillkom/oa-knowledge-pipeline/internal/infrastructure/crypto/aescrypt"
	"github.com/kirillkom/oa-knowledge-pipeline/internal/infrastructure/kb/dify"
	"github.com/kirillkom/oa-knowledge-pipeline/internal/infrastructure/llm/openaichat"
	"github.com/kirillkom/oa-knowledge-pipeline/internal/infrastructure/parser"
	natsqueue "github.com/kirillkom/oa-knowledge-pipeline/internal/infrastructure/queue/nats"
	"github.com/kirillkom/oa-knowledge-pipeline/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/oa-knowledge-pipeline/internal/infrastructure/resilience"
	"github.com/kirillkom/oa-knowledge-pipeline/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/oa-knowledge-pipeline/internal/infrastructure/storage/ossgateway"
)

type App struct {
	Config config.Config
	Log    *slog.Logger

	Queue    *natsqueue.Queue
	Repo     *postgres.FileRepository
	Logs     ports.ProcessingLogStore
	Resolver *analysis.Resolver
	Analyzer *analysis.Analyzer

	ProcessUC ports.DocumentProcessor
	ApproveUC ports.DocumentApprover
	BatchUC   ports.BatchSubmitter
	DedupUC   ports.DedupSweeper
	ExpiryUC  ports.ExpirySweeper
	Importer  *datimport.Importer

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewFileRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	logs := postgres.NewProcessingLogRepository(db)
	mappings := postgres.NewMappingRepository(db)

	if cfg.DifyDatasetID != "" {
		target := domain.KnowledgeBaseTarget{
			Name:      "default",
			BaseURL:   cfg.DifyBaseURL,
			APIKey:    cfg.DifyAPIKey,
			DatasetID: cfg.DifyDatasetID,
		}
		if err := mappings.SeedDefault(ctx, target, cfg.MinConfidenceScore, cfg.AutoApproveThreshold); err != nil {
			return nil, fmt.Errorf("seed default mapping: %w", err)
		}
	}

	resilienceCfg := resilience.DefaultConfig()
	resilienceCfg.Logger = log
	executor := resilience.NewExecutor(resilienceCfg)

	var storage ports.ObjectStorage
	if cfg.OSSGatewayURL != "" {
		storage = ossgateway.New(cfg.OSSGatewayURL, ossgateway.Options{ResilienceExecutor: executor})
	} else {
		local, err := localfs.New(cfg.OSSLocalPath)
		if err != nil {
			return nil, fmt.Errorf("init object storage: %w", err)
		}
		storage = local
	}

	queue, err := natsqueue.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, natsqueue.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init task queue: %w", err)
	}

	completions := openaichat.New(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel, openaichat.Options{
		RequestsPerSecond:  cfg.LLMRateRPS,
		ResilienceExecutor: executor,
	})

	reqs, err := analysis.LoadRequirements()
	if err != nil {
		return nil, fmt.Errorf("load category requirements: %w", err)
	}
	resolver := analysis.NewResolver(mappings, log)
	analyzer := analysis.NewAnalyzer(completions, resolver, reqs, log)

	decryptor := aescrypt.New()
	extractor := aescrypt.NewArchiveExtractor(log)
	contentParser := parser.New(log)
	knowledgeBase := dify.New(dify.Options{ResilienceExecutor: executor})

	processUC := usecase.NewProcessDocumentUseCase(
		repo, logs, storage, decryptor, extractor, contentParser, analyzer, knowledgeBase, log)
	approveUC := usecase.NewApproveDocumentUseCase(
		repo, logs, storage, decryptor, extractor, contentParser, resolver, knowledgeBase, log)
	batchUC := usecase.NewBatchProcessUseCase(repo, queue, log)
	dedupUC := usecase.NewVersionDedupUseCase(
		repo, storage, decryptor, extractor, contentParser, analyzer, resolver, knowledgeBase, log)
	expiryUC := usecase.NewExpirationCheckUseCase(
		repo, storage, decryptor, extractor, contentParser, analyzer, resolver, knowledgeBase, log)
	importer := datimport.NewImporter(repo, log)

	return &App{
		Config: cfg,
		Log:    log,

		Queue:    queue,
		Repo:     repo,
		Logs:     logs,
		Resolver: resolver,
		Analyzer: analyzer,

		ProcessUC: processUC,
		ApproveUC: approveUC,
		BatchUC:   batchUC,
		DedupUC:   dedupUC,
		ExpiryUC:  expiryUC,
		Importer:  importer,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
