package server

import (
	"context"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"broadcast-service/internal/config"
	"broadcast-service/internal/handler"
	"broadcast-service/internal/reaction"
	"broadcast-service/internal/repository"
	"broadcast-service/internal/router"
	"broadcast-service/internal/usecase"
	"broadcast-service/internal/worker"
	"broadcast-service/pkg/blobstore"
	"broadcast-service/pkg/cache"
	"broadcast-service/pkg/gateway"
)

func NewServer(ctx context.Context, cfg config.AppConfig, logger *zap.Logger) *http.Server {
	// --- DB connection ---
	dbpool, err := config.ConnectDB()
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	// --- Init repos ---
	directory := repository.NewDirectoryRepository(dbpool)
	ledger := repository.NewLedgerRepository(dbpool)

	// --- Redis ---
	c := cache.NewCache(cfg.RedisAddr, cfg.RedisPass)
	if err := c.Ping(ctx); err != nil {
		logger.Warn("redis unreachable at startup, dedupe and digest lock degraded", zap.Error(err))
	}

	// --- Provider gateway ---
	transport := gateway.NewClient(cfg.SmsURL, cfg.SmsAPIKey, cfg.SmsSenderID, cfg.SmsUserID, cfg.SmsPassword, logger)

	// --- Attachment store ---
	blobs, err := blobstore.New(cfg.UploadDir, cfg.PublicBaseURL, logger)
	if err != nil {
		log.Fatalf("failed to init attachment store: %v", err)
	}

	// --- Reaction engine ---
	resolver := reaction.NewResolver(ledger, logger)
	aggregator := reaction.NewAggregator(ledger, logger)

	// --- Usecases ---
	broadcastUC := usecase.NewBroadcastUsecase(directory, ledger, transport, logger, cfg.FanoutWorkers)

	// --- Digest worker ---
	digestWorker, err := worker.NewDigestWorker(ledger, broadcastUC, c, logger, cfg.DigestCron)
	if err != nil {
		log.Fatalf("failed to init digest worker: %v", err)
	}
	digestWorker.Start(ctx)

	inboundUC := usecase.NewInboundUsecase(directory, ledger, resolver, aggregator, broadcastUC, blobs, digestWorker, logger)

	// --- Handlers ---
	webhookHandler := handler.NewWebhookHandler(inboundUC, c, logger)

	// --- HTTP routes ---
	r := chi.NewRouter()
	r = router.SetupRoutes(r, webhookHandler, blobs.Dir()).(*chi.Mux)

	return &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}
}
