// Command server wires the stores, core services and HTTP transport. With a
// Postgres DSN configured it runs on durable storage; without one everything
// lives in memory, which is enough for local development.
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"medihub/internal/access"
	"medihub/internal/audit"
	"medihub/internal/consent"
	"medihub/internal/deletion"
	"medihub/internal/directory"
	"medihub/internal/notify"
	"medihub/internal/platform/config"
	"medihub/internal/platform/httpserver"
	"medihub/internal/platform/logger"
	"medihub/internal/platform/metrics"
	platformredis "medihub/internal/platform/redis"
	"medihub/internal/record"
	"medihub/internal/session"
	"medihub/internal/token"
	httptransport "medihub/internal/transport/http"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage: one Postgres pool backs every store, or everything in memory.
	var (
		auditStore   audit.Store
		dirStore     directory.Store
		consentStore consent.ConsentStore
		linkStore    consent.LinkStore
		assignStore  access.AssignmentStore
		recordStore  record.Store
		docStore     record.DocumentStore
		jobStore     deletion.Store
	)
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			log.Error("failed to open postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			log.Error("postgres ping failed", "error", err)
			os.Exit(1)
		}

		auditStore = audit.NewPostgresStore(db)
		dirStore = directory.NewPostgresStore(db)
		consentStore = consent.NewPostgresConsentStore(db)
		linkStore = consent.NewPostgresLinkStore(db)
		assignStore = access.NewPostgresAssignmentStore(db)
		recordStore = record.NewPostgresStore(db)
		docStore = record.NewPostgresDocumentStore(db)
		jobStore = deletion.NewPostgresStore(db)
		log.Info("storage: postgres")
	} else {
		auditStore = audit.NewMemoryStore()
		dirStore = directory.NewMemoryStore()
		consentStore = consent.NewMemoryConsentStore()
		linkStore = consent.NewMemoryLinkStore()
		assignStore = access.NewMemoryAssignmentStore()
		recordStore = record.NewMemoryStore()
		docStore = record.NewMemoryDocumentStore()
		jobStore = deletion.NewMemoryStore()
		log.Warn("storage: in-memory, data will not survive a restart")
	}

	// Document blobs: S3 when a bucket is configured, local disk otherwise.
	var blobs record.BlobStore
	if cfg.S3Bucket != "" {
		s3blobs, err := record.NewS3BlobStoreFromEnv(ctx, cfg.S3Bucket)
		if err != nil {
			log.Error("failed to configure s3 blob store", "error", err)
			os.Exit(1)
		}
		blobs = s3blobs
		log.Info("documents: s3", "bucket", cfg.S3Bucket)
	} else {
		fsblobs, err := record.NewFSBlobStore(cfg.DocumentRoot)
		if err != nil {
			log.Error("failed to configure filesystem blob store", "error", err)
			os.Exit(1)
		}
		blobs = fsblobs
		log.Info("documents: filesystem", "root", cfg.DocumentRoot)
	}

	// Session revocation: Redis when configured.
	var sessions session.RevocationStore = session.NewMemoryRevocationStore()
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		sessions = session.NewRedisRevocationStore(redisClient.Client)
		log.Info("sessions: redis")
	}

	// Notifications: Kafka when brokers are configured, structured log
	// otherwise.
	var sink notify.Sink = notify.NewLogSink(log)
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaSink, err := notify.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		if err != nil {
			log.Error("failed to connect to kafka", "error", err)
			os.Exit(1)
		}
		defer func() { _ = kafkaSink.Close(context.Background()) }()
		sink = kafkaSink
		log.Info("notifications: kafka", "topic", cfg.Kafka.Topic)
	}

	tokens := token.NewService(cfg.JWTSigningKey, cfg.TokenIssuer)

	ledger := audit.NewLedger(auditStore, audit.WithMetrics(m))
	dir := directory.NewService(dirStore)
	engine := consent.NewEngine(consentStore, linkStore, ledger, dir,
		consent.WithLogger(log), consent.WithSink(sink), consent.WithMetrics(m))
	resolver := record.NewResolver(recordStore)
	gate := access.NewGate(assignStore, engine, dir, ledger, resolver,
		access.WithLogger(log), access.WithSink(sink), access.WithMetrics(m))
	records := record.NewService(recordStore, docStore, blobs, gate, record.WithLogger(log))
	workflow := deletion.NewWorkflow(jobStore, records, engine, gate, dir, ledger,
		sessions, tokens,
		deletion.WithLogger(log),
		deletion.WithSink(sink),
		deletion.WithMetrics(m),
		deletion.WithReceiptTTL(cfg.ReceiptTokenTTL),
	)

	handler := httptransport.NewHandler(log, dir, engine, gate, records, workflow,
		ledger, tokens, cfg.AccessTokenTTL)
	router := httptransport.NewRouter(handler, sessions)
	srv := httpserver.New(cfg.Addr, router)

	go func() {
		log.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}
