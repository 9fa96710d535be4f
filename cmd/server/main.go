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

	"velos/internal/audit"
	"velos/internal/candidate"
	"velos/internal/extract"
	"velos/internal/llm"
	"velos/internal/packet"
	"velos/internal/pipeline"
	"velos/internal/platform/config"
	"velos/internal/platform/logger"
	"velos/internal/platform/metrics"
	platformredis "velos/internal/platform/redis"
	"velos/internal/redact"
	"velos/internal/registry"
	httptransport "velos/internal/transport/http"
	"velos/internal/vector"
)

// main wires dependencies and owns process lifecycle. Business logic lives in
// the internal services.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if cfg.LLM.URL == "" {
		log.Error("VELOS_LLM_URL is required, screening cannot run without a completion backend")
		os.Exit(1)
	}

	m := metrics.New()
	secret := config.SigningSecret()

	// Revocations move to Redis when configured so every instance agrees.
	var revocations registry.RevocationStore = registry.NewInMemoryRevocationStore()
	redisClient, err := platformredis.Dial(context.Background(), cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		revocations = registry.NewRedisRevocationStore(redisClient)
		defer redisClient.Close()
	}

	reg := registry.New(secret, registry.NewInMemoryCredentialStore(), revocations, m, log)

	// Audit persists to Postgres when configured, memory otherwise.
	var auditStore audit.Store = audit.NewInMemoryStore()
	if cfg.Postgres.DSN != "" {
		db, err := sql.Open("postgres", cfg.Postgres.DSN)
		if err != nil {
			log.Error("postgres open failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		pgStore := audit.NewPostgresStore(db)
		if err := pgStore.Migrate(context.Background()); err != nil {
			log.Error("audit store migration failed", "error", err)
			os.Exit(1)
		}
		auditStore = pgStore
	}
	auditLog := audit.NewLog(auditStore, log)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Optional Kafka fan-out of the audit stream.
	if len(cfg.Kafka.Brokers) > 0 {
		sink, err := audit.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
		if err != nil {
			log.Error("kafka sink failed", "error", err)
			os.Exit(1)
		}
		defer sink.Close()
		go func() {
			if err := audit.NewWorker(auditLog, sink, log).Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("audit worker stopped", "error", err)
			}
		}()
	}

	issuer, err := reg.CreateDID(rootCtx, registry.DIDKindAgent, "velos-screening-agent", []string{
		"issue_eligibility", "issue_skill_match", "issue_authenticity",
	})
	if err != nil {
		log.Error("issuer DID creation failed", "error", err)
		os.Exit(1)
	}

	client := llm.NewRetryingClient(llm.NewHTTPClient(cfg.LLM.URL), llm.RetryConfig{
		MaxRetries:     cfg.LLM.MaxRetries,
		InitialBackoff: cfg.LLM.InitialBackoff,
		RequestTimeout: cfg.LLM.RequestTimeout,
	}, log)

	store := candidate.NewInMemoryStore()
	redactor := redact.New(log)
	extractor := extract.New(client, log)
	embedder := vector.NewHashingEmbedder()

	gk := pipeline.NewGatekeeper(redactor, extractor, reg, issuer.DID, cfg.Pipeline, log)
	sm := pipeline.NewSkillMatcher(embedder, reg, issuer.DID, cfg.Pipeline, log)
	in := pipeline.NewInterrogator(client, reg, issuer.DID, cfg.Pipeline, log)
	assembler := packet.NewAssembler(reg, secret, packet.NewInMemoryStore(), m, log)
	runner := pipeline.NewRunner(store, gk, sm, in, assembler, auditLog, m, log)
	service := pipeline.NewService(store, runner, reg, assembler, auditLog, m, log)

	router := httptransport.NewRouter(httptransport.NewHandler(service, log), log)
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("velos listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-rootCtx.Done()
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	service.Shutdown()
}
