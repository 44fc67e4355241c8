package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Sabina940/atlas/internal/app"
	"github.com/Sabina940/atlas/internal/auth"
	"github.com/Sabina940/atlas/internal/config"
	"github.com/Sabina940/atlas/internal/email"
	"github.com/Sabina940/atlas/internal/gitrepo"
	"github.com/Sabina940/atlas/internal/media"
	"github.com/Sabina940/atlas/internal/ratelimit"
	"github.com/Sabina940/atlas/internal/rbac"
	"github.com/Sabina940/atlas/internal/search"
	"github.com/Sabina940/atlas/internal/store"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration:\n%v", err)
	}
	ctx := context.Background()

	dataStore, fallback, closeStore := openStore(ctx, cfg)
	defer closeStore()

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, fallback)
	searchService.ReindexAll(ctx, dataStore)

	options := []app.Option{app.WithSearch(searchService)}
	if strings.TrimSpace(cfg.ArchiveDir) != "" {
		if err := os.MkdirAll(cfg.ArchiveDir, 0o755); err != nil {
			log.Fatalf("failed to create archive dir: %v", err)
		}
		options = append(options, app.WithArchive(gitrepo.New(cfg.ArchiveDir)))
	}
	if cfg.Media.Enabled() {
		uploader, err := media.NewUploader(ctx, media.Config{
			Endpoint:  cfg.Media.Endpoint,
			AccessKey: cfg.Media.AccessKey,
			SecretKey: cfg.Media.SecretKey,
			Bucket:    cfg.Media.Bucket,
			UseSSL:    cfg.Media.UseSSL,
			PublicURL: cfg.Media.PublicURL,
		})
		if err != nil {
			log.Printf("media: cover uploads disabled: %v", err)
		} else {
			options = append(options, app.WithUploader(uploader))
		}
	}
	var notifier *email.Notifier
	if cfg.SMTP.Enabled() {
		notifier = email.NewNotifier(email.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			FromName: cfg.SMTP.FromName,
		}, cfg.NotifyEmails)
		log.Printf("Mailing pending comments to %s", strings.Join(cfg.NotifyEmails, ", "))
		options = append(options, app.WithNotifier(notifier))
	}
	service := app.New(cfg, dataStore, options...)

	commentLimiter, ingestLimiter, readyChecks, closeLimiters := openLimiters(cfg)
	defer closeLimiters()

	httpServer := app.NewHTTPServer(service, app.HTTPConfig{
		Gate:           auth.NewGate(buildVerifier(cfg), buildPolicy(cfg)),
		IngestSecret:   auth.NewSecretCheck(cfg.IngestSecret, cfg.IngestSecretHash),
		CommentLimiter: commentLimiter,
		IngestLimiter:  ingestLimiter,
		CORSOrigins:    cfg.CORSOrigins,
		TrustProxy:     cfg.TrustProxy,
		ReadyChecks:    readyChecks,
	})
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Atlas API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	searchService.Wait()
	if notifier != nil {
		notifier.Wait()
	}
}

func openStore(ctx context.Context, cfg config.Config) (app.DataStore, search.Searcher, func()) {
	if cfg.Store == config.StoreMemory {
		log.Printf("Using in-memory store; data is lost on restart")
		memory := store.NewMemoryStore()
		return memory, search.NewSubstring(memory), func() {}
	}

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}
	postgres := store.NewPostgresStore(db)
	return postgres, search.NewPgFTS(db), func() { _ = postgres.Close() }
}

func buildVerifier(cfg config.Config) auth.Verifier {
	if cfg.IdentityJWTKey != "" {
		log.Printf("Verifying bearer tokens locally (HS256)")
		return auth.NewJWTVerifier([]byte(cfg.IdentityJWTKey), cfg.IdentityAudience)
	}
	log.Printf("Verifying bearer tokens against %s", cfg.IdentityURL)
	return auth.NewRemoteVerifier(cfg.IdentityURL, cfg.IdentityAPIKey, nil)
}

func buildPolicy(cfg config.Config) *rbac.Policy {
	policy := rbac.FromAdminEmails(cfg.AdminEmails)
	if cfg.PolicyFile != "" {
		filePolicy, err := rbac.LoadPolicyFile(cfg.PolicyFile)
		if err != nil {
			log.Fatalf("policy file: %v", err)
		}
		policy = policy.Merge(filePolicy)
	}
	if policy.Len() == 0 {
		log.Fatalf("authorization policy grants nobody access")
	}
	return policy
}

func openLimiters(cfg config.Config) (comments, ingest ratelimit.Limiter, checks map[string]func(context.Context) error, closeFn func()) {
	if strings.TrimSpace(cfg.RedisURL) == "" {
		log.Printf("Using in-process rate limits")
		return ratelimit.NewMemoryLimiter(cfg.CommentRate, cfg.RateWindow),
			ratelimit.NewMemoryLimiter(cfg.IngestRate, cfg.RateWindow),
			nil,
			func() {}
	}

	log.Printf("Using Redis for rate limits")
	client, err := ratelimit.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	commentLimiter := ratelimit.NewRedisLimiter(client, "comments", cfg.CommentRate, cfg.RateWindow)
	return commentLimiter,
		ratelimit.NewRedisLimiter(client, "ingest", cfg.IngestRate, cfg.RateWindow),
		map[string]func(context.Context) error{"redis": commentLimiter.Ping},
		func() { _ = client.Close() }
}
