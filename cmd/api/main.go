package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"inkwell.org/internal/auth"
	"inkwell.org/internal/config"
	"inkwell.org/internal/content"
	"inkwell.org/internal/httpapi"
	"inkwell.org/internal/mail"
	"inkwell.org/internal/oauth"
	"inkwell.org/internal/obs"
)

var version = "0.1.0"

func main() {
	obs.Init()
	obs.InitBuildInfo(version)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	issuer, err := auth.NewIssuer([]byte(cfg.JWTSecret), cfg.JWTIssuer, auth.WithAccessTTL(cfg.AccessTokenTTL))
	if err != nil {
		log.Fatalf("token issuer: %v", err)
	}
	codec, err := auth.NewCodec([]byte(cfg.EncryptionKey))
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}

	var mailer auth.Mailer = mail.LogMailer{}
	if cfg.SMTPAddr != "" {
		mailer, err = mail.NewSMTPMailer(cfg.SMTPAddr, cfg.SMTPFrom, cfg.SMTPUsername, cfg.SMTPPassword, cfg.ServiceURL)
		if err != nil {
			log.Fatalf("smtp mailer: %v", err)
		}
	}

	store := auth.NewPGStore(db)
	authSvc, err := auth.NewService(store, issuer, codec,
		auth.WithMailer(mailer),
		auth.WithRefreshTTL(cfg.RefreshTokenTTL),
		auth.WithActivationTTL(cfg.ActivationTokenTTL),
	)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}
	roleSvc, err := auth.NewRoleService(store)
	if err != nil {
		log.Fatalf("role service: %v", err)
	}
	oauthSvc, err := oauth.NewService(oauth.NewPGStore(db), store.Accounts(), issuer)
	if err != nil {
		log.Fatalf("oauth service: %v", err)
	}
	postSvc, err := content.NewService(content.NewPGStore(db))
	if err != nil {
		log.Fatalf("content service: %v", err)
	}

	api := httpapi.New(httpapi.Options{
		Ready:          httpapi.ReadyProbe{DB: db},
		Auth:           authSvc,
		Roles:          roleSvc,
		OAuth:          oauthSvc,
		Posts:          postSvc,
		Issuer:         issuer,
		Version:        version,
		TokenOwner:     auth.OwnerResolverFunc(store.Tokens().AccountID),
		CORSOrigin:     cfg.CORSOrigin,
		MaxBodyBytes:   cfg.MaxBodyBytes,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	var health *httpapi.HealthServer
	if cfg.GRPCAddr != "" {
		health = httpapi.NewHealthServer()
		go func() {
			if err := health.ListenAndServe(cfg.GRPCAddr); err != nil {
				log.Fatalf("grpc health: %v", err)
			}
		}()
	}

	log.Printf("Starting inkwell-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()
	if health != nil {
		health.SetServing(true)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if health != nil {
		health.Stop()
	}
	_ = srv.Shutdown(ctx)
	_ = db.Close()
	log.Println("Stopped")
}
