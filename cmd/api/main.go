package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"permitport/api/internal/app"
	"permitport/api/internal/config"
	"permitport/api/internal/match"
	"permitport/api/internal/restdb"
	"permitport/api/internal/store"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("configuration invalid: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	portalClient := restdb.New(cfg.PortalURL, "", cfg.RequestTimeout)
	portal := store.NewRestStore(portalClient)

	var partners []app.Partner
	if cfg.PartnerAURL != "" {
		partners = append(partners, newPartner("partner_a", cfg.PartnerAURL, cfg.PartnerAKey, cfg))
	}
	if cfg.PartnerBURL != "" {
		partners = append(partners, newPartner("partner_b", cfg.PartnerBURL, cfg.PartnerBKey, cfg))
	}

	var links *match.LinkCache
	if strings.TrimSpace(cfg.RedisURL) != "" {
		cache, err := match.NewLinkCache(cfg.RedisURL, cfg.LinkTTL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer cache.Close()
		links = cache
		log.Printf("Using Redis for project-link caching")
	} else {
		log.Printf("Project-link caching disabled (no REDIS_URL)")
	}

	service := app.New(cfg, portal, partners, portalClient, links, logger)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", httpServer.Handler())

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Permitport API listening on %s", cfg.Addr)
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
}

func newPartner(name, url, key string, cfg config.Config) app.Partner {
	client := restdb.New(url, key, cfg.RequestTimeout)
	return app.Partner{
		Name:  name,
		Store: store.NewRestStore(client),
		Auth:  partnerAuth(client, cfg.PartnerEmail, cfg.PartnerPassword),
	}
}

// partnerAuth returns a sign-in hook that reuses the session until it nears
// expiry. Partners without configured credentials write with the bare key.
func partnerAuth(client *restdb.Client, email, password string) func(context.Context) error {
	if email == "" || password == "" {
		return nil
	}
	var session restdb.Session
	return func(ctx context.Context) error {
		if session.Live() {
			return nil
		}
		fresh, err := client.SignIn(ctx, email, password)
		if err != nil {
			return err
		}
		session = fresh
		return nil
	}
}
