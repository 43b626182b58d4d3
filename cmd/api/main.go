package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codewatch.org/internal/account"
	"codewatch.org/internal/httpapi"
	"codewatch.org/internal/identity"
	"codewatch.org/internal/obs"
	"codewatch.org/internal/report"
	"codewatch.org/internal/store/pg"
	"codewatch.org/internal/stream"
	"codewatch.org/internal/web"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	var (
		reports    report.Service
		profiles   account.ProfileStore
		identities identity.Provider
		probe      httpapi.ReadyProbe
	)

	if dsn := os.Getenv("CODEWATCH_PG_DSN"); dsn != "" {
		store, err := pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer store.Close()
		reports = store
		profiles = store
		identities = pg.NewIdentityStore(store.DB())
		probe = httpapi.ReadyProbe{DB: store.DB()}
	} else {
		// DSN-less runs keep everything in memory; useful for demos and
		// local development.
		log.Println("CODEWATCH_PG_DSN not set, using in-memory stores")
		mem := account.NewInMemoryProfiles()
		idp := identity.NewInMemory()
		idp.OnDelete = mem.Remove
		reports = report.NewInMemory(report.WithUserCounter(func(ctx context.Context) (int64, error) {
			list, err := mem.List(ctx)
			if err != nil {
				return 0, err
			}
			return int64(len(list)), nil
		}))
		profiles = mem
		identities = idp
	}

	accounts, err := account.NewService(identities, profiles)
	if err != nil {
		log.Fatalf("account service: %v", err)
	}

	events := stream.New()
	api := httpapi.New(probe, version, reports, accounts, identities, events)

	pages, err := web.New(reports, accounts, identities, events)
	if err != nil {
		log.Fatalf("web frontend: %v", err)
	}
	api.MountWeb(pages)

	addr := os.Getenv("CODEWATCH_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting codewatch-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
