package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog/log"
	"github.com/secureview-io/secureview-auth/backend"
	"github.com/secureview-io/secureview-auth/connections"
	"github.com/secureview-io/secureview-auth/connections/staterepo"
	"github.com/secureview-io/secureview-auth/credentials"
	"github.com/secureview-io/secureview-auth/internal/config"
	"github.com/secureview-io/secureview-auth/server"
	"github.com/secureview-io/secureview-auth/session"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

const pendingAuthSweepInterval = 5 * time.Minute

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("error running server")
	}
	log.Info().Msg("server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	displayAppname(c.GetAppName())

	fs := afero.NewOsFs()
	creds, err := credentials.NewFileRepo(fs, filepath.Join(c.GetDataFolder(), "bundles.json"))
	if err != nil {
		return fmt.Errorf("credentials.NewFileRepo: %w", err)
	}

	api := backend.NewClient(c.GetBackendURL())
	sessions, err := session.NewManager(api, creds, c)
	if err != nil {
		return fmt.Errorf("session.NewManager: %w", err)
	}

	providers, err := connections.LoadProviders(fs, c.GetProvidersFile())
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("connections.LoadProviders: %w", err)
		}
		log.Warn().Str("path", c.GetProvidersFile()).Msg("no providers file, starting with an empty registry")
	}

	conns, err := connections.NewManager(providers, staterepo.NewInMemoryRepo(), creds, c)
	if err != nil {
		return fmt.Errorf("connections.NewManager: %w", err)
	}

	// Adopt a stored session, if any survives from the previous run
	if err := sessions.Initialize(context.Background()); err != nil {
		return fmt.Errorf("sessions.Initialize: %w", err)
	}

	srv, err := server.New(c, sessions, conns)
	if err != nil {
		return fmt.Errorf("server.New: %w", err)
	}
	httpServer := &http.Server{Addr: c.GetPort(), Handler: srv}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", httpServer.Addr).Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("httpServer.ListenAndServe: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		ticker := time.NewTicker(pendingAuthSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if err := conns.ExpirePendingAuth(); err != nil {
					log.Warn().Err(err).Msg("pending auth sweep failed")
				}
			}
		}
	})
	g.Go(func() error {
		<-ctx.Done()
		return shutdown(httpServer)
	})

	return g.Wait()
}

func shutdown(httpServer *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("httpServer.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
