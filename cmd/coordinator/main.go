package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mkhas/Rescue/internal/adapters/httpapi"
	"github.com/mkhas/Rescue/internal/adapters/locate"
	"github.com/mkhas/Rescue/internal/adapters/registry"
	"github.com/mkhas/Rescue/internal/adapters/rtc"
	"github.com/mkhas/Rescue/internal/adapters/signalws"
	"github.com/mkhas/Rescue/internal/adapters/state"
	"github.com/mkhas/Rescue/internal/app"
	"github.com/mkhas/Rescue/internal/config"
	"github.com/mkhas/Rescue/internal/core"
	"github.com/mkhas/Rescue/internal/domain"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	identity, err := domain.NewIdentity(cfg.Name, cfg.Email)
	if err != nil {
		log.Fatal().Err(err).Msg("bad identity configuration")
	}

	reg := registry.NewClient(cfg.RegistryURL, cfg.Token)
	store := state.NewFileStore(cfg.StatePath)
	signaler := signalws.NewClient(cfg.SignalURL)

	var locator core.Locator
	if cfg.LocatorURL != "" {
		locator = locate.NewHTTPLocator(cfg.LocatorURL)
	} else {
		locator = locate.NewStaticLocator(cfg.StaticLat, cfg.StaticLon)
	}

	acquire := func() (core.MediaSource, error) {
		return rtc.OpenRTPSource(cfg.AudioRTPPort, cfg.VideoRTPPort)
	}

	mesh := app.NewPeerMesh(rtc.Factory(rtc.DefaultConfig()), signaler)
	chat := app.NewChatChannel(signaler)
	reporter := app.NewReporter(locator, reg, cfg.ReportInterval)
	roster := app.NewRoster(reg, cfg.PollInterval)

	ctrl := app.NewController(reg, signaler, store, locator, acquire, identity, mesh, chat, reporter)
	ctrl.OnLogout(func() {
		log.Error().Msg("credential expired; re-authenticate and restart")
		cancel()
	})
	roster.OnCredentialExpired(func() {
		log.Error().Msg("credential expired during roster poll")
		cancel()
	})

	go signaler.Run(ctx)
	roster.Begin(ctx)

	// A persisted session id from a previous run re-activates reporting and
	// room membership without creating a new session.
	if err := ctrl.Resume(ctx); err != nil {
		log.Error().Err(err).Msg("resume failed")
	}

	r := httpapi.SetupRouter(ctx, cfg, httpapi.Deps{
		Controller: ctrl,
		Mesh:       mesh,
		Chat:       chat,
		Roster:     roster,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Rescue coordinator started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	// The session is deliberately NOT stopped here: the persisted id lets the
	// next run resume it. Only an explicit /api/session/stop terminates it.
	roster.Stop()
	if ctrl.Active() {
		log.Info().Msg("session stays active; it will resume on next start")
	}
	signaler.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Coordinator exited gracefully")
}
