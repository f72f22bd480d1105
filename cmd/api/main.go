package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relaxboy65/KhosroSignalAnalyzerBot/config"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/api"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/app"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/logger"
	redisstore "github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/store/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := logger.Init("api", "info", "json")
		l.Fatal().Err(err).Msg("config")
	}
	log := logger.Init("api", cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("init failed")
	}
	defer rt.Close()

	stopMetrics := rt.StartObservability(ctx)
	apiLog := logger.Component(log, "api")
	var opts []api.Option
	if rt.Redis != nil {
		feed, err := rt.Redis.Subscribe(ctx, redisstore.SignalChannel)
		if err != nil {
			log.Warn().Err(err).Msg("signal stream disabled")
		} else {
			hub := api.NewHub(logger.Component(log, "stream"))
			go hub.Run(ctx, feed)
			opts = append(opts, api.WithStream(hub))
		}
	}
	srv := api.NewServer(cfg.APIAddr, api.NewRouter(rt.Ledger, apiLog, opts...), log)
	srv.Start()

	<-ctx.Done()
	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("api shutdown")
	}
	stopMetrics(shutdownCtx)
}
