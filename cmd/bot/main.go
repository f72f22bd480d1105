package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relaxboy65/KhosroSignalAnalyzerBot/config"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/app"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/bot"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/logger"
)

func main() {
	loop := flag.Bool("loop", false, "run a cycle every CYCLE_MINUTES until interrupted")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		l := logger.Init("bot", "info", "json")
		l.Fatal().Err(err).Msg("config")
	}
	log := logger.Init("bot", cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("shutting down")
		cancel()
	}()

	rt, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("init failed")
	}
	defer rt.Close()

	svc := rt.Bot()
	log.Info().Int("symbols", len(cfg.SymbolList())).Bool("loop", *loop).Msg("bot starting")

	if !*loop {
		res, err := svc.RunCycle(ctx)
		if err != nil {
			log.Error().Err(err).Msg("cycle interrupted")
			return
		}
		if err := res.Err(); err != nil {
			log.Warn().Err(err).Msg("cycle finished with failures")
		}
		return
	}

	stop := rt.StartObservability(ctx)
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		stop(shutdownCtx)
	}()

	err = svc.Run(ctx, time.Duration(cfg.CycleMinutes)*time.Minute, func(res bot.CycleResult) {
		rt.Health.SetCycle(time.Now(), res.Err())
	})
	if err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("bot stopped")
	}
}
