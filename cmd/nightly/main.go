package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/relaxboy65/KhosroSignalAnalyzerBot/config"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/app"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/calendar"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/logger"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/notification"
)

func main() {
	date := flag.String("date", "", "Tehran day to settle (YYYY-MM-DD); defaults to yesterday")
	schedule := flag.Bool("schedule", false, "stay up and settle yesterday every night at NIGHTLY_HOUR:NIGHTLY_MINUTE Tehran")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		l := logger.Init("nightly", "info", "json")
		l.Fatal().Err(err).Msg("config")
	}
	log := logger.Init("nightly", cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	rt, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("init failed")
	}
	defer rt.Close()

	if !*schedule {
		day := *date
		if day == "" {
			day = calendar.Yesterday(time.Now())
		}
		if err := settle(ctx, rt, log, day); err != nil {
			log.Error().Err(err).Str("day", day).Msg("settlement failed")
			rt.Close()
			os.Exit(1)
		}
		return
	}

	stop := rt.StartObservability(ctx)
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		stop(shutdownCtx)
	}()

	for {
		next := calendar.NextRun(time.Now(), cfg.NightlyHour, cfg.NightlyMin)
		log.Info().Str("next_run", calendar.FormatTehran(next)).Msg("waiting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
		}
		day := calendar.Yesterday(time.Now())
		if err := settle(ctx, rt, log, day); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Str("day", day).Msg("settlement failed")
		}
	}
}

// settle runs the simulator for day and delivers the report.
func settle(ctx context.Context, rt *app.Runtime, log zerolog.Logger, day string) error {
	start := time.Now()
	rep, err := rt.Simulator().Run(ctx, day)
	rt.Metrics.ObserveSettlementRun(time.Since(start))
	if err != nil {
		return err
	}
	if err := rt.Notifier.Send(ctx, notification.ReportAlert(rep)); err != nil {
		log.Warn().Err(err).Msg("report delivery failed")
	}
	return nil
}
