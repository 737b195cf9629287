package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"calwatch/internal/config"
	"calwatch/internal/dispatch"
	"calwatch/internal/ics"
	appLog "calwatch/internal/log"
	"calwatch/internal/pipeline"
	"calwatch/internal/transcript"
)

type flagConfig struct {
	configPath string
	once       bool
	debug      bool
}

func main() {
	appLog.Info("calwatch starting", "version", "0.1.0")

	flags := parseFlags()
	if flags.debug {
		appLog.SetLevel(appLog.LevelDebug)
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// Missing credentials are fatal before any fetch is attempted.
	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	appLog.Info("effective config",
		"schedule", conf.Schedule,
		"ics_feed", conf.ICS.Feed,
		"transcript_calendar", conf.Transcript.CalendarID,
		"dispatch_log", conf.Dispatch.LogPath,
		"once", flags.once,
	)

	p := buildPipeline(conf)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if flags.once {
		p.Run(ctx)
		appLog.Info("calwatch exiting")
		return
	}

	// Scheduled mode: runs fire on the configured cadence, half-hour
	// boundaries by default.
	c := cron.New()
	if _, err := c.AddFunc(conf.Schedule, func() { p.Run(ctx) }); err != nil {
		appLog.Error("invalid schedule expression", err, "schedule", conf.Schedule)
		os.Exit(1)
	}
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	appLog.Info("calwatch exiting")
}

func buildPipeline(conf *config.Config) *pipeline.Pipeline {
	feed := ics.NewAdapter(ics.Feed{
		BaseURL:    conf.ICS.BaseURL,
		APIKey:     conf.ICS.APIKey,
		Name:       conf.ICS.Feed,
		SourceName: conf.ICS.Name,
	}, ics.Options{})

	tool := &transcript.Tool{
		Command:    conf.Transcript.Command,
		WorkDir:    conf.Transcript.WorkDir,
		CalendarID: conf.Transcript.CalendarID,
	}
	transcripts := transcript.NewAdapter(tool, conf.Transcript.Name)

	dispatcher := dispatch.New(
		&dispatch.ExecRunner{Command: conf.Dispatch.Command},
		conf.Dispatch.LogPath,
	)

	return pipeline.New(transcripts, feed, dispatcher)
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/calwatch/config.yaml", "Path to config file")
	flag.BoolVar(&cfg.once, "once", false, "Run one fetch+match+dispatch cycle and exit")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}
