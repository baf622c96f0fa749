package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mqzhao/vidscribe/internal/alert"
	"github.com/mqzhao/vidscribe/internal/bot"
	"github.com/mqzhao/vidscribe/internal/config"
	"github.com/mqzhao/vidscribe/internal/db"
	"github.com/mqzhao/vidscribe/internal/llm"
	"github.com/mqzhao/vidscribe/internal/media"
	"github.com/mqzhao/vidscribe/internal/pipeline"
	"github.com/mqzhao/vidscribe/internal/store"
	"github.com/mqzhao/vidscribe/internal/wechat"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server and ingestion pipeline",
		Long:  "Serves the WeChat webhook, runs the background download/transcribe workers, and sweeps expired sessions.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to vidscribe config file")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	out := cmd.OutOrStdout()

	gormDB, err := db.Open(cfg.Database)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	sessions, err := store.NewSessionStore(store.SessionStoreOpts{
		DB:        gormDB,
		TTL:       time.Duration(cfg.Session.TTLHours) * time.Hour,
		SweepCron: cfg.Session.SweepCron,
		Out:       out,
	})
	if err != nil {
		return err
	}
	transcripts, err := store.NewTranscriptStore(gormDB)
	if err != nil {
		return err
	}

	tokens, err := wechat.NewAccessTokenSource(wechat.TokenSourceOpts{
		AppID:     cfg.WeChat.AppID,
		AppSecret: cfg.WeChat.AppSecret,
		APIBase:   cfg.WeChat.APIBase,
	})
	if err != nil {
		return err
	}
	pushGw, err := wechat.NewPushGateway(wechat.PushGatewayOpts{
		Tokens:  tokens,
		APIBase: cfg.WeChat.APIBase,
	})
	if err != nil {
		return err
	}
	uploader, err := wechat.NewMediaUploader(wechat.MediaUploaderOpts{
		Tokens:  tokens,
		APIBase: cfg.WeChat.APIBase,
	})
	if err != nil {
		return err
	}

	alerter, err := alert.FromConfig(cfg.Alerts)
	if err != nil {
		return err
	}

	transcriber, err := media.NewWhisperTranscriber(media.WhisperOpts{
		APIKey:  cfg.Transcriber.APIKey,
		BaseURL: cfg.Transcriber.BaseURL,
		Model:   cfg.Transcriber.Model,
	})
	if err != nil {
		return err
	}
	model, err := llm.New(llm.Opts{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: time.Duration(cfg.LLM.TimeoutSec) * time.Second,
	})
	if err != nil {
		return err
	}

	pipe, err := pipeline.New(pipeline.Opts{
		DB:                gormDB,
		Sessions:          sessions,
		Transcripts:       transcripts,
		Downloader:        media.NewYouGetDownloader(),
		Transcriber:       transcriber,
		Notifier:          pushGw,
		Alerter:           alerter,
		DataDir:           cfg.Storage.DataDir,
		Workers:           cfg.Pipeline.Workers,
		QueueSize:         cfg.Pipeline.QueueSize,
		DownloadTimeout:   time.Duration(cfg.Pipeline.DownloadTimeoutMin) * time.Minute,
		TranscribeTimeout: time.Duration(cfg.Pipeline.TranscribeTimeoutMin) * time.Minute,
		Out:               out,
	})
	if err != nil {
		return err
	}

	router, err := bot.NewRouter(bot.RouterOpts{
		Sessions:    sessions,
		Transcripts: transcripts,
		Submitter:   pipe,
		Model:       model,
		Uploader:    uploader,
		Out:         out,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle OS signals for graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	pipe.Start(ctx)
	go sessions.RunSweeper(ctx)
	alerter.Alert(ctx, "vidscribe online", fmt.Sprintf("webhook on :%d%s", cfg.Server.Port, cfg.Server.Path))

	err = wechat.Start(ctx, wechat.StartOpts{
		Replier:  router,
		Verifier: wechat.TokenVerifier{Token: cfg.WeChat.Token},
		Port:     cfg.Server.Port,
		Path:     cfg.Server.Path,
		Out:      out,
	})

	cancel()
	pipe.Wait()
	fmt.Fprintf(out, "vidscribe stopped\n")
	return err
}
