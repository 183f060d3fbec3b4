package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"DOTRamp/internal/balance"
	"DOTRamp/internal/config"
	"DOTRamp/internal/db"
	internalhttp "DOTRamp/internal/http"
	"DOTRamp/internal/journal"
	"DOTRamp/internal/ledger"
	"DOTRamp/internal/logging"
	"DOTRamp/internal/mpesa"
	"DOTRamp/internal/notify"
	"DOTRamp/internal/pricing"
	"DOTRamp/internal/services"
	"DOTRamp/internal/store"
	"DOTRamp/internal/worker"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	logger, err := logging.New(cfg.App.LogLevel, cfg.App.Mode)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pricingSvc, err := pricing.New(cfg.Tokens)
	if err != nil {
		logger.Fatal("token registry invalid", zap.Error(err))
	}

	multi, err := ledger.NewMultiClient(cfg.Ledger.WSEndpoints, cfg.Ledger.FailoverThreshold)
	if err != nil {
		logger.Fatal("ledger client init failed", zap.Error(err))
	}
	chain := ledger.NewSerialized(multi)

	st := store.NewMemory()
	if cfg.DB.DSN != "" {
		pool, err := db.Connect(ctx, cfg.DB.DSN)
		if err != nil {
			logger.Fatal("db connect failed", zap.Error(err))
		}
		defer pool.Close()

		j := journal.New(pool, logger.Named("journal"), 0)
		st.OnTransition(j.Record)
		journalCtx, stopJournal := context.WithCancel(context.Background())
		go j.Run(journalCtx)
		defer func() {
			stopJournal()
			j.Wait()
		}()
	} else {
		logger.Warn("db.dsn not set, order events are not journaled")
	}

	gateway := mpesa.NewClient(mpesa.Config{
		BaseURL:            cfg.Mpesa.BaseURL,
		ConsumerKey:        cfg.Mpesa.ConsumerKey,
		ConsumerSecret:     cfg.Mpesa.ConsumerSecret,
		ShortCode:          cfg.Mpesa.ShortCode,
		PassKey:            cfg.Mpesa.PassKey,
		CallbackURL:        cfg.Mpesa.CallbackURL,
		AccountReference:   cfg.Mpesa.AccountReference,
		B2CShortCode:       cfg.Mpesa.B2CShortCode,
		InitiatorName:      cfg.Mpesa.InitiatorName,
		SecurityCredential: cfg.Mpesa.SecurityCredential,
		ResultURL:          cfg.Mpesa.ResultURL,
		TimeoutURL:         cfg.Mpesa.TimeoutURL,
	})

	var notifier services.Notifier = notify.NewLog(logger.Named("sms"))
	if cfg.Notify.Username != "" && cfg.Notify.APIKey != "" {
		notifier = notify.NewAfricasTalking(cfg.Notify.BaseURL, cfg.Notify.Username, cfg.Notify.APIKey, cfg.Notify.SenderID)
	}

	engine := &services.Engine{
		Store:           st,
		Pricing:         pricingSvc,
		Balance:         balance.NewOracle(chain, pricingSvc),
		Gateway:         gateway,
		Ledger:          chain,
		Notifier:        notifier,
		Log:             logger.Named("engine"),
		PoolAddress:     cfg.Ledger.PoolAddress,
		Signer:          cfg.Ledger.Signer,
		MinPayout:       decimal.NewFromInt(cfg.Mpesa.MinPayout),
		FinalityTimeout: time.Duration(cfg.Ledger.FinalityTimeoutSeconds) * time.Second,
	}
	poller := worker.NewPoller(ctx, gateway, engine,
		time.Duration(cfg.Worker.PollIntervalSeconds)*time.Second, cfg.Worker.PollMaxAttempts,
		logger.Named("poller"))
	engine.Scheduler = poller

	h := internalhttp.NewHandler(engine, logger.Named("http"))
	srv := internalhttp.NewServer(h, cfg.Server.AdminJWTSecret, logger.Named("http"))

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("api listening",
			zap.String("addr", cfg.Server.Addr),
			zap.String("ledger", multi.Endpoint()),
			zap.Int("tokens", len(cfg.Tokens)))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)

	poller.Wait()
	// transfers already submitted are awaited up to the finality timeout
	engine.Wait()
}
