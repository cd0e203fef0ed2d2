package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"card-payments/internal/acquirer"
	"card-payments/internal/amount"
	"card-payments/internal/api"
	"card-payments/internal/bin"
	"card-payments/internal/callback"
	"card-payments/internal/charge"
	"card-payments/internal/chargeback"
	"card-payments/internal/config"
	"card-payments/internal/db"
	"card-payments/internal/deferred"
	"card-payments/internal/event"
	"card-payments/internal/fraud"
	"card-payments/internal/invoker"
	"card-payments/internal/kafka"
	"card-payments/internal/logging"
	"card-payments/internal/metrics"
	"card-payments/internal/normalizer"
	"card-payments/internal/provider"
	"card-payments/internal/sandbox"
	"card-payments/internal/storage"
	"card-payments/internal/token"
	"card-payments/internal/transaction"
	"card-payments/internal/trxrule"
	"card-payments/internal/void"
	"github.com/go-chi/chi/v5"
)

const storageBackendMemory = "mem"

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "."
	}
	cfg := config.MustLoadConfig(configPath)

	logger := logging.GetLogger(cfg.Logs)
	metrics.Setup(cfg.Metrics, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		store     storage.Storage
		callbacks event.CallbackStore
		repo      *db.CallbackRepository
	)
	if cfg.Storage.Backend == storageBackendMemory {
		logger.Warn("Using in-memory storage, merchant callbacks are disabled")
		store = storage.NewMemory()
	} else {
		connStr := cfg.Database.ConnString()
		if err := db.RunMigrations(connStr, "migrations"); err != nil {
			log.Fatal(err)
		}

		pool, err := db.GetPool(connStr)
		if err != nil {
			log.Fatal(err)
		}
		defer pool.Close()

		store = db.NewItemRepository(pool)
		repo = db.NewCallbackRepository(pool)
		callbacks = repo
	}

	writer := kafka.NewWriter(cfg.Kafka)
	defer writer.Close()
	recorder := transaction.NewRecorder(kafka.NewPublisher(writer, logger), cfg.Kafka.Topic.Transactions, logger)

	inv := invoker.NewHTTPInvoker(cfg.Services.InvokerURL, cfg.Services.ExternalTimeout(), logger)
	bins := bin.NewEnricher(inv, cfg.Services.Functions.BinInfo, logger)
	builder := transaction.NewBuilder()
	norm := normalizer.New(builder, recorder, cfg.Charge, logger)
	gateway := chargeback.NewClient(inv, cfg.Services.Functions, logger)

	registry := provider.NewRegistry()
	for _, a := range cfg.Services.Acquirers {
		variant := provider.Variant(a.Variant)
		registry.Register(variant, acquirer.NewClient(variant, a.URL, cfg.Services.ExternalTimeout(), logger))
	}
	registry.Register(provider.Variant(cfg.Routing.SandboxVariant), sandbox.New(logger))

	charges := charge.NewService(charge.Dependencies{
		Storage:    store,
		Tokens:     token.NewResolver(store, cfg.Charge, cfg.Services.ExternalTimeout(), logger),
		Bins:       bins,
		Converter:  amount.NewConverter(inv, cfg.Services.Functions.CurrencyConversion, cfg.Currency),
		Fraud:      fraud.NewChecker(fraud.NewClient(cfg.Services.FraudURL, cfg.Services.ExternalTimeout(), logger), cfg.Charge.FraudMigratedMerchants, logger),
		Rules:      trxrule.NewInvoker(inv, cfg.Services.Functions.TransactionRule, bins),
		Deferred:   deferred.NewEngine(cfg.Deferred),
		Router:     provider.NewRouter(registry, cfg.Routing),
		Builder:    builder,
		Recorder:   recorder,
		Normalizer: norm,
		Reverser:   gateway,
	}, cfg.Charge, cfg.Services.ExternalTimeout(), logger)

	voids := void.NewService(store, gateway, builder, recorder, norm, cfg.Void, cfg.Charge, cfg.Services.ExternalTimeout(), logger)

	eventReader := kafka.NewReader(cfg.Kafka, cfg.Kafka.Topic.Transactions)
	defer eventReader.Close()
	go kafka.ReadTransactionEvents(ctx, eventReader, event.NewProcessor(store, callbacks, cfg.Charge, logger), logger)

	if repo != nil {
		callback.NewProducer(repo, writer, cfg.Kafka.Topic.CallbackMessages, cfg.Callback.Producer, logger).Start(ctx)

		callbackReader := kafka.NewReader(cfg.Kafka, cfg.Kafka.Topic.CallbackMessages)
		defer callbackReader.Close()
		processor := callback.NewCallbackProcessor(repo, callback.NewSender(cfg.Callback.Sender, logger), cfg.Callback.Processor, logger)
		go kafka.ReadCallbackMessages(ctx, callbackReader, processor, logger)
	}

	router := chi.NewRouter()
	api.NewAPI(charges, voids, cfg.Server.RequestTimeout(), logger).AppendRoutes(router)

	server := &http.Server{Addr: ":" + cfg.Server.Port, Handler: router}
	go func() {
		<-ctx.Done()
		server.Shutdown(context.Background())
	}()

	logger.Info("Starting server", slog.String("port", cfg.Server.Port))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
