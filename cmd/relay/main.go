package main

import (
	"campus-relay/auth"
	"campus-relay/contract"
	"campus-relay/infrastructure/api"
	"campus-relay/infrastructure/backplane"
	"campus-relay/infrastructure/search"
	"campus-relay/infrastructure/websocket"
	"campus-relay/internal"
	"campus-relay/moderation"
	"campus-relay/repositories"
	"campus-relay/runtime"
	"campus-relay/runtime/workers"
	"campus-relay/services"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Relay terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and blocks until a signal or a server error.
// Deferred cleanups run before main exits.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).WithLoggingLevel(badger.WARNING))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()
	if log.Enabled(ctx, slog.LevelDebug) {
		endpoint := "/inspect"
		log.Info("Debug Badger inspector available", "url", fmt.Sprintf("http://localhost:%d%s", config.DebugPort, endpoint))
		database.StartDebugServer(db, config.DebugPort, endpoint, RelayMapper)
	}

	repository := repositories.NewConversationRepository(db, log, config.LimitMessages)
	store := repositories.NewBreakerStore(repository, repositories.BreakerConfig{
		FailureThreshold: config.BreakerFailures,
		OpenTimeout:      config.BreakerOpenTimeout,
	}, log)

	// 2.bis Transcript search index (in memory when SEARCH_FILEPATH is empty)
	index, err := search.Open(config.SearchFilepath, log)
	if err != nil {
		return exitRuntime, err
	}
	defer func() { _ = index.Close() }()

	// 3. Backplane (optional)
	sup := workers.NewSupervisor(log)
	var bus contract.IBackplane
	natsURL := config.NatsURL
	if config.NatsEmbedded {
		embedded, err := backplane.StartEmbedded("127.0.0.1", -1)
		if err != nil {
			return exitRuntime, err
		}
		defer embedded.Shutdown()
		natsURL = embedded.ClientURL()
	}
	if natsURL != "" {
		nb, err := backplane.Connect(backplane.Config{URL: natsURL, Subject: config.NatsSubject}, log)
		if err != nil {
			return exitRuntime, err
		}
		defer func() { _ = nb.Close() }()
		bus = nb
	}

	// 4. Relay core
	presence := runtime.NewPresenceRegistry()
	router := runtime.NewRoomRouter(log)
	delivery := runtime.NewDelivery(log, router, presence, bus)
	lifecycle := runtime.NewLifecycle(log, presence, router, delivery)

	options := []runtime.DispatcherOption{
		runtime.WithStoreTimeout(config.StoreTimeout),
		runtime.WithMaxContentLength(config.MaxContentLength),
		runtime.WithSearchIndex(index),
	}
	if config.EnableModeration {
		moderator, err := prepareModeration(log, config.CharReplacement)
		if err != nil {
			return exitConfig, err
		}
		options = append(options, runtime.WithModerator(moderator))
	}
	dispatcher := runtime.NewDispatcher(log, store, presence, router, lifecycle, delivery, options...)

	sup.Add(workers.NewReaperWorker(log, lifecycle, config.ReapInterval, config.IdleTimeout))
	if bus != nil {
		sup.Add(workers.NewBackplaneWorker(log, bus, delivery))
	}
	if config.MetricInterval > 0 {
		sup.Add(workers.NewProcessHealthWorker(log, config.MetricInterval))
	}
	supervisorDone := make(chan struct{})
	go func() {
		defer close(supervisorDone)
		sup.Run(ctx)
	}()

	// 5. HTTP server
	var tokens websocket.TokenValidator
	if config.AuthSecret != "" {
		tokens = auth.NewTokenManager(config.AuthSecret)
	} else {
		log.Warn("AUTH_SECRET not set, connections identify themselves with the online event")
	}
	ws := websocket.NewHandler(log, lifecycle, dispatcher, tokens, websocket.Config{
		SendBuffer:     config.ConnectionBufferSize,
		RateLimit:      config.RateLimit,
		RateBurst:      config.RateBurst,
		AllowedOrigins: config.Origins(),
	})
	chat := services.NewChatService(store, index, log)
	handler := api.NewRouter(log, chat, ws, map[string]api.HealthCheck{
		"store": func() error {
			if state := store.State(); state == "open" {
				return fmt.Errorf("circuit %s", state)
			}
			return nil
		},
	}).Handler()

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := &http.Server{
		Addr:              address,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// Hijacked websocket connections outlive Shutdown, they close with ctx
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting relay", "address", address, "backplane", natsURL != "", "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 6. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err = <-errChan:
		stop()
		<-supervisorDone
		return exitRuntime, err
	}

	// 7. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err = server.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", "error", err)
	}
	<-supervisorDone
	log.Info("Relay stopped cleanly")
	return exitOK, nil
}

// prepareModeration loads the embedded dictionaries and builds the Aho-Corasick automaton.
func prepareModeration(log *slog.Logger, replacement string) (*moderation.Moderator, error) {
	char, err := internal.CharacterRune(replacement)
	if err != nil {
		return nil, err
	}
	dictionary, err := moderation.LoadDictionary(moderation.Censored, "censored")
	if err != nil {
		return nil, err
	}
	log.Info(fmt.Sprintf("%d censored files loaded [%s]", len(dictionary.Languages), strings.Join(dictionary.Languages, ",")))
	log.Info(fmt.Sprintf("%d unique censored words loaded", len(dictionary.Words)))
	return moderation.NewModerator(dictionary.Words, char, log)
}
