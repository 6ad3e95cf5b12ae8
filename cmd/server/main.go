package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Bouchary/saas-tracker-app-sub001/internal/client"
	"github.com/Bouchary/saas-tracker-app-sub001/internal/config"
	"github.com/Bouchary/saas-tracker-app-sub001/internal/database"
	"github.com/Bouchary/saas-tracker-app-sub001/internal/handler"
	"github.com/Bouchary/saas-tracker-app-sub001/internal/logger"
	"github.com/Bouchary/saas-tracker-app-sub001/internal/middleware"
	"github.com/Bouchary/saas-tracker-app-sub001/internal/natsclient"
	"github.com/Bouchary/saas-tracker-app-sub001/internal/repository"
	"github.com/Bouchary/saas-tracker-app-sub001/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       os.Getenv("LOG_LEVEL"),
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting Purchase Requests Service")

	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.New(ctx, database.Config{
		Host:        cfg.Database.Host,
		Port:        cfg.Database.Port,
		User:        cfg.Database.User,
		Password:    cfg.Database.Password,
		Database:    cfg.Database.Database,
		SSLMode:     cfg.Database.SSLMode,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		MaxConnTime: cfg.Database.MaxConnTime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	// Initialize repositories
	requestRepo := repository.NewRequestRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	historyRepo := repository.NewHistoryRepository(db)
	attachmentRepo := repository.NewAttachmentRepository(db)
	rulesRepo := repository.NewApprovalRulesRepository(db)

	// Initialize peer service clients
	contractsClient := client.NewContractsClient(cfg.Peers.ContractsURL)
	identityClient := client.NewIdentityClient(cfg.Peers.IdentityURL)

	log.Info().
		Str("contracts_url", cfg.Peers.ContractsURL).
		Str("identity_url", cfg.Peers.IdentityURL).
		Msg("Peer service clients initialized")

	// Initialize notification publisher. An empty NATS URL degrades the
	// service to a silent notifier rather than refusing to start.
	nc, err := natsclient.Connect(cfg.NATS.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to NATS")
	}
	if nc != nil {
		defer nc.Close()
		log.Info().Str("url", cfg.NATS.URL).Msg("NATS connection established")
	} else {
		log.Warn().Msg("NATS URL not configured; notifications disabled")
	}
	notifier := client.NewNotificationPublisher(nc, log.Logger)

	// Initialize services
	requestService := service.NewRequestService(
		requestRepo,
		assignmentRepo,
		historyRepo,
		attachmentRepo,
		rulesRepo,
		contractsClient,
		identityClient,
		notifier,
		log,
	)
	ruleService := service.NewRuleService(rulesRepo, log)

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(requestService, ruleService, log)
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// Purchase request routes
	mux.HandleFunc("/api/v1/requests", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			httpHandler.ListRequests(w, r)
		case http.MethodPost:
			httpHandler.CreateRequest(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/v1/requests/get", httpHandler.GetRequest)
	mux.HandleFunc("/api/v1/requests/update", httpHandler.UpdateRequest)
	mux.HandleFunc("/api/v1/requests/delete", httpHandler.DeleteRequest)
	mux.HandleFunc("/api/v1/requests/submit", httpHandler.SubmitRequest)
	mux.HandleFunc("/api/v1/requests/approve", httpHandler.ApproveRequest)
	mux.HandleFunc("/api/v1/requests/reject", httpHandler.RejectRequest)
	mux.HandleFunc("/api/v1/requests/convert", httpHandler.ConvertRequest)
	mux.HandleFunc("/api/v1/requests/pending", httpHandler.ListPendingApprovals)
	mux.HandleFunc("/api/v1/requests/history", httpHandler.GetHistory)

	// Attachment routes
	mux.HandleFunc("/api/v1/requests/attachments", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			httpHandler.ListFiles(w, r)
		case http.MethodPost:
			httpHandler.AttachFile(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/v1/requests/attachments/delete", httpHandler.DeleteFile)

	// Approval rule routes
	mux.HandleFunc("/api/v1/approval-rules", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			httpHandler.ListRules(w, r)
		case http.MethodPost:
			httpHandler.CreateRule(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/v1/approval-rules/get", httpHandler.GetRule)
	mux.HandleFunc("/api/v1/approval-rules/update", httpHandler.UpdateRule)
	mux.HandleFunc("/api/v1/approval-rules/toggle", httpHandler.ToggleRule)
	mux.HandleFunc("/api/v1/approval-rules/delete", httpHandler.DeleteRule)
	mux.HandleFunc("/api/v1/approval-rules/test", httpHandler.TestRule)

	// Apply middleware
	var h http.Handler = mux
	h = middleware.RequestID(h)
	h = middleware.Logger(&log.Logger)(h)
	h = middleware.Recovery(&log.Logger)(h)
	h = middleware.CORS([]string{"*"})(h)
	h = middleware.Timeout(30 * time.Second)(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Server stopped")
}
