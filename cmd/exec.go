package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"eventpass/config"
	"eventpass/internal/handlers"
	"eventpass/internal/services"
	"eventpass/internal/services/ledger"
	"eventpass/internal/services/oracle"
	"eventpass/internal/store"
	"eventpass/security"
	"eventpass/utils"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go"
	"github.com/spf13/cobra"

	_ "eventpass/migrations"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient, err := utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	// Initialize PubNub (optional, only when keys are configured)
	var pn *pubnub.PubNub
	if cfg.PubNubPublishKey != "" && cfg.PubNubSubscribeKey != "" {
		pnConfig := pubnub.NewConfig()
		pnConfig.PublishKey = cfg.PubNubPublishKey
		pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
		pnConfig.SecretKey = cfg.PubNubSecretKey
		pn = pubnub.NewPubNub(pnConfig)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize services
	pbStore := store.NewPB(app)
	priceOracle := oracle.New(cfg.OracleURL, cfg.OracleAssetID, cfg.UnitsPerToken, cfg.OracleRefresh, redisClient)
	ledgerClient := ledger.NewClient(cfg.LedgerRPCURL, cfg.AddressHRP)
	ticketService := services.NewTicketService(pbStore, pn)
	reconcileService := services.NewReconcileService(pbStore, priceOracle, ledgerClient, ticketService, redisClient, cfg.ToleranceFactor)

	credentialService, err := services.NewCredentialService(pbStore, cfg.IssuerID, cfg.IssuerPrivateKey)
	if err != nil {
		return err
	}
	if !credentialService.Configured() {
		slog.Warn("no attendance issuer key configured, credential endpoints disabled")
	}

	// Initialize handlers
	registrationHandler := handlers.NewRegistrationHandler(app, reconcileService)
	ticketHandler := handlers.NewTicketHandler(app, ticketService)
	credentialHandler := handlers.NewCredentialHandler(app, credentialService)
	cronHandler := handlers.NewCronHandler(app, reconcileService, cfg.CronSecret)

	rateLimiter := security.NewRateLimiter(redisClient)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	// Operator helper for generating a hashed CRON_SECRET value.
	app.RootCmd.AddCommand(newHashCronSecretCommand())

	// In-process fallback sweep. The external scheduler hitting the cron
	// endpoint stays authoritative; the redis lock keeps them from racing.
	app.Cron().MustAdd("verifyPendingPayments", "*/5 * * * *", func() {
		if _, err := reconcileService.ReconcileAllPending(ctx); err != nil {
			slog.Error("scheduled payment sweep failed", "error", err)
		}
	})

	// Setup graceful shutdown
	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		// Registration and payment endpoints
		e.Router.POST("/api/v1/events/{eventId}/register", registrationHandler.RegisterFree).
			BindFunc(rateLimiter.PerUserLimit("register", 30))
		e.Router.POST("/api/v1/events/{eventId}/confirm-payment", registrationHandler.ConfirmPayment).
			BindFunc(rateLimiter.PerUserLimit("confirm", 30))
		e.Router.GET("/api/v1/events/{eventId}/payment-status", registrationHandler.PaymentStatus).
			BindFunc(rateLimiter.PerUserLimit("status", 120))

		// Ticket endpoints
		e.Router.POST("/api/v1/events/{eventId}/check-in", ticketHandler.CheckIn)
		e.Router.GET("/api/v1/events/{eventId}/credentials/attendance", credentialHandler.AttendanceCredential)

		// Credential issuer discovery
		e.Router.GET("/.well-known/attendance-issuer", credentialHandler.IssuerDocument)

		// Scheduler endpoint. GET is kept for cron runners that cannot POST.
		e.Router.POST("/api/v1/cron/verify-payments", cronHandler.VerifyPayments)
		e.Router.GET("/api/v1/cron/verify-payments", cronHandler.VerifyPayments)

		// Prometheus metrics
		if cfg.EnableMetrics {
			e.Router.GET("/metrics", apis.WrapStdHandler(promhttp.Handler()))
		}

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(200, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		return e.Next()
	})

	// Start server
	if err := app.Start(); err != nil {
		return err
	}
	return nil
}

// newHashCronSecretCommand prints the bcrypt hash of a sweep secret so
// operators can store the hash in CRON_SECRET instead of the plain value.
func newHashCronSecretCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-cron-secret [secret]",
		Short: "Print the bcrypt hash of a sweep secret for CRON_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := security.HashSweepSecret(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
}
