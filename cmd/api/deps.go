package main

import (
	"context"
	"log"
	"time"

	"moneta/internal/domain/account"
	"moneta/internal/domain/banking"
	"moneta/internal/domain/consent"
	"moneta/internal/domain/notification"
	"moneta/internal/domain/provider"
	"moneta/internal/infrastructure/firebase"
	"moneta/internal/infrastructure/openbanking"
	"moneta/internal/infrastructure/postgres"
	httphandlers "moneta/internal/interfaces/http"
	"moneta/internal/shared/auth"
	"moneta/internal/shared/config"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	DB *postgres.DB

	// Handlers
	AuthHandler         *httphandlers.AuthHandler
	UserHandler         *httphandlers.UserHandler
	ProviderHandler     *httphandlers.ProviderHandler
	LinkHandler         *httphandlers.LinkHandler
	ConsentHandler      *httphandlers.ConsentHandler
	SyncHandler         *httphandlers.SyncHandler
	AccountHandler      *httphandlers.AccountHandler
	TransactionHandler  *httphandlers.TransactionHandler
	NotificationHandler *httphandlers.NotificationHandler

	// Auth
	JWT *auth.JWT

	// Core services (for scheduler jobs)
	Aggregator   *banking.Aggregator
	Syncer       *banking.TransactionSyncer
	Orchestrator *consent.Orchestrator

	// Repositories (for scheduler job provider)
	LinkRepo *postgres.LinkRepository
}

// NewDependencies initializes all application dependencies.
func NewDependencies(cfg *config.Config) (*Dependencies, error) {
	// Connect to database
	db, err := postgres.New(cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}
	log.Println("Connected to database")

	// Initialize repositories
	userRepo := postgres.NewUserRepository(db)
	linkRepo := postgres.NewLinkRepository(db)
	providerRepo := postgres.NewProviderRepository(db)
	consentRepo := postgres.NewConsentRepository(db)
	accountRepo := postgres.NewAccountRepository(db)
	transactionRepo := postgres.NewTransactionRepository(db)
	notificationRepo := postgres.NewNotificationRepository(db)

	// Initialize provider bank client and registry
	obClient := openbanking.NewClient(cfg.Banking.RequestTimeout)
	registry := provider.NewRegistry(providerRepo, obClient, provider.Defaults{
		ClientID:           cfg.Banking.ClientID,
		ClientSecret:       cfg.Banking.ClientSecret,
		RequestingBank:     cfg.Banking.RequestingBank,
		RequestingBankName: cfg.Banking.RequestingBankName,
	})

	// Initialize push messaging (optional)
	var messenger notification.Messenger
	if cfg.Firebase.CredentialsFile != "" {
		fcm, err := firebase.NewClient(context.Background(), cfg.Firebase.CredentialsFile, userRepo.ClearDeviceToken)
		if err != nil {
			log.Printf("Warning: Failed to initialize Firebase, push disabled: %v", err)
		} else {
			messenger = fcm
			log.Println("Firebase messaging initialized")
		}
	} else {
		log.Println("Firebase credentials not configured, push disabled")
	}

	notificationService := notification.NewService(notificationRepo, userRepo, messenger, nil)

	// Initialize consent orchestration and the sync pipeline
	orchestrator := consent.NewOrchestrator(registry, obClient, consentRepo, linkRepo, notificationService, consent.Config{
		Reason:       cfg.Banking.ConsentReason,
		Validity:     cfg.Banking.ConsentValidity,
		PollInterval: cfg.Banking.PollInterval,
		PollAttempts: cfg.Banking.PollAttempts,
	})

	bankingCfg := banking.Config{
		SyncConcurrency: cfg.Banking.SyncConcurrency,
		TransactionTTL:  cfg.Banking.TransactionTTL,
		SyncWindow:      time.Duration(cfg.Banking.SyncWindowDays) * 24 * time.Hour,
	}
	aggregator := banking.NewAggregator(registry, obClient, orchestrator, linkRepo, accountRepo, bankingCfg)
	syncer := banking.NewTransactionSyncer(aggregator, accountRepo, transactionRepo, bankingCfg)

	// Initialize domain services
	accountService := account.NewService(accountRepo)

	// Initialize auth components
	jwt := auth.NewJWT(cfg.JWT.Secret)

	// Initialize handlers
	authHandler := httphandlers.NewAuthHandler(userRepo, jwt)
	userHandler := httphandlers.NewUserHandler(userRepo, linkRepo)
	providerHandler := httphandlers.NewProviderHandler(registry)
	linkHandler := httphandlers.NewLinkHandler(linkRepo, registry)
	consentHandler := httphandlers.NewConsentHandler(orchestrator)
	syncHandler := httphandlers.NewSyncHandler(aggregator, syncer)
	accountHandler := httphandlers.NewAccountHandler(accountService)
	transactionHandler := httphandlers.NewTransactionHandler(syncer)
	notificationHandler := httphandlers.NewNotificationHandler(notificationService)

	return &Dependencies{
		DB:                  db,
		AuthHandler:         authHandler,
		UserHandler:         userHandler,
		ProviderHandler:     providerHandler,
		LinkHandler:         linkHandler,
		ConsentHandler:      consentHandler,
		SyncHandler:         syncHandler,
		AccountHandler:      accountHandler,
		TransactionHandler:  transactionHandler,
		NotificationHandler: notificationHandler,
		JWT:                 jwt,
		Aggregator:          aggregator,
		Syncer:              syncer,
		Orchestrator:        orchestrator,
		LinkRepo:            linkRepo,
	}, nil
}

// Close releases all resources held by dependencies.
func (d *Dependencies) Close() {
	if d.DB != nil {
		d.DB.Close()
	}
}
