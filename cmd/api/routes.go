package main

import (
	"log"
	"net/http"

	httphandlers "moneta/internal/interfaces/http"
	"moneta/internal/shared/config"
	"moneta/internal/shared/middleware"
)

// SetupRoutes configures all HTTP routes and returns the final handler with middleware.
func SetupRoutes(deps *Dependencies, cfg *config.Config) http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", httphandlers.HandleHealth)

	// Public auth routes
	mux.HandleFunc("/api/auth/register", deps.AuthHandler.HandleRegister)
	mux.HandleFunc("/api/auth/login", deps.AuthHandler.HandleLogin)
	mux.HandleFunc("/api/auth/logout", deps.AuthHandler.HandleLogout)

	// Protected routes
	authMiddleware := middleware.Auth(deps.JWT)

	mux.Handle("/api/users/me", authMiddleware(http.HandlerFunc(deps.UserHandler.HandleMe)))

	mux.Handle("/api/banks", authMiddleware(http.HandlerFunc(deps.ProviderHandler.HandleListBanks)))
	mux.Handle("/api/banks/{code}/validate", authMiddleware(http.HandlerFunc(deps.ProviderHandler.HandleValidateBank)))
	mux.Handle("/api/banks/{code}/accounts/{accountId}/transactions", authMiddleware(http.HandlerFunc(deps.TransactionHandler.HandleAccountTransactions)))

	mux.Handle("/api/links", authMiddleware(http.HandlerFunc(deps.LinkHandler.HandleLinks)))
	mux.Handle("/api/links/{code}", authMiddleware(http.HandlerFunc(deps.LinkHandler.HandleLinkByBank)))

	mux.Handle("/api/consents", authMiddleware(http.HandlerFunc(deps.ConsentHandler.HandleConsents)))
	mux.Handle("/api/consents/{code}", authMiddleware(http.HandlerFunc(deps.ConsentHandler.HandleConsentByBank)))

	mux.Handle("/api/sync/accounts", authMiddleware(http.HandlerFunc(deps.SyncHandler.HandleSyncAccounts)))
	mux.Handle("/api/sync/transactions", authMiddleware(http.HandlerFunc(deps.SyncHandler.HandleSyncTransactions)))

	mux.Handle("/api/accounts", authMiddleware(http.HandlerFunc(deps.AccountHandler.HandleListAccounts)))
	mux.Handle("/api/accounts/{id}", authMiddleware(http.HandlerFunc(deps.AccountHandler.HandleAccountByID)))

	mux.Handle("/api/notifications/register-device", authMiddleware(http.HandlerFunc(deps.NotificationHandler.HandleRegisterDevice)))
	mux.Handle("/api/notifications/{id}/open", authMiddleware(http.HandlerFunc(deps.NotificationHandler.HandleOpen)))
	mux.Handle("/api/notifications", authMiddleware(http.HandlerFunc(deps.NotificationHandler.HandleNotifications)))

	// Apply global middleware
	handler := middleware.Logging(middleware.CORS(cfg.Server.AllowedHosts)(mux))

	// Request tracing and metrics when telemetry is enabled
	if cfg.Telemetry.Enabled {
		handler = middleware.Telemetry(middleware.Tracing(handler))
	}

	// Apply security middleware when TLS is enabled
	if cfg.TLS.Enabled {
		handler = middleware.HSTS(middleware.SecureCookies(handler))
		log.Println("TLS security middleware enabled (HSTS + SecureCookies)")
	}

	return handler
}
