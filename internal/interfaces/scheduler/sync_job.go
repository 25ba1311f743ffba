package scheduler

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"moneta/internal/domain/banking"
	"moneta/internal/domain/consent"
)

// UserSyncJob implements the Job interface for the nightly per-user sync.
// It syncs accounts across all linked banks first, then refreshes cached
// transactions, so transaction sync never races a missing account row.
type UserSyncJob struct {
	userID     int64
	aggregator *banking.Aggregator
	syncer     *banking.TransactionSyncer
}

// NewUserSyncJob creates a new sync job for a user
func NewUserSyncJob(userID int64, aggregator *banking.Aggregator, syncer *banking.TransactionSyncer) *UserSyncJob {
	return &UserSyncJob{
		userID:     userID,
		aggregator: aggregator,
		syncer:     syncer,
	}
}

// Execute runs account sync across all linked banks, then transaction refresh
func (j *UserSyncJob) Execute(ctx context.Context) error {
	log.Printf("Starting account sync for user %d", j.userID)

	results, err := j.aggregator.SyncAccounts(ctx, j.userID, nil)
	if err != nil {
		log.Printf("Account sync failed for user %d: %v", j.userID, err)
		return fmt.Errorf("sync failed: %w", err)
	}

	synced, failed := 0, 0
	for _, result := range results {
		if result.Success {
			synced += result.AccountsSynced
		} else {
			failed++
			log.Printf("Account sync for user %d bank %s failed: %v", j.userID, result.BankCode, result.Error)
		}
	}
	log.Printf("Account sync for user %d: Synced=%d, FailedBanks=%d", j.userID, synced, failed)

	refreshed, err := j.syncer.RefreshUserTransactions(ctx, j.userID)
	if err != nil {
		log.Printf("Transaction refresh failed for user %d: %v", j.userID, err)
		return fmt.Errorf("transaction refresh failed: %w", err)
	}
	log.Printf("Transaction refresh for user %d: AccountsRefreshed=%d", j.userID, refreshed)

	// Banks that failed mark the run for retry, after the healthy ones got their data.
	if failed > 0 {
		return fmt.Errorf("sync completed with %d failed banks", failed)
	}

	return nil
}

// UserID returns the user ID associated with this job
func (j *UserSyncJob) UserID() string {
	return strconv.FormatInt(j.userID, 10)
}

// Description returns a human-readable description of the job
func (j *UserSyncJob) Description() string {
	return fmt.Sprintf("Bank sync for user %d", j.userID)
}

// ConsentReconcileJob checks all pending consents against their providers
// once per scheduler run, so approvals granted out-of-band still land.
type ConsentReconcileJob struct {
	orchestrator *consent.Orchestrator
}

// NewConsentReconcileJob creates the consent reconcile job
func NewConsentReconcileJob(orchestrator *consent.Orchestrator) *ConsentReconcileJob {
	return &ConsentReconcileJob{orchestrator: orchestrator}
}

// Execute runs one reconcile pass over all pending consents
func (j *ConsentReconcileJob) Execute(ctx context.Context) error {
	resolved, err := j.orchestrator.ReconcilePending(ctx)
	if err != nil {
		return fmt.Errorf("consent reconcile failed: %w", err)
	}
	log.Printf("Consent reconcile completed: Resolved=%d", resolved)
	return nil
}

// UserID returns a placeholder, the job spans all users
func (j *ConsentReconcileJob) UserID() string {
	return "all"
}

// Description returns a human-readable description of the job
func (j *ConsentReconcileJob) Description() string {
	return "Pending consent reconcile"
}
