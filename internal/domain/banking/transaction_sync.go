package banking

import (
	"context"
	"fmt"
	"log"
	"time"

	"moneta/internal/domain/account"
	"moneta/internal/domain/transaction"
	"moneta/internal/infrastructure/openbanking"
)

// maxRefreshPages bounds how far a single refresh pages through the
// provider before giving up on the tail.
const maxRefreshPages = 20

// TransactionSyncer serves transaction pages from the local cache and
// refreshes stale accounts from the provider on demand. When a refresh
// fails but cached data exists, the cached page is served instead.
type TransactionSyncer struct {
	aggregator   *Aggregator
	accounts     account.Repository
	transactions transaction.Repository
	cfg          Config
}

func NewTransactionSyncer(aggregator *Aggregator, accounts account.Repository, transactions transaction.Repository, cfg Config) *TransactionSyncer {
	return &TransactionSyncer{
		aggregator:   aggregator,
		accounts:     accounts,
		transactions: transactions,
		cfg:          cfg.withDefaults(),
	}
}

// GetTransactionsPage returns one page of an account's transactions.
// The account is addressed by the provider's account id. The second
// return value reports whether stale cached data was served because a
// refresh failed.
func (s *TransactionSyncer) GetTransactionsPage(ctx context.Context, userID int64, bankCode, providerAccountID string, q transaction.PageQuery) (*transaction.Page, bool, error) {
	q = q.Normalize()

	acct, err := s.accounts.GetByProviderID(ctx, userID, bankCode, providerAccountID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up account: %w", err)
	}
	if acct == nil {
		// The account may exist at the bank without ever having been
		// synced locally. Try one account sync before giving up.
		if result := s.aggregator.SyncBank(ctx, userID, bankCode); result.Error != nil {
			return nil, false, result.Error
		}
		acct, err = s.accounts.GetByProviderID(ctx, userID, bankCode, providerAccountID)
		if err != nil {
			return nil, false, fmt.Errorf("failed to look up account: %w", err)
		}
		if acct == nil {
			return nil, false, account.ErrAccountNotFound
		}
	}

	staleServed := false
	if acct.Stale(time.Now(), s.cfg.TransactionTTL) {
		if err := s.Refresh(ctx, userID, acct); err != nil {
			if acct.LastSyncedAt == nil {
				return nil, false, err
			}
			log.Printf("transactions: refresh for account %s at %s failed, serving cached data: %v", acct.AccountID, bankCode, err)
			staleServed = true
		}
	}

	transactions, err := s.transactions.ListPage(ctx, userID, acct.ID, q)
	if err != nil {
		return nil, false, fmt.Errorf("failed to list transactions: %w", err)
	}
	total, err := s.transactions.CountFiltered(ctx, userID, acct.ID, q)
	if err != nil {
		return nil, false, fmt.Errorf("failed to count transactions: %w", err)
	}

	return &transaction.Page{
		Transactions: transactions,
		TotalCount:   total,
		Page:         q.Page,
		Limit:        q.Limit,
	}, staleServed, nil
}

// Refresh pulls the account's transactions for the configured window and
// lands them in the cache. LastSyncedAt moves only on success.
func (s *TransactionSyncer) Refresh(ctx context.Context, userID int64, acct *account.Account) error {
	a := s.aggregator

	profile, err := a.registry.Resolve(ctx, acct.BankCode)
	if err != nil {
		return Classify(acct.BankCode, err)
	}
	if err := profile.Usable(); err != nil {
		return newError(CodeConfiguration, acct.BankCode, "bank credentials are not configured", "set the provider's client credentials", err)
	}

	row, err := a.consents.Ensure(ctx, userID, acct.BankCode)
	if err != nil {
		return Classify(acct.BankCode, err)
	}
	if !row.Live(time.Now()) {
		return consentError(acct.BankCode, row.Status)
	}

	endpoint := profile.Endpoint()
	token, err := a.client.AcquireToken(ctx, endpoint)
	if err != nil {
		return Classify(acct.BankCode, err)
	}

	now := time.Now().UTC()
	query := openbanking.TransactionQuery{
		From:  now.Add(-s.cfg.SyncWindow),
		To:    now,
		Limit: openbanking.MaxPageLimit,
	}

	for page := 1; page <= maxRefreshPages; page++ {
		query.Page = page

		raw, err := a.client.GetTransactions(ctx, endpoint, token, acct.AccountID, row.ConsentID, query)
		if err != nil {
			return Classify(acct.BankCode, err)
		}

		normalized, dropped, err := openbanking.NormalizeTransactions(raw, now)
		if err != nil {
			return newError(CodeMalformedResponse, acct.BankCode, "bank returned an undecodable transactions payload", "", err)
		}
		if dropped > 0 {
			log.Printf("transactions: dropped %d unusable records from %s", dropped, acct.BankCode)
		}

		for _, tx := range normalized {
			params := transaction.UpsertParams{
				UserID:          userID,
				AccountID:       acct.ID,
				TransactionID:   tx.TransactionID,
				Amount:          tx.Amount,
				Currency:        tx.Currency,
				Type:            tx.Direction,
				Category:        transaction.CategoryForType(tx.Direction),
				BookingDate:     tx.BookingDate,
				ValueDate:       tx.ValueDate,
				CreditorName:    tx.CreditorName,
				CreditorAccount: tx.CreditorAccount,
				DebtorName:      tx.DebtorName,
				DebtorAccount:   tx.DebtorAccount,
				Narrative:       tx.Narrative,
			}
			if _, err := s.transactions.Upsert(ctx, params); err != nil {
				return fmt.Errorf("failed to store transaction %s: %w", tx.TransactionID, err)
			}
		}

		if len(normalized)+dropped < openbanking.MaxPageLimit {
			break
		}
	}

	if err := s.accounts.UpdateLastSynced(ctx, acct.ID, now); err != nil {
		return fmt.Errorf("failed to record sync time: %w", err)
	}
	syncedAt := now
	acct.LastSyncedAt = &syncedAt
	return nil
}

// RefreshUserTransactions refreshes every active account of a user that
// has gone stale. Per-account failures are logged and skipped so one
// misbehaving bank never blocks the rest.
func (s *TransactionSyncer) RefreshUserTransactions(ctx context.Context, userID int64) (int, error) {
	accounts, err := s.accounts.ListByUserID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to list accounts: %w", err)
	}

	refreshed := 0
	now := time.Now()
	for _, acct := range accounts {
		if !acct.IsActive || !acct.Stale(now, s.cfg.TransactionTTL) {
			continue
		}
		if err := s.Refresh(ctx, userID, acct); err != nil {
			log.Printf("transactions: scheduled refresh for account %s at %s failed: %v", acct.AccountID, acct.BankCode, err)
			continue
		}
		refreshed++
	}
	return refreshed, nil
}
