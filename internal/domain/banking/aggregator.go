package banking

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"moneta/internal/domain/account"
	"moneta/internal/domain/consent"
	"moneta/internal/domain/provider"
	"moneta/internal/domain/user"
	"moneta/internal/infrastructure/openbanking"
)

// Config drives sync behavior. Zero values fall back to the defaults
// below.
type Config struct {
	SyncConcurrency int
	TransactionTTL  time.Duration
	SyncWindow      time.Duration
}

const (
	defaultSyncConcurrency = 4
	defaultTransactionTTL  = 5 * time.Minute
	defaultSyncWindow      = 90 * 24 * time.Hour
)

func (c Config) withDefaults() Config {
	if c.SyncConcurrency <= 0 {
		c.SyncConcurrency = defaultSyncConcurrency
	}
	if c.TransactionTTL <= 0 {
		c.TransactionTTL = defaultTransactionTTL
	}
	if c.SyncWindow <= 0 {
		c.SyncWindow = defaultSyncWindow
	}
	return c
}

// BankResult is the per-bank outcome of a multi-bank sync. A failed bank
// never aborts the others; its Error carries the classified cause.
type BankResult struct {
	BankCode       string `json:"bankCode"`
	Success        bool   `json:"success"`
	AccountsSynced int    `json:"accountsSynced"`
	ConsentID      string `json:"consentId,omitempty"`
	Error          *Error `json:"error,omitempty"`
}

// Aggregator fans a sync out across a user's linked banks and lands the
// normalized accounts in local storage.
type Aggregator struct {
	registry *provider.Registry
	client   openbanking.ClientInterface
	consents *consent.Orchestrator
	links    user.LinkRepository
	accounts account.Repository
	cfg      Config
}

func NewAggregator(registry *provider.Registry, client openbanking.ClientInterface, consents *consent.Orchestrator, links user.LinkRepository, accounts account.Repository, cfg Config) *Aggregator {
	return &Aggregator{
		registry: registry,
		client:   client,
		consents: consents,
		links:    links,
		accounts: accounts,
		cfg:      cfg.withDefaults(),
	}
}

// SyncAccounts syncs the given banks concurrently. An empty bankCodes
// means every bank the user has linked. Results come back in the same
// order as the requested banks.
func (a *Aggregator) SyncAccounts(ctx context.Context, userID int64, bankCodes []string) ([]BankResult, error) {
	if len(bankCodes) == 0 {
		links, err := a.links.ListByUserID(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to list bank links: %w", err)
		}
		for _, link := range links {
			bankCodes = append(bankCodes, link.BankCode)
		}
	}
	if len(bankCodes) == 0 {
		return []BankResult{}, nil
	}

	results := make([]BankResult, len(bankCodes))
	sem := make(chan struct{}, a.cfg.SyncConcurrency)
	var wg sync.WaitGroup

	for i, bankCode := range bankCodes {
		wg.Add(1)
		go func(i int, bankCode string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = a.SyncBank(ctx, userID, bankCode)
		}(i, bankCode)
	}
	wg.Wait()

	return results, nil
}

// SyncBank runs the full per-bank pipeline: resolve the provider, ensure
// a live consent, fetch and normalize accounts, persist them, and retire
// accounts the bank no longer reports.
func (a *Aggregator) SyncBank(ctx context.Context, userID int64, bankCode string) BankResult {
	result := BankResult{BankCode: bankCode}

	profile, err := a.registry.Resolve(ctx, bankCode)
	if err != nil {
		result.Error = Classify(bankCode, err)
		return result
	}
	if err := profile.Usable(); err != nil {
		result.Error = newError(CodeConfiguration, bankCode, "bank credentials are not configured", "set the provider's client credentials", err)
		return result
	}

	link, err := a.links.GetByUserAndBank(ctx, userID, bankCode)
	if err != nil {
		result.Error = Classify(bankCode, err)
		return result
	}
	if link == nil {
		result.Error = Classify(bankCode, user.ErrLinkMissing)
		return result
	}

	row, err := a.consents.Ensure(ctx, userID, bankCode)
	if err != nil {
		result.Error = Classify(bankCode, err)
		return result
	}
	if !row.Live(time.Now()) {
		result.Error = consentError(bankCode, row.Status)
		return result
	}
	result.ConsentID = row.ConsentID

	endpoint := profile.Endpoint()
	token, err := a.client.AcquireToken(ctx, endpoint)
	if err != nil {
		result.Error = Classify(bankCode, err)
		return result
	}

	raw, err := a.client.GetAccounts(ctx, endpoint, token, link.BankUserID, row.ConsentID)
	if err != nil {
		result.Error = Classify(bankCode, err)
		return result
	}

	normalized, dropped, err := openbanking.NormalizeAccounts(raw)
	if err != nil {
		result.Error = newError(CodeMalformedResponse, bankCode, "bank returned an undecodable accounts payload", "", err)
		return result
	}
	if dropped > 0 {
		log.Printf("sync: dropped %d account records without ids from %s", dropped, bankCode)
	}

	presentIDs := make([]string, 0, len(normalized))
	for _, acct := range normalized {
		params := account.UpsertParams{
			UserID:      userID,
			BankCode:    bankCode,
			AccountID:   acct.AccountID,
			ConsentID:   row.ConsentID,
			AccountType: acct.AccountType,
			Currency:    acct.Currency,
			Name:        acct.Name,
			IBAN:        acct.IBAN,
			BIC:         acct.BIC,
		}

		// Balances are best effort. A failed balance fetch never fails
		// the account sync.
		if balRaw, balErr := a.client.GetBalances(ctx, endpoint, token, acct.AccountID, row.ConsentID); balErr == nil {
			if balances, normErr := openbanking.NormalizeBalances(balRaw); normErr == nil {
				params.CurrentBalance = balances.Current
				params.AvailableBalance = balances.Available
				if balances.Current != nil || balances.Available != nil {
					now := time.Now().UTC()
					params.BalanceUpdatedAt = &now
				}
			}
		} else {
			log.Printf("sync: balance fetch for account %s at %s failed: %v", acct.AccountID, bankCode, balErr)
		}

		if _, err := a.accounts.Upsert(ctx, params); err != nil {
			result.Error = newError(CodeProviderUnreachable, bankCode, "failed to store synced account", "", err)
			return result
		}
		presentIDs = append(presentIDs, acct.AccountID)
		result.AccountsSynced++
	}

	if deactivated, err := a.accounts.MarkMissingInactive(ctx, userID, bankCode, presentIDs); err != nil {
		log.Printf("sync: failed to deactivate missing accounts at %s: %v", bankCode, err)
	} else if deactivated > 0 {
		log.Printf("sync: deactivated %d accounts no longer reported by %s", deactivated, bankCode)
	}

	result.Success = true
	return result
}
