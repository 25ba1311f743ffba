package consent

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"moneta/internal/domain/provider"
	"moneta/internal/domain/user"
	"moneta/internal/infrastructure/openbanking"
)

// Notifier pushes consent outcomes to the user's device. Optional.
type Notifier interface {
	NotifyConsentOutcome(ctx context.Context, userID int64, bankCode string, status Status)
}

// Config tunes the consent flow.
type Config struct {
	Reason       string
	Validity     time.Duration
	PollInterval time.Duration
	PollAttempts int
}

// Orchestrator owns the consent lifecycle against provider banks:
// requesting, polling for approval, expiry, and revocation. Requests for
// the same (user, bank) pair are serialized so concurrent callers cannot
// race a retire-and-rerequest cycle.
type Orchestrator struct {
	registry *provider.Registry
	client   openbanking.ClientInterface
	consents Repository
	links    user.LinkRepository
	notifier Notifier
	cfg      Config

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewOrchestrator(registry *provider.Registry, client openbanking.ClientInterface, consents Repository, links user.LinkRepository, notifier Notifier, cfg Config) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = 30
	}
	return &Orchestrator{
		registry: registry,
		client:   client,
		consents: consents,
		links:    links,
		notifier: notifier,
		cfg:      cfg,
		locks:    make(map[string]*sync.Mutex),
	}
}

func (o *Orchestrator) lockFor(userID int64, bankCode string) *sync.Mutex {
	key := fmt.Sprintf("%d|%s", userID, bankCode)
	o.mu.Lock()
	defer o.mu.Unlock()
	lock, ok := o.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[key] = lock
	}
	return lock
}

// Request obtains a consent for the (user, bank) pair. A live consent is
// returned as-is; otherwise any previous consent is retired before a new
// request goes to the provider, so at most one consent exists per pair.
func (o *Orchestrator) Request(ctx context.Context, userID int64, bankCode string, permissions []string) (*Consent, error) {
	lock := o.lockFor(userID, bankCode)
	lock.Lock()
	defer lock.Unlock()

	existing, err := o.consents.GetByUserAndBank(ctx, userID, bankCode)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Live(time.Now()) {
		return existing, nil
	}

	profile, err := o.registry.Resolve(ctx, bankCode)
	if err != nil {
		return nil, err
	}
	if err := profile.Usable(); err != nil {
		return nil, err
	}

	link, err := o.links.GetByUserAndBank(ctx, userID, bankCode)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, user.ErrLinkMissing
	}

	if len(permissions) == 0 {
		permissions = DefaultPermissions
	}

	token, err := o.client.AcquireToken(ctx, profile.Endpoint())
	if err != nil {
		return nil, fmt.Errorf("failed to acquire token for %s: %w", bankCode, err)
	}

	// The old consent goes away before the new request is issued, so a
	// crash in between leaves zero consents rather than two.
	if existing != nil {
		if err := o.consents.Retire(ctx, userID, bankCode); err != nil {
			return nil, fmt.Errorf("failed to retire consent for %s: %w", bankCode, err)
		}
	}

	reply, err := o.client.RequestConsent(ctx, profile.Endpoint(), token, link.BankUserID, permissions, o.cfg.Reason)
	if err != nil {
		return nil, fmt.Errorf("consent request to %s failed: %w", bankCode, err)
	}

	id := reply.Identifier()
	if id == "" {
		return nil, ErrNoIdentifier
	}

	status := NormalizeStatus(reply.Status)
	params := UpsertParams{
		UserID:       userID,
		BankCode:     bankCode,
		ConsentID:    id,
		Status:       status,
		AutoApproved: reply.AutoApproved,
		Permissions:  permissions,
	}
	if status == StatusApproved {
		params.ExpiresAt = o.expiry(time.Now())
	}

	stored, err := o.consents.Upsert(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to store consent for %s: %w", bankCode, err)
	}

	// Interim request ids get swapped for the provider's final consent
	// id as soon as the provider reports one.
	if stored.Interim() {
		if details, err := o.client.GetConsent(ctx, profile.Endpoint(), token, stored.ConsentID); err != nil {
			log.Printf("Consent id lookup for %s failed: %v", bankCode, err)
		} else if final := details.Identifier(); final != "" && final != stored.ConsentID {
			if err := o.consents.ReplaceConsentID(ctx, userID, bankCode, final); err != nil {
				log.Printf("Failed to replace interim consent id for %s: %v", bankCode, err)
			} else {
				stored.ConsentID = final
			}
		}
	}

	return stored, nil
}

// Poll waits for a pending consent to reach a terminal state, checking
// the provider on a fixed interval until the attempt budget runs out.
// On timeout the row stays pending and ErrPollTimeout is returned.
func (o *Orchestrator) Poll(ctx context.Context, userID int64, bankCode string) (*Consent, error) {
	row, err := o.consents.GetByUserAndBank(ctx, userID, bankCode)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, ErrNoConsent
	}
	if row.Status.Terminal() {
		return row, nil
	}

	profile, err := o.registry.Resolve(ctx, bankCode)
	if err != nil {
		return nil, err
	}
	token, err := o.client.AcquireToken(ctx, profile.Endpoint())
	if err != nil {
		return nil, fmt.Errorf("failed to acquire token for %s: %w", bankCode, err)
	}

	for attempt := 0; attempt < o.cfg.PollAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return row, ctx.Err()
			case <-time.After(o.cfg.PollInterval):
			}
		}

		updated, done, err := o.checkOnce(ctx, profile, token, row)
		if err != nil {
			log.Printf("Consent poll attempt %d for user %d bank %s failed: %v", attempt+1, userID, bankCode, err)
			continue
		}
		row = updated
		if done {
			return row, nil
		}
	}

	return row, ErrPollTimeout
}

// checkOnce asks the provider for the consent state, swaps an interim id
// for the final one, and persists any terminal transition.
func (o *Orchestrator) checkOnce(ctx context.Context, profile *provider.Profile, token string, row *Consent) (*Consent, bool, error) {
	details, err := o.client.GetConsent(ctx, profile.Endpoint(), token, row.ConsentID)
	if err != nil {
		return row, false, err
	}

	if final := details.Identifier(); row.Interim() && final != "" && final != row.ConsentID {
		if err := o.consents.ReplaceConsentID(ctx, row.UserID, row.BankCode, final); err != nil {
			log.Printf("Failed to replace interim consent id for %s: %v", row.BankCode, err)
		} else {
			row.ConsentID = final
		}
	}

	status := NormalizeStatus(details.Status)
	if !status.Terminal() {
		return row, false, nil
	}

	params := UpsertParams{
		UserID:       row.UserID,
		BankCode:     row.BankCode,
		ConsentID:    row.ConsentID,
		Status:       status,
		AutoApproved: row.AutoApproved,
		Permissions:  row.Permissions,
	}
	if status == StatusApproved {
		params.ExpiresAt = o.expiry(time.Now())
	}

	stored, err := o.consents.Upsert(ctx, params)
	if err != nil {
		return row, false, err
	}

	o.notify(ctx, stored)

	return stored, true, nil
}

// Ensure returns a consent usable for data access, requesting a new one
// when none exists or the previous one ended. A pending consent gets one
// provider check instead of a full poll, so sync paths stay fast.
func (o *Orchestrator) Ensure(ctx context.Context, userID int64, bankCode string) (*Consent, error) {
	row, err := o.consents.GetByUserAndBank(ctx, userID, bankCode)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if row != nil {
		if row.Live(now) {
			return row, nil
		}

		if row.Status == StatusApproved {
			// Approved but past its expiry.
			if err := o.consents.UpdateStatus(ctx, userID, bankCode, StatusExpired); err != nil {
				log.Printf("Failed to mark consent expired for %s: %v", bankCode, err)
			} else {
				row.Status = StatusExpired
			}
			return row, nil
		}

		if row.Status == StatusPending {
			profile, err := o.registry.Resolve(ctx, bankCode)
			if err != nil {
				return nil, err
			}
			token, err := o.client.AcquireToken(ctx, profile.Endpoint())
			if err != nil {
				return nil, fmt.Errorf("failed to acquire token for %s: %w", bankCode, err)
			}
			if updated, _, err := o.checkOnce(ctx, profile, token, row); err == nil {
				row = updated
			}
			return row, nil
		}
	}

	return o.Request(ctx, userID, bankCode, nil)
}

// Status returns the stored consent, downgrading approved rows whose
// expiry has passed.
func (o *Orchestrator) Status(ctx context.Context, userID int64, bankCode string) (*Consent, error) {
	row, err := o.consents.GetByUserAndBank(ctx, userID, bankCode)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, ErrNoConsent
	}

	if row.Status == StatusApproved && row.ExpiresAt != nil && !time.Now().Before(*row.ExpiresAt) {
		if err := o.consents.UpdateStatus(ctx, userID, bankCode, StatusExpired); err != nil {
			log.Printf("Failed to mark consent expired for %s: %v", bankCode, err)
		} else {
			row.Status = StatusExpired
		}
	}

	return row, nil
}

// List returns all consent rows of a user.
func (o *Orchestrator) List(ctx context.Context, userID int64) ([]*Consent, error) {
	return o.consents.ListByUserID(ctx, userID)
}

// Revoke deletes the consent at the provider and marks the local row
// revoked, detaching it from synced accounts. A consent the provider no
// longer knows counts as revoked.
func (o *Orchestrator) Revoke(ctx context.Context, userID int64, bankCode string) (*Consent, error) {
	lock := o.lockFor(userID, bankCode)
	lock.Lock()
	defer lock.Unlock()

	row, err := o.consents.GetByUserAndBank(ctx, userID, bankCode)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, ErrNoConsent
	}

	profile, err := o.registry.Resolve(ctx, bankCode)
	if err != nil {
		return nil, err
	}
	token, err := o.client.AcquireToken(ctx, profile.Endpoint())
	if err != nil {
		return nil, fmt.Errorf("failed to acquire token for %s: %w", bankCode, err)
	}

	if err := o.client.DeleteConsent(ctx, profile.Endpoint(), token, row.ConsentID); err != nil {
		if apiErr, ok := err.(*openbanking.APIError); !ok || apiErr.StatusCode != 404 {
			return nil, fmt.Errorf("consent revocation at %s failed: %w", bankCode, err)
		}
	}

	if err := o.consents.Revoke(ctx, userID, bankCode); err != nil {
		return nil, fmt.Errorf("failed to mark consent revoked for %s: %w", bankCode, err)
	}
	row.Status = StatusRevoked

	return row, nil
}

// ReconcilePending checks every stored pending consent against its
// provider once and persists any terminal transition. Returns how many
// rows reached a terminal state. Meant for background runs, so a
// failing bank only skips its own rows.
func (o *Orchestrator) ReconcilePending(ctx context.Context) (int, error) {
	rows, err := o.consents.ListPending(ctx)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, row := range rows {
		profile, err := o.registry.Resolve(ctx, row.BankCode)
		if err != nil {
			log.Printf("Pending consent for unknown bank %s, skipping: %v", row.BankCode, err)
			continue
		}
		token, err := o.client.AcquireToken(ctx, profile.Endpoint())
		if err != nil {
			log.Printf("Token acquisition for %s failed during reconcile: %v", row.BankCode, err)
			continue
		}
		_, done, err := o.checkOnce(ctx, profile, token, row)
		if err != nil {
			log.Printf("Consent reconcile for user %d bank %s failed: %v", row.UserID, row.BankCode, err)
			continue
		}
		if done {
			resolved++
		}
	}

	return resolved, nil
}

func (o *Orchestrator) expiry(now time.Time) *time.Time {
	if o.cfg.Validity <= 0 {
		return nil
	}
	t := now.Add(o.cfg.Validity)
	return &t
}

func (o *Orchestrator) notify(ctx context.Context, row *Consent) {
	if o.notifier == nil {
		return
	}
	o.notifier.NotifyConsentOutcome(ctx, row.UserID, row.BankCode, row.Status)
}
