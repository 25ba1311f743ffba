package provider

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	"moneta/internal/infrastructure/openbanking"
)

// Validation failure reasons.
const (
	ReasonMissingConfig      = "missing_config"
	ReasonInvalidCredentials = "invalid_credentials"
	ReasonUnreachable        = "unreachable"
)

// Defaults are the shared credentials and requesting-bank identity
// applied to the built-in providers.
type Defaults struct {
	ClientID           string
	ClientSecret       string
	RequestingBank     string
	RequestingBankName string
}

// TokenProber acquires a provider token, used to check that a profile's
// credentials actually work.
type TokenProber interface {
	AcquireToken(ctx context.Context, ep openbanking.Endpoint) (string, error)
}

// Validation is the outcome of probing one provider.
type Validation struct {
	BankCode string `json:"bank_code"`
	OK       bool   `json:"ok"`
	Reason   string `json:"reason,omitempty"`
}

// Registry resolves bank codes to provider profiles. Stored profiles
// take precedence; the sandbox banks are always known as built-ins so a
// fresh deployment works without seeding.
type Registry struct {
	repo    Repository
	prober  TokenProber
	builtin map[string]*Profile
}

func NewRegistry(repo Repository, prober TokenProber, defaults Defaults) *Registry {
	builtin := make(map[string]*Profile)
	for code, name := range map[string]string{
		"vbank": "Virtual Bank",
		"abank": "Awesome Bank",
		"sbank": "Smart Bank",
	} {
		builtin[code] = &Profile{
			BankCode:           code,
			Name:               name,
			BaseURL:            fmt.Sprintf("https://%s.open.bankingapi.ru", code),
			ClientID:           defaults.ClientID,
			ClientSecret:       defaults.ClientSecret,
			RequestingBank:     defaults.RequestingBank,
			RequestingBankName: defaults.RequestingBankName,
		}
	}
	return &Registry{
		repo:    repo,
		prober:  prober,
		builtin: builtin,
	}
}

// Resolve returns the profile for a bank code, or ErrProviderNotFound.
func (r *Registry) Resolve(ctx context.Context, bankCode string) (*Profile, error) {
	profile, _, err := r.resolve(ctx, bankCode)
	return profile, err
}

func (r *Registry) resolve(ctx context.Context, bankCode string) (profile *Profile, stored bool, err error) {
	profile, err = r.repo.GetByCode(ctx, bankCode)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load provider %s: %w", bankCode, err)
	}
	if profile != nil {
		return profile, true, nil
	}

	if builtin, ok := r.builtin[bankCode]; ok {
		copied := *builtin
		return &copied, false, nil
	}

	return nil, false, ErrProviderNotFound
}

// List returns stored and built-in profiles merged, stored rows winning,
// sorted by bank code.
func (r *Registry) List(ctx context.Context) ([]*Profile, error) {
	stored, err := r.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}

	merged := make(map[string]*Profile, len(stored)+len(r.builtin))
	for code, builtin := range r.builtin {
		copied := *builtin
		merged[code] = &copied
	}
	for _, profile := range stored {
		merged[profile.BankCode] = profile
	}

	profiles := make([]*Profile, 0, len(merged))
	for _, profile := range merged {
		profiles = append(profiles, profile)
	}
	sort.Slice(profiles, func(i, j int) bool {
		return profiles[i].BankCode < profiles[j].BankCode
	})

	return profiles, nil
}

// Validate probes a provider's token endpoint. A built-in profile that
// validates is persisted so it shows up as a stored provider afterwards.
func (r *Registry) Validate(ctx context.Context, bankCode string) (Validation, error) {
	result := Validation{BankCode: bankCode}

	profile, stored, err := r.resolve(ctx, bankCode)
	if err != nil {
		return result, err
	}

	if err := profile.Usable(); err != nil {
		result.Reason = ReasonMissingConfig
		return result, nil
	}

	if _, err := r.prober.AcquireToken(ctx, profile.Endpoint()); err != nil {
		var apiErr *openbanking.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			result.Reason = ReasonInvalidCredentials
		} else {
			result.Reason = ReasonUnreachable
		}
		return result, nil
	}

	result.OK = true

	if !stored {
		if _, err := r.repo.Upsert(ctx, profile); err != nil {
			log.Printf("Failed to persist validated provider %s: %v", bankCode, err)
		}
	}

	return result, nil
}
