package provider

import (
	"errors"
	"fmt"
	"time"

	"moneta/internal/infrastructure/openbanking"
)

var (
	ErrProviderNotFound = errors.New("provider not found")
)

// Profile describes one provider bank: where to reach it and what
// credentials the aggregator holds there.
type Profile struct {
	BankCode           string    `json:"bank_code"`
	Name               string    `json:"name"`
	BaseURL            string    `json:"base_url"`
	ClientID           string    `json:"-"`
	ClientSecret       string    `json:"-"`
	RequestingBank     string    `json:"requesting_bank"`
	RequestingBankName string    `json:"requesting_bank_name"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

const secretPlaceholder = "REPLACE_ME"

// Usable reports whether the profile carries working credentials.
// Placeholder secrets from seed data are treated as unconfigured.
func (p *Profile) Usable() error {
	if p.BaseURL == "" {
		return fmt.Errorf("provider %s has no base URL", p.BankCode)
	}
	if p.ClientID == "" || p.ClientSecret == "" || p.ClientSecret == secretPlaceholder {
		return fmt.Errorf("provider %s has no usable credentials", p.BankCode)
	}
	return nil
}

// Endpoint converts the profile into the wire-level endpoint descriptor.
func (p *Profile) Endpoint() openbanking.Endpoint {
	return openbanking.Endpoint{
		BaseURL:            p.BaseURL,
		ClientID:           p.ClientID,
		ClientSecret:       p.ClientSecret,
		RequestingBank:     p.RequestingBank,
		RequestingBankName: p.RequestingBankName,
	}
}
