// Package profile is the read-only bank profile collaborator. The real
// profile service lives outside this system; the engine only consumes the
// handful of values that steer authorisation flows.
package profile

import (
	"os"
	"time"

	"xs2acms/internal/authorisation"
)

// Profile carries the bank-level policy the authorisation engine reads at
// request time.
type Profile struct {
	// DefaultApproach fixes the SCA approach per resource type. Resolved
	// once at authorisation creation; never re-resolved mid-flow.
	DefaultApproach map[authorisation.Type]authorisation.ScaApproach

	RedirectURLExpiry   time.Duration
	AuthorisationExpiry time.Duration

	// RedirectURLTemplate receives the authorisation external id.
	RedirectURLTemplate string

	MultilevelScaEnabled bool

	// Crypto provider ids used for newly minted identifiers. Historical
	// identifiers keep decrypting under whatever id they embed.
	IDProviderID   string
	DataProviderID string
}

// Default returns the profile used when no external profile service is
// wired. Values mirror the common sandbox setup.
func Default() *Profile {
	return &Profile{
		DefaultApproach: map[authorisation.Type]authorisation.ScaApproach{
			authorisation.TypeConsent:         authorisation.ApproachRedirect,
			authorisation.TypePisCreation:     authorisation.ApproachRedirect,
			authorisation.TypePisCancellation: authorisation.ApproachRedirect,
		},
		RedirectURLExpiry:    10 * time.Minute,
		AuthorisationExpiry:  24 * time.Hour,
		RedirectURLTemplate:  "https://online-banking.example/sca/{authorisation-id}",
		MultilevelScaEnabled: true,
		IDProviderID:         "gQ8wkMeo93",
		DataProviderID:       "JcHZwvJMuc",
	}
}

// FromEnv overlays environment overrides on the default profile.
func FromEnv() *Profile {
	p := Default()
	if v := os.Getenv("CMS_DEFAULT_SCA_APPROACH"); v != "" {
		approach := authorisation.ScaApproach(v)
		for typ := range p.DefaultApproach {
			p.DefaultApproach[typ] = approach
		}
	}
	if v := os.Getenv("CMS_REDIRECT_URL_TEMPLATE"); v != "" {
		p.RedirectURLTemplate = v
	}
	if v := os.Getenv("CMS_REDIRECT_URL_EXPIRY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			p.RedirectURLExpiry = d
		}
	}
	if v := os.Getenv("CMS_AUTHORISATION_EXPIRY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			p.AuthorisationExpiry = d
		}
	}
	return p
}

// ApproachFor resolves the configured default approach for a resource type.
func (p *Profile) ApproachFor(typ authorisation.Type) authorisation.ScaApproach {
	if approach, ok := p.DefaultApproach[typ]; ok {
		return approach
	}
	return authorisation.ApproachRedirect
}
