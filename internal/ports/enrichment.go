// Package ports defines the primary and secondary port interfaces following
// hexagonal architecture (ports and adapters pattern).
//
// This package contains interfaces that define the contract between the
// dispatch core and external infrastructure (log sources, geolocation
// providers, fail2ban, storage, the UI).
//
// Design Principles:
//   - Interfaces are small and focused (Interface Segregation Principle)
//   - Dependencies flow inward (core domain has no external dependencies)
//   - Implementations provided by adapters in internal/adapters/
package ports

import (
	"context"

	"github.com/xoelrdgz/succeed2ban/internal/domain"
)

// Geolocator resolves an IPv4 address to geolocation and ISP data.
//
// Implementations:
//   - IPAPIClient: ip-api.com compatible JSON endpoint
//   - MMDBLocator: offline MaxMind GeoLite2 City + ASN databases
//   - CachedLocator: bbolt-backed response cache wrapping either of the above
//
// Thread Safety: Implementations MUST be safe for concurrent Lookup() calls.
// Enrichment tasks run on their own goroutines.
type Geolocator interface {
	// Lookup resolves ip.
	//
	// Returns:
	//   - GeoData with every required field populated
	//   - KindEnrichment error on transport failure, provider failure or
	//     incomplete data
	//
	// Contract:
	//   - MUST respect context cancellation and deadlines
	Lookup(ctx context.Context, ip string) (domain.GeoData, error)

	// Name identifies the provider in logs and metrics.
	Name() string
}

// BanManager is the narrow capability interface to the ban system.
//
// Thread Safety: All methods MUST be safe for concurrent calls; the probe is
// invoked from enrichment tasks while ban jobs run on the orchestrator worker.
type BanManager interface {
	// CheckBanned reports whether ip is currently banned.
	// Returns a KindProbe error when the status cannot be determined.
	CheckBanned(ctx context.Context, ip string) (bool, error)

	// Ban bans ip. A nil error means the ban system accepted the request.
	Ban(ctx context.Context, ip string) error

	// Unban lifts a ban on ip.
	Unban(ctx context.Context, ip string) error
}
