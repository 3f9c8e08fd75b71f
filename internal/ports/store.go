package ports

import (
	"context"

	"github.com/xoelrdgz/succeed2ban/internal/domain"
)

// Store is the persistence port for IPs, their dimensions and messages.
//
// Get* methods return (zero, false, nil) when the row is absent. Upsert*
// methods insert or overwrite the full row identified by its key.
//
// Thread Safety: a Store is owned by the dispatch loop. Background tasks
// never hold one; they send actions instead.
type Store interface {
	// Migrate creates the schema. It is idempotent.
	Migrate(ctx context.Context) error

	GetIP(ctx context.Context, address string) (domain.IP, bool, error)
	GetISP(ctx context.Context, name string) (domain.ISP, bool, error)
	GetCountry(ctx context.Context, name string) (domain.Country, bool, error)
	GetRegion(ctx context.Context, name, country string) (domain.Region, bool, error)
	GetCity(ctx context.Context, name, region, country string) (domain.City, bool, error)

	UpsertIP(ctx context.Context, ip domain.IP) error
	UpsertISP(ctx context.Context, isp domain.ISP) error
	UpsertCountry(ctx context.Context, c domain.Country) error
	UpsertRegion(ctx context.Context, r domain.Region) error
	UpsertCity(ctx context.Context, c domain.City) error

	// AppendMessage inserts a message and returns its id. Messages are never
	// updated.
	AppendMessage(ctx context.Context, m domain.Message) (int64, error)

	// ListIPs returns up to limit IPs, most recently created first.
	// A limit <= 0 means no limit.
	ListIPs(ctx context.Context, limit int) ([]domain.IP, error)

	// ListMessages returns up to limit messages, newest first.
	ListMessages(ctx context.Context, limit int) ([]domain.Message, error)

	// ListDistinct returns every row of dim with the messages of all IPs
	// that reference it. Region and city rows are matched through their
	// country (and region).
	ListDistinct(ctx context.Context, dim domain.Dimension) ([]domain.DimensionStats, error)

	// IPsForDimension returns the addresses of every IP referencing key.
	IPsForDimension(ctx context.Context, key domain.DimensionKey) ([]string, error)

	// ClearAll deletes every row of every table.
	ClearAll(ctx context.Context) error

	// Update runs fn as one unit of work. All writes made through the Store
	// passed to fn commit together or not at all.
	Update(ctx context.Context, fn func(Store) error) error

	Close() error
}
