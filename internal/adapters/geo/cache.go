package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	bolt "go.etcd.io/bbolt"

	"github.com/xoelrdgz/succeed2ban/internal/domain"
	"github.com/xoelrdgz/succeed2ban/internal/errors"
	"github.com/xoelrdgz/succeed2ban/internal/ports"
	"github.com/xoelrdgz/succeed2ban/pkg/lru"
)

var GeoBucket = []byte("geo")

type CacheConfig struct {
	DBPath       string
	TTL          time.Duration
	HotCacheSize int
}

func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		DBPath:       "./data/geocache.db",
		TTL:          7 * 24 * time.Hour,
		HotCacheSize: 1000,
	}
}

type cachedGeo struct {
	Geo      domain.GeoData `json:"geo"`
	StoredAt time.Time      `json:"stored_at"`
}

// CachedLocator persists provider responses in bbolt so repeated first
// sightings across restarts (or after ClearLists) skip the provider.
type CachedLocator struct {
	inner ports.Geolocator
	db    *bolt.DB
	hot   *lru.Cache[string, domain.GeoData]
	ttl   time.Duration
	now   func() time.Time

	hits   atomic.Int64
	misses atomic.Int64
}

var _ ports.Geolocator = (*CachedLocator)(nil)

func NewCachedLocator(inner ports.Geolocator, config CacheConfig) (*CachedLocator, error) {
	if dir := filepath.Dir(config.DBPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrap(err, errors.KindEnrichment, "create geo cache directory")
		}
	}

	db, err := bolt.Open(config.DBPath, 0600, &bolt.Options{
		Timeout:    time.Second,
		NoGrowSync: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.KindEnrichment, "open geo cache")
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(GeoBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.KindEnrichment, "create geo cache bucket")
	}

	var count int
	db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(GeoBucket).Stats().KeyN
		return nil
	})

	log.Info().
		Str("db_path", config.DBPath).
		Int("entries", count).
		Dur("ttl", config.TTL).
		Msg("Geolocation cache initialized")

	return &CachedLocator{
		inner: inner,
		db:    db,
		hot:   lru.New[string, domain.GeoData](config.HotCacheSize, lru.WithTTL(config.TTL)),
		ttl:   config.TTL,
		now:   time.Now,
	}, nil
}

func (c *CachedLocator) Name() string { return c.inner.Name() + "+cache" }

func (c *CachedLocator) Lookup(ctx context.Context, ip string) (domain.GeoData, error) {
	if geo, ok := c.hot.Get(ip); ok {
		c.hits.Add(1)
		return geo, nil
	}
	if geo, ok := c.load(ip); ok {
		c.hits.Add(1)
		c.hot.Put(ip, geo)
		return geo, nil
	}

	c.misses.Add(1)
	geo, err := c.inner.Lookup(ctx, ip)
	if err != nil {
		return domain.GeoData{}, err
	}

	c.hot.Put(ip, geo)
	if err := c.store(ip, geo); err != nil {
		log.Warn().Err(err).Str("ip", ip).Msg("Failed to persist geolocation")
	}
	return geo, nil
}

func (c *CachedLocator) load(ip string) (domain.GeoData, bool) {
	var entry *cachedGeo
	c.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(GeoBucket).Get([]byte(ip))
		if data == nil {
			return nil
		}
		var e cachedGeo
		if err := json.Unmarshal(data, &e); err != nil {
			log.Warn().Err(err).Str("ip", ip).Msg("Dropping corrupt geo cache entry")
			return nil
		}
		entry = &e
		return nil
	})

	if entry == nil {
		return domain.GeoData{}, false
	}
	if c.ttl > 0 && c.now().Sub(entry.StoredAt) >= c.ttl {
		return domain.GeoData{}, false
	}
	return entry.Geo, true
}

func (c *CachedLocator) store(ip string, geo domain.GeoData) error {
	data, err := json.Marshal(cachedGeo{Geo: geo, StoredAt: c.now()})
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(GeoBucket)
		if b == nil {
			return fmt.Errorf("bucket not found")
		}
		return b.Put([]byte(ip), data)
	})
}

// Stats returns the hit and miss counts since start.
func (c *CachedLocator) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *CachedLocator) Close() error {
	hits, misses := c.Stats()
	log.Info().Int64("hits", hits).Int64("misses", misses).Msg("Closing geolocation cache")
	return c.db.Close()
}
