// Package storage implements ports.Store on SQLite (modernc.org/sqlite).
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/xoelrdgz/succeed2ban/internal/domain"
	"github.com/xoelrdgz/succeed2ban/internal/errors"
	"github.com/xoelrdgz/succeed2ban/internal/ports"
)

// DefaultPath is the database file used when none is configured.
const DefaultPath = "iplogs.db"

const schema = `
CREATE TABLE IF NOT EXISTS ips (
	address      TEXT PRIMARY KEY,
	created_at   INTEGER NOT NULL,
	lat          REAL NOT NULL DEFAULT 0,
	lon          REAL NOT NULL DEFAULT 0,
	isp          TEXT NOT NULL DEFAULT '',
	city         TEXT NOT NULL DEFAULT '',
	region       TEXT NOT NULL DEFAULT '',
	country      TEXT NOT NULL DEFAULT '',
	country_code TEXT NOT NULL DEFAULT '',
	banned_times INTEGER NOT NULL DEFAULT 0,
	is_banned    INTEGER NOT NULL DEFAULT 0,
	warnings     INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_ips_country ON ips(country);
CREATE INDEX IF NOT EXISTS idx_ips_isp ON ips(isp);

CREATE TABLE IF NOT EXISTS isps (
	name     TEXT PRIMARY KEY,
	banned   INTEGER NOT NULL DEFAULT 0,
	warnings INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS countries (
	name     TEXT PRIMARY KEY,
	code     TEXT NOT NULL DEFAULT '',
	banned   INTEGER NOT NULL DEFAULT 0,
	warnings INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS regions (
	name     TEXT NOT NULL,
	country  TEXT NOT NULL,
	banned   INTEGER NOT NULL DEFAULT 0,
	warnings INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (name, country)
);

CREATE TABLE IF NOT EXISTS cities (
	name     TEXT NOT NULL,
	region   TEXT NOT NULL,
	country  TEXT NOT NULL,
	banned   INTEGER NOT NULL DEFAULT 0,
	warnings INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (name, region, country)
);

CREATE TABLE IF NOT EXISTS messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp  INTEGER NOT NULL,
	text       TEXT NOT NULL,
	ip         TEXT NOT NULL,
	is_journal INTEGER NOT NULL DEFAULT 0,
	is_ban     INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_messages_ip ON messages(ip);
`

var tables = []string{"messages", "ips", "cities", "regions", "countries", "isps"}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store handles persistence of IP history to SQLite.
type Store struct {
	db *sql.DB
	q  queryer
	tx bool
}

var _ ports.Store = (*Store)(nil)

// Open opens or creates the database at path. The schema is created by Migrate.
func Open(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindStorage, "open %s", path)
	}
	// Single writer. Units of work and reads share one connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, errors.KindStorage, "open %s", path)
	}

	log.Debug().Str("path", path).Msg("Store opened")
	return &Store{db: db, q: db}, nil
}

func (s *Store) Close() error {
	if s.tx {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.q.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, errors.KindStorage, "migrate schema")
	}
	return nil
}

// Update runs fn inside one transaction. Nested calls join the outer one.
func (s *Store) Update(ctx context.Context, fn func(ports.Store) error) error {
	if s.tx {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.KindStorage, "begin unit of work")
	}
	if err := fn(&Store{db: s.db, q: tx, tx: true}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Warn().Err(rbErr).Msg("Rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.KindStorage, "commit unit of work")
	}
	return nil
}

const ipColumns = `address, created_at, lat, lon, isp, city, region, country, country_code, banned_times, is_banned, warnings`

type scanner interface {
	Scan(dest ...any) error
}

func scanIP(row scanner) (domain.IP, error) {
	var (
		ip        domain.IP
		createdAt int64
	)
	err := row.Scan(&ip.Address, &createdAt, &ip.Lat, &ip.Lon, &ip.ISP, &ip.City, &ip.Region,
		&ip.Country, &ip.CountryCode, &ip.BannedTimes, &ip.IsBanned, &ip.Warnings)
	if err != nil {
		return domain.IP{}, err
	}
	ip.CreatedAt = time.Unix(0, createdAt).UTC()
	return ip, nil
}

func (s *Store) GetIP(ctx context.Context, address string) (domain.IP, bool, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+ipColumns+` FROM ips WHERE address = ?`, address)
	ip, err := scanIP(row)
	return found(ip, err, "get ip "+address)
}

func (s *Store) GetISP(ctx context.Context, name string) (domain.ISP, bool, error) {
	isp := domain.ISP{Name: name}
	err := s.q.QueryRowContext(ctx, `SELECT banned, warnings FROM isps WHERE name = ?`, name).
		Scan(&isp.Banned, &isp.Warnings)
	return found(isp, err, "get isp "+name)
}

func (s *Store) GetCountry(ctx context.Context, name string) (domain.Country, bool, error) {
	c := domain.Country{Name: name}
	err := s.q.QueryRowContext(ctx, `SELECT code, banned, warnings FROM countries WHERE name = ?`, name).
		Scan(&c.Code, &c.Banned, &c.Warnings)
	return found(c, err, "get country "+name)
}

func (s *Store) GetRegion(ctx context.Context, name, country string) (domain.Region, bool, error) {
	r := domain.Region{Name: name, Country: country}
	err := s.q.QueryRowContext(ctx, `SELECT banned, warnings FROM regions WHERE name = ? AND country = ?`, name, country).
		Scan(&r.Banned, &r.Warnings)
	return found(r, err, "get region "+name)
}

func (s *Store) GetCity(ctx context.Context, name, region, country string) (domain.City, bool, error) {
	c := domain.City{Name: name, Region: region, Country: country}
	err := s.q.QueryRowContext(ctx,
		`SELECT banned, warnings FROM cities WHERE name = ? AND region = ? AND country = ?`, name, region, country).
		Scan(&c.Banned, &c.Warnings)
	return found(c, err, "get city "+name)
}

func found[T any](v T, err error, op string) (T, bool, error) {
	var zero T
	if errors.Is(err, sql.ErrNoRows) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, errors.Wrap(err, errors.KindStorage, op)
	}
	return v, true, nil
}

func (s *Store) UpsertIP(ctx context.Context, ip domain.IP) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO ips (`+ipColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			lat = excluded.lat,
			lon = excluded.lon,
			isp = excluded.isp,
			city = excluded.city,
			region = excluded.region,
			country = excluded.country,
			country_code = excluded.country_code,
			banned_times = excluded.banned_times,
			is_banned = excluded.is_banned,
			warnings = excluded.warnings
	`, ip.Address, ip.CreatedAt.UnixNano(), ip.Lat, ip.Lon, ip.ISP, ip.City, ip.Region,
		ip.Country, ip.CountryCode, ip.BannedTimes, ip.IsBanned, ip.Warnings)
	return errors.Wrapf(err, errors.KindStorage, "upsert ip %s", ip.Address)
}

func (s *Store) UpsertISP(ctx context.Context, isp domain.ISP) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO isps (name, banned, warnings) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET banned = excluded.banned, warnings = excluded.warnings
	`, isp.Name, isp.Banned, isp.Warnings)
	return errors.Wrapf(err, errors.KindStorage, "upsert isp %s", isp.Name)
}

func (s *Store) UpsertCountry(ctx context.Context, c domain.Country) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO countries (name, code, banned, warnings) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			code = CASE WHEN excluded.code != '' THEN excluded.code ELSE code END,
			banned = excluded.banned,
			warnings = excluded.warnings
	`, c.Name, c.Code, c.Banned, c.Warnings)
	return errors.Wrapf(err, errors.KindStorage, "upsert country %s", c.Name)
}

func (s *Store) UpsertRegion(ctx context.Context, r domain.Region) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO regions (name, country, banned, warnings) VALUES (?, ?, ?, ?)
		ON CONFLICT(name, country) DO UPDATE SET banned = excluded.banned, warnings = excluded.warnings
	`, r.Name, r.Country, r.Banned, r.Warnings)
	return errors.Wrapf(err, errors.KindStorage, "upsert region %s", r.Name)
}

func (s *Store) UpsertCity(ctx context.Context, c domain.City) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO cities (name, region, country, banned, warnings) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name, region, country) DO UPDATE SET banned = excluded.banned, warnings = excluded.warnings
	`, c.Name, c.Region, c.Country, c.Banned, c.Warnings)
	return errors.Wrapf(err, errors.KindStorage, "upsert city %s", c.Name)
}

func (s *Store) AppendMessage(ctx context.Context, m domain.Message) (int64, error) {
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO messages (timestamp, text, ip, is_journal, is_ban) VALUES (?, ?, ?, ?, ?)`,
		m.Timestamp.UnixNano(), m.Text, m.IP, m.IsJournal, m.IsBan)
	if err != nil {
		return 0, errors.Wrapf(err, errors.KindStorage, "append message for %s", m.IP)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, errors.KindStorage, "append message id")
	}
	return id, nil
}

func (s *Store) ListIPs(ctx context.Context, limit int) ([]domain.IP, error) {
	query := `SELECT ` + ipColumns + ` FROM ips ORDER BY created_at DESC, address`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindStorage, "list ips")
	}
	defer rows.Close()

	var ips []domain.IP
	for rows.Next() {
		ip, err := scanIP(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.KindStorage, "scan ip")
		}
		ips = append(ips, ip)
	}
	return ips, errors.Wrap(rows.Err(), errors.KindStorage, "list ips")
}

const messageColumns = `m.id, m.timestamp, m.text, m.ip, m.is_journal, m.is_ban`

func (s *Store) queryMessages(ctx context.Context, query string, args ...any) ([]domain.Message, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindStorage, "list messages")
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var (
			m  domain.Message
			ts int64
		)
		if err := rows.Scan(&m.ID, &ts, &m.Text, &m.IP, &m.IsJournal, &m.IsBan); err != nil {
			return nil, errors.Wrap(err, errors.KindStorage, "scan message")
		}
		m.Timestamp = time.Unix(0, ts).UTC()
		msgs = append(msgs, m)
	}
	return msgs, errors.Wrap(rows.Err(), errors.KindStorage, "list messages")
}

func (s *Store) ListMessages(ctx context.Context, limit int) ([]domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages m ORDER BY m.id DESC`
	if limit > 0 {
		return s.queryMessages(ctx, query+` LIMIT ?`, limit)
	}
	return s.queryMessages(ctx, query)
}

// dimensionFilter returns the ips WHERE clause selecting every IP that
// references key.
func dimensionFilter(key domain.DimensionKey) (string, []any, error) {
	switch key.Dimension {
	case domain.DimensionISP:
		return `i.isp = ?`, []any{key.Name}, nil
	case domain.DimensionCountry:
		return `i.country = ?`, []any{key.Name}, nil
	case domain.DimensionRegion:
		return `i.region = ? AND i.country = ?`, []any{key.Name, key.Country}, nil
	case domain.DimensionCity:
		return `i.city = ? AND i.region = ? AND i.country = ?`, []any{key.Name, key.Region, key.Country}, nil
	default:
		return "", nil, errors.Errorf(errors.KindStorage, "unknown dimension %q", key.Dimension)
	}
}

func (s *Store) listRecords(ctx context.Context, dim domain.Dimension) ([]domain.DimensionRecord, error) {
	var query string
	switch dim {
	case domain.DimensionISP:
		query = `SELECT name, '', '', '', banned, warnings FROM isps`
	case domain.DimensionCountry:
		query = `SELECT name, '', '', code, banned, warnings FROM countries`
	case domain.DimensionRegion:
		query = `SELECT name, country, '', '', banned, warnings FROM regions`
	case domain.DimensionCity:
		query = `SELECT name, country, region, '', banned, warnings FROM cities`
	default:
		return nil, errors.Errorf(errors.KindStorage, "unknown dimension %q", dim)
	}
	query += ` ORDER BY warnings DESC, name`

	rows, err := s.q.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindStorage, "list %s", dim)
	}
	defer rows.Close()

	var records []domain.DimensionRecord
	for rows.Next() {
		r := domain.DimensionRecord{Key: domain.DimensionKey{Dimension: dim}}
		if err := rows.Scan(&r.Key.Name, &r.Key.Country, &r.Key.Region, &r.Code, &r.Banned, &r.Warnings); err != nil {
			return nil, errors.Wrapf(err, errors.KindStorage, "scan %s", dim)
		}
		records = append(records, r)
	}
	return records, errors.Wrapf(rows.Err(), errors.KindStorage, "list %s", dim)
}

// ListDistinct loads the rows first and the messages afterwards; the store
// runs on a single connection so result sets must not overlap.
func (s *Store) ListDistinct(ctx context.Context, dim domain.Dimension) ([]domain.DimensionStats, error) {
	records, err := s.listRecords(ctx, dim)
	if err != nil {
		return nil, err
	}

	stats := make([]domain.DimensionStats, 0, len(records))
	for _, r := range records {
		where, args, err := dimensionFilter(r.Key)
		if err != nil {
			return nil, err
		}
		msgs, err := s.queryMessages(ctx, fmt.Sprintf(
			`SELECT %s FROM messages m JOIN ips i ON i.address = m.ip WHERE %s ORDER BY m.id`, messageColumns, where), args...)
		if err != nil {
			return nil, err
		}
		stats = append(stats, domain.DimensionStats{Record: r, Messages: msgs})
	}
	return stats, nil
}

func (s *Store) IPsForDimension(ctx context.Context, key domain.DimensionKey) ([]string, error) {
	where, args, err := dimensionFilter(key)
	if err != nil {
		return nil, err
	}
	rows, err := s.q.QueryContext(ctx, `SELECT i.address FROM ips i WHERE `+where+` ORDER BY i.created_at, i.address`, args...)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindStorage, "ips for %s", key)
	}
	defer rows.Close()

	var addrs []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, errors.Wrap(err, errors.KindStorage, "scan address")
		}
		addrs = append(addrs, a)
	}
	return addrs, errors.Wrapf(rows.Err(), errors.KindStorage, "ips for %s", key)
}

func (s *Store) ClearAll(ctx context.Context) error {
	return s.Update(ctx, func(uow ports.Store) error {
		q := uow.(*Store).q
		for _, t := range tables {
			if _, err := q.ExecContext(ctx, `DELETE FROM `+t); err != nil {
				return errors.Wrapf(err, errors.KindStorage, "clear %s", t)
			}
		}
		return nil
	})
}
