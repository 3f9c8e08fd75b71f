package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/xoelrdgz/succeed2ban/internal/domain"
	"github.com/xoelrdgz/succeed2ban/internal/ports"
)

// Stats answers aggregate queries and fans dimension-wide bans out into one
// request per address.
type Stats struct {
	store  ports.Store
	sender ports.Sender
}

func NewStats(store ports.Store, sender ports.Sender) *Stats {
	return &Stats{store: store, sender: sender}
}

func (s *Stats) Update(ctx context.Context, a domain.Action) (domain.Action, error) {
	switch a := a.(type) {
	case domain.StatsGet:
		entries, err := s.store.ListDistinct(ctx, a.Dimension)
		if err != nil {
			return nil, err
		}
		return domain.StatsGot{Dimension: a.Dimension, Entries: entries}, nil

	case domain.StatsBlock:
		return s.fanOut(ctx, a.Key, func(ip string) domain.Action { return domain.RequestBan{IP: ip} })

	case domain.StatsUnblock:
		return s.fanOut(ctx, a.Key, func(ip string) domain.Action { return domain.RequestUnban{IP: ip} })

	case domain.StatsGetIP:
		ip, found, err := s.store.GetIP(ctx, a.IP)
		if err != nil {
			return nil, err
		}
		if !found {
			return domain.QueryNotFound{Query: a.IP}, nil
		}
		return domain.StatsGotIP{IP: ip}, nil
	}
	return nil, nil
}

// fanOut loads the addresses on the loop and hands them to a producer task
// that sends one request per address.
func (s *Stats) fanOut(ctx context.Context, key domain.DimensionKey, request func(string) domain.Action) (domain.Action, error) {
	ips, err := s.store.IPsForDimension(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(ips) == 0 {
		return domain.InternalLog{Message: fmt.Sprintf("no addresses recorded for %s %s", key.Dimension, key)}, nil
	}

	go func() {
		for _, ip := range ips {
			a := request(ip)
			if err := s.sender.Send(a); err != nil {
				log.Warn().Err(err).Str("action", string(a.Kind())).Msg("Stats producer stopped")
				return
			}
		}
	}()

	return domain.InternalLog{Message: fmt.Sprintf("queued %d requests for %s %s", len(ips), key.Dimension, key)}, nil
}
