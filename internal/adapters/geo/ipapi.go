// Package geo provides the geolocation adapters: an ip-api.com compatible
// HTTP client, an offline MaxMind reader and a bbolt response cache.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/xoelrdgz/succeed2ban/internal/domain"
	"github.com/xoelrdgz/succeed2ban/internal/errors"
	"github.com/xoelrdgz/succeed2ban/internal/ports"
)

const (
	DefaultIPAPIURL = "http://ip-api.com/json"
	DefaultTimeout  = 5 * time.Second

	maxResponseBytes = 16 << 10
)

// IPAPIConfig configures the online provider.
type IPAPIConfig struct {
	URL     string        // base URL; the address is appended as a path segment, or substituted for %s
	Timeout time.Duration // per-request timeout (default 5s)
}

// IPAPIClient resolves addresses through an ip-api.com compatible endpoint.
type IPAPIClient struct {
	url    string
	client *http.Client
}

var _ ports.Geolocator = (*IPAPIClient)(nil)

func NewIPAPIClient(cfg IPAPIConfig) *IPAPIClient {
	if cfg.URL == "" {
		cfg.URL = DefaultIPAPIURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &IPAPIClient{
		url:    cfg.URL,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *IPAPIClient) Name() string { return "ip-api" }

// ipAPIResponse uses pointers so absent fields can be told apart from zero values.
type ipAPIResponse struct {
	Status      string   `json:"status"`
	Message     string   `json:"message"`
	Query       *string  `json:"query"`
	Lat         *float64 `json:"lat"`
	Lon         *float64 `json:"lon"`
	ISP         *string  `json:"isp"`
	Country     *string  `json:"country"`
	City        *string  `json:"city"`
	CountryCode *string  `json:"countryCode"`
	RegionName  *string  `json:"regionName"`
}

func (r ipAPIResponse) geoData() (domain.GeoData, error) {
	var missing []string
	str := func(name string, v *string) string {
		if v == nil {
			missing = append(missing, name)
			return ""
		}
		return *v
	}
	num := func(name string, v *float64) float64 {
		if v == nil {
			missing = append(missing, name)
			return 0
		}
		return *v
	}

	geo := domain.GeoData{
		Query:       str("query", r.Query),
		Lat:         num("lat", r.Lat),
		Lon:         num("lon", r.Lon),
		ISP:         str("isp", r.ISP),
		Country:     str("country", r.Country),
		City:        str("city", r.City),
		CountryCode: str("countryCode", r.CountryCode),
		Region:      str("regionName", r.RegionName),
	}
	if len(missing) > 0 {
		return domain.GeoData{}, errors.Errorf(errors.KindEnrichment, "incomplete geolocation data: missing %s", strings.Join(missing, ", "))
	}
	return geo, nil
}

func (c *IPAPIClient) endpoint(ip string) string {
	if strings.Contains(c.url, "%s") {
		return fmt.Sprintf(c.url, ip)
	}
	return strings.TrimRight(c.url, "/") + "/" + ip
}

func (c *IPAPIClient) Lookup(ctx context.Context, ip string) (domain.GeoData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(ip), nil)
	if err != nil {
		return domain.GeoData{}, errors.Wrapf(err, errors.KindEnrichment, "build request for %s", ip)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.GeoData{}, errors.Wrapf(err, errors.KindEnrichment, "lookup %s", ip)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.GeoData{}, errors.Errorf(errors.KindEnrichment, "lookup %s: provider returned status %d", ip, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return domain.GeoData{}, errors.Wrapf(err, errors.KindEnrichment, "read response for %s", ip)
	}

	var parsed ipAPIResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return domain.GeoData{}, errors.Wrapf(err, errors.KindEnrichment, "decode response for %s", ip)
	}
	if parsed.Status == "fail" {
		return domain.GeoData{}, errors.Errorf(errors.KindEnrichment, "lookup %s: %s", ip, parsed.Message)
	}

	geo, err := parsed.geoData()
	if err != nil {
		return domain.GeoData{}, errors.Wrapf(err, errors.KindEnrichment, "lookup %s", ip)
	}

	log.Debug().Str("ip", ip).Str("country", geo.Country).Str("isp", geo.ISP).Msg("Geolocation resolved")
	return geo, nil
}
