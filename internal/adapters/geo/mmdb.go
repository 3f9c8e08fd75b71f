package geo

import (
	"context"
	"net"
	"strings"

	"github.com/oschwald/geoip2-golang"
	"github.com/rs/zerolog/log"

	"github.com/xoelrdgz/succeed2ban/internal/domain"
	"github.com/xoelrdgz/succeed2ban/internal/errors"
	"github.com/xoelrdgz/succeed2ban/internal/ports"
)

// MMDBLocator resolves addresses offline from GeoLite2 City and ASN databases.
type MMDBLocator struct {
	city *geoip2.Reader
	asn  *geoip2.Reader
}

var _ ports.Geolocator = (*MMDBLocator)(nil)

// OpenMMDB opens the City and ASN databases.
func OpenMMDB(cityPath, asnPath string) (*MMDBLocator, error) {
	city, err := geoip2.Open(cityPath)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindEnrichment, "open %s", cityPath)
	}
	asn, err := geoip2.Open(asnPath)
	if err != nil {
		city.Close()
		return nil, errors.Wrapf(err, errors.KindEnrichment, "open %s", asnPath)
	}
	log.Info().Str("city", cityPath).Str("asn", asnPath).Msg("Offline geolocation databases loaded")
	return &MMDBLocator{city: city, asn: asn}, nil
}

func (m *MMDBLocator) Name() string { return "mmdb" }

func (m *MMDBLocator) Lookup(ctx context.Context, ip string) (domain.GeoData, error) {
	if err := ctx.Err(); err != nil {
		return domain.GeoData{}, errors.Wrapf(err, errors.KindEnrichment, "lookup %s", ip)
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return domain.GeoData{}, errors.Errorf(errors.KindEnrichment, "lookup %s: not an IP address", ip)
	}

	rec, err := m.city.City(parsed)
	if err != nil {
		return domain.GeoData{}, errors.Wrapf(err, errors.KindEnrichment, "lookup %s", ip)
	}
	asn, err := m.asn.ASN(parsed)
	if err != nil {
		return domain.GeoData{}, errors.Wrapf(err, errors.KindEnrichment, "lookup %s", ip)
	}

	return recordsGeoData(ip, rec, asn)
}

// recordsGeoData merges the City and ASN records. Every field is required;
// a record without subdivisions or coordinates is incomplete.
func recordsGeoData(ip string, rec *geoip2.City, asn *geoip2.ASN) (domain.GeoData, error) {
	var missing []string
	str := func(name, v string) string {
		if v == "" {
			missing = append(missing, name)
		}
		return v
	}

	geo := domain.GeoData{
		Query:       ip,
		ISP:         str("isp", asn.AutonomousSystemOrganization),
		Country:     str("country", rec.Country.Names["en"]),
		CountryCode: str("countryCode", rec.Country.IsoCode),
		City:        str("city", rec.City.Names["en"]),
		Lat:         rec.Location.Latitude,
		Lon:         rec.Location.Longitude,
	}
	if len(rec.Subdivisions) > 0 {
		geo.Region = rec.Subdivisions[0].Names["en"]
	}
	str("region", geo.Region)
	if geo.Lat == 0 && geo.Lon == 0 {
		missing = append(missing, "location")
	}
	if len(missing) > 0 {
		return domain.GeoData{}, errors.Errorf(errors.KindEnrichment, "lookup %s: incomplete geolocation data: missing %s", ip, strings.Join(missing, ", "))
	}
	return geo, nil
}

func (m *MMDBLocator) Close() error {
	err := m.city.Close()
	if asnErr := m.asn.Close(); err == nil {
		err = asnErr
	}
	return err
}
