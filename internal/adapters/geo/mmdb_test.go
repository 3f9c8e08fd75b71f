package geo

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/maxmind/mmdbwriter"
	"github.com/maxmind/mmdbwriter/mmdbtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xoelrdgz/succeed2ban/internal/domain"
	"github.com/xoelrdgz/succeed2ban/internal/errors"
)

func names(en string) mmdbtype.Map {
	return mmdbtype.Map{"en": mmdbtype.String(en)}
}

func cityRecord(city, region bool, code string, lat, lon float64) mmdbtype.Map {
	rec := mmdbtype.Map{
		"country":  mmdbtype.Map{"iso_code": mmdbtype.String(code), "names": names("Exampleland")},
		"location": mmdbtype.Map{"latitude": mmdbtype.Float64(lat), "longitude": mmdbtype.Float64(lon)},
	}
	if code == "" {
		rec["country"] = mmdbtype.Map{"names": names("Exampleland")}
	}
	if city {
		rec["city"] = mmdbtype.Map{"names": names("Exampletown")}
	}
	if region {
		rec["subdivisions"] = mmdbtype.Slice{mmdbtype.Map{"iso_code": mmdbtype.String("XR"), "names": names("ExRegion")}}
	}
	return rec
}

func writeMMDB(t *testing.T, path, dbType string, records map[string]mmdbtype.Map) {
	t.Helper()
	tree, err := mmdbwriter.New(mmdbwriter.Options{
		DatabaseType:            dbType,
		RecordSize:              24,
		IncludeReservedNetworks: true,
	})
	require.NoError(t, err)
	for cidr, rec := range records {
		_, network, err := net.ParseCIDR(cidr)
		require.NoError(t, err)
		require.NoError(t, tree.Insert(network, rec))
	}

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	_, err = tree.WriteTo(f)
	require.NoError(t, err)
}

func openTestMMDB(t *testing.T) *MMDBLocator {
	t.Helper()
	dir := t.TempDir()
	cityPath := filepath.Join(dir, "city.mmdb")
	asnPath := filepath.Join(dir, "asn.mmdb")

	writeMMDB(t, cityPath, "GeoLite2-City", map[string]mmdbtype.Map{
		"203.0.113.1/32": cityRecord(true, true, "EX", 40.4, -3.7),
		"203.0.113.2/32": cityRecord(false, true, "EX", 40.4, -3.7),
		"203.0.113.3/32": cityRecord(true, false, "EX", 40.4, -3.7),
		"203.0.113.4/32": cityRecord(true, true, "", 40.4, -3.7),
		"203.0.113.5/32": cityRecord(true, true, "EX", 0, 0),
		"203.0.113.6/32": cityRecord(true, true, "EX", 0, 12.5),
		"203.0.113.7/32": cityRecord(true, true, "EX", 40.4, -3.7),
	})
	asn := mmdbtype.Map{
		"autonomous_system_number":       mmdbtype.Uint32(64500),
		"autonomous_system_organization": mmdbtype.String("ExampleISP"),
	}
	// 203.0.113.7 has a full city record but no ASN entry.
	asnRecords := map[string]mmdbtype.Map{}
	for _, cidr := range []string{"203.0.113.0/30", "203.0.113.4/31", "203.0.113.6/32"} {
		asnRecords[cidr] = asn
	}
	writeMMDB(t, asnPath, "GeoLite2-ASN", asnRecords)

	m, err := OpenMMDB(cityPath, asnPath)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestMMDBLookup(t *testing.T) {
	m := openTestMMDB(t)

	geo, err := m.Lookup(context.Background(), "203.0.113.1")
	require.NoError(t, err)
	assert.Equal(t, domain.GeoData{
		Query:       "203.0.113.1",
		Lat:         40.4,
		Lon:         -3.7,
		ISP:         "ExampleISP",
		Country:     "Exampleland",
		CountryCode: "EX",
		City:        "Exampletown",
		Region:      "ExRegion",
	}, geo)

	geo, err = m.Lookup(context.Background(), "203.0.113.6")
	require.NoError(t, err)
	assert.Equal(t, 12.5, geo.Lon)
}

func TestMMDBLookupIncompleteRecords(t *testing.T) {
	m := openTestMMDB(t)

	tests := []struct {
		name    string
		ip      string
		missing string
	}{
		{"no city", "203.0.113.2", "city"},
		{"no subdivisions", "203.0.113.3", "region"},
		{"no country code", "203.0.113.4", "countryCode"},
		{"no location", "203.0.113.5", "location"},
		{"no asn", "203.0.113.7", "isp"},
		{"not in database", "198.51.100.9", "country"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			geo, err := m.Lookup(context.Background(), tt.ip)
			require.Error(t, err)
			assert.True(t, errors.IsKind(err, errors.KindEnrichment))
			assert.Contains(t, err.Error(), tt.missing)
			assert.Equal(t, domain.GeoData{}, geo)
		})
	}
}

func TestMMDBLookupRejectsNonAddress(t *testing.T) {
	m := openTestMMDB(t)
	_, err := m.Lookup(context.Background(), "not-an-ip")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindEnrichment))
}
