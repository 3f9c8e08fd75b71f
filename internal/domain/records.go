package domain

import (
	"time"
)

// IP is the enriched record for one observed source address.
type IP struct {
	Address     string    `json:"ip"`
	CreatedAt   time.Time `json:"created_at"`
	Lat         float64   `json:"lat"`
	Lon         float64   `json:"lon"`
	ISP         string    `json:"isp"`
	City        string    `json:"city"`
	Region      string    `json:"region"`
	Country     string    `json:"country"`
	CountryCode string    `json:"country_code"`
	BannedTimes int       `json:"banned_times"`
	IsBanned    bool      `json:"is_banned"`
	Warnings    int       `json:"warnings"`
}

// NewObservedIP builds the record for an address seen for the first time.
func NewObservedIP(address string, geo GeoData, banned bool, now time.Time) IP {
	ip := IP{
		Address:     address,
		CreatedAt:   now,
		Lat:         geo.Lat,
		Lon:         geo.Lon,
		ISP:         geo.ISP,
		City:        geo.City,
		Region:      geo.Region,
		Country:     geo.Country,
		CountryCode: geo.CountryCode,
		IsBanned:    banned,
		Warnings:    1,
	}
	if banned {
		ip.BannedTimes = 1
	}
	return ip
}

// GeoData is what a geolocation provider returns for one address.
type GeoData struct {
	Query       string  `json:"query"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	ISP         string  `json:"isp"`
	Country     string  `json:"country"`
	CountryCode string  `json:"countryCode"`
	City        string  `json:"city"`
	Region      string  `json:"regionName"`
}

// Counters are the per-dimension tallies. Both only ever grow.
type Counters struct {
	Banned   int `json:"banned"`
	Warnings int `json:"warnings"`
}

// Observe applies one first-seen observation to the counters.
func (c *Counters) Observe(banned bool) {
	c.Warnings++
	if banned {
		c.Banned++
	}
}

type ISP struct {
	Name string `json:"name"`
	Counters
}

type Country struct {
	Name string `json:"name"`
	Code string `json:"code"`
	Counters
}

// Region names are only unique within a country.
type Region struct {
	Name    string `json:"name"`
	Country string `json:"country"`
	Counters
}

// City names are only unique within a region of a country.
type City struct {
	Name    string `json:"name"`
	Region  string `json:"region"`
	Country string `json:"country"`
	Counters
}

// Message is one persisted log line. Messages are never updated.
type Message struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
	IP        string    `json:"ip"`
	IsJournal bool      `json:"is_journal"`
	IsBan     bool      `json:"is_ban"`
}

// Dimension identifies one of the grouping entities an IP references by name.
type Dimension string

const (
	DimensionCountry Dimension = "country"
	DimensionRegion  Dimension = "region"
	DimensionCity    Dimension = "city"
	DimensionISP     Dimension = "isp"
)

// Dimensions lists every dimension in display order.
var Dimensions = []Dimension{DimensionCountry, DimensionRegion, DimensionCity, DimensionISP}

func ParseDimension(s string) (Dimension, bool) {
	switch Dimension(s) {
	case DimensionCountry, DimensionRegion, DimensionCity, DimensionISP:
		return Dimension(s), true
	}
	return "", false
}

// DimensionKey addresses a single dimension row. Country and Region are only
// meaningful for the dimensions that are scoped by them.
type DimensionKey struct {
	Dimension Dimension `json:"dimension"`
	Name      string    `json:"name"`
	Country   string    `json:"country,omitempty"`
	Region    string    `json:"region,omitempty"`
}

func (k DimensionKey) String() string {
	switch k.Dimension {
	case DimensionRegion:
		return k.Name + ", " + k.Country
	case DimensionCity:
		return k.Name + ", " + k.Region + ", " + k.Country
	default:
		return k.Name
	}
}

// DimensionRecord is the dimension-agnostic view used by stats screens.
type DimensionRecord struct {
	Key  DimensionKey `json:"key"`
	Code string       `json:"code,omitempty"`
	Counters
}

// DimensionStats pairs a dimension row with the messages of every IP that
// references it.
type DimensionStats struct {
	Record   DimensionRecord `json:"record"`
	Messages []Message       `json:"messages"`
}

func (r ISP) Record() DimensionRecord {
	return DimensionRecord{Key: DimensionKey{Dimension: DimensionISP, Name: r.Name}, Counters: r.Counters}
}

func (r Country) Record() DimensionRecord {
	return DimensionRecord{Key: DimensionKey{Dimension: DimensionCountry, Name: r.Name}, Code: r.Code, Counters: r.Counters}
}

func (r Region) Record() DimensionRecord {
	return DimensionRecord{
		Key:      DimensionKey{Dimension: DimensionRegion, Name: r.Name, Country: r.Country},
		Counters: r.Counters,
	}
}

func (r City) Record() DimensionRecord {
	return DimensionRecord{
		Key:      DimensionKey{Dimension: DimensionCity, Name: r.Name, Region: r.Region, Country: r.Country},
		Counters: r.Counters,
	}
}

// MarkBanned records a ban. BannedTimes only grows on a false to true
// transition. It reports whether the state changed.
func (ip *IP) MarkBanned() bool {
	if ip.IsBanned {
		return false
	}
	ip.IsBanned = true
	ip.BannedTimes++
	return true
}

// MarkUnbanned clears the ban flag. It reports whether the state changed.
func (ip *IP) MarkUnbanned() bool {
	if !ip.IsBanned {
		return false
	}
	ip.IsBanned = false
	return true
}
