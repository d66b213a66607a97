package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type InvalidationCfg struct {
	Enabled bool
	Brokers string
	Topic   string
	GroupID string
}

type GeocodeCfg struct {
	BaseURL string
	Country string
	Limit   int
}

type Config struct {
	Addr     string
	LogLevel string

	RedisAddr     string
	CacheFrontLen int
	CacheFrontTTL time.Duration
	CoordTTL      time.Duration
	RefTTL        time.Duration

	NavarraWFSURL   string
	EuskadiWFSURL   string
	SpainWFSURL     string
	UpstreamTimeout time.Duration
	UpstreamRate    float64

	EntityStoreURL string
	LookupURL      string
	PostgresDSN    string

	Geocode      GeocodeCfg
	Invalidation InvalidationCfg

	ClickEnabled bool
}

func FromEnv() Config {
	return Config{
		Addr:     getenv("ADDR", ":8090"),
		LogLevel: getenv("LOG_LEVEL", "info"),

		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		CacheFrontLen: getint("CACHE_FRONT_LEN", 4096),
		CacheFrontTTL: getduration("CACHE_FRONT_TTL", time.Minute),
		CoordTTL:      getduration("COORD_CACHE_TTL", 24*time.Hour),
		RefTTL:        getduration("REF_CACHE_TTL", 7*24*time.Hour),

		NavarraWFSURL:   getenv("NAVARRA_WFS_URL", "https://idena.navarra.es/ogc/wfs"),
		EuskadiWFSURL:   getenv("EUSKADI_WFS_URL", "https://geo.euskadi.eus/WFS_KADASTROA"),
		SpainWFSURL:     getenv("SPAIN_WFS_URL", "http://ovc.catastro.meh.es/INSPIRE/wfsCP.aspx"),
		UpstreamTimeout: getduration("UPSTREAM_TIMEOUT", 10*time.Second),
		UpstreamRate:    getfloat("UPSTREAM_RATE_PER_SEC", 10),

		EntityStoreURL: getenv("ENTITY_STORE_URL", "http://localhost:1026/ngsi-ld/v1"),
		LookupURL:      getenv("LOOKUP_URL", "http://localhost:8090"),
		PostgresDSN:    getenv("POSTGRES_DSN", ""),

		Geocode: GeocodeCfg{
			BaseURL: getenv("GEOCODE_URL", "https://nominatim.openstreetmap.org"),
			Country: getenv("GEOCODE_COUNTRY", "es"),
			Limit:   getint("GEOCODE_LIMIT", 5),
		},
		Invalidation: InvalidationCfg{
			Enabled: getbool("INVALIDATION_ENABLED", false),
			Brokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			Topic:   getenv("KAFKA_TOPIC", "parcel-updates"),
			GroupID: getenv("KAFKA_GROUP_ID", "lookup-invalidator"),
		},

		ClickEnabled: getbool("CLICK_TO_CREATE_ENABLED", true),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
