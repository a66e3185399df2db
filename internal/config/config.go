package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr       string
	CORSOrigin string

	// Portal store. Reached through a same-origin proxy path that attaches
	// the API key server-side, so no key is configured here.
	PortalURL string

	// Partner stores are called directly with their keys attached.
	PartnerAURL string
	PartnerAKey string
	PartnerBURL string
	PartnerBKey string

	// Credentials for the password-grant actor identity on partner writes.
	PartnerEmail    string
	PartnerPassword string

	// Redis Configuration (project-link cache)
	RedisURL string
	LinkTTL  time.Duration

	RequestTimeout time.Duration
}

func Load() Config {
	return Config{
		Addr:            getenv("API_ADDR", ":8790"),
		CORSOrigin:      getenv("PERMITPORT_CORS_ORIGIN", "*"),
		PortalURL:       getenv("PORTAL_REST_URL", "http://localhost:8000"),
		PartnerAURL:     getenv("PARTNER_A_URL", ""),
		PartnerAKey:     getenv("PARTNER_A_KEY", ""),
		PartnerBURL:     getenv("PARTNER_B_URL", ""),
		PartnerBKey:     getenv("PARTNER_B_KEY", ""),
		PartnerEmail:    getenv("PARTNER_SYNC_EMAIL", ""),
		PartnerPassword: getenv("PARTNER_SYNC_PASSWORD", ""),
		RedisURL:        getenv("REDIS_URL", "redis://localhost:6379/0"),
		LinkTTL:         time.Duration(getenvInt("PERMITPORT_LINK_TTL_SECONDS", 3600)) * time.Second,
		RequestTimeout:  time.Duration(getenvInt("PERMITPORT_REQUEST_TIMEOUT_SECONDS", 30)) * time.Second,
	}
}

// Validate fails fast on configuration that would otherwise surface as a
// broken network call later. Partner stores are optional as a pair: either
// both the URL and key are set, or the partner is disabled.
func (c Config) Validate() error {
	if strings.TrimSpace(c.PortalURL) == "" {
		return errors.New("portal REST URL is required")
	}
	if (c.PartnerAURL == "") != (c.PartnerAKey == "") {
		return errors.New("partner A requires both URL and key")
	}
	if (c.PartnerBURL == "") != (c.PartnerBKey == "") {
		return errors.New("partner B requires both URL and key")
	}
	return nil
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
