package profile

import (
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/ZaguanLabs/dramabox"
)

const (
	DefaultUpstreamAPI     = "https://api.megawe.net"
	DefaultSiteURL         = "https://megawe.net"
	DefaultPort            = 3000
	DefaultUpstreamTimeout = 10 * time.Second
)

// Profile is the configuration to start main server.
type Profile struct {
	// Mode can be "prod" or "dev"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Version is the current version of server
	Version string

	// UpstreamAPI is the root of the content API.
	UpstreamAPI string
	// UpstreamTimeout bounds each content API call.
	UpstreamTimeout time.Duration
	// DefaultLanguage is served when negotiation fails and backs every
	// missing translation.
	DefaultLanguage string
	// SiteURL is the public origin used in the sitemap and canonical links.
	SiteURL string

	// RedisURL enables the shared response cache when set.
	RedisURL string
	// CacheSnapshot is a file the response caches are restored from at
	// start and written to at shutdown.
	CacheSnapshot string
	// Coalesce shares one upstream call between concurrent cache misses.
	Coalesce bool
	// Warm prefetches the home feed of every language at start.
	Warm bool

	// RateLimit is the sustained API requests per second per client IP;
	// 0 disables limiting. RateBurst is the bucket size.
	RateLimit float64
	RateBurst int
	// TrustedProxies are CIDR ranges whose X-Forwarded-For header is
	// believed when identifying the client IP. Empty means the peer
	// address is the client.
	TrustedProxies []string

	// DownloadHosts restricts media downloads to these hosts and their
	// subdomains. Empty allows any public host.
	DownloadHosts []string

	// LogLevel is one of debug, info, warn, error.
	LogLevel string
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// FromEnv fills settings that are only read from the environment.
// NEXT_PUBLIC_SITE_URL is honored as a legacy name for SITE_URL.
func (p *Profile) FromEnv() {
	if p.SiteURL == "" {
		p.SiteURL = os.Getenv("NEXT_PUBLIC_SITE_URL")
	}
}

// Language returns the default language as a typed value.
func (p *Profile) Language() dramabox.Language {
	return dramabox.Language(p.DefaultLanguage)
}

// ListenAddr returns the host:port the server binds to.
func (p *Profile) ListenAddr() string {
	return fmt.Sprintf("%s:%d", p.Addr, p.Port)
}

// SlogLevel returns the parsed log level. Validate must have succeeded.
func (p *Profile) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(p.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// ProxyNets returns the parsed TrustedProxies. A bare IP is a single-host
// range.
func (p *Profile) ProxyNets() ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(p.TrustedProxies))
	for _, raw := range p.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, "/") {
			ip := net.ParseIP(raw)
			if ip == nil {
				return nil, errors.Errorf("invalid trusted proxy %q", raw)
			}
			bits := 8 * net.IPv6len
			if ip.To4() != nil {
				ip, bits = ip.To4(), 8*net.IPv4len
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, ipNet, err := net.ParseCIDR(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid trusted proxy %q", raw)
		}
		nets = append(nets, ipNet)
	}
	return nets, nil
}

func checkBaseURL(name, raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", errors.Wrapf(err, "invalid %s", name)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", errors.Errorf("invalid %s %q: want an absolute http(s) URL", name, raw)
	}
	return strings.TrimRight(raw, "/"), nil
}

func checkSnapshotPath(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Wrapf(err, "unable to resolve cache snapshot %s", path)
	}
	if _, err := os.Stat(filepath.Dir(absPath)); err != nil {
		return "", errors.Wrapf(err, "unable to access cache snapshot folder %s", filepath.Dir(absPath))
	}
	return absPath, nil
}

// Validate normalizes the profile and fills defaults. It fails on values
// the server cannot start with.
func (p *Profile) Validate() error {
	if p.Mode == "" {
		p.Mode = "prod"
	}
	if p.Mode != "dev" && p.Mode != "prod" {
		return errors.Errorf("invalid mode %q: want dev or prod", p.Mode)
	}

	if p.Port < 0 || p.Port > math.MaxUint16 {
		return errors.Errorf("invalid port %d", p.Port)
	}

	if p.UpstreamAPI == "" {
		p.UpstreamAPI = DefaultUpstreamAPI
	}
	upstreamAPI, err := checkBaseURL("upstream API", p.UpstreamAPI)
	if err != nil {
		return err
	}
	p.UpstreamAPI = upstreamAPI

	if p.SiteURL == "" {
		p.SiteURL = DefaultSiteURL
	}
	siteURL, err := checkBaseURL("site URL", p.SiteURL)
	if err != nil {
		return err
	}
	p.SiteURL = siteURL

	if p.UpstreamTimeout <= 0 {
		p.UpstreamTimeout = DefaultUpstreamTimeout
	}

	if p.DefaultLanguage == "" {
		p.DefaultLanguage = string(dramabox.DefaultLanguage)
	}
	if !dramabox.IsSupported(p.DefaultLanguage) {
		return errors.Errorf("unsupported default language %q", p.DefaultLanguage)
	}

	if p.RedisURL != "" {
		u, err := url.Parse(p.RedisURL)
		if err != nil {
			return errors.Wrap(err, "invalid redis URL")
		}
		if u.Scheme != "redis" && u.Scheme != "rediss" && u.Scheme != "unix" {
			return errors.Errorf("invalid redis URL scheme %q", u.Scheme)
		}
	}

	if p.CacheSnapshot != "" {
		snapshot, err := checkSnapshotPath(p.CacheSnapshot)
		if err != nil {
			slog.Error("failed to check cache snapshot", slog.String("path", p.CacheSnapshot), slog.String("error", err.Error()))
			return err
		}
		p.CacheSnapshot = snapshot
	}

	if p.RateLimit < 0 {
		return errors.Errorf("invalid rate limit %v", p.RateLimit)
	}
	if p.RateLimit > 0 && p.RateBurst < 1 {
		p.RateBurst = int(math.Ceil(p.RateLimit))
	}

	if _, err := p.ProxyNets(); err != nil {
		return err
	}
	for i, host := range p.DownloadHosts {
		host = strings.ToLower(strings.TrimSpace(host))
		if host == "" || strings.ContainsAny(host, "/:") {
			return errors.Errorf("invalid download host %q: want a bare host name", p.DownloadHosts[i])
		}
		p.DownloadHosts[i] = host
	}

	if p.LogLevel == "" {
		p.LogLevel = "info"
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(p.LogLevel)); err != nil {
		return errors.Wrapf(err, "invalid log level %q", p.LogLevel)
	}

	return nil
}
