// filepath: internal/config/config.go
package config

import (
	"fmt"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Persistence drivers.
const (
	DriverSupabase = "supabase"
	DriverSQLite   = "sqlite"
)

// Payload modes for the normalized image.
const (
	PayloadDataURI = "data_uri"
	PayloadBlob    = "blob"
)

// Config holds the application's configuration.
type Config struct {
	Server      ServerConfig             `toml:"server"`
	Logging     LoggingConfig            `toml:"logging"`
	Persistence PersistenceConfig        `toml:"persistence"`
	Blob        BlobConfig               `toml:"blob"`
	Upload      UploadConfig             `toml:"upload"`
	Preview     PreviewConfig            `toml:"preview"`
	Store       StoreConfig              `toml:"store"`
	Keepalive   KeepaliveConfig          `toml:"keepalive"`
	Profiles    map[string]ProfileConfig `toml:"profiles"`

	// Runtime computed values
	MaxRequestBytes     int64         `toml:"-"`
	TrustedProxyNets    []*net.IPNet  `toml:"-"`
	SessionTTL          time.Duration `toml:"-"`
	PersistenceTimeout  time.Duration `toml:"-"`
	PassthroughBytes    int64         `toml:"-"`
	SmallFileBytes      int64         `toml:"-"`
	PreviewReferenceTTL time.Duration `toml:"-"`
	StoreMaxRetries     int           `toml:"-"`
	StoreBaseDelay      time.Duration `toml:"-"`
	KeepaliveInterval   time.Duration `toml:"-"`
}

// ServerConfig holds the server configuration.
type ServerConfig struct {
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	MaxRequestSize string   `toml:"max_request_size"` // e.g. "32MB"
	SessionTTL     string   `toml:"session_ttl"`
	CORSOrigins    []string `toml:"cors_origins"`
	RateLimit      float64  `toml:"rate_limit"` // requests per second per client
	RateBurst      int      `toml:"rate_burst"`
	// Peers whose X-Forwarded-For and X-Real-IP headers are believed. IPs or CIDRs.
	TrustedProxies []string `toml:"trusted_proxies"`
}

// LoggingConfig holds the logging configuration.
type LoggingConfig struct {
	Level        string `toml:"level"`
	AuditEnabled bool   `toml:"audit_enabled"`
}

// PersistenceConfig selects and configures the gallery persistence collaborator.
// An empty driver leaves persistence disabled.
type PersistenceConfig struct {
	Driver       string `toml:"driver"`
	URL          string `toml:"url"`
	AnonKey      string `toml:"anon_key"`
	Table        string `toml:"table"`
	HeartbeatRPC string `toml:"heartbeat_rpc"`
	DatabasePath string `toml:"database_path"`
	Timeout      string `toml:"timeout"`
}

// BlobConfig holds the object storage settings used when upload.payload_mode = "blob".
type BlobConfig struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	UseSSL    bool   `toml:"use_ssl"`
}

// UploadConfig holds normalization settings shared by all capability profiles.
type UploadConfig struct {
	PayloadMode       string  `toml:"payload_mode"`
	DefaultProfile    string  `toml:"default_profile"`
	QualityStep       float64 `toml:"quality_step"`
	MinQuality        float64 `toml:"min_quality"`
	FallbackDimension int     `toml:"fallback_dimension"`
	PassthroughSize   string  `toml:"passthrough_size"`
	SmallFileSize     string  `toml:"small_file_size"`
	MaxTitleLength    int     `toml:"max_title_length"`
}

// PreviewConfig holds preview rendering settings.
type PreviewConfig struct {
	MaxSide      int    `toml:"max_side"`
	ReferenceTTL string `toml:"reference_ttl"`
}

// StoreConfig holds the insert retry policy. An unset max_retries means 3; 0 turns
// retries off.
type StoreConfig struct {
	MaxRetries *int   `toml:"max_retries"`
	BaseDelay  string `toml:"base_delay"`
}

// KeepaliveConfig enables the periodic heartbeat call. Empty interval disables it.
type KeepaliveConfig struct {
	Interval string `toml:"interval"`
}

// ProfileConfig overrides one capability profile. Zero values keep the built-in default.
type ProfileConfig struct {
	MaxDimension   int      `toml:"max_dimension"`
	Quality        float64  `toml:"quality"`
	MaxSize        string   `toml:"max_size"`
	MaxUploadSize  string   `toml:"max_upload_size"`
	MaxRetries     int      `toml:"max_retries"`
	Timeout        string   `toml:"timeout"`
	PreviewOrder   []string `toml:"preview_order"`
	AllowEmptyType *bool    `toml:"allow_empty_type"`
	BufferedDecode *bool    `toml:"buffered_decode"`

	MaxBytes       int64         `toml:"-"`
	MaxUploadBytes int64         `toml:"-"`
	TimeoutDur     time.Duration `toml:"-"`
}

// LoadConfig loads the configuration from a TOML file.
func LoadConfig(path string) (*Config, error) {
	var config Config
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, err
	}
	return &config, nil
}

// SaveConfig writes the current configuration back to a TOML file.
// Used to write a starter config.toml on first run.
func SaveConfig(path string, cfg *Config) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file for saving: %w", err)
	}
	defer f.Close()
	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config to file: %w", err)
	}
	return nil
}

// PersistenceEnabled reports whether enough configuration is present to build a persistence client.
func (c *Config) PersistenceEnabled() bool {
	switch c.Persistence.Driver {
	case DriverSupabase:
		return c.Persistence.URL != "" && c.Persistence.AnonKey != ""
	case DriverSQLite:
		return c.Persistence.DatabasePath != ""
	default:
		return false
	}
}

// ParseAndValidate processes configuration strings into runtime values.
// It sets defaults if values are missing and parses human-readable sizes and durations.
func (c *Config) ParseAndValidate() error {
	if c.Server.MaxRequestSize == "" {
		c.Server.MaxRequestSize = "32MB"
	}
	if c.Server.SessionTTL == "" {
		c.Server.SessionTTL = "30m"
	}
	if c.Server.RateLimit == 0 {
		c.Server.RateLimit = 2
	}
	if c.Server.RateBurst == 0 {
		c.Server.RateBurst = 5
	}
	if c.Persistence.Driver == "" && c.Persistence.URL != "" {
		c.Persistence.Driver = DriverSupabase
	}
	if c.Persistence.Table == "" {
		c.Persistence.Table = "gallery_images"
	}
	if c.Persistence.HeartbeatRPC == "" {
		c.Persistence.HeartbeatRPC = "touch_heartbeat"
	}
	if c.Persistence.Timeout == "" {
		c.Persistence.Timeout = "15s"
	}
	if c.Upload.PayloadMode == "" {
		c.Upload.PayloadMode = PayloadDataURI
	}
	if c.Upload.DefaultProfile == "" {
		c.Upload.DefaultProfile = "desktop"
	}
	if c.Upload.QualityStep == 0 {
		c.Upload.QualityStep = 0.2
	}
	if c.Upload.MinQuality == 0 {
		c.Upload.MinQuality = 0.3
	}
	if c.Upload.FallbackDimension == 0 {
		c.Upload.FallbackDimension = 800
	}
	if c.Upload.PassthroughSize == "" {
		c.Upload.PassthroughSize = "1MB"
	}
	if c.Upload.SmallFileSize == "" {
		c.Upload.SmallFileSize = "2MB"
	}
	if c.Upload.MaxTitleLength == 0 {
		c.Upload.MaxTitleLength = 100
	}
	if c.Preview.MaxSide == 0 {
		c.Preview.MaxSide = 320
	}
	if c.Preview.ReferenceTTL == "" {
		c.Preview.ReferenceTTL = "10m"
	}
	if c.Store.MaxRetries == nil {
		retries := 3
		c.Store.MaxRetries = &retries
	}
	if *c.Store.MaxRetries < 0 {
		return fmt.Errorf("invalid store max_retries: %d", *c.Store.MaxRetries)
	}
	c.StoreMaxRetries = *c.Store.MaxRetries
	if c.Store.BaseDelay == "" {
		c.Store.BaseDelay = "1s"
	}

	switch c.Persistence.Driver {
	case "", DriverSupabase, DriverSQLite:
	default:
		return fmt.Errorf("invalid persistence driver: %q", c.Persistence.Driver)
	}
	switch c.Upload.PayloadMode {
	case PayloadDataURI, PayloadBlob:
	default:
		return fmt.Errorf("invalid payload_mode: %q", c.Upload.PayloadMode)
	}
	if c.Upload.QualityStep <= 0 || c.Upload.QualityStep >= 1 {
		return fmt.Errorf("invalid quality_step: %v", c.Upload.QualityStep)
	}

	var err error
	if c.TrustedProxyNets, err = parseProxies(c.Server.TrustedProxies); err != nil {
		return err
	}
	if c.MaxRequestBytes, err = parseSize(c.Server.MaxRequestSize); err != nil {
		return fmt.Errorf("invalid max_request_size: %w", err)
	}
	if c.SessionTTL, err = time.ParseDuration(c.Server.SessionTTL); err != nil {
		return fmt.Errorf("invalid session_ttl: %w", err)
	}
	if c.PersistenceTimeout, err = time.ParseDuration(c.Persistence.Timeout); err != nil {
		return fmt.Errorf("invalid persistence timeout: %w", err)
	}
	if c.PassthroughBytes, err = parseSize(c.Upload.PassthroughSize); err != nil {
		return fmt.Errorf("invalid passthrough_size: %w", err)
	}
	if c.SmallFileBytes, err = parseSize(c.Upload.SmallFileSize); err != nil {
		return fmt.Errorf("invalid small_file_size: %w", err)
	}
	if c.PreviewReferenceTTL, err = time.ParseDuration(c.Preview.ReferenceTTL); err != nil {
		return fmt.Errorf("invalid reference_ttl: %w", err)
	}
	if c.StoreBaseDelay, err = time.ParseDuration(c.Store.BaseDelay); err != nil {
		return fmt.Errorf("invalid base_delay: %w", err)
	}
	if c.StoreBaseDelay <= 0 {
		return fmt.Errorf("invalid base_delay: must be positive")
	}
	if c.Keepalive.Interval != "" {
		if c.KeepaliveInterval, err = time.ParseDuration(c.Keepalive.Interval); err != nil {
			return fmt.Errorf("invalid keepalive interval: %w", err)
		}
	}

	for name, p := range c.Profiles {
		if p.MaxSize != "" {
			if p.MaxBytes, err = parseSize(p.MaxSize); err != nil {
				return fmt.Errorf("profile %s: invalid max_size: %w", name, err)
			}
		}
		if p.MaxUploadSize != "" {
			if p.MaxUploadBytes, err = parseSize(p.MaxUploadSize); err != nil {
				return fmt.Errorf("profile %s: invalid max_upload_size: %w", name, err)
			}
		}
		if p.Timeout != "" {
			if p.TimeoutDur, err = time.ParseDuration(p.Timeout); err != nil {
				return fmt.Errorf("profile %s: invalid timeout: %w", name, err)
			}
		}
		if p.Quality < 0 || p.Quality > 1 {
			return fmt.Errorf("profile %s: quality must be within 0..1", name)
		}
		c.Profiles[name] = p
	}

	return nil
}

// parseSize parses a size string (e.g., "10MB", "512K") into bytes.
func parseSize(sizeStr string) (int64, error) {
	re := regexp.MustCompile(`(?i)^(\d+)\s*(K|M|G|T)?B?$`)
	matches := re.FindStringSubmatch(strings.TrimSpace(sizeStr))

	if len(matches) < 2 {
		return 0, fmt.Errorf("invalid size format: %s", sizeStr)
	}

	value, err := strconv.ParseInt(matches[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size number: %s", matches[1])
	}

	unit := ""
	if len(matches) > 2 {
		unit = strings.ToUpper(matches[2])
	}

	switch unit {
	case "T":
		return value * (1 << 40), nil
	case "G":
		return value * (1 << 30), nil
	case "M":
		return value * (1 << 20), nil
	case "K":
		return value * (1 << 10), nil
	default:
		return value, nil
	}
}

// parseProxies accepts bare addresses as single-host networks.
func parseProxies(entries []string) ([]*net.IPNet, error) {
	var nets []*net.IPNet
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if !strings.Contains(e, "/") {
			ip := net.ParseIP(e)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", e)
			}
			bits := 32
			if ip.To4() == nil {
				bits = 128
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(e)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", e, err)
		}
		nets = append(nets, n)
	}
	return nets, nil
}
