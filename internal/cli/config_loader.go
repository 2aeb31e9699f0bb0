// filepath: internal/cli/config_loader.go
package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"photogallery/internal/config"
	"photogallery/internal/logging"
)

const defaultConfigPath = "config.toml"

var (
	// Global config object populated by file/env/flags
	cfg *config.Config

	cfgFile string

	// Dotenv files read before the environment is consulted. Variables already set win.
	envFiles = []string{".env.local", ".env"}
)

// setting binds one config key to its flag and environment variables.
type setting struct {
	key  string
	flag string
	env  []string
}

// settings lists every value that can be overridden from the environment or a flag.
// The NEXT_PUBLIC_* names match the variables of a hosted frontend deployment.
var settings = []setting{
	{"server.host", "host", []string{"GALLERY_HOST"}},
	{"server.port", "port", []string{"GALLERY_PORT", "PORT"}},
	{"server.max_request_size", "max-request-size", []string{"GALLERY_MAX_REQUEST_SIZE"}},
	{"logging.level", "log-level", []string{"GALLERY_LOG_LEVEL"}},
	{"logging.audit_enabled", "audit-enabled", []string{"GALLERY_AUDIT_ENABLED"}},
	{"persistence.driver", "persistence-driver", []string{"GALLERY_PERSISTENCE_DRIVER"}},
	{"persistence.url", "supabase-url", []string{"GALLERY_SUPABASE_URL", "NEXT_PUBLIC_SUPABASE_URL", "SUPABASE_URL"}},
	{"persistence.anon_key", "supabase-anon-key", []string{"GALLERY_SUPABASE_ANON_KEY", "NEXT_PUBLIC_SUPABASE_ANON_KEY", "SUPABASE_ANON_KEY"}},
	{"persistence.database_path", "database-path", []string{"GALLERY_DATABASE_PATH"}},
	{"upload.payload_mode", "payload-mode", []string{"GALLERY_PAYLOAD_MODE"}},
	{"blob.endpoint", "blob-endpoint", []string{"GALLERY_BLOB_ENDPOINT"}},
	{"blob.access_key", "", []string{"GALLERY_BLOB_ACCESS_KEY"}},
	{"blob.secret_key", "", []string{"GALLERY_BLOB_SECRET_KEY"}},
	{"blob.bucket", "blob-bucket", []string{"GALLERY_BLOB_BUCKET"}},
	{"keepalive.interval", "keepalive-interval", []string{"GALLERY_KEEPALIVE_INTERVAL"}},
}

// normalizeFlagName accepts underscores in place of dashes, so --log_level and
// --log-level are the same flag.
func normalizeFlagName(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

func registerFlags(cmd *cobra.Command) {
	cmd.SetGlobalNormalizationFunc(normalizeFlagName)

	pf := cmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config-path", defaultConfigPath, "Path to the base configuration file. (Env: GALLERY_CONFIG_PATH)")
	pf.String("log-level", "", "Logging level (debug, info, warn, error). (Env: GALLERY_LOG_LEVEL)")
	pf.String("persistence-driver", "", "Persistence backend: supabase or sqlite. (Env: GALLERY_PERSISTENCE_DRIVER)")
	pf.String("supabase-url", "", "Supabase project URL. (Env: NEXT_PUBLIC_SUPABASE_URL)")
	pf.String("supabase-anon-key", "", "Supabase anonymous key. (Env: NEXT_PUBLIC_SUPABASE_ANON_KEY)")
	pf.String("database-path", "", "SQLite database file for the sqlite driver. (Env: GALLERY_DATABASE_PATH)")

	// Server-specific flags
	f := cmd.Flags()
	f.String("host", "", "Address to listen on. (Env: GALLERY_HOST)")
	f.Int("port", 0, "Port for the HTTP server. (Env: GALLERY_PORT)")
	f.String("max-request-size", "", "Maximum upload request size (e.g. '32MB'). (Env: GALLERY_MAX_REQUEST_SIZE)")
	f.Bool("audit-enabled", false, "Enable audit logging. (Env: GALLERY_AUDIT_ENABLED=true)")
	f.String("payload-mode", "", "How normalized images are stored: data_uri or blob. (Env: GALLERY_PAYLOAD_MODE)")
	f.String("blob-endpoint", "", "Object storage endpoint for payload-mode blob. (Env: GALLERY_BLOB_ENDPOINT)")
	f.String("blob-bucket", "", "Object storage bucket for payload-mode blob. (Env: GALLERY_BLOB_BUCKET)")
	f.String("keepalive-interval", "", "Call the heartbeat RPC on this interval, e.g. '24h'. (Env: GALLERY_KEEPALIVE_INTERVAL)")
}

// initializeConfig loads the TOML file and applies environment and flag overrides.
// Precedence: flags > environment (.env files included) > config file > defaults.
func initializeConfig(cmd *cobra.Command) error {
	loadEnvFiles()

	// 1. Check environment variable for config path first
	if envPath := os.Getenv("GALLERY_CONFIG_PATH"); envPath != "" && !cmd.Flags().Changed("config-path") {
		cfgFile = envPath
	}
	if cfgFile == "" {
		cfgFile = defaultConfigPath
	}

	var err error
	cfg, err = config.LoadConfig(cfgFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg = &config.Config{}
		} else {
			return fmt.Errorf("failed to load configuration from %s: %w", cfgFile, err)
		}
	}

	// 2. Apply Overrides (Env Vars and CLI Flags)
	v, err := newViper(cmd)
	if err != nil {
		return err
	}
	applyOverrides(cfg, v)

	// 3. Validate
	if err := cfg.ParseAndValidate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	// 4. Initialize Logging
	logging.Init(cfg.Logging.Level)
	goose.SetLogger(logging.Log)

	return nil
}

// loadEnvFiles reads the dotenv files that exist. godotenv never overrides
// variables that are already set.
func loadEnvFiles() {
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			logging.Log.Warnf("Could not read %s: %v", f, err)
		}
	}
}

// newViper binds every setting to its environment variables and, when the command
// defines it, its flag.
func newViper(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	for _, s := range settings {
		if err := v.BindEnv(append([]string{s.key}, s.env...)...); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", s.key, err)
		}
		if s.flag == "" {
			continue
		}
		if fl := cmd.Flags().Lookup(s.flag); fl != nil {
			if err := v.BindPFlag(s.key, fl); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", s.flag, err)
			}
		}
	}
	return v, nil
}

func applyOverrides(c *config.Config, v *viper.Viper) {
	str := func(key string, dst *string) {
		if v.IsSet(key) {
			if s := v.GetString(key); s != "" {
				*dst = s
			}
		}
	}

	// --- Environment Variables and CLI Flags ---
	str("server.host", &c.Server.Host)
	if v.IsSet("server.port") {
		if p := v.GetInt("server.port"); p != 0 {
			c.Server.Port = p
		}
	}
	str("server.max_request_size", &c.Server.MaxRequestSize)
	str("logging.level", &c.Logging.Level)
	if v.IsSet("logging.audit_enabled") {
		c.Logging.AuditEnabled = v.GetBool("logging.audit_enabled")
	}
	str("persistence.driver", &c.Persistence.Driver)
	str("persistence.url", &c.Persistence.URL)
	str("persistence.anon_key", &c.Persistence.AnonKey)
	str("persistence.database_path", &c.Persistence.DatabasePath)
	str("upload.payload_mode", &c.Upload.PayloadMode)
	str("blob.endpoint", &c.Blob.Endpoint)
	str("blob.access_key", &c.Blob.AccessKey)
	str("blob.secret_key", &c.Blob.SecretKey)
	str("blob.bucket", &c.Blob.Bucket)
	str("keepalive.interval", &c.Keepalive.Interval)

	// --- Defaults ---
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Persistence.Driver == config.DriverSQLite && c.Persistence.DatabasePath == "" {
		c.Persistence.DatabasePath = "gallery.db"
	}
}
