package config

import (
	"log"

	"github.com/kelseyhightower/envconfig"
)

// Settings holds all process-level configuration, loaded from the
// environment with the BASTION_ prefix.
type Settings struct {
	ListenAddr   string `envconfig:"LISTEN_ADDR" default:":8000"`
	DataPath     string `envconfig:"DATA_PATH" default:"/app/data"`
	DatabasePath string `envconfig:"DATABASE_PATH" default:"/app/data/bastion.db"`
	LogPath      string `envconfig:"LOG_PATH" default:"/app/data/bastion.log"`

	// FernetKey decrypts credential secret material at rest. Empty means
	// secrets are stored in plaintext (development only).
	FernetKey string `envconfig:"FERNET_KEY" default:""`

	// Terminal session settings
	SessionIdleTimeout   string `envconfig:"SESSION_IDLE_TIMEOUT" default:"30m"`
	SessionIdleCheckSecs int    `envconfig:"SESSION_IDLE_CHECK_SECS" default:"30"`

	// ExtractorTuningFile points at an optional YAML file overriding the
	// command extractor's prompt pattern and editor list.
	ExtractorTuningFile string `envconfig:"EXTRACTOR_TUNING_FILE" default:""`

	// Background jobs (robfig/cron specs)
	RuleRefreshSpec string `envconfig:"RULE_REFRESH_SPEC" default:"@every 30s"`
	AuditPurgeSpec  string `envconfig:"AUDIT_PURGE_SPEC" default:"0 3 * * *"`

	// AuditRetentionDays is how long command and alert logs are kept.
	AuditRetentionDays int `envconfig:"AUDIT_RETENTION_DAYS" default:"90"`
}

var Cfg Settings

func Load() {
	if err := envconfig.Process("BASTION", &Cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
}
