package config

import (
	"os"
	"path"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// ErrInvalidThreshold is returned by Validate when a scoring wait interval is
// not positive or can never be reached by its counter.
var ErrInvalidThreshold = errors.New("scoring wait interval out of range")

// CounterCap is where the packet rate up and utilization down counters stop
// counting. A wait interval those counters must reach or exceed has to stay
// below it.
const CounterCap = 20

// SysConfig system configuration
type SysConfig struct {
	Appid    string `yaml:"appid"`
	Location string `yaml:"location"`
	Workdir  string `yaml:"workdir"`
	Debug    bool   `yaml:"debug"`
}

// WebConfig admin api configuration
type WebConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DBConfig database configuration, used by the sql kv backend
type DBConfig struct {
	Type     string `yaml:"type"` // postgres | sqlite
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Passwd   string `yaml:"passwd"`
	MaxConn  int    `yaml:"max_conn"`
	IdleConn int    `yaml:"idle_conn"`
	Debug    bool   `yaml:"debug"`
}

// KvstoreConfig selects the key-value backend holding score states and raw records
type KvstoreConfig struct {
	Backend          string `yaml:"backend"` // bolt | sql
	ScoreTable       string `yaml:"score_table"`
	RawTable         string `yaml:"raw_table"`
	RawRetentionDays int    `yaml:"raw_retention_days"`
}

// TsdbConfig time-series store configuration
type TsdbConfig struct {
	Enabled       bool `yaml:"enabled"`
	RetentionDays int  `yaml:"retention_days"`
	PartitionHour int  `yaml:"partition_hour"`
}

// LogConfig logger configuration
type LogConfig struct {
	Mode       string `yaml:"mode"`
	FileEnable bool   `yaml:"file_enable"`
	Filename   string `yaml:"filename"`
}

// ScoringConfig hysteresis wait intervals, counted in samples
type ScoringConfig struct {
	LinkUpWaitInterval           int `yaml:"link_up_wait_interval"`
	LatencyUpWaitInterval        int `yaml:"latency_up_wait_interval"`
	LatencyDownWaitInterval      int `yaml:"latency_down_wait_interval"`
	PacketRateUpWaitInterval     int `yaml:"packet_rate_up_wait_interval"`
	PacketRateDownWaitInterval   int `yaml:"packet_rate_down_wait_interval"`
	Utilization5080WaitInterval  int `yaml:"utilization_50_80_wait_interval"`
	Utilization80100WaitInterval int `yaml:"utilization_80_100_wait_interval"`
	UtilizationDownWaitInterval  int `yaml:"utilization_down_wait_interval"`
}

// IngestConfig bounds for the record handler
type IngestConfig struct {
	BatchSize   int `yaml:"batch_size"`
	Workers     int `yaml:"workers"`
	LockStripes int `yaml:"lock_stripes"`
}

type AppConfig struct {
	System   SysConfig     `yaml:"system"`
	Web      WebConfig     `yaml:"web"`
	Database DBConfig      `yaml:"database"`
	Kvstore  KvstoreConfig `yaml:"kvstore"`
	Tsdb     TsdbConfig    `yaml:"tsdb"`
	Logger   LogConfig     `yaml:"logger"`
	Scoring  ScoringConfig `yaml:"scoring"`
	Ingest   IngestConfig  `yaml:"ingest"`
}

func (c *AppConfig) GetDataDir() string {
	return path.Join(c.System.Workdir, "data")
}

func (c *AppConfig) GetLogDir() string {
	return path.Join(c.System.Workdir, "logs")
}

func (c *AppConfig) GetTsdbDir() string {
	return path.Join(c.System.Workdir, "tsdb")
}

func (c *AppConfig) initDirs() {
	_ = os.MkdirAll(c.GetDataDir(), 0o755)
	_ = os.MkdirAll(c.GetLogDir(), 0o755)
	_ = os.MkdirAll(c.GetTsdbDir(), 0o755)
}

// Validate checks the thresholds and backend names
func (c *AppConfig) Validate() error {
	s := c.Scoring
	intervals := map[string]int{
		"LINK_UP_WAIT_INTERVAL":            s.LinkUpWaitInterval,
		"LATENCY_UP_WAIT_INTERVAL":         s.LatencyUpWaitInterval,
		"LATENCY_DOWN_WAIT_INTERVAL":       s.LatencyDownWaitInterval,
		"PACKET_RATE_UP_WAIT_INTERVAL":     s.PacketRateUpWaitInterval,
		"PACKET_RATE_DOWN_WAIT_INTERVAL":   s.PacketRateDownWaitInterval,
		"UTILIZATION_50_80_WAIT_INTERVAL":  s.Utilization5080WaitInterval,
		"UTILIZATION_80_100_WAIT_INTERVAL": s.Utilization80100WaitInterval,
		"UTILIZATION_DOWN_WAIT_INTERVAL":   s.UtilizationDownWaitInterval,
	}
	for name, v := range intervals {
		if v <= 0 {
			return errors.Wrapf(ErrInvalidThreshold, "%s=%d", name, v)
		}
	}
	// the utilization score clears once the capped counter exceeds the interval
	if s.UtilizationDownWaitInterval >= CounterCap {
		return errors.Wrapf(ErrInvalidThreshold, "UTILIZATION_DOWN_WAIT_INTERVAL=%d, max %d",
			s.UtilizationDownWaitInterval, CounterCap-1)
	}
	// the packet rate score clears once the capped counter reaches the interval
	if s.PacketRateUpWaitInterval > CounterCap {
		return errors.Wrapf(ErrInvalidThreshold, "PACKET_RATE_UP_WAIT_INTERVAL=%d, max %d",
			s.PacketRateUpWaitInterval, CounterCap)
	}
	switch c.Kvstore.Backend {
	case "bolt", "sql":
	default:
		return errors.Errorf("kvstore.backend %q unknown: want bolt|sql", c.Kvstore.Backend)
	}
	if c.Kvstore.Backend == "sql" {
		switch c.Database.Type {
		case "postgres", "sqlite":
		default:
			return errors.Errorf("database.type %q unknown: want postgres|sqlite", c.Database.Type)
		}
	}
	if c.Ingest.BatchSize <= 0 {
		return errors.Errorf("ingest.batch_size must be positive, got %d", c.Ingest.BatchSize)
	}
	return nil
}

var DefaultAppConfig = &AppConfig{
	System: SysConfig{
		Appid:    "LinkScore",
		Location: "Asia/Singapore",
		Workdir:  "/var/linkscore",
		Debug:    false,
	},
	Web: WebConfig{
		Host: "0.0.0.0",
		Port: 1826,
	},
	Database: DBConfig{
		Type:     "sqlite",
		Host:     "127.0.0.1",
		Port:     5432,
		Name:     "linkscore.db",
		User:     "postgres",
		Passwd:   "",
		MaxConn:  50,
		IdleConn: 10,
		Debug:    false,
	},
	Kvstore: KvstoreConfig{
		Backend:          "bolt",
		ScoreTable:       "link_score",
		RawTable:         "link_raw",
		RawRetentionDays: 90,
	},
	Tsdb: TsdbConfig{
		Enabled:       true,
		RetentionDays: 30,
		PartitionHour: 1,
	},
	Logger: LogConfig{
		Mode:       "development",
		FileEnable: true,
		Filename:   "/var/linkscore/logs/linkscore.log",
	},
	Scoring: ScoringConfig{
		LinkUpWaitInterval:           3,
		LatencyUpWaitInterval:        3,
		LatencyDownWaitInterval:      3,
		PacketRateUpWaitInterval:     3,
		PacketRateDownWaitInterval:   3,
		Utilization5080WaitInterval:  3,
		Utilization80100WaitInterval: 3,
		UtilizationDownWaitInterval:  3,
	},
	Ingest: IngestConfig{
		BatchSize:   500,
		Workers:     16,
		LockStripes: 64,
	},
}

// LoadConfig reads cfile (when present) on top of the defaults and then
// applies environment overrides.
func LoadConfig(cfile string) (*AppConfig, error) {
	cfg := *DefaultAppConfig
	if cfile != "" {
		data, err := os.ReadFile(cfile)
		if err != nil {
			return nil, errors.Wrapf(err, "read config %q", cfile)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrap(err, "parse config yaml")
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.initDirs()
	return &cfg, nil
}

func applyEnv(cfg *AppConfig) {
	setEnvValue("LINKSCORE_SYSTEM_WORKER_DIR", &cfg.System.Workdir)
	setEnvValue("LINKSCORE_SYSTEM_LOCATION", &cfg.System.Location)
	setEnvBoolValue("LINKSCORE_SYSTEM_DEBUG", &cfg.System.Debug)

	setEnvValue("LINKSCORE_WEB_HOST", &cfg.Web.Host)
	setEnvIntValue("LINKSCORE_WEB_PORT", &cfg.Web.Port)

	setEnvValue("LINKSCORE_DB_TYPE", &cfg.Database.Type)
	setEnvValue("LINKSCORE_DB_HOST", &cfg.Database.Host)
	setEnvIntValue("LINKSCORE_DB_PORT", &cfg.Database.Port)
	setEnvValue("LINKSCORE_DB_NAME", &cfg.Database.Name)
	setEnvValue("LINKSCORE_DB_USER", &cfg.Database.User)
	setEnvValue("LINKSCORE_DB_PWD", &cfg.Database.Passwd)
	setEnvBoolValue("LINKSCORE_DB_DEBUG", &cfg.Database.Debug)

	setEnvValue("LINKSCORE_KV_BACKEND", &cfg.Kvstore.Backend)
	setEnvValue("SCORE_KV", &cfg.Kvstore.ScoreTable)
	setEnvValue("RAW_KV", &cfg.Kvstore.RawTable)
	setEnvIntValue("LINKSCORE_RAW_RETENTION_DAYS", &cfg.Kvstore.RawRetentionDays)

	setEnvBoolValue("LINKSCORE_TSDB_ENABLED", &cfg.Tsdb.Enabled)
	setEnvIntValue("LINKSCORE_TSDB_RETENTION_DAYS", &cfg.Tsdb.RetentionDays)

	setEnvValue("LINKSCORE_LOGGER_MODE", &cfg.Logger.Mode)
	setEnvBoolValue("LINKSCORE_LOGGER_FILE_ENABLE", &cfg.Logger.FileEnable)
	setEnvValue("LINKSCORE_LOGGER_FILENAME", &cfg.Logger.Filename)

	setEnvIntValue("BATCH_SIZE", &cfg.Ingest.BatchSize)
	setEnvIntValue("LINKSCORE_INGEST_WORKERS", &cfg.Ingest.Workers)

	s := &cfg.Scoring
	setEnvIntValue("LINK_UP_WAIT_INTERVAL", &s.LinkUpWaitInterval)
	setEnvIntValue("LATENCY_UP_WAIT_INTERVAL", &s.LatencyUpWaitInterval)
	setEnvIntValue("LATENCY_DOWN_WAIT_INTERVAL", &s.LatencyDownWaitInterval)
	setEnvIntValue("PACKET_RATE_UP_WAIT_INTERVAL", &s.PacketRateUpWaitInterval)
	setEnvIntValue("PACKET_RATE_DOWN_WAIT_INTERVAL", &s.PacketRateDownWaitInterval)
	setEnvIntValue("UTILIZATION_50_80_WAIT_INTERVAL", &s.Utilization5080WaitInterval)
	setEnvIntValue("UTILIZATION_80_100_WAIT_INTERVAL", &s.Utilization80100WaitInterval)
	setEnvIntValue("UTILIZATION_DOWN_WAIT_INTERVAL", &s.UtilizationDownWaitInterval)
}

func setEnvValue(name string, val *string) {
	evalue := strings.TrimSpace(os.Getenv(name))
	if evalue != "" {
		*val = evalue
	}
}

func setEnvBoolValue(name string, val *bool) {
	evalue := strings.TrimSpace(os.Getenv(name))
	if evalue != "" {
		*val = cast.ToBool(evalue)
	}
}

// setEnvIntValue zeroes the target when the variable is not an integer so that
// Validate rejects it instead of silently running with the default.
func setEnvIntValue(name string, val *int) {
	evalue := strings.TrimSpace(os.Getenv(name))
	if evalue == "" {
		return
	}
	if v, err := cast.ToIntE(evalue); err == nil {
		*val = v
	} else {
		*val = 0
	}
}
