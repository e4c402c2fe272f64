package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BrandonDHaskell/gatectl/internal/gate/types"
	"github.com/BrandonDHaskell/gatectl/internal/logging"
	"github.com/BrandonDHaskell/gatectl/internal/rf"
)

const DefaultPath = "gatectl.yml"

// Config is loaded once at startup and passed down explicitly. Nothing
// mutates it afterwards.
type Config struct {
	Site    string        `yaml:"site"`
	Log     LogConfig     `yaml:"log"`
	Status  StatusConfig  `yaml:"status"`
	Access  AccessConfig  `yaml:"access"`
	Gate    GateConfig    `yaml:"gate"`
	Modem   ModemConfig   `yaml:"modem"`
	Chat    ChatConfig    `yaml:"chat"`
	RF      RFConfig      `yaml:"rf"`
	Health  HealthConfig  `yaml:"health"`
	Signals SignalsConfig `yaml:"signals"`
	Sound   SoundConfig   `yaml:"sound"`
	OpLog   OpLogConfig   `yaml:"oplog"`
}

type LogConfig struct {
	Level         string `yaml:"level"`
	Format        string `yaml:"format"`
	File          string `yaml:"file"` // %s is replaced by the start date
	MaxFileSizeMB int64  `yaml:"max_file_size_mb"`
}

type StatusConfig struct {
	HTTPAddr string `yaml:"http_addr"` // empty disables
	GRPCAddr string `yaml:"grpc_addr"` // empty disables
}

type AccessConfig struct {
	PhoneWhitelist string            `yaml:"phone_whitelist"`
	ChatWhitelist  string            `yaml:"chat_whitelist"`
	CountryCode    string            `yaml:"country_code"`
	TrunkPrefix    string            `yaml:"trunk_prefix"`
	Lexicon        map[string]string `yaml:"lexicon"` // phrase -> action tag
}

type GateConfig struct {
	GatePin       string        `yaml:"gate_pin"`
	GateActiveLow bool          `yaml:"gate_active_low"`
	HoldPin       string        `yaml:"hold_pin"`
	HoldActiveLow bool          `yaml:"hold_active_low"`
	OpenDuration  time.Duration `yaml:"open_duration"`
	ResetHold     time.Duration `yaml:"reset_hold"`
	QueueSize     int           `yaml:"queue_size"`
}

type ModemConfig struct {
	Device         string        `yaml:"device"` // empty disables
	BaudRate       int           `yaml:"baud_rate"`
	PowerPin       string        `yaml:"power_pin"`
	PowerActiveLow bool          `yaml:"power_active_low"`
	HangupCommand  string        `yaml:"hangup_command"`
	PingInterval   time.Duration `yaml:"ping_interval"`
}

type ChatConfig struct {
	Token         string        `yaml:"token"` // empty disables
	BaseURL       string        `yaml:"base_url"`
	WatermarkFile string        `yaml:"watermark_file"`
	PollTimeout   time.Duration `yaml:"poll_timeout"`
	CheckInterval time.Duration `yaml:"check_interval"`
}

type RFConfig struct {
	Pin          string        `yaml:"pin"` // empty disables
	Protocol     int           `yaml:"protocol"`
	PulseRanges  []string      `yaml:"pulse_ranges"` // "330-340"
	CodeRanges   []string      `yaml:"code_ranges"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type HealthConfig struct {
	Interval       time.Duration `yaml:"interval"`
	MaxUSBFailures int           `yaml:"max_usb_failures"`
	MaxRestarts    int           `yaml:"max_restarts"`
	RequiredUSB    []string      `yaml:"required_usb"`
	ThermalPath    string        `yaml:"thermal_path"`
	RebootDelay    time.Duration `yaml:"reboot_delay"`
	RebootDryRun   bool          `yaml:"reboot_dry_run"`
}

type SignalsConfig struct {
	TriggerFile string `yaml:"trigger_file"`
	KillFile    string `yaml:"kill_file"`
}

type SoundConfig struct {
	Dir    string `yaml:"dir"` // empty disables
	Player string `yaml:"player"`
}

type OpLogConfig struct {
	File          string        `yaml:"file"`        // %s is replaced by the day
	SQLitePath    string        `yaml:"sqlite_path"` // empty disables
	RetentionDays int           `yaml:"retention_days"`
	PruneInterval time.Duration `yaml:"prune_interval"`
	Redis         RedisConfig   `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"` // empty disables
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	MaxLen   int64  `yaml:"max_len"`
}

// Default mirrors the stock deployment on a Raspberry Pi with a SIM800
// modem on the UART.
func Default() Config {
	return Config{
		Site: "gate",
		Log: LogConfig{
			Level:         "info",
			Format:        "text",
			File:          "logs/ctl_%s.log",
			MaxFileSizeMB: 100,
		},
		Status: StatusConfig{HTTPAddr: "127.0.0.1:8080"},
		Access: AccessConfig{
			PhoneWhitelist: "phone_whitelist.txt",
			ChatWhitelist:  "telegram_whitelist.txt",
			CountryCode:    "972",
			TrunkPrefix:    "0",
		},
		Gate: GateConfig{
			GatePin:      "GPIO16",
			HoldPin:      "GPIO20",
			OpenDuration: 2 * time.Second,
			ResetHold:    2 * time.Second,
			QueueSize:    32,
		},
		Modem: ModemConfig{
			Device:        "/dev/ttyS0",
			BaudRate:      115200,
			PowerPin:      "GPIO4",
			HangupCommand: "AT+CHUP",
			PingInterval:  2 * time.Minute,
		},
		Chat: ChatConfig{
			BaseURL:       "https://api.telegram.org",
			WatermarkFile: "telegram_last_msg_id.txt",
			PollTimeout:   time.Second,
			CheckInterval: time.Second,
		},
		RF: RFConfig{
			Pin:          "GPIO17",
			Protocol:     1,
			PulseRanges:  []string{"330-340"},
			CodeRanges:   []string{"2040-2050"},
			PollInterval: 10 * time.Millisecond,
		},
		Health: HealthConfig{
			Interval:       120 * time.Second,
			MaxUSBFailures: 4,
			MaxRestarts:    50,
			RequiredUSB:    []string{"148f:7601", "0403:6001"},
			RebootDelay:    20 * time.Second,
			RebootDryRun:   true,
		},
		Signals: SignalsConfig{TriggerFile: "GATEUP", KillFile: "KILLAPP"},
		Sound:   SoundConfig{Dir: "mp3", Player: "mpg321"},
		OpLog: OpLogConfig{
			File:          "logs/operation_%s.log",
			SQLitePath:    "./data/gatectl.db",
			RetentionDays: 365,
			PruneInterval: 6 * time.Hour,
		},
	}
}

// Load reads path over the defaults, applies GATECTL_* environment
// overrides and validates. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	c.Site = getenvDefault("GATECTL_SITE", c.Site)
	c.Log.Level = getenvDefault("GATECTL_LOG_LEVEL", c.Log.Level)
	c.Status.HTTPAddr = getenvDefault("GATECTL_STATUS_ADDR", c.Status.HTTPAddr)
	c.Status.GRPCAddr = getenvDefault("GATECTL_GRPC_ADDR", c.Status.GRPCAddr)
	c.Chat.Token = getenvDefault("GATECTL_CHAT_TOKEN", c.Chat.Token)
	c.Modem.Device = getenvDefault("GATECTL_MODEM_DEVICE", c.Modem.Device)
	c.OpLog.SQLitePath = getenvDefault("GATECTL_DB_PATH", c.OpLog.SQLitePath)
	c.OpLog.Redis.Addr = getenvDefault("GATECTL_REDIS_ADDR", c.OpLog.Redis.Addr)
	c.OpLog.RetentionDays = getenvInt("GATECTL_RETENTION_DAYS", c.OpLog.RetentionDays)
	c.Health.MaxUSBFailures = getenvInt("GATECTL_MAX_USB_FAILURES", c.Health.MaxUSBFailures)
	if ids := splitCSV(os.Getenv("GATECTL_REQUIRED_USB")); ids != nil {
		c.Health.RequiredUSB = ids
	}
	if v := strings.TrimSpace(os.Getenv("GATECTL_REBOOT_DRY_RUN")); v != "" {
		c.Health.RebootDryRun = strings.EqualFold(v, "true") || v == "1"
	}
}

// Validate performs strict validation on the configuration.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Site) == "" {
		errs = append(errs, errors.New("site is required"))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Access.PhoneWhitelist == "" || c.Access.ChatWhitelist == "" {
		errs = append(errs, errors.New("access.phone_whitelist and access.chat_whitelist are required"))
	}
	for phrase, tag := range c.Access.Lexicon {
		if _, err := types.ParseAction(tag); err != nil {
			errs = append(errs, fmt.Errorf("access.lexicon[%q]: %w", phrase, err))
		}
	}
	if c.Gate.GatePin != "" && c.Gate.GatePin == c.Gate.HoldPin {
		errs = append(errs, fmt.Errorf("gate.gate_pin and gate.hold_pin are both %s", c.Gate.GatePin))
	}
	for name, d := range map[string]time.Duration{
		"gate.open_duration":   c.Gate.OpenDuration,
		"gate.reset_hold":      c.Gate.ResetHold,
		"modem.ping_interval":  c.Modem.PingInterval,
		"chat.poll_timeout":    c.Chat.PollTimeout,
		"chat.check_interval":  c.Chat.CheckInterval,
		"rf.poll_interval":     c.RF.PollInterval,
		"health.interval":      c.Health.Interval,
		"health.reboot_delay":  c.Health.RebootDelay,
		"oplog.prune_interval": c.OpLog.PruneInterval,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must be >= 0, got %s", name, d))
		}
	}
	if c.Health.MaxUSBFailures < 0 || c.Health.MaxRestarts < 0 {
		errs = append(errs, errors.New("health thresholds must be >= 0 (0 = disabled)"))
	}
	if c.OpLog.RetentionDays < 0 {
		errs = append(errs, fmt.Errorf("oplog.retention_days must be >= 0, got %d", c.OpLog.RetentionDays))
	}
	if c.RF.Pin != "" {
		if _, err := c.RF.Fingerprint(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Fingerprint parses the configured ranges.
func (r RFConfig) Fingerprint() (rf.Fingerprint, error) {
	fp := rf.Fingerprint{Protocol: r.Protocol}
	for _, s := range r.PulseRanges {
		rg, err := rf.ParseRange(s)
		if err != nil {
			return rf.Fingerprint{}, fmt.Errorf("rf.pulse_ranges: %w", err)
		}
		fp.PulseRanges = append(fp.PulseRanges, rg)
	}
	for _, s := range r.CodeRanges {
		rg, err := rf.ParseRange(s)
		if err != nil {
			return rf.Fingerprint{}, fmt.Errorf("rf.code_ranges: %w", err)
		}
		fp.CodeRanges = append(fp.CodeRanges, rg)
	}
	if err := fp.Validate(); err != nil {
		return rf.Fingerprint{}, err
	}
	return fp, nil
}

// LexiconPhrases returns the configured lexicon, or nil to use the stock
// one.
func (a AccessConfig) LexiconPhrases() map[string]string {
	if len(a.Lexicon) == 0 {
		return nil
	}
	return a.Lexicon
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func splitCSV(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
