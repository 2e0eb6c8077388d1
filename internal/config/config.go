// Package config handles application configuration from environment variables and flags.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"gopkg.in/yaml.v3"

	"smm_boost/internal/model"
)

const defaultDatabasePath = "./data/boost.db"

// ErrHelp is returned by Load when usage was requested.
var ErrHelp = errors.New("help requested")

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string `long:"telegram-token" env:"TELEGRAM_BOT_TOKEN" description:"Telegram bot token, the operator bot is disabled when empty"`
	OperatorChatID   int64  `long:"operator-chat" env:"OPERATOR_CHAT_ID" description:"Chat that receives poll summaries"`
	AllowedUsersRaw  string `long:"allowed-users" env:"ALLOWED_USERS" description:"Comma separated Telegram user IDs allowed to operate the bot"`
	DatabasePath     string `long:"db" env:"DATABASE_PATH" default:"./data/boost.db" description:"Path to the SQLite database"`
	LogLevel         string `long:"log-level" env:"LOG_LEVEL" default:"info" description:"debug, info, warn or error"`
	ListenAddr       string `long:"listen" env:"LISTEN_ADDR" default:":8080" description:"Operator API listen address"`
	APIKey           string `long:"api-key" env:"API_KEY" description:"Operator API key, the API is disabled when empty"`

	PollInterval      time.Duration `long:"poll-interval" env:"POLL_INTERVAL" default:"15m" description:"Time between poll cycles"`
	PollErrorCooldown time.Duration `long:"poll-error-cooldown" env:"POLL_ERROR_COOLDOWN" default:"5m" description:"Wait after a failed poll cycle"`

	SMMAPIURL string `long:"smm-url" env:"SMM_API_URL" description:"SMM panel API endpoint"`
	SMMAPIKey string `long:"smm-key" env:"SMM_API_KEY" description:"SMM panel API key"`

	RSSAppURL       string `long:"rssapp-url" env:"RSSAPP_API_URL" default:"https://api.rss.app" description:"Feed provisioning API base URL"`
	RSSAppAPIKey    string `long:"rssapp-key" env:"RSSAPP_API_KEY" description:"Feed provisioning API key"`
	RSSAppAPISecret string `long:"rssapp-secret" env:"RSSAPP_API_SECRET" description:"Feed provisioning API secret"`

	FlowiseURL    string `long:"flowise-url" env:"FLOWISE_URL" description:"Comment generation prediction endpoint"`
	FlowiseAPIKey string `long:"flowise-key" env:"FLOWISE_API_KEY" description:"Comment generation API key"`

	ScreenshotEnabled    bool          `long:"screenshots" env:"SCREENSHOT_ENABLED" description:"Capture before/after screenshots"`
	ScreenshotAPIURL     string        `long:"screenshot-url" env:"SCREENSHOT_API_URL" description:"Screenshot service base URL"`
	GoLoginAPIKey        string        `long:"screenshot-key" env:"GOLOGIN_API_KEY" description:"Screenshot service API key"`
	ScreenshotProfiles   string        `long:"screenshot-profiles" env:"SCREENSHOT_PROFILES" description:"YAML file mapping platforms to browser profiles"`
	ScreenshotRetryDelay time.Duration `long:"screenshot-retry-delay" env:"SCREENSHOT_RETRY_DELAY" default:"5s" description:"Base delay between screenshot attempts"`

	AllowedUsers []int64 `no-flag:"true"`
}

// Load reads configuration from environment variables and command-line args.
func Load(args []string) (*Config, error) {
	var cfg Config
	parser := flags.NewParser(&cfg, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.ParseArgs(args); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			return nil, fmt.Errorf("%w: %s", ErrHelp, ferr.Message)
		}
		return nil, fmt.Errorf("parse configuration: %w", err)
	}

	if cfg.DatabasePath == "" {
		cfg.DatabasePath = defaultDatabasePath
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	users, err := parseUserIDs(cfg.AllowedUsersRaw)
	if err != nil {
		return nil, err
	}
	cfg.AllowedUsers = users
	return &cfg, nil
}

func parseUserIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		uid, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user ID %q in ALLOWED_USERS: %w", s, err)
		}
		ids = append(ids, uid)
	}
	return ids, nil
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	return len(c.AllowedUsers) == 0 || slices.Contains(c.AllowedUsers, userID)
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type profilesFile struct {
	Profiles map[string]string `yaml:"profiles"`
}

// LoadProfiles reads the platform to browser profile map used for screenshots.
// An empty path yields an empty map.
func LoadProfiles(path string) (map[model.Platform]string, error) {
	out := map[model.Platform]string{}
	if path == "" {
		return out, nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // operator supplied path
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	var pf profilesFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}
	for key, id := range pf.Profiles {
		p, err := model.ParsePlatform(key)
		if err != nil {
			return nil, fmt.Errorf("profiles: %w", err)
		}
		if id = strings.TrimSpace(id); id != "" {
			out[p] = id
		}
	}
	return out, nil
}
