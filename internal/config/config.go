package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/patrickjm/shopbot/internal/order"
)

type Timeouts struct {
	Navigation       time.Duration
	Search           time.Duration
	Variant          time.Duration
	Action           time.Duration
	Popup            time.Duration
	ViewCart         time.Duration
	ViewCartAlt      time.Duration
	Checkout         time.Duration
	Field            time.Duration
	Confirmation     time.Duration
	ConfirmationText time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Navigation:       30 * time.Second,
		Search:           10 * time.Second,
		Variant:          5 * time.Second,
		Action:           5 * time.Second,
		Popup:            3 * time.Second,
		ViewCart:         5 * time.Second,
		ViewCartAlt:      3 * time.Second,
		Checkout:         8 * time.Second,
		Field:            5 * time.Second,
		Confirmation:     15 * time.Second,
		ConfirmationText: 10 * time.Second,
	}
}

type Config struct {
	WebsiteURL                string
	Engine                    string
	Browser                   string
	Headless                  bool
	Stealth                   bool
	DataDir                   string
	SelectorsFile             string
	MaxSearchAttempts         int
	InteractiveSearchAttempts int
	Timeouts                  Timeouts
}

type rawConfig struct {
	WebsiteURL                string      `toml:"website_url"`
	Engine                    string      `toml:"engine"`
	Browser                   string      `toml:"browser"`
	Headless                  *bool       `toml:"headless"`
	Stealth                   *bool       `toml:"stealth"`
	DataDir                   string      `toml:"data_dir"`
	SelectorsFile             string      `toml:"selectors_file"`
	MaxSearchAttempts         *int        `toml:"max_search_attempts"`
	InteractiveSearchAttempts *int        `toml:"interactive_search_attempts"`
	Timeouts                  rawTimeouts `toml:"timeouts"`
}

type rawTimeouts struct {
	Navigation       string `toml:"navigation"`
	Search           string `toml:"search"`
	Variant          string `toml:"variant"`
	Action           string `toml:"action"`
	Popup            string `toml:"popup"`
	ViewCart         string `toml:"view_cart"`
	ViewCartAlt      string `toml:"view_cart_alt"`
	Checkout         string `toml:"checkout"`
	Field            string `toml:"field"`
	Confirmation     string `toml:"confirmation"`
	ConfirmationText string `toml:"confirmation_text"`
}

func Default() Config {
	return Config{
		WebsiteURL:        order.DefaultWebsiteURL,
		Engine:            "playwright",
		Browser:           "chromium",
		Headless:          true,
		DataDir:           defaultDataDir(),
		MaxSearchAttempts: 3,
		Timeouts:          DefaultTimeouts(),
	}
}

var systemPaths = []string{
	"/opt/homebrew/etc/shopbot/config.toml",
	"/usr/local/etc/shopbot/config.toml",
	"/etc/shopbot/config.toml",
}

// Load layers defaults, the config file (path, or the first system path
// that exists), SHOPBOT_* environment variables and finally dataDirOverride.
func Load(path string, dataDirOverride string) (Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) != "" {
		if err := loadFile(&cfg, path); err != nil {
			return Config{}, err
		}
	} else if err := loadSystemConfig(&cfg); err != nil {
		return Config{}, err
	}

	applyEnv(&cfg)

	if strings.TrimSpace(dataDirOverride) != "" {
		cfg.DataDir = dataDirOverride
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// validate rejects attempt limits the flow cannot honor. Only interactive
// searches may be unbounded, because only an operator can stop them.
func (c Config) validate() error {
	if c.MaxSearchAttempts < 1 {
		return fmt.Errorf("max_search_attempts must be at least 1, got %d", c.MaxSearchAttempts)
	}
	if c.InteractiveSearchAttempts < 0 {
		return fmt.Errorf("interactive_search_attempts must not be negative, got %d", c.InteractiveSearchAttempts)
	}
	return nil
}

func loadSystemConfig(cfg *Config) error {
	for _, path := range systemPaths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		return loadFile(cfg, path)
	}
	return nil
}

func loadFile(cfg *Config, path string) error {
	var raw rawConfig
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return err
	}
	if raw.WebsiteURL != "" {
		cfg.WebsiteURL = raw.WebsiteURL
	}
	if raw.Engine != "" {
		cfg.Engine = raw.Engine
	}
	if raw.Browser != "" {
		cfg.Browser = raw.Browser
	}
	if raw.Headless != nil {
		cfg.Headless = *raw.Headless
	}
	if raw.Stealth != nil {
		cfg.Stealth = *raw.Stealth
	}
	if raw.DataDir != "" {
		cfg.DataDir = raw.DataDir
	}
	if raw.SelectorsFile != "" {
		cfg.SelectorsFile = raw.SelectorsFile
	}
	if raw.MaxSearchAttempts != nil {
		cfg.MaxSearchAttempts = *raw.MaxSearchAttempts
	}
	if raw.InteractiveSearchAttempts != nil {
		cfg.InteractiveSearchAttempts = *raw.InteractiveSearchAttempts
	}
	applyTimeouts(&cfg.Timeouts, raw.Timeouts)
	return nil
}

func applyTimeouts(t *Timeouts, raw rawTimeouts) {
	set := func(dst *time.Duration, v string) {
		if v == "" {
			return
		}
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			*dst = d
		}
	}
	set(&t.Navigation, raw.Navigation)
	set(&t.Search, raw.Search)
	set(&t.Variant, raw.Variant)
	set(&t.Action, raw.Action)
	set(&t.Popup, raw.Popup)
	set(&t.ViewCart, raw.ViewCart)
	set(&t.ViewCartAlt, raw.ViewCartAlt)
	set(&t.Checkout, raw.Checkout)
	set(&t.Field, raw.Field)
	set(&t.Confirmation, raw.Confirmation)
	set(&t.ConfirmationText, raw.ConfirmationText)
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("SHOPBOT_WEBSITE_URL")); v != "" {
		cfg.WebsiteURL = v
	}
	if v := strings.TrimSpace(os.Getenv("SHOPBOT_ENGINE")); v != "" {
		cfg.Engine = v
	}
	if v := strings.TrimSpace(os.Getenv("SHOPBOT_DATA_DIR")); v != "" {
		cfg.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv("SHOPBOT_SELECTORS_FILE")); v != "" {
		cfg.SelectorsFile = v
	}
	if v := strings.TrimSpace(os.Getenv("SHOPBOT_HEADLESS")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Headless = b
		}
	}
	if v := strings.TrimSpace(os.Getenv("SHOPBOT_MAX_SEARCH_ATTEMPTS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxSearchAttempts = n
		}
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/shopbot"
	}
	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", "shopbot")
	}
	if xdg := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); xdg != "" {
		return filepath.Join(xdg, "shopbot")
	}
	return filepath.Join(home, ".local", "share", "shopbot")
}
