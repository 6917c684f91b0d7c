package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Default session budgets, used whenever configuration is missing or unusable
const (
	DefaultRunMinutes   = 15
	DefaultGraceMinutes = 5
)

// Config represents the application configuration
type Config struct {
	Harvest   HarvestConfig   `toml:"harvest"`
	Store     StoreConfig     `toml:"store"`
	Journal   JournalConfig   `toml:"journal"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Browser   BrowserConfig   `toml:"browser"`
	Extractor ExtractorConfig `toml:"extractor"`
	Recovery  RecoveryConfig  `toml:"recovery"`
	Listing   ListingConfig   `toml:"listing"`
	Logging   LoggingConfig   `toml:"logging"`
}

// HarvestConfig holds the session budget and per-record attempt ceilings
type HarvestConfig struct {
	RunMinutes         int    `toml:"run_minutes" validate:"gte=0"`           // Wall-clock run budget
	GraceMinutes       int    `toml:"grace_minutes" validate:"gte=0"`         // Soft extension for in-flight work
	MaxMedia           int    `toml:"max_media" validate:"gte=1,lte=20"`      // Media references kept per record
	MediaAttempts      int    `toml:"media_attempts" validate:"gte=1,lte=20"` // Ceiling for records without media
	DetailAttempts     int    `toml:"detail_attempts" validate:"gte=1,lte=20"`
	MaxDetailFragments int    `toml:"max_detail_fragments" validate:"gte=1,lte=100"`
	MaxUnreachable     int    `toml:"max_unreachable" validate:"gte=1"`
	DetailWait         string `toml:"detail_wait"` // e.g. "10s" - how long to wait for the detail container
	Schedule           string `toml:"schedule"`    // Optional cron expression for recurring sessions
}

// StoreConfig points at the record file
type StoreConfig struct {
	Path string `toml:"path" validate:"required"`
}

// JournalConfig controls the badger-backed session history
type JournalConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// MetricsConfig controls the node-exporter textfile written after each session
type MetricsConfig struct {
	Textfile string `toml:"textfile"` // Empty disables metrics export
}

// BrowserConfig configures the chromedp rendering surface
type BrowserConfig struct {
	Headless          bool    `toml:"headless"`
	NoSandbox         bool    `toml:"no_sandbox"`
	DisableGPU        bool    `toml:"disable_gpu"`
	UserAgent         string  `toml:"user_agent"`
	WindowWidth       int     `toml:"window_width"`
	WindowHeight      int     `toml:"window_height"`
	AcceptLanguage    string  `toml:"accept_language"`
	PageWait          string  `toml:"page_wait"`                            // e.g. "3s" - settle time after navigate/reload
	ClickSettle       string  `toml:"click_settle"`                         // e.g. "2s" - settle time after a simulated click
	NavigationTimeout string  `toml:"navigation_timeout"`                   // e.g. "60s"
	RequestsPerSecond float64 `toml:"requests_per_second" validate:"gte=0"` // Navigation/reload rate, 0 = unlimited
}

// ExtractorConfig is the site layout knowledge consumed by the field extractor
type ExtractorConfig struct {
	PrimarySelectors   []string `toml:"primary_selectors"`
	BackgroundSelector string   `toml:"background_selector"`
	GallerySelector    string   `toml:"gallery_selector"`
	ThumbnailSelectors []string `toml:"thumbnail_selectors"` // Fallback chain, first non-empty match wins
	VideoMarkers       []string `toml:"video_markers"`       // Class or markup fragments identifying video thumbnails
	MediaPrefix        string   `toml:"media_prefix"`
	MediaSuffixes      []string `toml:"media_suffixes"`
	DetailContainer    string   `toml:"detail_container"`
	DetailItemSelector string   `toml:"detail_item_selector"` // Must contain one %d for the 1-based position
}

// RecoveryConfig describes the interstitial the recovery policy dismisses
type RecoveryConfig struct {
	InterstitialSelector string `toml:"interstitial_selector"`
	DismissSelector      string `toml:"dismiss_selector"` // Empty means click the interstitial marker itself
}

// ListingConfig configures the listing page harvester
type ListingConfig struct {
	URL               string   `toml:"url"`
	BaseURL           string   `toml:"base_url"`
	PageParam         string   `toml:"page_param"`
	MaxPages          int      `toml:"max_pages" validate:"gte=0"`
	EmptyPageLimit    int      `toml:"empty_page_limit" validate:"gte=1"`
	ResultSelector    string   `toml:"result_selector"`
	TitleSelector     string   `toml:"title_selector"`
	PriceWhole        string   `toml:"price_whole_selector"`
	PriceFraction     string   `toml:"price_fraction_selector"`
	LinkSelector      string   `toml:"link_selector"`
	SponsoredMarker   string   `toml:"sponsored_marker"`
	MinNameLength     int      `toml:"min_name_length"`
	RejectNameMarkers []string `toml:"reject_name_markers"`
}

// LoggingConfig configures arbor writers
type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
	File   string   `toml:"file"`   // Log file path when "file" output is enabled
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Harvest: HarvestConfig{
			RunMinutes:         DefaultRunMinutes,
			GraceMinutes:       DefaultGraceMinutes,
			MaxMedia:           5,
			MediaAttempts:      5,
			DetailAttempts:     5,
			MaxDetailFragments: 19,
			DetailWait:         "10s",
			MaxUnreachable:     3,
		},
		Store: StoreConfig{
			Path: "./mobile_phones.json",
		},
		Journal: JournalConfig{
			Enabled: true,
			Path:    "./data/journal",
		},
		Browser: BrowserConfig{
			Headless:          true,
			NoSandbox:         true,
			DisableGPU:        true,
			UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			WindowWidth:       1920,
			WindowHeight:      1080,
			AcceptLanguage:    "en-US,en;q=0.9",
			PageWait:          "3s",
			ClickSettle:       "2s",
			NavigationTimeout: "60s",
			RequestsPerSecond: 0.5,
		},
		Extractor: ExtractorConfig{
			PrimarySelectors:   []string{".imgTagWrapper img, #landingImage, #imgTagWrapperId img", "#imgTagWrapperId > img"},
			BackgroundSelector: "div.ivThumbImage",
			GallerySelector:    "#altImages ul li span span div img",
			ThumbnailSelectors: []string{"#altImages .item, .image-block .a-list-item", "#altImages .item", ".image-block .a-list-item"},
			VideoMarkers:       []string{"videoThumbnail", "videoBlockIngress", "a-icon-video", "video-count"},
			MediaPrefix:        "https://m.media-amazon.com/images/I/",
			MediaSuffixes:      []string{"SX679_.jpg"},
			DetailContainer:    "#feature-bullets",
			DetailItemSelector: "#feature-bullets ul > li:nth-of-type(%d) > span",
		},
		Recovery: RecoveryConfig{
			InterstitialSelector: "button[alt='Continue shopping'], a#continue-shopping",
		},
		Listing: ListingConfig{
			BaseURL:           "https://www.amazon.in",
			PageParam:         "page",
			MaxPages:          0,
			EmptyPageLimit:    3,
			ResultSelector:    "div[data-component-type='s-search-result']",
			TitleSelector:     "h2",
			PriceWhole:        "span.a-price-whole",
			PriceFraction:     "span.a-price-fraction",
			LinkSelector:      "a.a-link-normal[href]",
			SponsoredMarker:   "Sponsored Ad",
			MinNameLength:     5,
			RejectNameMarkers: []string{"on select bank cards", "offer"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
			File:   "./logs/harvester.log",
		},
	}
}

// LoadFromFiles loads configuration with priority: default -> file1 -> file2 -> ... -> .env -> env
// Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	// .env is optional; a missing file is not an error
	_ = godotenv.Load()

	applyEnvOverrides(config)

	return config, nil
}

// LoadOrDefault loads configuration like LoadFromFiles. When a file cannot be
// read or parsed it returns the defaults (with environment overrides) together
// with the load error, so callers can warn and carry on.
func LoadOrDefault(paths ...string) (*Config, error) {
	config, err := LoadFromFiles(paths...)
	if err == nil {
		return config, nil
	}

	config = NewDefaultConfig()
	applyEnvOverrides(config)
	return config, err
}

// applyEnvOverrides applies HARVESTER_* environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("HARVESTER_RUN_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Harvest.RunMinutes = n
		}
	}
	if v := os.Getenv("HARVESTER_GRACE_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Harvest.GraceMinutes = n
		}
	}
	if v := os.Getenv("HARVESTER_SCHEDULE"); v != "" {
		config.Harvest.Schedule = v
	}
	if v := os.Getenv("HARVESTER_STORE_PATH"); v != "" {
		config.Store.Path = v
	}
	if v := os.Getenv("HARVESTER_JOURNAL_PATH"); v != "" {
		config.Journal.Path = v
	}
	if v := os.Getenv("HARVESTER_METRICS_TEXTFILE"); v != "" {
		config.Metrics.Textfile = v
	}
	if v := os.Getenv("HARVESTER_HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.Browser.Headless = b
		}
	}
	if v := os.Getenv("HARVESTER_USER_AGENT"); v != "" {
		config.Browser.UserAgent = v
	}
	if v := os.Getenv("HARVESTER_LISTING_URL"); v != "" {
		config.Listing.URL = v
	}
	if v := os.Getenv("HARVESTER_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("HARVESTER_LOG_OUTPUT"); v != "" {
		var outputs []string
		for _, o := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// RunBudget returns the configured run window
func (h HarvestConfig) RunBudget() time.Duration {
	return time.Duration(h.RunMinutes) * time.Minute
}

// GraceBudget returns the configured grace window
func (h HarvestConfig) GraceBudget() time.Duration {
	return time.Duration(h.GraceMinutes) * time.Minute
}

// ParseDuration parses a duration string, returning fallback when empty or invalid
func ParseDuration(value string, fallback time.Duration) time.Duration {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}
