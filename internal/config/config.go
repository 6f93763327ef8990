// Package config provides configuration types and defaults for macropulse.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/macropulse/macropulse/internal/log"
	"github.com/macropulse/macropulse/internal/paths"
)

// Config holds all configuration options for macropulse.
type Config struct {
	Paths        PathsConfig        `mapstructure:"paths" yaml:"paths"`
	Publish      PublishConfig      `mapstructure:"publish" yaml:"publish"`
	Fetch        FetchConfig        `mapstructure:"fetch" yaml:"fetch"`
	Catalog      []SeriesConfig     `mapstructure:"catalog" yaml:"catalog"`
	Signal       SignalConfig       `mapstructure:"signal" yaml:"signal"`
	Judgment     JudgmentConfig     `mapstructure:"judgment" yaml:"judgment"`
	Brief        BriefConfig        `mapstructure:"brief" yaml:"brief"`
	Distribution DistributionConfig `mapstructure:"distribution" yaml:"distribution"`
	Store        StoreConfig        `mapstructure:"store" yaml:"store"`
	Tracing      TracingConfig      `mapstructure:"tracing" yaml:"tracing"`
	Flags        map[string]bool    `mapstructure:"flags" yaml:"flags"`
}

// PathsConfig holds every filesystem location the pipeline touches.
// Relative entries are resolved against Root, never against the working directory.
type PathsConfig struct {
	Root      string `mapstructure:"root" yaml:"root"`
	CacheDir  string `mapstructure:"cache_dir" yaml:"cache_dir"`
	StateDB   string `mapstructure:"state_db" yaml:"state_db"`
	LockFile  string `mapstructure:"lock_file" yaml:"lock_file"`
	LogFile   string `mapstructure:"log_file" yaml:"log_file"`
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir"`
}

// PublishConfig locates the published artifact.
type PublishConfig struct {
	Path string `mapstructure:"path" yaml:"path"` // e.g. data/latest.json
}

// FetchConfig tunes upstream retrieval.
type FetchConfig struct {
	Start        string        `mapstructure:"start" yaml:"start"` // YYYY-MM-DD
	CacheMaxAge  time.Duration `mapstructure:"cache_max_age" yaml:"cache_max_age"`
	Concurrency  int           `mapstructure:"concurrency" yaml:"concurrency"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxAttempts  int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	UserAgent    string        `mapstructure:"user_agent" yaml:"user_agent"`
	FREDBaseURL  string        `mapstructure:"fred_base_url" yaml:"fred_base_url"`
	FREDCSVURL   string        `mapstructure:"fred_csv_url" yaml:"fred_csv_url"`
	YahooBaseURL string        `mapstructure:"yahoo_base_url" yaml:"yahoo_base_url"`
}

// SeriesConfig binds one indicator key to an upstream series.
type SeriesConfig struct {
	Key            string  `mapstructure:"key" yaml:"key"`
	Source         string  `mapstructure:"source" yaml:"source"` // fred, yahoo, static
	ID             string  `mapstructure:"id" yaml:"id,omitempty"`
	Frequency      string  `mapstructure:"frequency" yaml:"frequency"` // daily, weekly, monthly
	Unit           string  `mapstructure:"unit" yaml:"unit,omitempty"` // "" or millions
	Value          float64 `mapstructure:"value" yaml:"value,omitempty"`
	Required       bool    `mapstructure:"required" yaml:"required,omitempty"`
	FallbackSource string  `mapstructure:"fallback_source" yaml:"fallback_source,omitempty"`
	FallbackID     string  `mapstructure:"fallback_id" yaml:"fallback_id,omitempty"`
}

// SignalConfig holds the rolling-window parameters for the signal panel.
type SignalConfig struct {
	ChangeWindows        []int `mapstructure:"change_windows" yaml:"change_windows"`
	ZScoreWindow         int   `mapstructure:"zscore_window" yaml:"zscore_window"`
	ZScoreMinPeriods     int   `mapstructure:"zscore_min_periods" yaml:"zscore_min_periods"`
	PercentileWindow     int   `mapstructure:"percentile_window" yaml:"percentile_window"`
	PercentileMinPeriods int   `mapstructure:"percentile_min_periods" yaml:"percentile_min_periods"`
}

// JudgmentConfig holds the regime rule thresholds.
type JudgmentConfig struct {
	NetLiqWeakThreshold5d        float64 `mapstructure:"net_liq_weak_threshold_5d" yaml:"net_liq_weak_threshold_5d"`   // billions
	SOFRStressThreshold5dBps     float64 `mapstructure:"sofr_stress_threshold_5d" yaml:"sofr_stress_threshold_5d"`     // bps
	VIXStressThreshold           float64 `mapstructure:"vix_stress_threshold" yaml:"vix_stress_threshold"`             // level
	MoveZScoreStress             float64 `mapstructure:"move_zscore_stress" yaml:"move_zscore_stress"`                 // z
	USDJPYStressThreshold5d      float64 `mapstructure:"usdjpy_stress_threshold_5d" yaml:"usdjpy_stress_threshold_5d"` // yen
	CarrySpreadNarrowThreshold5d float64 `mapstructure:"carry_spread_narrow_threshold_5d" yaml:"carry_spread_narrow_threshold_5d"`
	HYOASWidenThreshold5dBps     float64 `mapstructure:"hy_oas_widen_threshold_5d" yaml:"hy_oas_widen_threshold_5d"`
	SPXWeakThreshold5d           float64 `mapstructure:"spx_weak_threshold_5d" yaml:"spx_weak_threshold_5d"` // fraction
	MinConfirmations             int     `mapstructure:"min_confirmations" yaml:"min_confirmations"`
	StaleDays                    int     `mapstructure:"stale_days" yaml:"stale_days"`
}

// BriefConfig configures the daily brief (reduced pipeline).
type BriefConfig struct {
	Enabled      bool           `mapstructure:"enabled" yaml:"enabled"`
	Indices      []IndexConfig  `mapstructure:"indices" yaml:"indices"`
	Movers       MoversConfig   `mapstructure:"movers" yaml:"movers"`
	News         NewsConfig     `mapstructure:"news" yaml:"news"`
	Analysis     AnalysisConfig `mapstructure:"analysis" yaml:"analysis"`
	SnapshotKeep int            `mapstructure:"snapshot_keep" yaml:"snapshot_keep"`
}

// IndexConfig describes one market index tracked by the brief.
type IndexConfig struct {
	Symbol   string `mapstructure:"symbol" yaml:"symbol"`
	Name     string `mapstructure:"name" yaml:"name"`
	Market   string `mapstructure:"market" yaml:"market"`
	Timezone string `mapstructure:"timezone" yaml:"timezone"`
	Open     string `mapstructure:"open" yaml:"open"`   // HH:MM local
	Close    string `mapstructure:"close" yaml:"close"` // HH:MM local
	Currency string `mapstructure:"currency" yaml:"currency"`
}

// StockConfig is one watchlist entry.
type StockConfig struct {
	Symbol string `mapstructure:"symbol" yaml:"symbol"`
	Name   string `mapstructure:"name" yaml:"name"`
}

// MoversConfig configures star-stock mover detection.
type MoversConfig struct {
	Markets      []string                 `mapstructure:"markets" yaml:"markets"`
	TopN         int                      `mapstructure:"top_n" yaml:"top_n"`
	MinChangePct float64                  `mapstructure:"min_change_pct" yaml:"min_change_pct"`
	Watchlist    map[string][]StockConfig `mapstructure:"watchlist" yaml:"watchlist"`
}

// NewsConfig configures news aggregation.
type NewsConfig struct {
	TopN        int      `mapstructure:"top_n" yaml:"top_n"`
	MaxArticles int      `mapstructure:"max_articles" yaml:"max_articles"`
	SearchLimit int      `mapstructure:"search_limit" yaml:"search_limit"`
	Keywords    []string `mapstructure:"keywords" yaml:"keywords"`
	Topics      []string `mapstructure:"topics" yaml:"topics"`
	RSSBaseURL  string   `mapstructure:"rss_base_url" yaml:"rss_base_url"`
}

// AnalysisConfig configures LLM commentary.
type AnalysisConfig struct {
	Provider string        `mapstructure:"provider" yaml:"provider"` // gemini or none
	Model    string        `mapstructure:"model" yaml:"model"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// DistributionConfig configures how a published artifact leaves the machine.
type DistributionConfig struct {
	Enabled        bool     `mapstructure:"enabled" yaml:"enabled"`
	Driver         string   `mapstructure:"driver" yaml:"driver"` // exec or gogit
	RepoDir        string   `mapstructure:"repo_dir" yaml:"repo_dir"`
	Remote         string   `mapstructure:"remote" yaml:"remote"`
	Branch         string   `mapstructure:"branch" yaml:"branch"`
	AuthorName     string   `mapstructure:"author_name" yaml:"author_name"`
	AuthorEmail    string   `mapstructure:"author_email" yaml:"author_email"`
	CommitTemplate string   `mapstructure:"commit_template" yaml:"commit_template"`
	S3             S3Config `mapstructure:"s3" yaml:"s3"`
}

// S3Config configures the optional object-store mirror.
type S3Config struct {
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	Region   string `mapstructure:"region" yaml:"region"`
	Bucket   string `mapstructure:"bucket" yaml:"bucket"`
	Prefix   string `mapstructure:"prefix" yaml:"prefix"`
	UseSSL   bool   `mapstructure:"use_ssl" yaml:"use_ssl"`
}

// StoreConfig selects the run-history backend.
type StoreConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"` // sqlite or postgres
	DSN    string `mapstructure:"dsn" yaml:"-"`         // postgres only; usually MACROPULSE_STORE_DSN
}

// TracingConfig holds distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether tracing is active.
	// Default: false
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Exporter selects the trace export backend.
	// Options: "none", "file", "stdout", "otlp"
	// Default: "file"
	Exporter string `mapstructure:"exporter" yaml:"exporter"`

	// FilePath is the output file for "file" exporter.
	// Default: <root>/.macropulse/traces.jsonl
	FilePath string `mapstructure:"file_path" yaml:"file_path"`

	// OTLPEndpoint is the collector endpoint for "otlp" exporter.
	// Default: "localhost:4317"
	OTLPEndpoint string `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`

	// SampleRate controls trace sampling (0.0 to 1.0).
	// Default: 1.0
	SampleRate float64 `mapstructure:"sample_rate" yaml:"sample_rate"`
}

// Secrets are read from the environment only. They never round-trip
// through the config file.
type Secrets struct {
	FREDAPIKey     string
	AnalysisAPIKey string
	GitToken       string
	S3AccessKey    string
	S3SecretKey    string
}

// Environment variable names for Secrets.
const (
	EnvFREDAPIKey     = "FRED_API_KEY"
	EnvAnalysisAPIKey = "ANALYSIS_API_KEY"
	EnvGitToken       = "GIT_TOKEN"
	EnvS3AccessKey    = "S3_ACCESS_KEY"
	EnvS3SecretKey    = "S3_SECRET_KEY"
)

// LoadSecrets reads Secrets from the process environment.
func LoadSecrets() Secrets {
	return Secrets{
		FREDAPIKey:     os.Getenv(EnvFREDAPIKey),
		AnalysisAPIKey: os.Getenv(EnvAnalysisAPIKey),
		GitToken:       os.Getenv(EnvGitToken),
		S3AccessKey:    os.Getenv(EnvS3AccessKey),
		S3SecretKey:    os.Getenv(EnvS3SecretKey),
	}
}

// Layout is PathsConfig with every entry resolved to an absolute path.
type Layout struct {
	Root      string
	CacheDir  string
	StateDB   string
	LockFile  string
	LogFile   string
	OutputDir string
	Artifact  string
	TraceFile string
}

// ResolveLayout resolves all configured paths against Paths.Root.
func (c Config) ResolveLayout() (Layout, error) {
	root, err := paths.ResolveRoot(c.Paths.Root)
	if err != nil {
		return Layout{}, err
	}
	resolve := func(field, p string) (string, error) {
		out, err := paths.Resolve(root, p)
		if err != nil {
			return "", fmt.Errorf("paths.%s: %w", field, err)
		}
		return out, nil
	}

	var l Layout
	l.Root = root
	if l.CacheDir, err = resolve("cache_dir", c.Paths.CacheDir); err != nil {
		return Layout{}, err
	}
	if l.StateDB, err = resolve("state_db", c.Paths.StateDB); err != nil {
		return Layout{}, err
	}
	if l.LockFile, err = resolve("lock_file", c.Paths.LockFile); err != nil {
		return Layout{}, err
	}
	if l.LogFile, err = resolve("log_file", c.Paths.LogFile); err != nil {
		return Layout{}, err
	}
	if l.OutputDir, err = resolve("output_dir", c.Paths.OutputDir); err != nil {
		return Layout{}, err
	}
	if l.Artifact, err = resolve("publish.path", c.Publish.Path); err != nil {
		return Layout{}, err
	}
	if l.TraceFile, err = resolve("tracing.file_path", c.Tracing.FilePath); err != nil {
		return Layout{}, err
	}
	return l, nil
}

// RepoDir returns the distribution repository directory, defaulting to the root.
func (c Config) RepoDir(l Layout) (string, error) {
	if c.Distribution.RepoDir == "" {
		return l.Root, nil
	}
	return paths.Resolve(l.Root, c.Distribution.RepoDir)
}

// DefaultCatalog returns the series catalog used when the config has none.
func DefaultCatalog() []SeriesConfig {
	return []SeriesConfig{
		{Key: "fed_total_assets", Source: "fred", ID: "WALCL", Frequency: "weekly", Unit: "millions", Required: true},
		{Key: "tga_balance", Source: "fred", ID: "WTREGEN", Frequency: "weekly", Unit: "millions", Required: true},
		{Key: "on_rrp", Source: "fred", ID: "RRPONTSYD", Frequency: "daily", Required: true},
		{Key: "sofr", Source: "fred", ID: "SOFR", Frequency: "daily"},
		{Key: "hy_oas", Source: "fred", ID: "BAMLH0A0HYM2", Frequency: "daily"},
		{Key: "vix", Source: "fred", ID: "VIXCLS", Frequency: "daily"},
		{Key: "us2y", Source: "fred", ID: "DGS2", Frequency: "daily"},
		{Key: "us10y", Source: "fred", ID: "DGS10", Frequency: "daily"},
		{Key: "dxy", Source: "fred", ID: "DTWEXBGS", Frequency: "daily"},
		{Key: "usdjpy", Source: "yahoo", ID: "JPY=X", Frequency: "daily", FallbackSource: "fred", FallbackID: "DEXJPUS"},
		{Key: "spx", Source: "yahoo", ID: "^GSPC", Frequency: "daily"},
		{Key: "btc", Source: "yahoo", ID: "BTC-USD", Frequency: "daily"},
		{Key: "jp2y", Source: "static", Frequency: "monthly", Value: 0.5},
	}
}

// DefaultIndices returns the brief's default market indices.
func DefaultIndices() []IndexConfig {
	return []IndexConfig{
		{Symbol: "^NDX", Name: "Nasdaq 100", Market: "US", Timezone: "America/New_York", Open: "09:30", Close: "16:00", Currency: "USD"},
		{Symbol: "000300.SS", Name: "CSI 300", Market: "CN", Timezone: "Asia/Shanghai", Open: "09:30", Close: "15:00", Currency: "CNY"},
		{Symbol: "^HSTECH", Name: "Hang Seng Tech", Market: "HK", Timezone: "Asia/Hong_Kong", Open: "09:30", Close: "16:00", Currency: "HKD"},
		{Symbol: "000001.SS", Name: "SSE Composite", Market: "CN", Timezone: "Asia/Shanghai", Open: "09:30", Close: "15:00", Currency: "CNY"},
		{Symbol: "BTC-USD", Name: "Bitcoin", Market: "CRYPTO", Timezone: "UTC", Currency: "USD"},
	}
}

// DefaultWatchlist returns the star-stock watchlist per market.
func DefaultWatchlist() map[string][]StockConfig {
	return map[string][]StockConfig{
		"US": {
			{Symbol: "NVDA", Name: "NVIDIA"}, {Symbol: "AAPL", Name: "Apple"}, {Symbol: "MSFT", Name: "Microsoft"},
			{Symbol: "GOOGL", Name: "Google"}, {Symbol: "AMZN", Name: "Amazon"}, {Symbol: "META", Name: "Meta"},
			{Symbol: "TSLA", Name: "Tesla"}, {Symbol: "TSM", Name: "TSMC"}, {Symbol: "AVGO", Name: "Broadcom"},
			{Symbol: "AMD", Name: "AMD"}, {Symbol: "NFLX", Name: "Netflix"}, {Symbol: "COIN", Name: "Coinbase"},
			{Symbol: "PLTR", Name: "Palantir"}, {Symbol: "MSTR", Name: "MicroStrategy"}, {Symbol: "ARM", Name: "ARM Holdings"},
		},
		"HK": {
			{Symbol: "9988.HK", Name: "Alibaba"}, {Symbol: "0700.HK", Name: "Tencent"}, {Symbol: "3690.HK", Name: "Meituan"},
			{Symbol: "9618.HK", Name: "JD.com"}, {Symbol: "1810.HK", Name: "Xiaomi"}, {Symbol: "9888.HK", Name: "Baidu"},
		},
		"CN": {
			{Symbol: "600519.SS", Name: "Kweichow Moutai"}, {Symbol: "300750.SZ", Name: "CATL"},
			{Symbol: "601318.SS", Name: "Ping An"}, {Symbol: "002594.SZ", Name: "BYD"}, {Symbol: "600036.SS", Name: "China Merchants Bank"},
		},
	}
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Paths: PathsConfig{
			Root:      ".",
			CacheDir:  ".macropulse/cache",
			StateDB:   ".macropulse/state.db",
			LockFile:  ".macropulse/run.lock",
			LogFile:   ".macropulse/macropulse.log",
			OutputDir: "output",
		},
		Publish: PublishConfig{
			Path: "data/latest.json",
		},
		Fetch: FetchConfig{
			Start:        "2020-01-01",
			CacheMaxAge:  12 * time.Hour,
			Concurrency:  4,
			Timeout:      30 * time.Second,
			MaxAttempts:  3,
			UserAgent:    "Mozilla/5.0 (compatible; macropulse/1.0)",
			FREDBaseURL:  "https://api.stlouisfed.org/fred/series/observations",
			FREDCSVURL:   "https://fred.stlouisfed.org/graph/fredgraph.csv",
			YahooBaseURL: "https://query2.finance.yahoo.com/v8/finance/chart",
		},
		Catalog: DefaultCatalog(),
		Signal: SignalConfig{
			ChangeWindows:        []int{1, 5, 20},
			ZScoreWindow:         60,
			ZScoreMinPeriods:     20,
			PercentileWindow:     252,
			PercentileMinPeriods: 60,
		},
		Judgment: JudgmentConfig{
			NetLiqWeakThreshold5d:        -50,
			SOFRStressThreshold5dBps:     5,
			VIXStressThreshold:           25,
			MoveZScoreStress:             1.0,
			USDJPYStressThreshold5d:      -2.0,
			CarrySpreadNarrowThreshold5d: -10,
			HYOASWidenThreshold5dBps:     15,
			SPXWeakThreshold5d:           -0.02,
			MinConfirmations:             2,
			StaleDays:                    3,
		},
		Brief: BriefConfig{
			Enabled: true,
			Indices: DefaultIndices(),
			Movers: MoversConfig{
				Markets:      []string{"US", "HK", "CN"},
				TopN:         10,
				MinChangePct: 3.0,
				Watchlist:    DefaultWatchlist(),
			},
			News: NewsConfig{
				TopN:        5,
				MaxArticles: 30,
				SearchLimit: 6,
				Keywords: []string{
					"stock market today", "Wall Street", "Federal Reserve",
					"cryptocurrency bitcoin", "tech stocks earnings", "China economy A-shares",
				},
				Topics:     []string{"BUSINESS", "TECHNOLOGY"},
				RSSBaseURL: "https://news.google.com/rss",
			},
			Analysis: AnalysisConfig{
				Provider: "gemini",
				Model:    "gemini-2.5-flash",
				Timeout:  60 * time.Second,
			},
			SnapshotKeep: 30,
		},
		Distribution: DistributionConfig{
			Enabled:        true,
			Driver:         "exec",
			Remote:         "origin",
			Branch:         "main",
			AuthorName:     "macropulse",
			AuthorEmail:    "macropulse@users.noreply.github.com",
			CommitTemplate: "data: update {{.Date}} ({{.Tier}} {{.Score}})",
			S3: S3Config{
				Region: "us-east-1",
				Prefix: "macropulse",
				UseSSL: true,
			},
		},
		Store: StoreConfig{
			Driver: "sqlite",
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "file",
			FilePath:     ".macropulse/traces.jsonl",
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
		Flags: map[string]bool{
			"fred-csv-fallback": true,
			"publish-diff-log":  true,
			"llm-commentary":    true,
			"s3-mirror":         false,
		},
	}
}

// Validate runs every section validator.
func (c Config) Validate() error {
	validators := []func() error{
		func() error { return ValidatePaths(c.Paths, c.Publish) },
		func() error { return ValidateFetch(c.Fetch) },
		func() error { return ValidateCatalog(c.Catalog) },
		func() error { return ValidateSignal(c.Signal) },
		func() error { return ValidateJudgment(c.Judgment) },
		func() error { return ValidateBrief(c.Brief) },
		func() error { return ValidateDistribution(c.Distribution) },
		func() error { return ValidateStore(c.Store) },
		func() error { return ValidateTracing(c.Tracing) },
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

// ValidatePaths checks that the publish path and state locations are set.
func ValidatePaths(p PathsConfig, pub PublishConfig) error {
	if pub.Path == "" {
		return fmt.Errorf("publish.path is required")
	}
	if filepath.Ext(pub.Path) != ".json" {
		return fmt.Errorf("publish.path must be a .json file, got %q", pub.Path)
	}
	if p.LockFile == "" {
		return fmt.Errorf("paths.lock_file is required")
	}
	if p.StateDB == "" {
		return fmt.Errorf("paths.state_db is required")
	}
	return nil
}

// ValidateFetch checks fetch tuning values.
func ValidateFetch(f FetchConfig) error {
	if _, err := time.Parse(time.DateOnly, f.Start); err != nil {
		return fmt.Errorf("fetch.start must be YYYY-MM-DD, got %q", f.Start)
	}
	if f.Concurrency < 1 {
		return fmt.Errorf("fetch.concurrency must be at least 1, got %d", f.Concurrency)
	}
	if f.MaxAttempts < 1 {
		return fmt.Errorf("fetch.max_attempts must be at least 1, got %d", f.MaxAttempts)
	}
	return nil
}

// ValidateCatalog checks series definitions for errors.
func ValidateCatalog(catalog []SeriesConfig) error {
	if len(catalog) == 0 {
		return fmt.Errorf("catalog must define at least one series")
	}
	seen := make(map[string]bool, len(catalog))
	for i, s := range catalog {
		if s.Key == "" {
			return fmt.Errorf("catalog %d: key is required", i)
		}
		if seen[s.Key] {
			return fmt.Errorf("catalog %d: duplicate key %q", i, s.Key)
		}
		seen[s.Key] = true
		if err := validateSource(s.Source, s.ID); err != nil {
			return fmt.Errorf("catalog %d (%s): %w", i, s.Key, err)
		}
		if s.FallbackSource != "" {
			if err := validateSource(s.FallbackSource, s.FallbackID); err != nil {
				return fmt.Errorf("catalog %d (%s) fallback: %w", i, s.Key, err)
			}
		}
		switch s.Frequency {
		case "daily", "weekly", "monthly":
		default:
			return fmt.Errorf("catalog %d (%s): frequency must be \"daily\", \"weekly\", or \"monthly\", got %q", i, s.Key, s.Frequency)
		}
		switch s.Unit {
		case "", "millions", "billions", "percent":
		default:
			return fmt.Errorf("catalog %d (%s): unsupported unit %q", i, s.Key, s.Unit)
		}
	}
	return nil
}

func validateSource(source, id string) error {
	switch source {
	case "fred", "yahoo":
		if id == "" {
			return fmt.Errorf("id is required for source %q", source)
		}
	case "static":
	default:
		return fmt.Errorf("source must be \"fred\", \"yahoo\", or \"static\", got %q", source)
	}
	return nil
}

// ValidateSignal checks rolling-window parameters.
func ValidateSignal(s SignalConfig) error {
	if len(s.ChangeWindows) == 0 {
		return fmt.Errorf("signal.change_windows must not be empty")
	}
	for _, w := range s.ChangeWindows {
		if w < 1 {
			return fmt.Errorf("signal.change_windows entries must be positive, got %d", w)
		}
	}
	if s.ZScoreMinPeriods < 2 || s.ZScoreMinPeriods > s.ZScoreWindow {
		return fmt.Errorf("signal.zscore_min_periods must be in [2, zscore_window], got %d", s.ZScoreMinPeriods)
	}
	if s.PercentileMinPeriods < 1 || s.PercentileMinPeriods > s.PercentileWindow {
		return fmt.Errorf("signal.percentile_min_periods must be in [1, percentile_window], got %d", s.PercentileMinPeriods)
	}
	return nil
}

// ValidateJudgment checks regime rule parameters.
func ValidateJudgment(j JudgmentConfig) error {
	if j.MinConfirmations < 1 || j.MinConfirmations > 4 {
		return fmt.Errorf("judgment.min_confirmations must be between 1 and 4, got %d", j.MinConfirmations)
	}
	if j.StaleDays < 0 {
		return fmt.Errorf("judgment.stale_days must not be negative, got %d", j.StaleDays)
	}
	return nil
}

// ValidateBrief checks brief configuration. Returns nil when the brief is disabled.
func ValidateBrief(b BriefConfig) error {
	if !b.Enabled {
		return nil
	}
	for i, idx := range b.Indices {
		if idx.Symbol == "" {
			return fmt.Errorf("brief.indices %d: symbol is required", i)
		}
		if idx.Timezone != "" {
			if _, err := time.LoadLocation(idx.Timezone); err != nil {
				return fmt.Errorf("brief.indices %d (%s): invalid timezone %q", i, idx.Symbol, idx.Timezone)
			}
		}
	}
	if b.Movers.MinChangePct < 0 {
		return fmt.Errorf("brief.movers.min_change_pct must not be negative")
	}
	switch b.Analysis.Provider {
	case "", "none", "gemini":
	default:
		return fmt.Errorf("brief.analysis.provider must be \"gemini\" or \"none\", got %q", b.Analysis.Provider)
	}
	return nil
}

// ValidateDistribution checks distribution configuration.
func ValidateDistribution(d DistributionConfig) error {
	switch d.Driver {
	case "", "exec", "gogit":
	default:
		return fmt.Errorf("distribution.driver must be \"exec\" or \"gogit\", got %q", d.Driver)
	}
	if d.Enabled && d.Branch == "" {
		return fmt.Errorf("distribution.branch is required when distribution is enabled")
	}
	return nil
}

// ValidateStore checks run store configuration.
func ValidateStore(s StoreConfig) error {
	switch s.Driver {
	case "", "sqlite":
	case "postgres":
		if s.DSN == "" {
			return fmt.Errorf("store.dsn is required when store.driver is \"postgres\"")
		}
	default:
		return fmt.Errorf("store.driver must be \"sqlite\" or \"postgres\", got %q", s.Driver)
	}
	return nil
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(tracing TracingConfig) error {
	if tracing.SampleRate < 0.0 || tracing.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tracing.SampleRate)
	}

	if tracing.Exporter != "" {
		switch tracing.Exporter {
		case "none", "file", "stdout", "otlp":
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tracing.Exporter)
		}
	}

	if tracing.Enabled {
		if tracing.Exporter == "file" && tracing.FilePath == "" {
			return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
		}
		if tracing.Exporter == "otlp" && tracing.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}

	return nil
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# macropulse configuration
#
# Every relative path below is resolved against paths.root.
# Secrets come from the environment only:
#   FRED_API_KEY, ANALYSIS_API_KEY, GIT_TOKEN, S3_ACCESS_KEY, S3_SECRET_KEY
# A .env file next to this config is loaded first.

paths:
  root: .
  cache_dir: .macropulse/cache
  state_db: .macropulse/state.db
  lock_file: .macropulse/run.lock
  log_file: .macropulse/macropulse.log
  output_dir: output

# The single artifact consumed by the front end.
publish:
  path: data/latest.json

fetch:
  start: "2020-01-01"
  cache_max_age: 12h
  concurrency: 4
  timeout: 30s
  max_attempts: 3

# Override the series catalog here. Sources: fred, yahoo, static.
# catalog:
#   - key: usdjpy
#     source: yahoo
#     id: JPY=X
#     frequency: daily
#     fallback_source: fred
#     fallback_id: DEXJPUS

signal:
  change_windows: [1, 5, 20]
  zscore_window: 60
  zscore_min_periods: 20
  percentile_window: 252
  percentile_min_periods: 60

judgment:
  net_liq_weak_threshold_5d: -50     # billions
  sofr_stress_threshold_5d: 5        # bps
  vix_stress_threshold: 25
  move_zscore_stress: 1.0
  usdjpy_stress_threshold_5d: -2.0
  carry_spread_narrow_threshold_5d: -10
  hy_oas_widen_threshold_5d: 15      # bps
  spx_weak_threshold_5d: -0.02
  min_confirmations: 2
  stale_days: 3

brief:
  enabled: true
  movers:
    markets: [US, HK, CN]
    top_n: 10
    min_change_pct: 3.0
  news:
    top_n: 5
    max_articles: 30
  analysis:
    provider: gemini                 # gemini or none (rule-based only)
    model: gemini-2.5-flash
  snapshot_keep: 30

distribution:
  enabled: true
  driver: exec                       # exec (git CLI) or gogit (token push)
  remote: origin
  branch: main
  commit_template: "data: update {{.Date}} ({{.Tier}} {{.Score}})"
  # s3:
  #   endpoint: s3.amazonaws.com
  #   bucket: my-bucket
  #   prefix: macropulse

store:
  driver: sqlite                     # sqlite or postgres (MACROPULSE_STORE_DSN)

# Tracing configuration
# tracing:
#   enabled: true
#   exporter: file                   # none, file, stdout, otlp
#   file_path: .macropulse/traces.jsonl
#   otlp_endpoint: localhost:4317
#   sample_rate: 1.0

flags:
  fred-csv-fallback: true
  publish-diff-log: true
  llm-commentary: true
  s3-mirror: false
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
