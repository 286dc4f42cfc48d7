// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/pinharvest/internal/logging"
)

// Config captures all harvester configuration knobs loaded via Viper.
type Config struct {
	Logging  logging.Config `mapstructure:"logging"`
	Site     SiteConfig     `mapstructure:"site"`
	Crawl    CrawlConfig    `mapstructure:"crawl"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Fetcher  FetcherConfig  `mapstructure:"fetcher"`
	Extract  ExtractConfig  `mapstructure:"extract"`
	Record   RecordConfig   `mapstructure:"record"`
	Output   OutputConfig   `mapstructure:"output"`
	Debug    DebugConfig    `mapstructure:"debug"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// SiteConfig describes the catalog being harvested and the request headers sent to it.
type SiteConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	CandidatePath  string `mapstructure:"candidate_path"`
	CanonicalPath  string `mapstructure:"canonical_path"`
	UserAgent      string `mapstructure:"user_agent"`
	Accept         string `mapstructure:"accept"`
	AcceptLanguage string `mapstructure:"accept_language"`
	Referer        string `mapstructure:"referer"`
}

// CrawlConfig governs the identifier countdown and batching.
type CrawlConfig struct {
	StartID              int           `mapstructure:"start_id"`
	MinID                int           `mapstructure:"min_id"`
	Target               int           `mapstructure:"target"`
	BatchSize            int           `mapstructure:"batch_size"`
	RequestDelay         time.Duration `mapstructure:"request_delay"`
	BatchDelay           time.Duration `mapstructure:"batch_delay"`
	MaxConsecutiveMisses int           `mapstructure:"max_consecutive_misses"`
}

// HTTPConfig configures transport timeouts and retry behavior.
type HTTPConfig struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	BackoffBase time.Duration `mapstructure:"backoff_base"`
}

// FetcherConfig picks the transport implementation.
type FetcherConfig struct {
	Kind              string        `mapstructure:"kind"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
}

// ExtractConfig holds the site-specific tokens used by the field extractor.
type ExtractConfig struct {
	AssetHost        string   `mapstructure:"asset_host"`
	AssetPattern     string   `mapstructure:"asset_pattern"`
	NameBoilerplate  []string `mapstructure:"name_boilerplate"`
	OriginQualifiers []string `mapstructure:"origin_qualifiers"`
	TitleSuffix      string   `mapstructure:"title_suffix"`
	ThumbDir         string   `mapstructure:"thumb_dir"`
	FullDir          string   `mapstructure:"full_dir"`
	ThumbInfix       string   `mapstructure:"thumb_infix"`
	ImageExt         string   `mapstructure:"image_ext"`
}

// RecordConfig holds business rules applied by the record builder.
type RecordConfig struct {
	DefaultYear              int      `mapstructure:"default_year"`
	PlaceholderImage         string   `mapstructure:"placeholder_image"`
	ExcludedBrands           []string `mapstructure:"excluded_brands"`
	ExclusionCaseInsensitive bool     `mapstructure:"exclusion_case_insensitive"`
}

// OutputConfig sets the durable file locations.
type OutputConfig struct {
	Dataset    string `mapstructure:"dataset"`
	Checkpoint string `mapstructure:"checkpoint"`
	ErrorLog   string `mapstructure:"error_log"`
}

// DebugConfig controls where raw pages are dumped when image extraction fails.
type DebugConfig struct {
	Dir       string `mapstructure:"dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSPrefix string `mapstructure:"gcs_prefix"`
}

// MetricsConfig toggles the Prometheus endpoint served during a crawl.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// PostgresConfig controls the import target.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PINHARVEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")

	v.SetDefault("site.base_url", "https://pinandpop.com")
	v.SetDefault("site.candidate_path", "/pins/{id}/pin-{id}")
	v.SetDefault("site.canonical_path", "/pins/{id}")
	v.SetDefault("site.user_agent",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("site.accept",
		"text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8")
	v.SetDefault("site.accept_language", "en-US,en;q=0.9")
	v.SetDefault("site.referer", "https://pinandpop.com/")

	v.SetDefault("crawl.start_id", 97374)
	v.SetDefault("crawl.min_id", 1)
	v.SetDefault("crawl.target", 50000)
	v.SetDefault("crawl.batch_size", 100)
	v.SetDefault("crawl.request_delay", "1s")
	v.SetDefault("crawl.batch_delay", "2s")
	v.SetDefault("crawl.max_consecutive_misses", 0)

	v.SetDefault("http.timeout", "30s")
	v.SetDefault("http.max_attempts", 3)
	v.SetDefault("http.backoff_base", "1s")

	v.SetDefault("fetcher.kind", "colly")
	v.SetDefault("fetcher.navigation_timeout", "45s")

	v.SetDefault("extract.asset_host", "amazonaws")
	v.SetDefault("extract.asset_pattern",
		`https://pinandpop\.s3\.amazonaws\.com/images/pinails/{id}_[A-Za-z0-9]{4}_pinail\.(?:webp|jpg)`)
	v.SetDefault("extract.name_boilerplate", []string{"Marvel Superhero Transformations"})
	v.SetDefault("extract.origin_qualifiers", []string{"(DLR)"})
	v.SetDefault("extract.title_suffix", "Disney Pin")
	v.SetDefault("extract.thumb_dir", "pinails")
	v.SetDefault("extract.full_dir", "pins")
	v.SetDefault("extract.thumb_infix", "_pinail")
	v.SetDefault("extract.image_ext", ".jpg")

	v.SetDefault("record.default_year", 2025)
	v.SetDefault("record.placeholder_image", "https://pinandpop.s3.amazonaws.com/images/pins/{id}_Wr4p.jpg")
	v.SetDefault("record.excluded_brands", []string{"Loungefly", "Hot Topic"})
	v.SetDefault("record.exclusion_case_insensitive", false)

	v.SetDefault("output.dataset", "pins_2025.csv")
	v.SetDefault("output.checkpoint", "last_processed_id.txt")
	v.SetDefault("output.error_log", "scraping_errors.log")

	v.SetDefault("debug.dir", ".")
	v.SetDefault("debug.gcs_bucket", "")
	v.SetDefault("debug.gcs_prefix", "debug")

	v.SetDefault("metrics.addr", "")

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.table", "pins")
	v.SetDefault("postgres.max_conns", 4)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Site.BaseURL == "" {
		return fmt.Errorf("site.base_url must be set")
	}
	if !strings.Contains(c.Site.CandidatePath, "{id}") {
		return fmt.Errorf("site.candidate_path must contain {id}")
	}
	if !strings.Contains(c.Site.CanonicalPath, "{id}") {
		return fmt.Errorf("site.canonical_path must contain {id}")
	}
	if c.Crawl.StartID <= 0 {
		return fmt.Errorf("crawl.start_id must be > 0")
	}
	if c.Crawl.MinID <= 0 {
		return fmt.Errorf("crawl.min_id must be > 0")
	}
	if c.Crawl.MinID > c.Crawl.StartID {
		return fmt.Errorf("crawl.min_id must be <= crawl.start_id")
	}
	if c.Crawl.Target <= 0 {
		return fmt.Errorf("crawl.target must be > 0")
	}
	if c.Crawl.BatchSize <= 0 {
		return fmt.Errorf("crawl.batch_size must be > 0")
	}
	if c.Crawl.RequestDelay < 0 || c.Crawl.BatchDelay < 0 {
		return fmt.Errorf("crawl delays must be >= 0")
	}
	if c.Crawl.MaxConsecutiveMisses < 0 {
		return fmt.Errorf("crawl.max_consecutive_misses must be >= 0")
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be > 0")
	}
	if c.HTTP.MaxAttempts <= 0 {
		return fmt.Errorf("http.max_attempts must be > 0")
	}
	if c.HTTP.BackoffBase < 0 {
		return fmt.Errorf("http.backoff_base must be >= 0")
	}
	switch c.Fetcher.Kind {
	case "colly", "headless":
	default:
		return fmt.Errorf("fetcher.kind must be colly or headless, got %q", c.Fetcher.Kind)
	}
	if c.Extract.AssetPattern != "" {
		if _, err := regexp.Compile(strings.ReplaceAll(c.Extract.AssetPattern, "{id}", "1")); err != nil {
			return fmt.Errorf("extract.asset_pattern is not a valid expression: %w", err)
		}
	}
	if c.Output.Dataset == "" || c.Output.Checkpoint == "" || c.Output.ErrorLog == "" {
		return fmt.Errorf("output.dataset, output.checkpoint and output.error_log must be set")
	}
	if c.Debug.Dir == "" && c.Debug.GCSBucket == "" {
		return fmt.Errorf("debug.dir or debug.gcs_bucket must be set")
	}
	return nil
}

// Headers returns the browser-like request headers sent with every fetch.
func (c SiteConfig) Headers() http.Header {
	headers := http.Header{}
	for key, value := range map[string]string{
		"User-Agent":      c.UserAgent,
		"Accept":          c.Accept,
		"Accept-Language": c.AcceptLanguage,
		"Referer":         c.Referer,
	} {
		if value != "" {
			headers.Set(key, value)
		}
	}
	return headers
}
