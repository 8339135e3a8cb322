package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Vocab     VocabConfig     `yaml:"vocab" mapstructure:"vocab"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Ingest    IngestConfig    `yaml:"ingest" mapstructure:"ingest"`
	Profile   ProfileConfig   `yaml:"profile" mapstructure:"profile"`
	Semantic  SemanticConfig  `yaml:"semantic" mapstructure:"semantic"`
	Mapping   MappingConfig   `yaml:"mapping" mapstructure:"mapping"`
	Transform TransformConfig `yaml:"transform" mapstructure:"transform"`
	Quality   QualityConfig   `yaml:"quality" mapstructure:"quality"`
	Review    ReviewConfig    `yaml:"review" mapstructure:"review"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Output    OutputConfig    `yaml:"output" mapstructure:"output"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the run-history database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// VocabConfig configures the partner-rule / known-vocabulary store.
type VocabConfig struct {
	DatabasePath string `yaml:"database_path" mapstructure:"database_path"`
	SeedPath     string `yaml:"seed_path" mapstructure:"seed_path"`
}

// FetchConfig configures remote payload retrieval.
type FetchConfig struct {
	ScratchDir     string  `yaml:"scratch_dir" mapstructure:"scratch_dir"`
	TimeoutSeconds int     `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
	MaxAttempts    int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	RatePerSecond  float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	UserAgent      string  `yaml:"user_agent" mapstructure:"user_agent"`
	FTPUser        string  `yaml:"ftp_user" mapstructure:"ftp_user"`
	FTPPassword    string  `yaml:"ftp_password" mapstructure:"ftp_password"`
}

// IngestConfig configures tabular payload reading.
type IngestConfig struct {
	SupportedEncodings []string `yaml:"supported_encodings" mapstructure:"supported_encodings"`
	MaxFileSizeBytes   int64    `yaml:"max_file_size_bytes" mapstructure:"max_file_size_bytes"`
	MaxRows            int      `yaml:"max_rows" mapstructure:"max_rows"`
	HeaderScanRows     int      `yaml:"header_scan_rows" mapstructure:"header_scan_rows"`
	HeaderKeywords     []string `yaml:"header_keywords" mapstructure:"header_keywords"`
}

// ProfileConfig configures column profiling.
type ProfileConfig struct {
	SampleSize  int `yaml:"sample_size" mapstructure:"sample_size"`
	DistinctCap int `yaml:"distinct_cap" mapstructure:"distinct_cap"`
}

// SemanticConfig configures the semantic classifier.
type SemanticConfig struct {
	RulesPath     string   `yaml:"rules_path" mapstructure:"rules_path"`
	AmbiguityGap  float64  `yaml:"ambiguity_gap" mapstructure:"ambiguity_gap"`
	MinConfidence float64  `yaml:"min_confidence" mapstructure:"min_confidence"`
	GenericTokens []string `yaml:"generic_tokens" mapstructure:"generic_tokens"`
}

// MappingConfig configures the mapping decision ladder.
type MappingConfig struct {
	FuzzyDistance       int     `yaml:"fuzzy_distance" mapstructure:"fuzzy_distance"`
	SemanticWeight      float64 `yaml:"semantic_weight" mapstructure:"semantic_weight"`
	HighNullRate        float64 `yaml:"high_null_rate" mapstructure:"high_null_rate"`
	RunnerUpGap         float64 `yaml:"runner_up_gap" mapstructure:"runner_up_gap"`
	MinViableConfidence float64 `yaml:"min_viable_confidence" mapstructure:"min_viable_confidence"`
	DefaultCurrency     string  `yaml:"default_currency" mapstructure:"default_currency"`
}

// TransformConfig configures the transform executor.
type TransformConfig struct {
	DateFormats        []string `yaml:"date_formats" mapstructure:"date_formats"`
	ThousandsSeparator string   `yaml:"thousands_separator" mapstructure:"thousands_separator"`
	DecimalSeparator   string   `yaml:"decimal_separator" mapstructure:"decimal_separator"`
	RowCountTolerance  float64  `yaml:"row_count_tolerance" mapstructure:"row_count_tolerance"`
}

// QualityConfig configures the validation rule engine.
type QualityConfig struct {
	RulesPath       string   `yaml:"rules_path" mapstructure:"rules_path"`
	NegativeMetrics []string `yaml:"negative_metrics_allowed" mapstructure:"negative_metrics_allowed"`
	DefaultCurrency string   `yaml:"default_currency" mapstructure:"default_currency"`
}

// ReviewConfig configures confidence aggregation and escalation.
type ReviewConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`
	MaxErrorRate        float64 `yaml:"max_error_rate" mapstructure:"max_error_rate"`
	MaxWarningRate      float64 `yaml:"max_warning_rate" mapstructure:"max_warning_rate"`
	ItemTTLHours        int     `yaml:"item_ttl_hours" mapstructure:"item_ttl_hours"`
}

// BatchConfig configures run-level parallelism.
type BatchConfig struct {
	MaxConcurrentSources int `yaml:"max_concurrent_sources" mapstructure:"max_concurrent_sources"`
}

// OutputConfig configures artifact emission.
type OutputConfig struct {
	Dir      string `yaml:"dir" mapstructure:"dir"`
	WriteCSV bool   `yaml:"write_csv" mapstructure:"write_csv"`
}

// ServerConfig configures the review/run HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	RatePerSecond  float64  `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	RateBurst      int      `yaml:"rate_burst" mapstructure:"rate_burst"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("HARMONIZE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "harmonize.db")
	v.SetDefault("vocab.database_path", "vocab.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_per_second", 20.0)
	v.SetDefault("server.rate_burst", 40)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("batch.max_concurrent_sources", 4)
	v.SetDefault("output.dir", "out")
	v.SetDefault("output.write_csv", true)
	v.SetDefault("fetch.timeout_seconds", 60)
	v.SetDefault("fetch.max_attempts", 3)
	v.SetDefault("fetch.rate_per_second", 4.0)
	v.SetDefault("fetch.user_agent", "harmonize-cli")
	v.SetDefault("ingest.supported_encodings", []string{"utf-8", "latin-1", "windows-1252"})
	v.SetDefault("ingest.max_file_size_bytes", int64(256<<20))
	v.SetDefault("ingest.max_rows", 2_000_000)
	v.SetDefault("ingest.header_scan_rows", 20)
	v.SetDefault("ingest.header_keywords", []string{
		"date", "partner", "campaign", "package", "placement",
		"impressions", "clicks", "spend", "revenue", "currency",
	})
	v.SetDefault("profile.sample_size", 10)
	v.SetDefault("profile.distinct_cap", 10_000)
	v.SetDefault("semantic.ambiguity_gap", 0.15)
	v.SetDefault("semantic.min_confidence", 0.5)
	v.SetDefault("semantic.generic_tokens", []string{"value", "id", "name", "data", "field", "column", "item"})
	v.SetDefault("mapping.fuzzy_distance", 2)
	v.SetDefault("mapping.semantic_weight", 0.8)
	v.SetDefault("mapping.high_null_rate", 0.20)
	v.SetDefault("mapping.runner_up_gap", 0.15)
	v.SetDefault("mapping.min_viable_confidence", 0.3)
	v.SetDefault("mapping.default_currency", "USD")
	v.SetDefault("transform.date_formats", []string{
		"2006-01-02", "01/02/2006", "2006/01/02",
		"Jan 2, 2006", "2 Jan 2006", "2006-01-02T15:04:05Z07:00",
	})
	v.SetDefault("transform.thousands_separator", ",")
	v.SetDefault("transform.decimal_separator", ".")
	v.SetDefault("transform.row_count_tolerance", 0.0)
	v.SetDefault("quality.negative_metrics_allowed", []string{"adjustments", "credits", "refunds"})
	v.SetDefault("quality.default_currency", "USD")
	v.SetDefault("review.confidence_threshold", 0.6)
	v.SetDefault("review.max_error_rate", 0.05)
	v.SetDefault("review.max_warning_rate", 0.20)
	v.SetDefault("review.item_ttl_hours", 72)
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
