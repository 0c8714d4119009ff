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
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Scanner   ScannerConfig   `yaml:"scanner" mapstructure:"scanner"`
	OCR       OCRConfig       `yaml:"ocr" mapstructure:"ocr"`
	IIF       IIFConfig       `yaml:"iif" mapstructure:"iif"`
	Export    ExportConfig    `yaml:"export" mapstructure:"export"`
	Entities  EntitiesConfig  `yaml:"entities" mapstructure:"entities"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key             string  `yaml:"key" mapstructure:"key"`
	ClassifyModel   string  `yaml:"classify_model" mapstructure:"classify_model"`
	ExtractModel    string  `yaml:"extract_model" mapstructure:"extract_model"`
	VisionModel     string  `yaml:"vision_model" mapstructure:"vision_model"`
	CategorizeModel string  `yaml:"categorize_model" mapstructure:"categorize_model"`
	MaxRPS          float64 `yaml:"max_rps" mapstructure:"max_rps"`
}

// ScannerConfig configures the drop-folder watcher and filing tree.
type ScannerConfig struct {
	WatchDir  string `yaml:"watch_dir" mapstructure:"watch_dir"`
	FiledDir  string `yaml:"filed_dir" mapstructure:"filed_dir"`
	GraceSecs int    `yaml:"grace_secs" mapstructure:"grace_secs"`
	Workers   int    `yaml:"workers" mapstructure:"workers"`
}

// OCRConfig configures the primary OCR engine and its fallback trigger.
type OCRConfig struct {
	TesseractPath       string  `yaml:"tesseract_path" mapstructure:"tesseract_path"`
	PdfToPpmPath        string  `yaml:"pdftoppm_path" mapstructure:"pdftoppm_path"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`
}

// IIFConfig configures QuickBooks IIF output.
type IIFConfig struct {
	OutputDir string `yaml:"output_dir" mapstructure:"output_dir"`
}

// ExportConfig configures spreadsheet exports.
type ExportConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// EntitiesConfig points at the entity definitions file.
type EntitiesConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
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
	v.SetEnvPrefix("AGENTT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "data/agentt.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("anthropic.classify_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.extract_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.vision_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.categorize_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_rps", 2.0)
	v.SetDefault("scanner.watch_dir", "data/scanned")
	v.SetDefault("scanner.filed_dir", "data/filed")
	v.SetDefault("scanner.grace_secs", 2)
	v.SetDefault("scanner.workers", 4)
	v.SetDefault("ocr.tesseract_path", "tesseract")
	v.SetDefault("ocr.pdftoppm_path", "pdftoppm")
	v.SetDefault("ocr.confidence_threshold", 0.60)
	v.SetDefault("iif.output_dir", "data/exports/iif")
	v.SetDefault("export.dir", "data/exports")
	v.SetDefault("entities.path", "entities.yaml")

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
