// config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment overrides, e.g. FLIGHTWX_RUN_START_YEAR.
const EnvPrefix = "FLIGHTWX"

type RunConfig struct {
	StartYear int    `yaml:"start_year" split_words:"true" validate:"min=1987,max=2100"`
	Country   string `yaml:"country" validate:"required,len=2"`
	OutputDir string `yaml:"output_dir" split_words:"true" validate:"required"`
}

type SourcesConfig struct {
	WhitelistPath  string `yaml:"whitelist_path" split_words:"true" validate:"required"`
	AirportsCSVURL string `yaml:"airports_csv_url" envconfig:"AIRPORTS_CSV_URL" validate:"required,url"`
	CarrierPageURL string `yaml:"carrier_page_url" split_words:"true" validate:"required,url"`
}

type FlightsConfig struct {
	SourceDir           string `yaml:"source_dir" split_words:"true" validate:"required"`
	DownloadURLTemplate string `yaml:"download_url_template" split_words:"true"`
	EndYear             int    `yaml:"end_year" split_words:"true" validate:"omitempty,min=1987,max=2100"`
	ChunkSize           int    `yaml:"chunk_size" split_words:"true" validate:"min=1"`
}

type CacheConfig struct {
	Backend    string         `yaml:"backend" validate:"oneof=csv sqlite mysql"`
	Dir        string         `yaml:"dir" validate:"required"`
	SQLitePath string         `yaml:"sqlite_path" envconfig:"SQLITE_PATH"`
	MySQL      DatabaseConfig `yaml:"mysql" envconfig:"MYSQL"`
}

// DatabaseConfig is the MySQL/MariaDB connection used by the mysql cache backend.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
}

type GeocoderConfig struct {
	BaseURL       string        `yaml:"base_url" split_words:"true" validate:"required,url"`
	UserAgent     string        `yaml:"user_agent" split_words:"true" validate:"required"`
	TimeoutStr    string        `yaml:"timeout" envconfig:"TIMEOUT"`
	RatePerSecond float64       `yaml:"rate_per_second" split_words:"true" validate:"gt=0"`
	Concurrency   int           `yaml:"concurrency" validate:"min=1"`
	RefillMissing bool          `yaml:"refill_missing" split_words:"true"`
	Timeout       time.Duration `yaml:"-" ignored:"true"`
}

type WeatherConfig struct {
	BaseURL     string        `yaml:"base_url" split_words:"true" validate:"required,url"`
	UserAgent   string        `yaml:"user_agent" split_words:"true"`
	TimeoutStr  string        `yaml:"timeout" envconfig:"TIMEOUT"`
	Concurrency int           `yaml:"concurrency" validate:"min=1"`
	BufferDays  int           `yaml:"buffer_days" split_words:"true" validate:"min=0"`
	Timeout     time.Duration `yaml:"-" ignored:"true"`
}

type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Table    string `yaml:"table"`
}

type OutputConfig struct {
	Format     string           `yaml:"format" validate:"oneof=parquet csv"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	S3Bucket   string           `yaml:"s3_bucket" envconfig:"S3_BUCKET"`
	S3Prefix   string           `yaml:"s3_prefix" envconfig:"S3_PREFIX"`
}

type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	Dir   string `yaml:"dir"`
}

type Config struct {
	Run      RunConfig      `yaml:"run"`
	Sources  SourcesConfig  `yaml:"sources"`
	Flights  FlightsConfig  `yaml:"flights"`
	Cache    CacheConfig    `yaml:"cache"`
	Geocoder GeocoderConfig `yaml:"geocoder"`
	Weather  WeatherConfig  `yaml:"weather"`
	Output   OutputConfig   `yaml:"output"`
	Logging  LoggingConfig  `yaml:"logging"`
}

var AppConfig Config

// Default returns the configuration used when a key is absent from the file.
func Default() Config {
	return Config{
		Run: RunConfig{
			StartYear: 2018,
			Country:   "US",
			OutputDir: "data",
		},
		Sources: SourcesConfig{
			WhitelistPath:  "airport_whitelist.csv",
			AirportsCSVURL: "https://raw.githubusercontent.com/lxndrblz/Airports/main/airports.csv",
			CarrierPageURL: "https://en.wikipedia.org/wiki/List_of_airlines_of_the_United_States",
		},
		Flights: FlightsConfig{
			SourceDir: "flights",
			ChunkSize: 50000,
		},
		Cache: CacheConfig{
			Backend:    "csv",
			Dir:        ".",
			SQLitePath: "lookup.db",
		},
		Geocoder: GeocoderConfig{
			BaseURL:       "https://nominatim.openstreetmap.org",
			UserAgent:     "flightwx-etl",
			TimeoutStr:    "3s",
			RatePerSecond: 1,
			Concurrency:   1,
		},
		Weather: WeatherConfig{
			BaseURL:     "https://bulk.meteostat.net/v2",
			UserAgent:   "flightwx-etl",
			TimeoutStr:  "60s",
			Concurrency: 1,
			BufferDays:  3,
		},
		Output: OutputConfig{
			Format: "parquet",
			ClickHouse: ClickHouseConfig{
				Port:     9000,
				Database: "default",
				User:     "default",
				Table:    "joined_flights",
			},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig reads the YAML file at configPath into AppConfig, applies FLIGHTWX_* environment
// overrides (a .env file next to the working directory is loaded first) and validates the result.
// An empty configPath means defaults plus environment only.
func LoadConfig(configPath string) error {
	cfg, err := Load(configPath)
	if err != nil {
		return err
	}
	AppConfig = cfg
	return nil
}

// Load is LoadConfig without the package-level side effect.
func Load(configPath string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()
	if configPath != "" {
		file, err := os.ReadFile(configPath)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(file, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	// Parse durations
	var err error
	if cfg.Geocoder.Timeout, err = parseDuration(cfg.Geocoder.TimeoutStr, 3*time.Second); err != nil {
		return Config{}, fmt.Errorf("failed to parse geocoder timeout: %w", err)
	}
	if cfg.Weather.Timeout, err = parseDuration(cfg.Weather.TimeoutStr, 60*time.Second); err != nil {
		return Config{}, fmt.Errorf("failed to parse weather timeout: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Flights.EndYear != 0 && cfg.Flights.EndYear < cfg.Run.StartYear {
		return Config{}, fmt.Errorf("invalid configuration: flights.end_year %d is before run.start_year %d", cfg.Flights.EndYear, cfg.Run.StartYear)
	}

	// Output and cache directories are created up front so every stage can write.
	for _, dir := range []string{cfg.Run.OutputDir, cfg.Cache.Dir, cfg.Flights.SourceDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return Config{}, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	if cfg.Cache.Backend == "sqlite" && cfg.Cache.SQLitePath != "" && !filepath.IsAbs(cfg.Cache.SQLitePath) {
		cfg.Cache.SQLitePath = filepath.Join(cfg.Cache.Dir, cfg.Cache.SQLitePath)
	}

	return cfg, nil
}

// OutputPath joins name onto the run output directory.
func (c Config) OutputPath(name string) string {
	return filepath.Join(c.Run.OutputDir, name)
}

func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	return time.ParseDuration(s)
}
