package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"go-simpler.org/env"
	"gopkg.in/yaml.v3"
)

const (
	// Label cutoffs used by the classifier. Bucket thresholds must lie outside them.
	LABEL_POSITIVE_CUTOFF = 0.05
	LABEL_NEGATIVE_CUTOFF = -0.05
)

var (
	TimeFilters  = []string{"hour", "day", "week", "month", "year", "all"}
	ReplySorts   = []string{"top", "new", "best", "controversial"}
	ErrNoUnits   = errors.New("no source units configured")
	ErrBadUnitID = errors.New("invalid source unit")
)

// SourceUnit maps a display name (e.g. a city) to the subreddit it is harvested from.
type SourceUnit struct {
	Name string `yaml:"name"`
	Key  string `yaml:"key"`
}

type Config struct {
	AppEnv   string `env:"APP_ENV" default:"dev"`
	LogLevel string `env:"LOG_LEVEL" default:"info"`

	RedditClientID     string `env:"REDDIT_CLIENT_ID"`
	RedditClientSecret string `env:"REDDIT_CLIENT_SECRET"`
	RedditUserAgent    string `env:"REDDIT_USER_AGENT" default:"sentiharvest-bot/0.1"`
	RequestsPerMinute  int    `env:"REQUESTS_PER_MINUTE" default:"60"`

	SourceUnits string `env:"SOURCE_UNITS" default:"Gurgaon=gurgaon,New York=nyc,Paris=paris,Delhi=delhi,Tokyo=tokyo"`
	UnitsFile   string `env:"UNITS_FILE"`

	DBPath string `env:"DB_PATH" default:"reddit_analysis.db"`

	MaxPostsPerFetch int    `env:"MAX_POSTS_PER_FETCH" default:"100"`
	FetchTimeFilter  string `env:"FETCH_TIME_FILTER" default:"week"`
	MinTextLength    int    `env:"MIN_TEXT_LENGTH" default:"10"`

	FetchComments      bool   `env:"FETCH_COMMENTS" default:"true"`
	MaxCommentsPerPost int    `env:"MAX_COMMENTS_PER_POST" default:"50"`
	CommentSort        string `env:"COMMENT_SORT" default:"top"`
	MinCommentLength   int    `env:"MIN_COMMENT_LENGTH" default:"10"`

	VeryPositiveThreshold float64 `env:"VERY_POSITIVE_THRESHOLD" default:"0.6"`
	VeryNegativeThreshold float64 `env:"VERY_NEGATIVE_THRESHOLD" default:"-0.6"`

	CollectionIntervalHours int `env:"COLLECTION_INTERVAL_HOURS" default:"6"`

	KafkaBroker       string `env:"KAFKA_BROKER"`
	KafkaResultsTopic string `env:"KAFKA_RESULTS_TOPIC" default:"sentiment-results"`

	DynamoDBTable string `env:"DYNAMODB_TABLE"`
	AWSRegion     string `env:"AWS_REGION" default:"us-west-2"`
	AWSEndpoint   string `env:"AWS_ENDPOINT"`

	ValkeyAddress      string `env:"VALKEY_INIT_ADDRESS"`
	ValkeyPassword     string `env:"VALKEY_PASSWORD"`
	ValkeyTLS          bool   `env:"VALKEY_TLS" default:"false"`
	ReplyCooldownHours int    `env:"REPLY_COOLDOWN_HOURS" default:"24"`

	// Units is resolved from UnitsFile when set, otherwise from SourceUnits.
	Units []SourceUnit
}

// Load reads the process environment into a validated Config. Call LoadEnv first
// to pull in a .env file.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	units, err := cfg.resolveUnits()
	if err != nil {
		return nil, err
	}
	cfg.Units = units

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) resolveUnits() ([]SourceUnit, error) {
	if c.UnitsFile != "" {
		return loadUnitsFile(c.UnitsFile)
	}
	return ParseUnits(c.SourceUnits)
}

// ParseUnits parses "Display Name=subreddit" pairs separated by commas. A bare
// subreddit uses itself as the display name.
func ParseUnits(raw string) ([]SourceUnit, error) {
	var units []SourceUnit
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		name, key, found := strings.Cut(part, "=")
		if !found {
			key = name
		}
		unit := SourceUnit{Name: strings.TrimSpace(name), Key: strings.TrimSpace(key)}
		if unit.Name == "" || unit.Key == "" {
			return nil, fmt.Errorf("%w: %q", ErrBadUnitID, part)
		}
		units = append(units, unit)
	}
	return units, nil
}

type unitsFile struct {
	Units []SourceUnit `yaml:"units"`
}

func loadUnitsFile(path string) ([]SourceUnit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read units file: %w", err)
	}

	var f unitsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse units file %s: %w", path, err)
	}

	for _, u := range f.Units {
		if strings.TrimSpace(u.Name) == "" || strings.TrimSpace(u.Key) == "" {
			return nil, fmt.Errorf("%w in %s: name=%q key=%q", ErrBadUnitID, path, u.Name, u.Key)
		}
	}
	return f.Units, nil
}

// Validate reports every configuration problem at once. It is called by Load;
// nothing downstream re-checks these values.
func (c *Config) Validate() error {
	var errs []error

	required := map[string]string{
		"REDDIT_CLIENT_ID":     c.RedditClientID,
		"REDDIT_CLIENT_SECRET": c.RedditClientSecret,
	}
	for name, value := range required {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
		}
	}

	if len(c.Units) == 0 {
		errs = append(errs, ErrNoUnits)
	}
	seen := make(map[string]bool, len(c.Units))
	for _, u := range c.Units {
		key := strings.ToLower(u.Key)
		if seen[key] {
			errs = append(errs, fmt.Errorf("%w: duplicate key %q", ErrBadUnitID, u.Key))
		}
		seen[key] = true
	}

	if c.VeryPositiveThreshold < LABEL_POSITIVE_CUTOFF || c.VeryPositiveThreshold > 1 {
		errs = append(errs, fmt.Errorf("VERY_POSITIVE_THRESHOLD must be within [%.2f, 1], got %v",
			LABEL_POSITIVE_CUTOFF, c.VeryPositiveThreshold))
	}
	if c.VeryNegativeThreshold > LABEL_NEGATIVE_CUTOFF || c.VeryNegativeThreshold < -1 {
		errs = append(errs, fmt.Errorf("VERY_NEGATIVE_THRESHOLD must be within [-1, %.2f], got %v",
			LABEL_NEGATIVE_CUTOFF, c.VeryNegativeThreshold))
	}

	if c.MaxPostsPerFetch < 3 {
		errs = append(errs, fmt.Errorf("MAX_POSTS_PER_FETCH must be at least 3, got %d", c.MaxPostsPerFetch))
	}
	if !slices.Contains(TimeFilters, c.FetchTimeFilter) {
		errs = append(errs, fmt.Errorf("FETCH_TIME_FILTER must be one of %v, got %q", TimeFilters, c.FetchTimeFilter))
	}
	if c.MinTextLength < 0 || c.MinCommentLength < 0 {
		errs = append(errs, errors.New("MIN_TEXT_LENGTH and MIN_COMMENT_LENGTH must not be negative"))
	}
	if c.FetchComments {
		if c.MaxCommentsPerPost <= 0 {
			errs = append(errs, fmt.Errorf("MAX_COMMENTS_PER_POST must be positive, got %d", c.MaxCommentsPerPost))
		}
		if !slices.Contains(ReplySorts, c.CommentSort) {
			errs = append(errs, fmt.Errorf("COMMENT_SORT must be one of %v, got %q", ReplySorts, c.CommentSort))
		}
	}

	if c.CollectionIntervalHours <= 0 {
		errs = append(errs, fmt.Errorf("COLLECTION_INTERVAL_HOURS must be positive, got %d", c.CollectionIntervalHours))
	}
	if c.RequestsPerMinute <= 0 {
		errs = append(errs, fmt.Errorf("REQUESTS_PER_MINUTE must be positive, got %d", c.RequestsPerMinute))
	}
	if c.ValkeyAddress != "" && c.ReplyCooldownHours <= 0 {
		errs = append(errs, fmt.Errorf("REPLY_COOLDOWN_HOURS must be positive, got %d", c.ReplyCooldownHours))
	}

	return errors.Join(errs...)
}

func (c *Config) CollectionInterval() time.Duration {
	return time.Duration(c.CollectionIntervalHours) * time.Hour
}

func (c *Config) ReplyCooldown() time.Duration {
	return time.Duration(c.ReplyCooldownHours) * time.Hour
}

// UnitNames returns the display names in configured order.
func (c *Config) UnitNames() []string {
	names := make([]string, 0, len(c.Units))
	for _, u := range c.Units {
		names = append(names, u.Name)
	}
	return names
}
