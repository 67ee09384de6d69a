package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/h2a-linkage/internal/match"
	"github.com/h2a-linkage/internal/schema"
	"github.com/h2a-linkage/internal/store"
	"github.com/h2a-linkage/internal/symspell"
	"github.com/h2a-linkage/internal/table"
	"github.com/h2a-linkage/internal/violations"
)

// Config is the pipeline configuration, resolved once at startup
type Config struct {
	Inputs      Inputs       `yaml:"inputs"`
	Aliases     AliasConfig  `yaml:"aliases"`
	Derived     []Derivation `yaml:"derived"`
	Reconcile   Reconcile    `yaml:"reconcile"`
	Percentages Percentages  `yaml:"percentages"`
	Matching    Matching     `yaml:"matching"`
	Represent   Represent    `yaml:"represent"`
	Database    Database     `yaml:"database"`
	Output      Output       `yaml:"output"`
	Server      Server       `yaml:"server"`
	Debug       bool         `yaml:"debug"`
}

// Inputs are the file locations read by the CLI
type Inputs struct {
	Disclosure     map[int]string    `yaml:"disclosure"` // year -> CSV
	ACS            map[string]string `yaml:"acs"`        // data source -> CSV
	Variables      string            `yaml:"variables"`
	Reference      string            `yaml:"reference"`
	Jobs           string            `yaml:"jobs"`
	Applications   string            `yaml:"applications"`
	Investigations string            `yaml:"investigations"`
}

// AliasConfig maps raw column names to canonical names
type AliasConfig struct {
	Global map[string]string         `yaml:"global"`
	Years  map[int]map[string]string `yaml:"years"`
}

// Derivation concatenates source columns into a new column
type Derivation struct {
	Year    int      `yaml:"year"`
	Target  string   `yaml:"target"`
	Sources []string `yaml:"sources"`
	Sep     string   `yaml:"sep"`
}

// Reconcile configures schema reconciliation
type Reconcile struct {
	Policy           string `yaml:"policy"`
	ProvenanceColumn string `yaml:"provenance_column"`
}

// Percentages configures the demographic aggregation
type Percentages struct {
	Excluded        []string `yaml:"excluded"`
	Drop            []string `yaml:"drop"`
	GeoColumn       string   `yaml:"geo_column"`
	ReferenceColumn string   `yaml:"reference_column"`
	SourceColumn    string   `yaml:"source_column"`
	EstimateSuffix  string   `yaml:"estimate_suffix"`
}

// Matching configures the fuzzy matcher and the post-match filter
type Matching struct {
	LeftBlock    []string `yaml:"left_block"`
	RightBlock   []string `yaml:"right_block"`
	LeftFields   []string `yaml:"left_fields"`
	RightFields  []string `yaml:"right_fields"`
	Method       string   `yaml:"method"`
	Threshold    float64  `yaml:"threshold"`
	ProjectLeft  []string `yaml:"project_left"`
	ProjectRight []string `yaml:"project_right"`
	Workers      int      `yaml:"workers"`
	Mode         string   `yaml:"mode"`
	Since        string   `yaml:"since"`

	// CorrectCities fixes registry city spellings against the disclosure
	// cities before matching
	CorrectCities   bool `yaml:"correct_cities"`
	MaxEditDistance int  `yaml:"max_edit_distance"`
}

// Represent configures representative records
type Represent struct {
	GroupBy     string            `yaml:"group_by"`
	Types       map[string]string `yaml:"types"`
	DateLayouts []string          `yaml:"date_layouts"`
}

// Database holds connection settings. DSN wins over the discrete fields.
type Database struct {
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

// Output is where CSV results are written
type Output struct {
	Dir string `yaml:"dir"`
}

// Server configures the HTTP API. An empty APIKey leaves it open.
type Server struct {
	Host         string   `yaml:"host"`
	Port         int      `yaml:"port"`
	Origins      []string `yaml:"origins"`
	APIKey       string   `yaml:"api_key"`
	MaxBodyBytes int64    `yaml:"max_body_bytes"`
}

// Default returns the settings used by the original H-2A pipeline
func Default() *Config {
	return &Config{
		Reconcile: Reconcile{Policy: "intersect", ProvenanceColumn: "data_source"},
		Percentages: Percentages{
			GeoColumn:       "GEO_ID",
			ReferenceColumn: "GEO_ID",
			SourceColumn:    "data_source",
			EstimateSuffix:  "E",
		},
		Matching: Matching{
			LeftBlock:    []string{"EMPLOYER_STATE"},
			RightBlock:   []string{"st_cd"},
			LeftFields:   []string{"name", "city"},
			RightFields:  []string{"name", "city"},
			Method:       string(match.JaroWinkler),
			Threshold:    0.85,
			ProjectLeft:  []string{"status", "JOB_START_DATE", "JOB_END_DATE", "EMPLOYER_STATE", "name", "city"},
			ProjectRight: []string{"st_cd", "name", "h2a_violtn_cnt", "findings_start_date", "findings_end_date", "city", "ld_dt"},

			Mode:            "predict_violations",
			Since:           "2017-01-01",
			MaxEditDistance: 2,
		},
		Represent: Represent{GroupBy: "name"},
		Database: Database{
			Driver:  GetEnv("H2A_DB_DRIVER", store.SQLite),
			Host:    GetEnv("PGHOST", "localhost"),
			Port:    GetEnvInt("PGPORT", 5432),
			User:    GetEnv("PGUSER", "postgres"),
			Name:    GetEnv("PGDATABASE", "h2a"),
			SSLMode: "disable",
		},
		Output: Output{Dir: "output"},
		Server: Server{Host: "0.0.0.0", Port: 8080},
	}
}

// Load reads a YAML config over the defaults, applies environment overrides
// and validates the result. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Output.Dir = GetEnv("H2A_OUTPUT_DIR", c.Output.Dir)
	c.Database.Driver = GetEnv("H2A_DB_DRIVER", c.Database.Driver)
	c.Database.DSN = GetEnv("H2A_DB_DSN", c.Database.DSN)
	if c.Database.Password == "" {
		c.Database.Password = os.Getenv("PGPASSWORD")
	}
	c.Server.APIKey = GetEnv("H2A_API_KEY", c.Server.APIKey)
	c.Debug = GetEnvBool("H2A_DEBUG", c.Debug)
}

// Validate rejects settings the engines would fail on later
func (c *Config) Validate() error {
	var errs []error
	if _, err := schema.ParsePolicy(c.Reconcile.Policy); err != nil {
		errs = append(errs, err)
	}
	m := c.Matching
	if len(m.LeftFields) != len(m.RightFields) {
		errs = append(errs, &match.MismatchedArityError{Left: len(m.LeftFields), Right: len(m.RightFields)})
	}
	if len(m.LeftBlock) == 0 || len(m.LeftBlock) != len(m.RightBlock) {
		errs = append(errs, fmt.Errorf("matching: block keys must be non-empty and paired, got %v/%v", m.LeftBlock, m.RightBlock))
	}
	if m.Threshold < 0 || m.Threshold > 1 {
		errs = append(errs, match.ErrInvalidThreshold)
	}
	if _, err := match.Lookup(m.Method); err != nil {
		errs = append(errs, err)
	}
	if _, err := violations.ParseMode(m.Mode); err != nil {
		errs = append(errs, err)
	}
	if m.MaxEditDistance < 0 || m.MaxEditDistance > 3 {
		errs = append(errs, fmt.Errorf("matching: max_edit_distance must be between 0 and 3, got %d", m.MaxEditDistance))
	}
	if _, err := c.MatchingSince(); err != nil {
		errs = append(errs, err)
	}
	for col, kind := range c.Represent.Types {
		if _, err := table.ParseKind(kind); err != nil {
			errs = append(errs, fmt.Errorf("represent.types.%s: %w", col, err))
		}
	}
	switch c.Database.Driver {
	case store.Postgres, store.SQLite:
	default:
		errs = append(errs, fmt.Errorf("database: unsupported driver %q", c.Database.Driver))
	}
	for i, d := range c.Derived {
		if d.Target == "" || len(d.Sources) == 0 {
			errs = append(errs, fmt.Errorf("derived[%d]: target and sources are required", i))
		}
	}
	return errors.Join(errs...)
}

// ConnString builds the connection string for the configured driver
func (d Database) ConnString() string {
	if d.DSN != "" {
		return d.DSN
	}
	if d.Driver == store.SQLite {
		name := d.Name
		if name == "" {
			name = "h2a.db"
		}
		return name
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// SchemaAliases converts the alias section
func (c *Config) SchemaAliases() schema.Aliases {
	return schema.Aliases{Global: c.Aliases.Global, Year: c.Aliases.Years}
}

// Derivations converts the derived section
func (c *Config) Derivations() []schema.Concat {
	out := make([]schema.Concat, len(c.Derived))
	for i, d := range c.Derived {
		out[i] = schema.Concat{Year: d.Year, Target: d.Target, Sources: d.Sources, Sep: d.Sep}
	}
	return out
}

// Years returns the configured disclosure years in order
func (c *Config) Years() []int {
	years := make([]int, 0, len(c.Inputs.Disclosure))
	for y := range c.Inputs.Disclosure {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// MatchOptions converts the matching section
func (c *Config) MatchOptions() match.Options {
	m := c.Matching
	return match.Options{
		LeftBlock:    m.LeftBlock,
		RightBlock:   m.RightBlock,
		LeftFields:   m.LeftFields,
		RightFields:  m.RightFields,
		Method:       m.Method,
		Threshold:    m.Threshold,
		ProjectLeft:  m.ProjectLeft,
		ProjectRight: m.ProjectRight,
		Workers:      m.Workers,
		Debug:        c.Debug,
	}
}

// MatchingSince parses the registry cutoff date; empty means no cutoff
func (c *Config) MatchingSince() (time.Time, error) {
	if c.Matching.Since == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(table.DateLayout, c.Matching.Since)
	if err != nil {
		return time.Time{}, fmt.Errorf("matching.since: %w", err)
	}
	return t, nil
}

// SpellingConfig converts the city correction settings
func (c *Config) SpellingConfig() *symspell.Config {
	sc := symspell.DefaultConfig()
	sc.MaxEditDistance = c.Matching.MaxEditDistance
	return sc
}

// ExcludedSet returns the excluded prefixes as a lookup set
func (p Percentages) ExcludedSet() map[string]bool {
	out := make(map[string]bool, len(p.Excluded))
	for _, e := range p.Excluded {
		out[e] = true
	}
	return out
}

// Addr is the server listen address
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Kinds converts the represent column types
func (r Represent) Kinds() map[string]table.Kind {
	out := make(map[string]table.Kind, len(r.Types))
	for col, kind := range r.Types {
		if k, err := table.ParseKind(kind); err == nil {
			out[col] = k
		}
	}
	return out
}
