// Package config loads dispatchcost configuration from a .env file, an optional JSON file and the
// environment, in that order of precedence (environment wins).
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/ArionMiles/dispatchcost/pkg/currency"
)

// Store plugin names.
const (
	StoreZoho     = "zoho"
	StoreSheets   = "sheets"
	StorePostgres = "postgres"
	StoreJSON     = "json"
)

// ClientSecretFile is the default path to the Google OAuth credentials JSON file.
const ClientSecretFile = "data/client_secret.json"

// EnvFile is the dotenv file read by Load when present.
const EnvFile = ".env"

// Config holds the application configuration.
type Config struct {
	// Store is the name of the record store plugin.
	// Environment variable: DISPATCHCOST_STORE
	Store string `koanf:"DISPATCHCOST_STORE"`

	// StoreConfig is raw JSON passed to the store plugin. When empty it is built from the
	// store specific variables below.
	// Environment variable: DISPATCHCOST_STORE_CONFIG
	StoreConfig string `koanf:"DISPATCHCOST_STORE_CONFIG"`

	// Report is the store report records are read from and updated in.
	// Environment variable: DISPATCHCOST_REPORT
	Report string `koanf:"DISPATCHCOST_REPORT"`

	// Form is the store form new records are created through.
	// Environment variable: DISPATCHCOST_FORM
	Form string `koanf:"DISPATCHCOST_FORM"`

	// SourceCurrency and TargetCurrency are the default pair of a new form.
	// Environment variables: DISPATCHCOST_SOURCE_CURRENCY, DISPATCHCOST_TARGET_CURRENCY
	SourceCurrency string `koanf:"DISPATCHCOST_SOURCE_CURRENCY"`
	TargetCurrency string `koanf:"DISPATCHCOST_TARGET_CURRENCY"`

	// ListenAddr is the address the HTTP API binds to.
	// Environment variable: DISPATCHCOST_LISTEN_ADDR
	ListenAddr string `koanf:"DISPATCHCOST_LISTEN_ADDR"`

	// AllowedOrigins is a comma separated CORS allow list. Empty allows all origins.
	// Environment variable: DISPATCHCOST_ALLOWED_ORIGINS
	AllowedOrigins string `koanf:"DISPATCHCOST_ALLOWED_ORIGINS"`

	// SessionTTLMinutes is how long an untouched form is kept by the HTTP API.
	// Environment variable: DISPATCHCOST_SESSION_TTL_MINUTES
	SessionTTLMinutes int `koanf:"DISPATCHCOST_SESSION_TTL_MINUTES"`

	Rates    RatesConfig    `koanf:",squash"`
	Zoho     ZohoConfig     `koanf:",squash"`
	Sheets   SheetsConfig   `koanf:",squash"`
	Postgres PostgresConfig `koanf:",squash"`
	Audit    AuditConfig    `koanf:",squash"`

	// JSONStorePath is the file used by the json store.
	// Environment variable: JSON_STORE_PATH
	JSONStorePath string `koanf:"JSON_STORE_PATH"`

	// LogLevel and LogJSON configure pkg/logging.
	LogLevel string `koanf:"LOG_LEVEL"`
	LogJSON  bool   `koanf:"LOG_JSON"`
}

// RatesConfig configures the exchange rate provider.
type RatesConfig struct {
	BaseURL        string `koanf:"RATES_BASE_URL"`
	APIKey         string `koanf:"RATES_API_KEY"`
	TimeoutSeconds int    `koanf:"RATES_TIMEOUT_SECONDS"`
}

// Timeout returns TimeoutSeconds as a duration.
func (r RatesConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// ZohoConfig holds Zoho Creator connection settings.
type ZohoConfig struct {
	ClientID     string `koanf:"ZOHO_CLIENT_ID" json:"client_id"`
	ClientSecret string `koanf:"ZOHO_CLIENT_SECRET" json:"client_secret"`
	AccountsURL  string `koanf:"ZOHO_ACCOUNTS_URL" json:"accounts_url"`
	APIURL       string `koanf:"ZOHO_API_URL" json:"api_url"`
	Owner        string `koanf:"ZOHO_OWNER" json:"owner"`
	App          string `koanf:"ZOHO_APP" json:"app"`
	TokenFile    string `koanf:"ZOHO_TOKEN_FILE" json:"token_file"`
}

// SheetsConfig holds Google Sheets settings.
type SheetsConfig struct {
	CredentialsFile string `koanf:"GSHEETS_CREDENTIALS_FILE" json:"-"`
	TokenFile       string `koanf:"GSHEETS_TOKEN_FILE" json:"-"`
	SheetID         string `koanf:"GSHEETS_ID" json:"sheetId,omitempty"`
	SheetTitle      string `koanf:"GSHEETS_TITLE" json:"sheetTitle,omitempty"`
	SheetName       string `koanf:"GSHEETS_NAME" json:"sheetName"`
}

// PostgresConfig holds PostgreSQL connection configuration.
type PostgresConfig struct {
	Host     string `koanf:"POSTGRES_HOST" json:"host"`
	Port     int    `koanf:"POSTGRES_PORT" json:"port"`
	Database string `koanf:"POSTGRES_DB" json:"database"`
	User     string `koanf:"POSTGRES_USER" json:"user"`
	Password string `koanf:"POSTGRES_PASSWORD" json:"password"`
	SSLMode  string `koanf:"POSTGRES_SSLMODE" json:"sslmode"`
}

// AuditConfig configures the CSV audit trail of store mutations. An empty path disables it.
type AuditConfig struct {
	FilePath          string `koanf:"AUDIT_LOG_PATH"`
	BatchSize         int    `koanf:"AUDIT_BATCH_SIZE"`
	FlushIntervalSecs int    `koanf:"AUDIT_FLUSH_SECONDS"`
}

// FlushInterval returns FlushIntervalSecs as a duration.
func (a AuditConfig) FlushInterval() time.Duration {
	return time.Duration(a.FlushIntervalSecs) * time.Second
}

// Default returns the configuration used for every key that is not set.
func Default() Config {
	return Config{
		Store:             StoreZoho,
		Report:            "All_Dispatch_Item_Costs",
		Form:              "Dispatch_Item_Cost",
		SourceCurrency:    "USD",
		TargetCurrency:    "ZMW",
		ListenAddr:        ":8080",
		SessionTTLMinutes: 30,
		Rates: RatesConfig{
			BaseURL:        "https://v6.exchangerate-api.com/v6",
			TimeoutSeconds: 10,
		},
		Zoho: ZohoConfig{
			AccountsURL: "https://accounts.zoho.com",
			APIURL:      "https://creator.zoho.com/api/v2",
			TokenFile:   "data/zoho_token.json",
		},
		Sheets: SheetsConfig{
			CredentialsFile: ClientSecretFile,
			TokenFile:       "data/token.json",
			SheetName:       "Dispatch Item Costs",
		},
		Postgres: PostgresConfig{
			Port:    5432,
			SSLMode: "disable",
		},
		Audit: AuditConfig{
			BatchSize:         10,
			FlushIntervalSecs: 30,
		},
		JSONStorePath: "data/dispatch_item_costs.json",
		LogLevel:      "INFO",
	}
}

// Load reads EnvFile if present, then the JSON file at path (skipped when path is empty),
// then the environment.
func Load(path string) (Config, error) {
	if err := godotenv.Load(EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("loading %s: %w", EnvFile, err)
	}

	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), kjson.Parser()); err != nil {
			return Config{}, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", nil), nil); err != nil {
		return Config{}, fmt.Errorf("loading config from environment: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf", FlatPaths: true}); err != nil {
		return Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))
	cfg.SourceCurrency = strings.ToUpper(strings.TrimSpace(cfg.SourceCurrency))
	cfg.TargetCurrency = strings.ToUpper(strings.TrimSpace(cfg.TargetCurrency))

	return cfg, nil
}

// Validate checks that the configuration is usable for the selected store.
func (c Config) Validate() error {
	var errs []error

	if _, err := currency.Lookup(c.SourceCurrency); err != nil {
		errs = append(errs, fmt.Errorf("DISPATCHCOST_SOURCE_CURRENCY: %w", err))
	}
	if _, err := currency.Lookup(c.TargetCurrency); err != nil {
		errs = append(errs, fmt.Errorf("DISPATCHCOST_TARGET_CURRENCY: %w", err))
	}
	if c.Report == "" {
		errs = append(errs, errors.New("DISPATCHCOST_REPORT is required"))
	}
	if c.Form == "" {
		errs = append(errs, errors.New("DISPATCHCOST_FORM is required"))
	}
	if c.Rates.BaseURL == "" {
		errs = append(errs, errors.New("RATES_BASE_URL is required"))
	}

	// Explicit plugin JSON is validated by the plugin itself.
	if c.StoreConfig == "" {
		errs = append(errs, c.validateStore()...)
	} else if !json.Valid([]byte(c.StoreConfig)) {
		errs = append(errs, errors.New("DISPATCHCOST_STORE_CONFIG is not valid JSON"))
	}

	return errors.Join(errs...)
}

func (c Config) validateStore() []error {
	var errs []error
	required := func(name, value string) {
		if value == "" {
			errs = append(errs, fmt.Errorf("%s is required for store %q", name, c.Store))
		}
	}

	switch c.Store {
	case StoreZoho:
		required("ZOHO_CLIENT_ID", c.Zoho.ClientID)
		required("ZOHO_CLIENT_SECRET", c.Zoho.ClientSecret)
		required("ZOHO_OWNER", c.Zoho.Owner)
		required("ZOHO_APP", c.Zoho.App)
	case StoreSheets:
		required("GSHEETS_NAME", c.Sheets.SheetName)
		if c.Sheets.SheetID == "" && c.Sheets.SheetTitle == "" {
			errs = append(errs, errors.New("either GSHEETS_ID or GSHEETS_TITLE is required"))
		}
	case StorePostgres:
		required("POSTGRES_HOST", c.Postgres.Host)
		required("POSTGRES_DB", c.Postgres.Database)
		required("POSTGRES_USER", c.Postgres.User)
	case StoreJSON:
		required("JSON_STORE_PATH", c.JSONStorePath)
	default:
		errs = append(errs, fmt.Errorf("unknown store %q", c.Store))
	}
	return errs
}

// PluginConfig returns the JSON configuration handed to the selected store plugin.
func (c Config) PluginConfig() (json.RawMessage, error) {
	if c.StoreConfig != "" {
		return json.RawMessage(c.StoreConfig), nil
	}

	var v any
	switch c.Store {
	case StoreZoho:
		v = c.Zoho
	case StoreSheets:
		v = c.Sheets
	case StorePostgres:
		v = c.Postgres
	case StoreJSON:
		v = map[string]string{"filePath": c.JSONStorePath}
	default:
		return nil, fmt.Errorf("unknown store %q", c.Store)
	}

	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s store config: %w", c.Store, err)
	}
	return b, nil
}

// SessionTTL returns SessionTTLMinutes as a duration.
func (c Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

// Origins splits AllowedOrigins into a list.
func (c Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
