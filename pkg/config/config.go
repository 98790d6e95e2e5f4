// Package config reads the deployment parameters of the Osmose frontend from
// the process environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/user"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/joho/godotenv"
)

// Defaults used when the corresponding variable is unset.
const (
	DefaultDBHost   = "" // empty means the local socket
	DefaultDBPort   = "5432"
	DefaultDBUser   = "osmose"
	DefaultDBPass   = "clostAdtoi"
	DefaultDBName   = "osmose_frontend"
	DefaultSiteURL  = "https://osmose.openstreetmap.fr"
	DefaultProject  = "OpenStreetMap"
	DefaultOSMURL   = "https://www.openstreetmap.org/"
	resultsTemplate = "/data/work/%s/results"
	redacted        = "********"
)

// Environment variable names.
const (
	EnvDBHost         = "DB_HOST"
	EnvDBPort         = "DB_PORT"
	EnvDBUser         = "DB_USER"
	EnvDBPass         = "DB_PASS"
	EnvDBName         = "DB_NAME"
	EnvSiteURL        = "URL_FRONTEND"
	EnvMainProject    = "OSM_MAIN_PROJECT"
	EnvMainWebsite    = "OSM_MAIN_WEBSITE"
	EnvRemoteURL      = "OSM_REMOTE_URL"
	EnvRemoteURLRead  = "OSM_REMOTE_URL_READ"
	EnvRemoteURLWrite = "OSM_REMOTE_URL_WRITE"
)

// ErrUserLookup is returned when the current OS user cannot be resolved.
var ErrUserLookup = errors.New("resolving current user")

// Config holds the frontend deployment parameters.
// It is built once by Load and must not be modified afterwards.
type Config struct {
	DBHost     string `json:"db_host"`
	DBPort     string `json:"db_port"`
	DBUser     string `json:"db_user"`
	DBPassword string `json:"db_password"`
	DBName     string `json:"db_name"`

	SiteURL string `json:"site_url"`

	// OSM project the frontend reports on
	MainProject    string `json:"main_project"`
	MainWebsite    string `json:"main_website"`
	RemoteURL      string `json:"remote_url"`
	RemoteURLRead  string `json:"remote_url_read"`
	RemoteURLWrite string `json:"remote_url_write"`

	OSUsername string `json:"os_username"`
	ResultsDir string `json:"results_dir"`
}

type options struct {
	lookupEnv   func(string) (string, bool)
	currentUser func() (*user.User, error)
	envFiles    []string
}

// Option customises Load.
type Option func(*options)

// WithLookupEnv replaces os.LookupEnv.
func WithLookupEnv(fn func(string) (string, bool)) Option {
	return func(o *options) { o.lookupEnv = fn }
}

// WithCurrentUser replaces user.Current.
func WithCurrentUser(fn func() (*user.User, error)) Option {
	return func(o *options) { o.currentUser = fn }
}

// WithEnvFiles sets the dotenv files consulted after the environment.
// Missing files are skipped.
func WithEnvFiles(files ...string) Option {
	return func(o *options) { o.envFiles = files }
}

// Load builds the configuration. Variables set in the environment take
// precedence over values from .env files.
func Load(opts ...Option) (*Config, error) {
	o := options{
		lookupEnv:   os.LookupEnv,
		currentUser: user.Current,
		envFiles:    []string{".env", ".env.local"},
	}
	for _, opt := range opts {
		opt(&o)
	}

	fileEnv, err := readEnvFiles(o.envFiles)
	if err != nil {
		return nil, err
	}

	get := func(key, def string) string {
		if v, ok := o.lookupEnv(key); ok {
			return v
		}
		if v, ok := fileEnv[key]; ok {
			return v
		}
		return def
	}
	// empty counts as unset
	getNonEmpty := func(key, def string) string {
		if v := get(key, ""); v != "" {
			return v
		}
		return def
	}

	u, err := o.currentUser()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUserLookup, err)
	}

	remote := getNonEmpty(EnvRemoteURL, DefaultOSMURL)

	return &Config{
		DBHost:         get(EnvDBHost, DefaultDBHost),
		DBPort:         get(EnvDBPort, DefaultDBPort),
		DBUser:         get(EnvDBUser, DefaultDBUser),
		DBPassword:     get(EnvDBPass, DefaultDBPass),
		DBName:         get(EnvDBName, DefaultDBName),
		SiteURL:        getNonEmpty(EnvSiteURL, DefaultSiteURL),
		MainProject:    getNonEmpty(EnvMainProject, DefaultProject),
		MainWebsite:    getNonEmpty(EnvMainWebsite, DefaultOSMURL),
		RemoteURL:      remote,
		RemoteURLRead:  getNonEmpty(EnvRemoteURLRead, remote),
		RemoteURLWrite: getNonEmpty(EnvRemoteURLWrite, remote),
		OSUsername:     u.Username,
		ResultsDir:     fmt.Sprintf(resultsTemplate, u.Username),
	}, nil
}

func readEnvFiles(files []string) (map[string]string, error) {
	env := make(map[string]string)
	// earlier files win, matching godotenv.Load
	for i := len(files) - 1; i >= 0; i-- {
		if _, err := os.Stat(files[i]); errors.Is(err, os.ErrNotExist) {
			continue
		}
		values, err := godotenv.Read(files[i])
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", files[i], err)
		}
		for k, v := range values {
			env[k] = v
		}
	}
	return env, nil
}

// KeywordDSN returns the libpq keyword/value connection string.
func (c *Config) KeywordDSN() string {
	return fmt.Sprintf("host='%s' port='%s' dbname='%s' user='%s' password='%s'",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword)
}

// URIDSN returns the postgres:// connection URI. Without a host the
// authority is left empty so the driver uses the local socket.
func (c *Config) URIDSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.DBUser, c.DBPassword),
		Path:   "/" + c.DBName,
	}
	if c.DBHost != "" {
		u.Host = net.JoinHostPort(c.DBHost, c.DBPort)
	}
	return u.String()
}

// Redacted returns a copy safe to log or display.
func (c *Config) Redacted() Config {
	r := *c
	if r.DBPassword != "" {
		r.DBPassword = redacted
	}
	return r
}

// PoolConfig parses the connection parameters into a pgx pool configuration.
func (c *Config) PoolConfig() (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(c.URIDSN())
	if err != nil {
		return nil, fmt.Errorf("parsing database configuration: %w", err)
	}
	return cfg, nil
}

// Connect opens a connection pool to the frontend database.
func (c *Config) Connect(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := c.PoolConfig()
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database %s: %w", c.DBName, err)
	}
	return pool, nil
}
