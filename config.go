/*
Package salesman – connection configuration.

Settings come from the SALESMAN_* environment, optionally seeded from .env
files.
*/
package salesman

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultLoginURL   = "https://login.salesforce.com"
	DefaultAPIVersion = "v34.0"
)

// ConnectionConfig holds the credentials and limits of a remote connection.
type ConnectionConfig struct {
	Username      string
	Password      string
	SecurityToken string
	LoginURL      string
	ClientID      string
	ClientSecret  string
	APIVersion    string
	// MaxConnectionTime is the session lifetime before a new login.
	MaxConnectionTime time.Duration
}

// WithDefaults fills unset values.
func (c ConnectionConfig) WithDefaults() ConnectionConfig {
	if c.LoginURL == "" {
		c.LoginURL = DefaultLoginURL
	}
	if c.APIVersion == "" {
		c.APIVersion = DefaultAPIVersion
	}
	if c.MaxConnectionTime <= 0 {
		c.MaxConnectionTime = DefaultMaxConnectionTime
	}
	return c
}

// Validate reports missing credentials.
func (c ConnectionConfig) Validate() error {
	switch {
	case c.Username == "":
		return NewArgError("missing username (SALESMAN_USERNAME)")
	case c.Password == "":
		return NewArgError("missing password (SALESMAN_PASSWORD)")
	case c.ClientID == "":
		return NewArgError("missing client id (SALESMAN_CLIENT_ID)")
	}
	return nil
}

// LoadConfig loads the given .env files (".env" when none are given) into the
// process environment and reads the SALESMAN_* variables. Missing files are
// skipped; variables already set in the environment win.
func LoadConfig(files ...string) (ConnectionConfig, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return ConnectionConfig{}, NewError("cannot read "+f, WithCode(ErrArgument), WithCause(err))
		}
	}

	cfg := ConnectionConfig{
		Username:      os.Getenv("SALESMAN_USERNAME"),
		Password:      os.Getenv("SALESMAN_PASSWORD"),
		SecurityToken: os.Getenv("SALESMAN_SECURITY_TOKEN"),
		LoginURL:      os.Getenv("SALESMAN_LOGIN_URL"),
		ClientID:      os.Getenv("SALESMAN_CLIENT_ID"),
		ClientSecret:  os.Getenv("SALESMAN_CLIENT_SECRET"),
		APIVersion:    os.Getenv("SALESMAN_API_VERSION"),
	}
	if v := os.Getenv("SALESMAN_MAX_CONNECTION_TIME"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return ConnectionConfig{}, NewError("invalid SALESMAN_MAX_CONNECTION_TIME: "+v,
				WithCode(ErrArgument), WithCause(err))
		}
		cfg.MaxConnectionTime = d
	}
	return cfg.WithDefaults(), nil
}
