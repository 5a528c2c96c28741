package dbconn

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DriverPostgres = "postgres"
	DriverPGX      = "pgx"
	DriverSQLite   = "sqlite3"
)

const (
	defaultCharset         = "UTF8"
	defaultSSLMode         = "disable"
	defaultMaxOpenConns    = 10
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = time.Hour
	sqliteBusyTimeoutMS    = 5000
)

// Config describes one database endpoint. For sqlite3 only Database is used and it
// holds the file path.
type Config struct {
	Driver          string
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	Charset         string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func (c Config) withDefaults() Config {
	c.Driver = strings.ToLower(strings.TrimSpace(c.Driver))
	if c.Driver == "" {
		c.Driver = DriverPostgres
	}
	if c.Charset == "" {
		c.Charset = defaultCharset
	}
	if c.SSLMode == "" {
		c.SSLMode = defaultSSLMode
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = defaultMaxOpenConns
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = defaultMaxIdleConns
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = defaultConnMaxLifetime
	}
	if c.Driver == DriverSQLite {
		// single writer
		c.MaxOpenConns = 1
		c.MaxIdleConns = 1
	}
	return c
}

// Missing lists the required settings that are empty.
func (c Config) Missing() []string {
	var missing []string
	if strings.TrimSpace(c.Driver) == DriverSQLite {
		if strings.TrimSpace(c.Database) == "" {
			missing = append(missing, "database")
		}
		return missing
	}
	if strings.TrimSpace(c.Host) == "" {
		missing = append(missing, "host")
	}
	if c.Port <= 0 {
		missing = append(missing, "port")
	}
	if strings.TrimSpace(c.User) == "" {
		missing = append(missing, "user")
	}
	if c.Password == "" {
		missing = append(missing, "password")
	}
	if strings.TrimSpace(c.Database) == "" {
		missing = append(missing, "database")
	}
	return missing
}

func (c Config) Validate() error {
	if _, err := DialectFor(c.Driver); err != nil {
		return err
	}
	if missing := c.Missing(); len(missing) > 0 {
		return fmt.Errorf("missing required database settings: %s", strings.Join(missing, ", "))
	}
	if c.Driver != DriverSQLite && c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	return nil
}

// DSN renders the connection string understood by the configured driver.
func (c Config) DSN() string {
	if c.Driver == DriverSQLite {
		return fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on", c.Database, sqliteBusyTimeoutMS)
	}

	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	if c.Charset != "" {
		q.Set("client_encoding", c.Charset)
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Database,
		RawQuery: q.Encode(),
	}
	return u.String()
}
