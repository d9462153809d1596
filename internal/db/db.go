package db

import (
	"cmp"
	"fmt"
	"os"
	"strconv"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	Postgres = "postgres"
	SQLite   = "sqlite3"
)

type Config struct {
	Driver     string
	Host       string
	Port       string
	Username   string
	Password   string
	DBName     string
	SSLMode    string
	SQLitePath string
}

func NewConfigFromEnv() *Config {
	return &Config{
		Driver:     os.Getenv("DB_DRIVER"),
		Host:       os.Getenv("POSTGRES_HOST"),
		Port:       os.Getenv("POSTGRES_PORT"),
		Username:   os.Getenv("POSTGRES_USERNAME"),
		Password:   os.Getenv("POSTGRES_PASSWORD"),
		DBName:     os.Getenv("POSTGRES_DB_NAME"),
		SSLMode:    os.Getenv("POSTGRES_SSL_MODE"),
		SQLitePath: os.Getenv("SQLITE_PATH"),
	}
}

func (c *Config) Setup() *Config {
	const (
		defaultDriver     = Postgres
		defaultHost       = "localhost"
		defaultPort       = "5432"
		defaultUsername   = "postgres"
		defaultPassword   = "postgres"
		defaultDBName     = "postgres"
		defaultSSLMode    = "disable"
		defaultSQLitePath = "./demo-trading.sqlite"
	)

	c.Driver = cmp.Or(c.Driver, defaultDriver)
	if c.Driver != Postgres && c.Driver != SQLite {
		c.Driver = defaultDriver
	}
	c.Host = cmp.Or(c.Host, defaultHost)
	c.Port = cmp.Or(c.Port, defaultPort)
	if _, err := strconv.Atoi(c.Port); err != nil {
		c.Port = defaultPort
	}
	c.Username = cmp.Or(c.Username, defaultUsername)
	c.Password = cmp.Or(c.Password, defaultPassword)
	c.DBName = cmp.Or(c.DBName, defaultDBName)
	c.SSLMode = cmp.Or(c.SSLMode, defaultSSLMode)
	c.SQLitePath = cmp.Or(c.SQLitePath, defaultSQLitePath)

	return c
}

// DSN builds the driver specific data source name.
func (c *Config) DSN() string {
	if c.Driver == SQLite {
		// immediate transactions take the write lock on BEGIN, so two
		// read-modify-write transactions never deadlock on lock upgrade
		return fmt.Sprintf("file:%s?_busy_timeout=5000&_txlock=immediate&_foreign_keys=on", c.SQLitePath)
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Username, c.DBName, c.Password, c.SSLMode,
	)
}

// String hides the password, it ends up in logs.
func (c *Config) String() string {
	if c.Driver == SQLite {
		return "sqlite3 " + c.SQLitePath
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.Username, c.DBName, c.SSLMode,
	)
}

func NewDB(cfg *Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect(cfg.Driver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("%w: can't connect to %s", err, cfg.Driver)
	}
	if cfg.Driver == SQLite {
		db.SetMaxOpenConns(1)
	}
	return db, nil
}
