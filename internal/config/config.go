package config

import (
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
)

const defaultRooms = "general_chat=General Chat,tech_talk=Tech Talk,random_chat=Random Chat,help_support=Help & Support"

type Room struct {
	Id   string
	Name string
}

type Config struct {
	ServerAddr           string   `env:"CHAT_RELAY_ADDR" envDefault:"localhost:8000"`
	StoreDriver          string   `env:"CHAT_RELAY_STORE" envDefault:"sqlite"`
	DatabaseDSN          string   `env:"CHAT_RELAY_DSN" envDefault:"chat_server.db"`
	AllowedOrigins       []string `env:"CHAT_RELAY_ALLOWED_ORIGINS" envSeparator:","`
	RoomSpec             string   `env:"CHAT_RELAY_ROOMS"`
	DisconnectSuperseded bool     `env:"CHAT_RELAY_DISCONNECT_SUPERSEDED" envDefault:"false"`
	Rooms                []Room   `env:"-"`
}

type stringSliceFlag struct {
	values *[]string
	set    bool
}

func (s *stringSliceFlag) String() string {
	if s.values == nil {
		return ""
	}
	return strings.Join(*s.values, ",")
}

// Set replaces values taken from the environment on first use and appends
// on repeated flags.
func (s *stringSliceFlag) Set(value string) error {
	if !s.set {
		*s.values = nil
		s.set = true
	}
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			*s.values = append(*s.values, v)
		}
	}
	return nil
}

// Load reads the environment, then lets command-line flags override it.
func Load(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := Config{RoomSpec: defaultRooms}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	fs.StringVar(&cfg.ServerAddr, "addr", cfg.ServerAddr, "server address")
	fs.StringVar(&cfg.StoreDriver, "store", cfg.StoreDriver, "message store driver: sqlite or postgres")
	fs.StringVar(&cfg.DatabaseDSN, "dsn", cfg.DatabaseDSN, "database connection string or sqlite file path")
	fs.Var(&stringSliceFlag{values: &cfg.AllowedOrigins}, "allowed-origins", "comma-separated list of allowed origins for CORS")
	fs.StringVar(&cfg.RoomSpec, "rooms", cfg.RoomSpec, "comma-separated list of id=Display Name rooms")
	fs.BoolVar(&cfg.DisconnectSuperseded, "disconnect-superseded", cfg.DisconnectSuperseded, "close a connection when another signs in with the same identity")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.ServerAddr == "" {
		return fmt.Errorf("server address cannot be empty")
	}
	if c.DatabaseDSN == "" {
		return fmt.Errorf("database DSN cannot be empty")
	}

	switch c.StoreDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported store driver %q", c.StoreDriver)
	}

	rooms, err := parseRooms(c.RoomSpec)
	if err != nil {
		return fmt.Errorf("parse rooms: %w", err)
	}
	c.Rooms = rooms

	return nil
}

func parseRooms(raw string) ([]Room, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var (
		rooms []Room
		seen  = make(map[string]struct{})
	)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		id, name, found := strings.Cut(entry, "=")
		id, name = strings.TrimSpace(id), strings.TrimSpace(name)
		if id == "" {
			return nil, fmt.Errorf("room %s: empty id", strconv.Quote(entry))
		}
		if !found || name == "" {
			name = id
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("room %q declared twice", id)
		}

		seen[id] = struct{}{}
		rooms = append(rooms, Room{Id: id, Name: name})
	}

	return rooms, nil
}
