// Package config layers command configuration: defaults, then a JSON config
// file, then the environment (including a .env file), then flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Load fills cfg, whose fields must already hold their defaults and be bound
// to fset. configPath is the flag-bound config file path; CONFIG is used
// when it is empty.
//
// Flags are parsed twice: once to find the config file, and again after the
// file and the environment so that flags win.
//
// Example:
//
//	cfg := defaultConfig()
//	fset := flag.NewFlagSet("server", flag.ExitOnError)
//	fset.StringVar(&cfg.Address, "a", cfg.Address, "listen address")
//	fset.StringVar(&cfg.configFile, "c", "", "config file")
//	if err := config.Load(fset, os.Args[1:], &cfg, &cfg.configFile); err != nil {
//	    log.Fatal().Err(err).Send()
//	}
func Load(fset *flag.FlagSet, args []string, cfg any, configPath *string) error {
	if err := fset.Parse(args); err != nil {
		return err
	}

	if path := GetConfigFilePath(*configPath); path != "" {
		*configPath = path
		if err := LoadConfigFile(path, cfg); err != nil {
			return err
		}
	}

	if err := LoadDotEnv(); err != nil {
		return err
	}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}

	return fset.Parse(args)
}

// LoadConfigFile unmarshals a JSON file into cfg. Keys absent from the file
// leave cfg untouched.
func LoadConfigFile(path string, cfg any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// LoadDotEnv exports the variables of the given .env files (default ".env")
// without overriding variables already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// GetConfigFilePath returns configFlag, or CONFIG when the flag is empty.
func GetConfigFilePath(configFlag string) string {
	if configFlag != "" {
		return configFlag
	}
	return os.Getenv("CONFIG")
}

// ParseDuration accepts Go durations ("1m30s") and bare integers, which are
// seconds ("10", "10s" and "10" are equal).
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty duration")
	}

	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("duration must not be negative, got %d", n)
		}
		return time.Duration(n) * time.Second, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration format: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("duration must not be negative, got %s", d)
	}
	return d, nil
}

// Duration is a time.Duration that reads the ParseDuration syntax from JSON,
// the environment and flags.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// Set implements flag.Value.
func (d *Duration) Set(s string) error {
	v, err := ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// SetValue implements cleanenv.Setter.
func (d *Duration) SetValue(s string) error {
	return d.Set(s)
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return d.Set(s)
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("duration must be a string or a number of seconds: %s", data)
	}
	return d.Set(strconv.FormatInt(n, 10))
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// StringList is a comma separated list for flags.
type StringList []string

func (l StringList) String() string { return strings.Join(l, ",") }

func (l *StringList) Set(s string) error {
	*l = nil
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*l = append(*l, part)
		}
	}
	return nil
}

// SetValue implements cleanenv.Setter.
func (l *StringList) SetValue(s string) error {
	return l.Set(s)
}
