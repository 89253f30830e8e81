package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment keys that override manifest settings. Values come from the
// process environment or from a .env file next to kagami.toml; the process
// environment wins.
const (
	EnvEntry        = "KAGAMI_ENTRY"
	EnvMaxCallDepth = "KAGAMI_MAX_CALL_DEPTH"
	EnvVerbosity    = "KAGAMI_VERBOSITY"
	EnvOffensive    = "KAGAMI_OFFENSIVE"
	EnvEventsURL    = "KAGAMI_EVENTS_URL"
	EnvStorePath    = "KAGAMI_STORE_PATH"
)

var envKeys = []string{EnvEntry, EnvMaxCallDepth, EnvVerbosity, EnvOffensive, EnvEventsURL, EnvStorePath}

// EnvFile returns the path of the optional .env file.
func (m *Manifest) EnvFile() string {
	return filepath.Join(m.Dir, ".env")
}

// ApplyEnv overlays KAGAMI_* settings onto m.
func (m *Manifest) ApplyEnv() error {
	vals := make(map[string]string)
	path := m.EnvFile()
	if _, err := os.Stat(path); err == nil {
		env, err := godotenv.Read(path)
		if err != nil {
			return fmt.Errorf("cannot read %s: %w", path, err)
		}
		for k, v := range env {
			vals[k] = v
		}
	}
	for _, key := range envKeys {
		if v, ok := os.LookupEnv(key); ok {
			vals[key] = v
		}
	}
	return m.applyEnv(vals)
}

func (m *Manifest) applyEnv(vals map[string]string) error {
	if v, ok := vals[EnvEntry]; ok && v != "" {
		m.Source.Entry = v
	}
	if v, ok := vals[EnvEventsURL]; ok {
		m.Events.URL = v
	}
	if v, ok := vals[EnvStorePath]; ok && v != "" {
		m.Store.Path = v
	}
	if v, ok := vals[EnvMaxCallDepth]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("%s: invalid call depth %q", EnvMaxCallDepth, v)
		}
		m.VM.MaxCallDepth = n
	}
	if v, ok := vals[EnvVerbosity]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvVerbosity, err)
		}
		m.VM.Verbosity = n
	}
	if v, ok := vals[EnvOffensive]; ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvOffensive, err)
		}
		m.VM.Offensive = b
	}
	return nil
}
