package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up in the standard locations.
const FileName = "apod.yaml"

// ErrNoConfig means no config file was found. It is not fatal: every
// setting has a flag, an environment variable and a default.
var ErrNoConfig = errors.New("no config file found in standard locations")

// Type is a parsed config file. Source is the file path, which flag value
// sources read again by key.
type Type struct {
	Source string
	Data   map[string]interface{}
}

// Load reads the config file. With an explicit path only that file is
// tried; otherwise APOD_CONFIG, $XDG_CONFIG_HOME, $HOME and the working
// directory are searched in order.
func Load(cfgFilePath ...string) (Type, error) {
	path, err := getConfigPath(cfgFilePath...)
	if err != nil {
		return Type{}, err
	}

	bytes, err := os.ReadFile(path)
	if err != nil {
		return Type{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var data map[string]interface{}
	if err := yaml.Unmarshal(bytes, &data); err != nil {
		return Type{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	return Type{
		Source: path,
		Data:   data,
	}, nil
}

// get traverses the map using a dotted key path
func (cfg Type) get(kspec string) (any, error) {
	var current interface{} = cfg.Data

	for _, key := range strings.Split(kspec, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("no value at path %q", kspec)
		}
		current, ok = m[key]
		if !ok {
			return nil, fmt.Errorf("no value at path %q", kspec)
		}
	}

	return current, nil
}

// GetString returns the string at the dotted key, or defaultValue if given
// and the key is absent.
func (cfg Type) GetString(key string, defaultValue ...string) (string, error) {
	val, err := cfg.get(key)
	if err != nil {
		if len(defaultValue) == 1 {
			return defaultValue[0], nil
		}
		return "", err
	}

	s, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("value at %q is not a string", key)
	}

	return s, nil
}

// GetInt returns the integer at the dotted key, or defaultValue if given and
// the key is absent.
func (cfg Type) GetInt(key string, defaultValue ...int) (int, error) {
	val, err := cfg.get(key)
	if err != nil {
		if len(defaultValue) == 1 {
			return defaultValue[0], nil
		}
		return 0, err
	}

	// YAML numbers may be unmarshaled as int/float64 depending on content.
	switch v := val.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("value at %q is not an int", key)
	}
}

var (
	intKeys    = []string{"cache.max_items", "cache.ttl_ms", "server.port"}
	stringKeys = []string{"nasa.api_key", "nasa.base_url", "log.level", "log.format"}
)

// Validate checks that the keys the server reads have the expected YAML type.
// Absent keys are fine.
func (cfg Type) Validate() error {
	if cfg.Data == nil {
		return nil
	}

	var errs []error
	for _, key := range intKeys {
		if _, err := cfg.GetInt(key, 0); err != nil {
			errs = append(errs, err)
		}
	}
	for _, key := range stringKeys {
		if _, err := cfg.GetString(key, ""); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config %s: %w", cfg.Source, errors.Join(errs...))
	}
	return nil
}

func getConfigPath(explicit ...string) (string, error) {
	if len(explicit) > 0 && explicit[0] != "" {
		if _, err := os.Stat(explicit[0]); err != nil {
			return "", fmt.Errorf("config file %s: %w", explicit[0], err)
		}
		return explicit[0], nil
	}

	if p := os.Getenv("APOD_CONFIG"); p != "" {
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("config file %s: %w", p, err)
		}
		return p, nil
	}

	candidates := []string{
		os.Getenv("XDG_CONFIG_HOME"),
		os.Getenv("HOME"),
		".",
	}

	for _, c := range candidates {
		if c == "" {
			continue
		}
		file := filepath.Join(c, FileName)
		if fileInfo, err := os.Stat(file); err == nil && !fileInfo.IsDir() {
			log.Debugf("using config file: %s", file)
			return file, nil
		}
	}
	return "", ErrNoConfig
}
