package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

// EnvFileVar names the variable consulted when no path was set explicitly.
const EnvFileVar = "ENV_FILE"

var (
	mu          sync.Mutex
	envFilePath string
	loadedPath  string
	// fromFile holds the values an env file exported, so a file selected
	// later can replace them without touching variables set by the process.
	fromFile = map[string]string{}
)

// SetEnvFile selects the .env file exported before decoding. The CLI calls
// it with the value of its --env flag.
func SetEnvFile(path string) {
	mu.Lock()
	defer mu.Unlock()
	envFilePath = strings.TrimSpace(path)
	loadedPath = ""
}

func MustNew[T any](prefix string) *T {
	conf, err := New[T](prefix)
	if err != nil {
		panic(err)
	}
	return conf
}

func New[T any](prefix string) (*T, error) {
	if err := loadEnvironment(); err != nil {
		return nil, err
	}

	var conf T
	if err := envconfig.Process(prefix, &conf); err != nil {
		return nil, err
	}

	return &conf, nil
}

// loadEnvironment exports the env file once per selected path.
func loadEnvironment() error {
	mu.Lock()
	defer mu.Unlock()

	path := resolveEnvPath()
	key := path
	if key == "" {
		key = ".env"
	}
	if loadedPath == key {
		return nil
	}

	if path != "" {
		if err := exportEnvironment(path); err != nil {
			return fmt.Errorf("failed to load env file: %w", err)
		}
	} else if err := exportEnvironmentIfExists(".env"); err != nil {
		return fmt.Errorf("failed to load default env file: %w", err)
	}
	loadedPath = key
	return nil
}

func resolveEnvPath() string {
	if envFilePath != "" {
		return envFilePath
	}
	return strings.TrimSpace(os.Getenv(EnvFileVar))
}

func exportEnvironmentIfExists(filepath string) error {
	info, err := os.Stat(filepath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if info.IsDir() {
		return nil
	}
	return exportEnvironment(filepath)
}

// exportEnvironment copies the file's keys into the process environment.
// Variables set outside any env file win over the file; values exported by
// an earlier file are replaced.
func exportEnvironment(filepath string) error {
	v := viper.New()
	v.SetConfigFile(filepath)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return err
	}

	for k, val := range v.AllSettings() {
		name := strings.ToUpper(k)
		if current, exists := os.LookupEnv(name); exists {
			if exported, ok := fromFile[name]; !ok || exported != current {
				continue
			}
		}
		value := fmt.Sprint(val)
		if err := os.Setenv(name, value); err != nil {
			return err
		}
		fromFile[name] = value
	}

	return nil
}
