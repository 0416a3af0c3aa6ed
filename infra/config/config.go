package config

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

const path = "infra/config"

// Server is the configuration of the model server.
type Server struct {
	Port       int    `json:"port"`
	StorageDir string `json:"storage_dir"`
	Debug      bool   `json:"debug"`
	LogLevel   string `json:"log_level"`
	Metrics    bool   `json:"metrics"`
}

// DefaultServer returns the server configuration used when no file is given.
func DefaultServer() Server {
	return Server{
		Port:       8080,
		StorageDir: "file-storage",
		LogLevel:   "info",
		Metrics:    true,
	}
}

// Load loads the config for the given key from the given directory.
func Load(dir, key string, v interface{}) ([]byte, error) {
	b, err := ioutil.ReadFile(filepath.Join(dir, fmt.Sprintf("%s.json", key)))
	if err != nil {
		return nil, fmt.Errorf("could not load config for %s: %w", key, err)
	}
	err = json.Unmarshal(b, v)
	if err != nil {
		return nil, fmt.Errorf("could not unmarshal the config for %s: %w", key, err)
	}
	log.Info().Str("config", key).Msg("loaded config")
	return b, nil
}

// MustLoad loads the config for the given key
func MustLoad(key string, v interface{}) []byte {
	b, err := Load(path, key, v)
	if err != nil {
		panic(err.Error())
	}
	return b
}
