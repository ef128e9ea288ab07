package kaggle

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
)

var ErrMissingCredentials = errors.New("kaggle credentials not found")

type Credentials struct {
	Username string `json:"username" env:"KAGGLE_USERNAME"`
	Key      string `json:"key" env:"KAGGLE_KEY"`
}

func (c Credentials) valid() bool {
	return c.Username != "" && c.Key != ""
}

type environment struct {
	Credentials
	ConfigDir string `env:"KAGGLE_CONFIG_DIR"`
	Home      string `env:"HOME"`
}

// ResolveCredentials looks for credentials in jsonPath, then in the
// KAGGLE_USERNAME/KAGGLE_KEY variables, then in $KAGGLE_CONFIG_DIR/kaggle.json
// and finally in ~/.kaggle/kaggle.json.
func ResolveCredentials(jsonPath string) (Credentials, error) {
	return resolveCredentials(jsonPath, nil)
}

// resolveCredentials reads variables from environ, or from the process
// environment when environ is nil.
func resolveCredentials(jsonPath string, environ map[string]string) (Credentials, error) {
	if jsonPath != "" {
		return readCredentials(jsonPath)
	}
	var cfg environment
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return Credentials{}, errors.Wrap(err, "parse environment")
	}
	if cfg.Credentials.valid() {
		return cfg.Credentials, nil
	}
	var candidates []string
	if cfg.ConfigDir != "" {
		candidates = append(candidates, filepath.Join(cfg.ConfigDir, "kaggle.json"))
	}
	if cfg.Home != "" {
		candidates = append(candidates, filepath.Join(cfg.Home, ".kaggle", "kaggle.json"))
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		return readCredentials(path)
	}
	return Credentials{}, ErrMissingCredentials
}

func readCredentials(path string) (Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Credentials{}, errors.Wrap(ErrMissingCredentials, err.Error())
	}
	var c Credentials
	if err := json.Unmarshal(data, &c); err != nil {
		return Credentials{}, errors.Wrapf(err, "parse %v", path)
	}
	if !c.valid() {
		return Credentials{}, errors.Wrapf(ErrMissingCredentials, "%v has no username or key", path)
	}
	return c, nil
}
