package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from an optional file plus SKIFF_*
// environment overrides. An empty configPath searches the default
// locations; a missing file is not an error, since every setting has a
// default and the backend may come entirely from the environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v)

	v.SetEnvPrefix("SKIFF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configPath, err)
		}
	} else {
		v.SetConfigName("skiff")
		for _, dir := range defaultDirs() {
			v.AddConfigPath(dir)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("backend.base_url", d.Backend.BaseURL)
	v.SetDefault("backend.public_base_url", d.Backend.PublicBaseURL)
	v.SetDefault("backend.root_path", d.Backend.RootPath)
	v.SetDefault("backend.password", d.Backend.Password)
	v.SetDefault("backend.cookie", d.Backend.Cookie)
	v.SetDefault("backend.timeout", d.Backend.Timeout)

	v.SetDefault("upload.max_concurrent", d.Upload.MaxConcurrent)
	v.SetDefault("upload.mobile_max_concurrent", d.Upload.MobileMaxConcurrent)
	v.SetDefault("upload.history_limit", d.Upload.HistoryLimit)

	v.SetDefault("server.listen", d.Server.Listen)

	v.SetDefault("history.enabled", d.History.Enabled)
	v.SetDefault("history.path", d.History.Path)
	v.SetDefault("history.limit", d.History.Limit)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

func defaultDirs() []string {
	dirs := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs,
			filepath.Join(home, ".config", "skiff"),
			filepath.Join(home, ".skiff"),
		)
	}
	return dirs
}
