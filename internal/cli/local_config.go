package cli

import (
	"os"

	"github.com/ipscope/ipscope/internal/config"
)

func defaultConfigPath() string {
	if v := os.Getenv("IPSCOPE_CONFIG"); v != "" {
		return v
	}
	if _, err := os.Stat("config.yml"); err == nil {
		return "config.yml"
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}
	if _, err := os.Stat("/etc/ipscope/config.yaml"); err == nil {
		return "/etc/ipscope/config.yaml"
	}
	if _, err := os.Stat("/etc/ipscope/config.yml"); err == nil {
		return "/etc/ipscope/config.yml"
	}
	return ""
}

// loadLocalConfig resolves the server config. With no explicit path and no
// config file on disk, built-in defaults are used.
func loadLocalConfig(path string) (*config.Config, error) {
	if path == "" {
		path = defaultConfigPath()
	}
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}
