package config

import (
	"path/filepath"

	"github.com/spf13/viper"
)

// DefaultSettingsDir is used when no settings file was found
const DefaultSettingsDir = "./.genesis"

// BaseSettingsDir returns the directory holding the active settings file
func BaseSettingsDir() string {
	// Check if config.path is explicitly set (for testing)
	if configPath := viper.GetString("config.path"); configPath != "" {
		return configPath
	}

	currentConfig := viper.ConfigFileUsed()
	if currentConfig == "" {
		return DefaultSettingsDir
	}
	return filepath.Dir(currentConfig)
}

// BuildSettingsPath joins target onto the settings directory
func BuildSettingsPath(target string) string {
	return filepath.Join(BaseSettingsDir(), target)
}

// ResolvePath keeps absolute paths and places relative ones next to the settings file
func ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return BuildSettingsPath(filepath.Base(p))
}
