/*
Package config manages the TOML config of FaultyAI.
*/
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/bastiangx/faultyai/internal/utils"
	"github.com/bastiangx/faultyai/pkg/render"
	"github.com/bastiangx/faultyai/pkg/session"
)

const appName = "faultyai"

// Config holds the entire config structure
type Config struct {
	Engine EngineConfig `toml:"engine"`
	Server ServerConfig `toml:"server"`
	CLI    CliConfig    `toml:"cli"`
}

// EngineConfig tunes the suggestion engine.
type EngineConfig struct {
	TabSize           int    `toml:"tab_size"`
	InsertSpaces      bool   `toml:"insert_spaces"`
	Layout            string `toml:"layout"`
	FormatAfterAccept bool   `toml:"format_after_accept"`
	FormatDelayMs     int    `toml:"format_delay_ms"`
	Notify            bool   `toml:"notify"`
}

// ServerConfig has server related options.
type ServerConfig struct {
	DisableAutoClosingBrackets bool `toml:"disable_auto_closing_brackets"`
	MaxDocuments               int  `toml:"max_documents"`
	ReloadConfig               bool `toml:"reload_config"`
}

// CliConfig holds cli interface options.
type CliConfig struct {
	Color    bool `toml:"color"`
	ShowDiff bool `toml:"show_diff"`
}

// SessionOptions converts the engine section for a session controller.
func (e EngineConfig) SessionOptions() session.Options {
	delay := e.FormatDelayMs
	if delay < 0 {
		delay = 0
	}
	return session.Options{
		Policy:            render.ParsePolicy(e.Layout),
		FormatAfterAccept: e.FormatAfterAccept,
		FormatDelay:       time.Duration(delay) * time.Millisecond,
		Notify:            e.Notify,
		TabSize:           e.TabSize,
	}
}

// GetConfigDir returns the first writable config directory, falling back to the executable dir.
func GetConfigDir() (string, error) {
	for _, dir := range utils.ConfigDirCandidates(appName) {
		if result := utils.CheckDirStatus(dir); result.Writable {
			return dir, nil
		}
	}
	execDir, err := utils.GetExecutableDir()
	if err != nil {
		log.Errorf("Failed to get executable directory: %v", err)
		return "", err
	}
	return execDir, nil
}

// GetDefaultConfigPath returns the default path for config.toml
func GetDefaultConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.toml"), nil
}

// LoadConfigWithPriority loads config with priority:
// 1. Custom path from -config flag
// 2. Default path: [UserConfigDir]/faultyai/config.toml
// 3. Builtin defaults
func LoadConfigWithPriority(customConfigPath string) (*Config, string, error) {
	if customConfigPath != "" {
		if _, statErr := os.Stat(customConfigPath); statErr == nil {
			config, err := LoadConfig(customConfigPath)
			if err != nil {
				log.Warnf("Failed to load custom config from %s: %v. Trying default path...", customConfigPath, err)
			} else {
				log.Debugf("Loaded config from custom path: %s", customConfigPath)
				return config, customConfigPath, nil
			}
		} else {
			log.Warnf("Custom config file not found at %s: %v. Trying default path...", customConfigPath, statErr)
		}
	}
	defaultPath, err := GetDefaultConfigPath()
	if err != nil {
		log.Warnf("Failed to determine default config path: %v. Using built-in defaults...", err)
		return DefaultConfig(), "", nil
	}

	config, err := InitConfig(defaultPath)
	if err != nil {
		log.Warnf("Failed to load/create config at default path %s: %v. Using builtin defaults...", defaultPath, err)
		return DefaultConfig(), "", nil
	}
	log.Debugf("Loaded config from default path: %s", defaultPath)
	return config, defaultPath, nil
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			TabSize:           2,
			InsertSpaces:      true,
			Layout:            render.PolicySpacer.String(),
			FormatAfterAccept: true,
			FormatDelayMs:     50,
			Notify:            true,
		},
		Server: ServerConfig{
			DisableAutoClosingBrackets: true,
			MaxDocuments:               32,
			ReloadConfig:               true,
		},
		CLI: CliConfig{
			Color:    true,
			ShowDiff: true,
		},
	}
}

// InitConfig loads config from file or creates default if missing
func InitConfig(configPath string) (*Config, error) {
	configDir := filepath.Dir(configPath)

	if err := utils.EnsureDir(configDir); err != nil {
		log.Warnf("Failed to create config directory %s: %v. Using built-in defaults...", configDir, err)
		return DefaultConfig(), nil
	}

	if !utils.FileExists(configPath) {
		config := DefaultConfig()
		if err := SaveConfig(config, configPath); err != nil {
			log.Warnf("Failed to create default config file at %s: %v. Using built-in defaults...", configPath, err)
			return DefaultConfig(), nil
		}
		log.Debugf("Created default config file at: %s", configPath)
		return config, nil
	}

	return LoadConfig(configPath)
}

// LoadConfig loads from a TOML file. A file that does not parse as a whole is read section by
// section, keeping defaults for whatever cannot be recovered.
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	if err := utils.LoadTOMLFile(configPath, config); err != nil {
		return tryPartialParse(configPath)
	}
	config.normalize()
	return config, nil
}

// tryPartialParse attempts to parse a TOML file
func tryPartialParse(configPath string) (*Config, error) {
	config := DefaultConfig()

	tempConfig, err := utils.ParseTOMLWithRecovery(configPath)
	if err != nil {
		log.Warnf("Could not parse any valid configuration from %s: %v. Using all defaults.", configPath, err)
		return config, nil
	}

	if section, ok := utils.ExtractSection(tempConfig, "engine"); ok {
		extractEngineConfig(section, &config.Engine)
	}
	if section, ok := utils.ExtractSection(tempConfig, "server"); ok {
		extractServerConfig(section, &config.Server)
	}
	if section, ok := utils.ExtractSection(tempConfig, "cli"); ok {
		extractCliConfig(section, &config.CLI)
	}
	config.normalize()
	return config, nil
}

func extractEngineConfig(data map[string]any, engine *EngineConfig) {
	if val, ok := utils.ExtractInt64(data, "tab_size"); ok {
		engine.TabSize = val
	}
	if val, ok := utils.ExtractBool(data, "insert_spaces"); ok {
		engine.InsertSpaces = val
	}
	if val, ok := utils.ExtractString(data, "layout"); ok {
		engine.Layout = val
	}
	if val, ok := utils.ExtractBool(data, "format_after_accept"); ok {
		engine.FormatAfterAccept = val
	}
	if val, ok := utils.ExtractInt64(data, "format_delay_ms"); ok {
		engine.FormatDelayMs = val
	}
	if val, ok := utils.ExtractBool(data, "notify"); ok {
		engine.Notify = val
	}
}

func extractServerConfig(data map[string]any, server *ServerConfig) {
	if val, ok := utils.ExtractBool(data, "disable_auto_closing_brackets"); ok {
		server.DisableAutoClosingBrackets = val
	}
	if val, ok := utils.ExtractInt64(data, "max_documents"); ok {
		server.MaxDocuments = val
	}
	if val, ok := utils.ExtractBool(data, "reload_config"); ok {
		server.ReloadConfig = val
	}
}

func extractCliConfig(data map[string]any, cli *CliConfig) {
	if val, ok := utils.ExtractBool(data, "color"); ok {
		cli.Color = val
	}
	if val, ok := utils.ExtractBool(data, "show_diff"); ok {
		cli.ShowDiff = val
	}
}

// normalize replaces out-of-range values with defaults.
func (c *Config) normalize() {
	def := DefaultConfig()
	if c.Engine.TabSize <= 0 {
		log.Warnf("Invalid tab_size %d, using %d", c.Engine.TabSize, def.Engine.TabSize)
		c.Engine.TabSize = def.Engine.TabSize
	}
	if c.Engine.FormatDelayMs < 0 {
		c.Engine.FormatDelayMs = def.Engine.FormatDelayMs
	}
	if p := render.ParsePolicy(c.Engine.Layout); p.String() != c.Engine.Layout {
		log.Warnf("Unknown layout %q, using %q", c.Engine.Layout, p)
		c.Engine.Layout = p.String()
	}
	if c.Server.MaxDocuments <= 0 {
		c.Server.MaxDocuments = def.Server.MaxDocuments
	}
}

// RebuildConfigFile force creates a new config.toml at default
func RebuildConfigFile() error {
	defaultPath, err := GetDefaultConfigPath()
	if err != nil {
		return err
	}
	if err := utils.EnsureDir(filepath.Dir(defaultPath)); err != nil {
		return err
	}
	return SaveConfig(DefaultConfig(), defaultPath)
}

// GetActiveConfigPath returns the absolute path of loaded config file
func GetActiveConfigPath(configPath string) string {
	if configPath == "" {
		if defaultPath, err := GetDefaultConfigPath(); err == nil {
			return defaultPath
		}
		return "unknown"
	}
	return utils.GetAbsolutePath(configPath)
}

// SaveConfig saves into a TOML file
func SaveConfig(config *Config, configPath string) error {
	return utils.SaveTOMLFile(config, configPath)
}

// Update changes the engine values that are set and saves to file
func (c *Config) Update(configPath string, tabSize *int, layout *string, formatAfterAccept, notify *bool) error {
	engine := &c.Engine
	if tabSize != nil {
		engine.TabSize = *tabSize
	}
	if layout != nil {
		engine.Layout = *layout
	}
	if formatAfterAccept != nil {
		engine.FormatAfterAccept = *formatAfterAccept
	}
	if notify != nil {
		engine.Notify = *notify
	}
	c.normalize()
	return SaveConfig(c, configPath)
}
