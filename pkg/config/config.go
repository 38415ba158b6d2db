package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Backend   BackendConfig   `mapstructure:"backend"`
	Models    ModelsConfig    `mapstructure:"models"`
	Title     TitleConfig     `mapstructure:"title"`
	Stream    StreamConfig    `mapstructure:"stream"`
	Messages  MessagesConfig  `mapstructure:"messages"`
	Store     StoreConfig     `mapstructure:"store"`
	Render    RenderConfig    `mapstructure:"render"`
	DevServer DevServerConfig `mapstructure:"devserver"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	LogFile  string `mapstructure:"log_file"`
	Preserve bool   `mapstructure:"preserve"`
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"` // text or json
}

// BackendConfig describes the HTTP backend that hosts the model and the chat store
type BackendConfig struct {
	URL        string        `mapstructure:"url"`
	Token      string        `mapstructure:"token"`
	Timeout    time.Duration `mapstructure:"-"`
	TimeoutStr string        `mapstructure:"timeout"` // For parsing string duration
}

// ModelsConfig holds model selection policy
type ModelsConfig struct {
	Default        string   `mapstructure:"default"`
	AutoAlias      string   `mapstructure:"auto_alias"`
	AutoModel      string   `mapstructure:"auto_model"`
	VisionKeywords []string `mapstructure:"vision_keywords"`
}

// TitleConfig controls chat title generation
type TitleConfig struct {
	MaxWords       int    `mapstructure:"max_words"`
	PromptTemplate string `mapstructure:"prompt_template"`
}

// StreamConfig holds stream decoding settings
type StreamConfig struct {
	NoDiagramSentinel string `mapstructure:"no_diagram_sentinel"`
	ReadBuffer        int    `mapstructure:"read_buffer"`
}

// MessagesConfig holds the user-facing failure texts
type MessagesConfig struct {
	TurnError string `mapstructure:"turn_error"`
	LoadError string `mapstructure:"load_error"`
}

// StoreConfig selects the chat persistence collaborator
type StoreConfig struct {
	Backend    string `mapstructure:"backend"` // remote, sqlite, memory or none
	SQLitePath string `mapstructure:"sqlite_path"`
	JSONPath   string `mapstructure:"json_path"` // memory backend snapshot, empty keeps it in-process
}

// RenderConfig holds terminal rendering options
type RenderConfig struct {
	Style    string `mapstructure:"style"`
	Markdown bool   `mapstructure:"markdown"`
	Width    int    `mapstructure:"width"`
}

// DevServerConfig holds settings for the local backend emulator
type DevServerConfig struct {
	Addr string `mapstructure:"addr"`
}

const (
	DefaultTitlePrompt = "Resume la siguiente petición en máximo 4 palabras para usar como título. Solo responde con el título, sin explicaciones adicionales:\n\n\"%s\""
	DefaultTurnError   = "Error al comunicarse con la IA. Verifica que el backend esté corriendo."
	DefaultLoadError   = "Error al cargar el chat. Por favor, intenta de nuevo."
	DefaultSentinel    = "No diagram detected"
)

var (
	// Global config instance
	cfg *Config
)

// Get returns the global config instance
func Get() *Config {
	if cfg == nil {
		panic("config not initialized")
	}
	return cfg
}

// Set replaces the global config instance. Mostly useful in tests.
func Set(c *Config) {
	cfg = c
}

// Load loads configuration from file and environment
func Load(cfgFile string) (*Config, error) {
	// Set defaults first
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}

		xdgConfigHome := os.Getenv("XDG_CONFIG_HOME")
		if xdgConfigHome == "" {
			xdgConfigHome = filepath.Join(home, ".config")
		}

		viper.AddConfigPath("./.genesis") // Check project directory first
		viper.AddConfigPath(filepath.Join(xdgConfigHome, ".genesis"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("settings")
	}

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.SetEnvPrefix("GENESIS")
	viper.AutomaticEnv()
	bindEnvironmentVariables()

	// A missing file is fine, defaults and env still apply. A broken one is not.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	c := &Config{}
	if err := viper.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Post-process durations (viper doesn't handle time.Duration directly)
	if err := processDurations(c); err != nil {
		return nil, fmt.Errorf("failed to process durations: %w", err)
	}

	cfg = c
	return cfg, nil
}

// setDefaults sets all default configuration values
func setDefaults() {
	viper.SetDefault("backend.url", "http://localhost:3000")
	viper.SetDefault("backend.token", "")
	viper.SetDefault("backend.timeout", "5m")

	viper.SetDefault("models.default", "")
	viper.SetDefault("models.auto_alias", "Auto")
	viper.SetDefault("models.auto_model", "qwen2.5-coder:14b")
	viper.SetDefault("models.vision_keywords", []string{"vl", "vision", "llava", "bakllava", "moondream"})

	viper.SetDefault("title.max_words", 4)
	viper.SetDefault("title.prompt_template", DefaultTitlePrompt)

	viper.SetDefault("stream.no_diagram_sentinel", DefaultSentinel)
	viper.SetDefault("stream.read_buffer", 4096)

	viper.SetDefault("messages.turn_error", DefaultTurnError)
	viper.SetDefault("messages.load_error", DefaultLoadError)

	viper.SetDefault("store.backend", "remote")
	viper.SetDefault("store.sqlite_path", "./.genesis/chats.db")
	viper.SetDefault("store.json_path", "")

	viper.SetDefault("logging.log_file", "./.genesis/system.log")
	viper.SetDefault("logging.preserve", false)
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	viper.SetDefault("render.style", "monokai")
	viper.SetDefault("render.markdown", true)
	viper.SetDefault("render.width", 100)

	viper.SetDefault("devserver.addr", ":3000")
}

// bindEnvironmentVariables binds the GENESIS_ variables that don't follow the key replacer
func bindEnvironmentVariables() {
	viper.BindEnv("backend.url", "GENESIS_BACKEND_URL")
	viper.BindEnv("backend.token", "GENESIS_BACKEND_TOKEN")
	viper.BindEnv("backend.timeout", "GENESIS_BACKEND_TIMEOUT")
	viper.BindEnv("models.default", "GENESIS_MODEL")
	viper.BindEnv("store.backend", "GENESIS_STORE_BACKEND")
	viper.BindEnv("store.sqlite_path", "GENESIS_SQLITE_PATH")
	viper.BindEnv("logging.level", "GENESIS_LOG_LEVEL")
	viper.BindEnv("logging.log_file", "GENESIS_LOG_FILE")
	viper.BindEnv("devserver.addr", "GENESIS_DEVSERVER_ADDR")
}

// processDurations converts string durations to time.Duration
func processDurations(c *Config) error {
	if c.Backend.TimeoutStr != "" {
		d, err := time.ParseDuration(c.Backend.TimeoutStr)
		if err != nil {
			return fmt.Errorf("invalid backend.timeout: %w", err)
		}
		c.Backend.Timeout = d
	} else if c.Backend.Timeout == 0 {
		c.Backend.Timeout = 5 * time.Minute
	}
	return nil
}

// GetConfigFileUsed returns the path to the config file being used
func GetConfigFileUsed() string {
	return viper.ConfigFileUsed()
}

// Defaults returns a config populated with default values without touching
// the global viper instance.
func Defaults() *Config {
	return &Config{
		Logging: LoggingConfig{LogFile: "./.genesis/system.log", Level: "info", Format: "text"},
		Backend: BackendConfig{URL: "http://localhost:3000", TimeoutStr: "5m", Timeout: 5 * time.Minute},
		Models: ModelsConfig{
			AutoAlias:      "Auto",
			AutoModel:      "qwen2.5-coder:14b",
			VisionKeywords: []string{"vl", "vision", "llava", "bakllava", "moondream"},
		},
		Title:     TitleConfig{MaxWords: 4, PromptTemplate: DefaultTitlePrompt},
		Stream:    StreamConfig{NoDiagramSentinel: DefaultSentinel, ReadBuffer: 4096},
		Messages:  MessagesConfig{TurnError: DefaultTurnError, LoadError: DefaultLoadError},
		Store:     StoreConfig{Backend: "remote", SQLitePath: "./.genesis/chats.db"},
		Render:    RenderConfig{Style: "monokai", Markdown: true, Width: 100},
		DevServer: DevServerConfig{Addr: ":3000"},
	}
}

// SupportsVision reports whether a model name looks attachment-capable
func (m ModelsConfig) SupportsVision(model string) bool {
	if model == "" {
		return false
	}
	if model == m.AutoAlias {
		return true
	}
	lower := strings.ToLower(model)
	for _, keyword := range m.VisionKeywords {
		if keyword != "" && strings.Contains(lower, strings.ToLower(keyword)) {
			return true
		}
	}
	return false
}

// Resolve maps a model selector onto the model id sent to the backend, and
// whether the backend should pick the model itself.
func (m ModelsConfig) Resolve(selector string) (model string, autoMode bool) {
	if selector == "" {
		selector = m.Default
	}
	if selector == "" || selector == m.AutoAlias {
		return m.AutoModel, true
	}
	return selector, false
}
