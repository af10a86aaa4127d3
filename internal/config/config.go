package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/menta2k/image-annotator/internal/utils"
	"github.com/menta2k/image-annotator/pkg/classes"
	"github.com/menta2k/image-annotator/pkg/interaction"
	"github.com/menta2k/image-annotator/pkg/store"
)

// EnvPrefix prefixes environment overrides, e.g. ANNOTATOR_EDITOR_CLICK_TOLERANCE.
const EnvPrefix = "ANNOTATOR"

// Config holds the application configuration
type Config struct {
	Editor  EditorConfig  `json:"editor" mapstructure:"editor"`
	Files   FilesConfig   `json:"files" mapstructure:"files"`
	Suggest SuggestConfig `json:"suggest" mapstructure:"suggest"`
	Render  RenderConfig  `json:"render" mapstructure:"render"`
	Server  ServerConfig  `json:"server" mapstructure:"server"`
}

// EditorConfig holds the pointer tolerances and undo depth
type EditorConfig struct {
	ClickTolerance  float64 `json:"click_tolerance" mapstructure:"click_tolerance"`
	MinBoxPixels    float64 `json:"min_box_pixels" mapstructure:"min_box_pixels"`
	MinHandleRadius float64 `json:"min_handle_radius" mapstructure:"min_handle_radius"`
	HandleSize      float64 `json:"handle_size" mapstructure:"handle_size"`
	HistoryLimit    int     `json:"history_limit" mapstructure:"history_limit"`
}

// FilesConfig holds the on-disk naming conventions
type FilesConfig struct {
	LabelsFile      string   `json:"labels_file" mapstructure:"labels_file"`
	ImageExtensions []string `json:"image_extensions" mapstructure:"image_extensions"`
}

// SuggestConfig holds the vision model used for box suggestions. The
// saliency backend runs locally and ignores URL and Model.
type SuggestConfig struct {
	Backend        string  `json:"backend" mapstructure:"backend"`
	URL            string  `json:"url" mapstructure:"url"`
	Model          string  `json:"model" mapstructure:"model"`
	SendFormat     string  `json:"send_format" mapstructure:"send_format"`
	SendSize       int     `json:"send_size" mapstructure:"send_size"`
	SendQuality    int     `json:"send_quality" mapstructure:"send_quality"`
	MinConfidence  float64 `json:"min_confidence" mapstructure:"min_confidence"`
	TimeoutSeconds int     `json:"timeout_seconds" mapstructure:"timeout_seconds"`
	// RestrictClasses drops suggestions whose label is not in the class table.
	RestrictClasses bool `json:"restrict_classes" mapstructure:"restrict_classes"`
}

// RenderConfig holds configuration for overlay images
type RenderConfig struct {
	Format    string `json:"format" mapstructure:"format"`
	Quality   int    `json:"quality" mapstructure:"quality"`
	Lossless  bool   `json:"lossless" mapstructure:"lossless"`
	OutputDir string `json:"output_dir" mapstructure:"output_dir"`
	Suffix    string `json:"suffix" mapstructure:"suffix"`
}

// ServerConfig holds the HTTP host settings
type ServerConfig struct {
	Addr string `json:"addr" mapstructure:"addr"`
}

// Default returns a configuration with default values
func Default() *Config {
	settings := interaction.DefaultSettings()
	return &Config{
		Editor: EditorConfig{
			ClickTolerance:  settings.ClickTolerance,
			MinBoxPixels:    settings.MinBoxPixels,
			MinHandleRadius: settings.MinHandleRadius,
			HandleSize:      settings.HandleSize,
			HistoryLimit:    store.DefaultHistoryLimit,
		},
		Files: FilesConfig{
			LabelsFile:      classes.LabelsFileName,
			ImageExtensions: append([]string(nil), utils.DefaultImageExtensions...),
		},
		Suggest: SuggestConfig{
			Backend:        "ollama",
			URL:            "",
			Model:          "openbmb/minicpm-v4.5",
			SendFormat:     "jpg",
			SendSize:       1536,
			SendQuality:    85,
			MinConfidence:  0.3,
			TimeoutSeconds: 300,
		},
		Render: RenderConfig{
			Format:    "png",
			Quality:   92,
			Lossless:  false,
			OutputDir: "./overlays",
			Suffix:    "_boxes",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
	}
}

// Load reads configuration from filename (JSON or YAML) on top of the
// defaults. An empty filename uses only defaults. Environment variables
// prefixed with EnvPrefix override both.
func Load(filename string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if filename != "" {
		v.SetConfigFile(filename)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &config, nil
}

// LoadFromFile loads configuration from a JSON or YAML file
func LoadFromFile(filename string) (*Config, error) {
	return Load(filename)
}

func setDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("editor.click_tolerance", c.Editor.ClickTolerance)
	v.SetDefault("editor.min_box_pixels", c.Editor.MinBoxPixels)
	v.SetDefault("editor.min_handle_radius", c.Editor.MinHandleRadius)
	v.SetDefault("editor.handle_size", c.Editor.HandleSize)
	v.SetDefault("editor.history_limit", c.Editor.HistoryLimit)

	v.SetDefault("files.labels_file", c.Files.LabelsFile)
	v.SetDefault("files.image_extensions", c.Files.ImageExtensions)

	v.SetDefault("suggest.backend", c.Suggest.Backend)
	v.SetDefault("suggest.url", c.Suggest.URL)
	v.SetDefault("suggest.model", c.Suggest.Model)
	v.SetDefault("suggest.send_format", c.Suggest.SendFormat)
	v.SetDefault("suggest.send_size", c.Suggest.SendSize)
	v.SetDefault("suggest.send_quality", c.Suggest.SendQuality)
	v.SetDefault("suggest.min_confidence", c.Suggest.MinConfidence)
	v.SetDefault("suggest.timeout_seconds", c.Suggest.TimeoutSeconds)
	v.SetDefault("suggest.restrict_classes", c.Suggest.RestrictClasses)

	v.SetDefault("render.format", c.Render.Format)
	v.SetDefault("render.quality", c.Render.Quality)
	v.SetDefault("render.lossless", c.Render.Lossless)
	v.SetDefault("render.output_dir", c.Render.OutputDir)
	v.SetDefault("render.suffix", c.Render.Suffix)

	v.SetDefault("server.addr", c.Server.Addr)
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Editor.ClickTolerance < 0 {
		return fmt.Errorf("editor.click_tolerance must not be negative")
	}

	if c.Editor.MinBoxPixels < 1 {
		return fmt.Errorf("editor.min_box_pixels must be at least 1")
	}

	if c.Editor.MinHandleRadius < 0 || c.Editor.HandleSize < 0 {
		return fmt.Errorf("editor handle sizes must not be negative")
	}

	if c.Editor.HistoryLimit < 1 {
		return fmt.Errorf("editor.history_limit must be positive")
	}

	if strings.TrimSpace(c.Files.LabelsFile) == "" {
		return fmt.Errorf("files.labels_file cannot be empty")
	}

	if len(c.Files.ImageExtensions) == 0 {
		return fmt.Errorf("files.image_extensions cannot be empty")
	}

	switch c.Suggest.Backend {
	case "ollama", "llamacpp", "saliency":
	default:
		return fmt.Errorf("suggest.backend must be ollama, llamacpp or saliency, got %q", c.Suggest.Backend)
	}

	if c.Suggest.SendQuality < 1 || c.Suggest.SendQuality > 100 {
		return fmt.Errorf("suggest.send_quality must be between 1 and 100")
	}

	if c.Suggest.MinConfidence < 0 || c.Suggest.MinConfidence > 1 {
		return fmt.Errorf("suggest.min_confidence must be between 0 and 1")
	}

	switch strings.ToLower(c.Render.Format) {
	case "png", "jpg", "jpeg", "webp":
	default:
		return fmt.Errorf("render.format must be png, jpg or webp, got %q", c.Render.Format)
	}

	if c.Render.Quality < 1 || c.Render.Quality > 100 {
		return fmt.Errorf("render.quality must be between 1 and 100")
	}

	return nil
}

// InteractionSettings returns the pointer tolerances for the state machine.
func (c *Config) InteractionSettings() interaction.Settings {
	return interaction.Settings{
		ClickTolerance:  c.Editor.ClickTolerance,
		MinBoxPixels:    c.Editor.MinBoxPixels,
		MinHandleRadius: c.Editor.MinHandleRadius,
		HandleSize:      c.Editor.HandleSize,
	}
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "image-annotator", "config.json")
}
