package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultMaxConcurrent = 3
	DefaultMaxRetries    = 2
)

type Config struct {
	Download DownloadConfig `mapstructure:"download" yaml:"download"`
	YTDLP    YTDLPConfig    `mapstructure:"ytdlp" yaml:"ytdlp"`
	State    StateConfig    `mapstructure:"state" yaml:"state"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Notify   NotifyConfig   `mapstructure:"notify" yaml:"notify"`

	Port string `mapstructure:"port" yaml:"port"`
}

type DownloadConfig struct {
	OutDir          string `mapstructure:"out_dir" yaml:"out_dir"`
	TempDir         string `mapstructure:"temp_dir" yaml:"temp_dir"`
	MaxConcurrent   int    `mapstructure:"max_concurrent" yaml:"max_concurrent"`
	MaxRetries      int    `mapstructure:"max_retries" yaml:"max_retries"`
	RemoveWatermark bool   `mapstructure:"remove_watermark" yaml:"remove_watermark"`
	DefaultQuality  string `mapstructure:"default_quality" yaml:"default_quality"`
}

type YTDLPConfig struct {
	// BinDir holds yt-dlp, ffmpeg and ffprobe. Empty means search PATH.
	BinDir        string        `mapstructure:"bin_dir" yaml:"bin_dir"`
	TitleTimeout  time.Duration `mapstructure:"title_timeout" yaml:"title_timeout"`
	StopGrace     time.Duration `mapstructure:"stop_grace" yaml:"stop_grace"`
	UpdateTimeout time.Duration `mapstructure:"update_timeout" yaml:"update_timeout"`
}

type StateConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

type StoreConfig struct {
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
}

type LogConfig struct {
	Path          string `mapstructure:"path" yaml:"path"`
	Level         string `mapstructure:"level" yaml:"level"`
	IncludeStdout bool   `mapstructure:"include_stdout" yaml:"include_stdout"`
}

type NotifyConfig struct {
	Sounds bool `mapstructure:"sounds" yaml:"sounds"`
}

// HomeDir is where gotok keeps its state, history and log by default.
func HomeDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".gotok")
	}
	return ".gotok"
}

// DefaultDownloadDir is ~/Downloads, or ./downloads when no home is known.
func DefaultDownloadDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, "Downloads")
	}
	return "downloads"
}

// Load reads path (or config.yaml, then ~/.gotok/config.yaml when path is
// empty) on top of the built-in defaults. GOTOK_* environment variables
// override both. Without an explicit path a missing file is not an error.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = "config.yaml"
		if _, err := os.Stat(path); os.IsNotExist(err) {
			path = filepath.Join(HomeDir(), "config.yaml")
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	} else if explicit {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	v.SetEnvPrefix("GOTOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	home := HomeDir()

	v.SetDefault("port", "8080")
	v.SetDefault("download.out_dir", DefaultDownloadDir())
	v.SetDefault("download.temp_dir", filepath.Join(os.TempDir(), "gotok"))
	v.SetDefault("download.max_concurrent", DefaultMaxConcurrent)
	v.SetDefault("download.max_retries", DefaultMaxRetries)
	v.SetDefault("download.remove_watermark", true)
	v.SetDefault("download.default_quality", "best")
	v.SetDefault("ytdlp.bin_dir", "")
	v.SetDefault("ytdlp.title_timeout", 30*time.Second)
	v.SetDefault("ytdlp.stop_grace", 2*time.Second)
	v.SetDefault("ytdlp.update_timeout", 120*time.Second)
	v.SetDefault("state.path", filepath.Join(home, "state.json"))
	v.SetDefault("store.sqlite_path", filepath.Join(home, "history.db"))
	v.SetDefault("log.path", filepath.Join(home, "gotok.log"))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.include_stdout", true)
	v.SetDefault("notify.sounds", true)
}

func (c *Config) validate() error {
	if c.Download.MaxConcurrent <= 0 {
		c.Download.MaxConcurrent = DefaultMaxConcurrent
	}

	if c.Download.MaxRetries < 0 {
		return errors.New("download.max_retries cannot be negative")
	}

	if c.Download.OutDir == "" {
		c.Download.OutDir = DefaultDownloadDir()
	}

	if c.Download.DefaultQuality == "" {
		c.Download.DefaultQuality = "best"
	}

	if c.State.Path == "" {
		return errors.New("state.path is required")
	}

	if c.YTDLP.TitleTimeout <= 0 {
		c.YTDLP.TitleTimeout = 30 * time.Second
	}

	if c.YTDLP.StopGrace <= 0 {
		c.YTDLP.StopGrace = 2 * time.Second
	}

	if c.YTDLP.UpdateTimeout <= 0 {
		c.YTDLP.UpdateTimeout = 120 * time.Second
	}

	return nil
}
