package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config is the fully resolved device configuration: globals plus the active
// profile merged over the built-in defaults.
type Config struct {
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Collector CollectorConfig `mapstructure:"collector" yaml:"collector"`
	Profile   Profile         `mapstructure:"profile" yaml:"profile"`

	ActiveProfile string `mapstructure:"-" yaml:"active_profile"`
}

type StorageConfig struct {
	Directory string `mapstructure:"directory" yaml:"directory"`
}

type ServerConfig struct {
	UploadURL        string `mapstructure:"upload_url" yaml:"upload_url"`
	ConnectTimeoutMS int    `mapstructure:"connect_timeout_ms" yaml:"connect_timeout_ms"`
	RequestTimeoutMS int    `mapstructure:"request_timeout_ms" yaml:"request_timeout_ms"`
}

type CollectorConfig struct {
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
	UploadDir  string `mapstructure:"upload_dir" yaml:"upload_dir"`
}

// Profile holds the recorder tunables. The firmware variants differed only in
// these values, so variants are profiles here, not code branches.
type Profile struct {
	RecordingDurationMS    int  `mapstructure:"recording_duration_ms" yaml:"recording_duration_ms"`
	ColorDwellMS           int  `mapstructure:"color_dwell_ms" yaml:"color_dwell_ms"`
	DebounceMS             int  `mapstructure:"debounce_ms" yaml:"debounce_ms"`
	SelectingTimeoutMS     int  `mapstructure:"selecting_timeout_ms" yaml:"selecting_timeout_ms"`
	PotChangeThreshold     int  `mapstructure:"pot_change_threshold" yaml:"pot_change_threshold"`
	FailureThreshold       int  `mapstructure:"failure_threshold" yaml:"failure_threshold"`
	SampleRate             int  `mapstructure:"sample_rate" yaml:"sample_rate"`
	InterruptibleRecording bool `mapstructure:"interruptible_recording" yaml:"interruptible_recording"`
}

// profileSpec is the on-file shape of a profile: every field optional so a
// named profile only states what it overrides.
type profileSpec struct {
	RecordingDurationMS    *int  `mapstructure:"recording_duration_ms"`
	ColorDwellMS           *int  `mapstructure:"color_dwell_ms"`
	DebounceMS             *int  `mapstructure:"debounce_ms"`
	SelectingTimeoutMS     *int  `mapstructure:"selecting_timeout_ms"`
	PotChangeThreshold     *int  `mapstructure:"pot_change_threshold"`
	FailureThreshold       *int  `mapstructure:"failure_threshold"`
	SampleRate             *int  `mapstructure:"sample_rate"`
	InterruptibleRecording *bool `mapstructure:"interruptible_recording"`
}

// rootConfig is the on-file document shape.
type rootConfig struct {
	ActiveProfile string                 `mapstructure:"active_profile"`
	Storage       StorageConfig          `mapstructure:"storage"`
	Server        ServerConfig           `mapstructure:"server"`
	Collector     CollectorConfig        `mapstructure:"collector"`
	Profiles      map[string]profileSpec `mapstructure:"profiles"`
}

// Default returns the built-in configuration, matching the shipped firmware
// constants.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Directory: filepath.Join(os.Getenv("HOME"), ".local", "share", "memorybottle"),
		},
		Server: ServerConfig{
			UploadURL:        "http://127.0.0.1:8080/upload",
			ConnectTimeoutMS: 10000,
			RequestTimeoutMS: 15000,
		},
		Collector: CollectorConfig{
			ListenAddr: ":8080",
			UploadDir:  "uploads",
		},
		Profile: Profile{
			RecordingDurationMS:    15000,
			ColorDwellMS:           2000,
			DebounceMS:             100,
			SelectingTimeoutMS:     5000,
			PotChangeThreshold:     200,
			FailureThreshold:       3,
			SampleRate:             16000,
			InterruptibleRecording: true,
		},
		ActiveProfile: "default",
	}
}

// Load reads the config file and resolves the requested profile. profile=""
// uses the file's active_profile, falling back to "default". A missing file is
// not an error when no path was given explicitly: the defaults apply.
func Load(configFile, profile string) (*Config, error) {
	cfg := Default()

	explicit := configFile != ""
	if configFile == "" {
		configFile = os.ExpandEnv("$HOME/.config/memorybottle.yaml")
	}
	if _, err := os.Stat(configFile); err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		return nil, fmt.Errorf("config file %s: %w", configFile, err)
	}

	v := viper.New()
	v.SetConfigFile(configFile)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file %s: %w", configFile, err)
	}

	var root rootConfig
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", configFile, err)
	}

	if root.Storage.Directory != "" {
		cfg.Storage.Directory = expandPath(root.Storage.Directory)
	}
	if root.Server.UploadURL != "" {
		cfg.Server.UploadURL = root.Server.UploadURL
	}
	if root.Server.ConnectTimeoutMS > 0 {
		cfg.Server.ConnectTimeoutMS = root.Server.ConnectTimeoutMS
	}
	if root.Server.RequestTimeoutMS > 0 {
		cfg.Server.RequestTimeoutMS = root.Server.RequestTimeoutMS
	}
	if root.Collector.ListenAddr != "" {
		cfg.Collector.ListenAddr = root.Collector.ListenAddr
	}
	if root.Collector.UploadDir != "" {
		cfg.Collector.UploadDir = expandPath(root.Collector.UploadDir)
	}

	// Resolve the profile: built-ins, then the file's "default" profile, then
	// the selected one on top.
	name := profile
	if name == "" {
		name = root.ActiveProfile
	}
	if name == "" {
		name = "default"
	}

	if spec, ok := root.Profiles["default"]; ok {
		applyProfile(&cfg.Profile, spec)
	}
	if name != "default" {
		spec, ok := root.Profiles[name]
		if !ok {
			return nil, fmt.Errorf("configuration profile %q not found", name)
		}
		applyProfile(&cfg.Profile, spec)
	}
	cfg.ActiveProfile = name

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func applyProfile(p *Profile, spec profileSpec) {
	if spec.RecordingDurationMS != nil {
		p.RecordingDurationMS = *spec.RecordingDurationMS
	}
	if spec.ColorDwellMS != nil {
		p.ColorDwellMS = *spec.ColorDwellMS
	}
	if spec.DebounceMS != nil {
		p.DebounceMS = *spec.DebounceMS
	}
	if spec.SelectingTimeoutMS != nil {
		p.SelectingTimeoutMS = *spec.SelectingTimeoutMS
	}
	if spec.PotChangeThreshold != nil {
		p.PotChangeThreshold = *spec.PotChangeThreshold
	}
	if spec.FailureThreshold != nil {
		p.FailureThreshold = *spec.FailureThreshold
	}
	if spec.SampleRate != nil {
		p.SampleRate = *spec.SampleRate
	}
	if spec.InterruptibleRecording != nil {
		p.InterruptibleRecording = *spec.InterruptibleRecording
	}
}

func (c *Config) validate() error {
	p := c.Profile
	if p.RecordingDurationMS <= 0 {
		return fmt.Errorf("recording_duration_ms must be positive, got %d", p.RecordingDurationMS)
	}
	if p.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", p.SampleRate)
	}
	if p.DebounceMS < 0 {
		return fmt.Errorf("debounce_ms must not be negative, got %d", p.DebounceMS)
	}
	if p.FailureThreshold < 1 {
		return fmt.Errorf("failure_threshold must be at least 1, got %d", p.FailureThreshold)
	}
	if c.Server.UploadURL == "" {
		return fmt.Errorf("server.upload_url must be set")
	}
	if !strings.HasPrefix(c.Server.UploadURL, "http://") && !strings.HasPrefix(c.Server.UploadURL, "https://") {
		return fmt.Errorf("server.upload_url must be an http(s) URL, got %q", c.Server.UploadURL)
	}
	return nil
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(os.Getenv("HOME"), path[2:])
	}
	return path
}
