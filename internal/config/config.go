// Package config loads and validates pedalcam configuration from an optional
// YAML file, PEDALCAM_* environment variables and command-line flags using Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g.
// PEDALCAM_CAMERA_MODEL overrides camera.model.
const EnvPrefix = "PEDALCAM"

// Config holds the daemon configuration.
type Config struct {
	Camera    Camera    `mapstructure:"camera"`
	Storage   Storage   `mapstructure:"storage"`
	OAuth     OAuth     `mapstructure:"oauth"`
	Pedal     Pedal     `mapstructure:"pedal"`
	Timelapse Timelapse `mapstructure:"timelapse"`
	HTTP      HTTP      `mapstructure:"http"`
	MQTT      MQTT      `mapstructure:"mqtt"`
	LED       LED       `mapstructure:"led"`
	Telegram  Telegram  `mapstructure:"telegram"`
	// Heartbeat is the status event interval; 0 disables it.
	Heartbeat time.Duration `mapstructure:"heartbeat"`
}

// Camera configures the capture tool.
type Camera struct {
	Model          string        `mapstructure:"model"`
	Command        []string      `mapstructure:"command"`
	Sudo           bool          `mapstructure:"sudo"`
	WorkDir        string        `mapstructure:"work_dir"`
	CaptureTimeout time.Duration `mapstructure:"capture_timeout"`
	Settle         time.Duration `mapstructure:"settle"`
	Freshness      time.Duration `mapstructure:"freshness"`
	CheckInterval  time.Duration `mapstructure:"check_interval"`
	// SignaturesFile overrides the built-in disconnect signature table.
	SignaturesFile string `mapstructure:"signatures_file"`
}

// Storage locates photos and user profiles.
type Storage struct {
	PhotoRoot      string `mapstructure:"photo_root"`
	CloudRoot      string `mapstructure:"cloud_root"`
	UsersDir       string `mapstructure:"users_dir"`
	ActiveUserFile string `mapstructure:"active_user_file"`
}

// OAuth configures the cloud storage authorization.
type OAuth struct {
	ClientID         string        `mapstructure:"client_id"`
	ClientSecret     string        `mapstructure:"client_secret"`
	RedirectURL      string        `mapstructure:"redirect_url"`
	AuthURL          string        `mapstructure:"auth_url"`
	TokenURL         string        `mapstructure:"token_url"`
	TokenFile        string        `mapstructure:"token_file"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
}

// Pedal configures the foot pedal and press classification.
type Pedal struct {
	VendorID    uint16        `mapstructure:"vendor_id"`
	ProductID   uint16        `mapstructure:"product_id"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	Idle        time.Duration `mapstructure:"idle"`
	Debounce    time.Duration `mapstructure:"debounce"`
	BurstCount  int           `mapstructure:"burst_count"`
	BurstWindow time.Duration `mapstructure:"burst_window"`

	// MaxReadErrors is how many consecutive read failures end the daemon.
	MaxReadErrors int `mapstructure:"max_read_errors"`
}

// Timelapse configures the scheduler.
type Timelapse struct {
	Interval time.Duration `mapstructure:"interval"`
}

// HTTP configures the control panel.
type HTTP struct {
	// Addr is the listen address; empty disables the panel.
	Addr string `mapstructure:"addr"`
}

// MQTT configures event publishing.
type MQTT struct {
	// Broker is the broker URL; empty disables publishing.
	Broker     string `mapstructure:"broker"`
	Prefix     string `mapstructure:"prefix"`
	ClientID   string `mapstructure:"client_id"`
	BufferSize int    `mapstructure:"buffer_size"`
}

// LED configures the timelapse indicator.
type LED struct {
	// Pin is the BCM pin; 0 disables the LED.
	Pin int `mapstructure:"pin"`
}

// Telegram configures operator alerts.
type Telegram struct {
	// Token is the bot token; empty disables alerts.
	Token string `mapstructure:"token"`
	// Chat is a numeric chat id or an @channel username.
	Chat string `mapstructure:"chat"`
	// Repeat suppresses identical alerts within this window.
	Repeat time.Duration `mapstructure:"repeat"`
}

// defaults lists every key with its default value. Keys must be registered
// for AutomaticEnv to reach them through Unmarshal.
var defaults = map[string]any{
	"camera.model":           "Canon EOS 700D",
	"camera.command":         []string{"gphoto2"},
	"camera.sudo":            false,
	"camera.work_dir":        ".",
	"camera.capture_timeout": 30 * time.Second,
	"camera.settle":          5 * time.Second,
	"camera.freshness":       5 * time.Second,
	"camera.check_interval":  300 * time.Second,
	"camera.signatures_file": "",

	"storage.photo_root":       "pedal_triggered_photos",
	"storage.cloud_root":       "/Camera_Pedal_Photos",
	"storage.users_dir":        "lab_users",
	"storage.active_user_file": "active_user.txt",

	"oauth.client_id":         "",
	"oauth.client_secret":     "",
	"oauth.redirect_url":      "http://localhost:8081/auth/callback",
	"oauth.auth_url":          "https://www.dropbox.com/oauth2/authorize",
	"oauth.token_url":         "https://api.dropboxapi.com/oauth2/token",
	"oauth.token_file":        "dropbox_tokens.json",
	"oauth.handshake_timeout": 300 * time.Second,

	"pedal.vendor_id":       0x04b4,
	"pedal.product_id":      0x5555,
	"pedal.read_timeout":    100 * time.Millisecond,
	"pedal.idle":            10 * time.Millisecond,
	"pedal.debounce":        500 * time.Millisecond,
	"pedal.burst_count":     5,
	"pedal.burst_window":    20 * time.Second,
	"pedal.max_read_errors": 100,

	"timelapse.interval": 180 * time.Second,

	"http.addr": ":8080",

	"mqtt.broker":      "",
	"mqtt.prefix":      "lab/pedalcam",
	"mqtt.client_id":   "pedalcam",
	"mqtt.buffer_size": 100,

	"led.pin": 0,

	"telegram.token":  "",
	"telegram.chat":   "",
	"telegram.repeat": 10 * time.Minute,

	"heartbeat": 15 * time.Minute,
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"camera-model":   "camera.model",
	"sudo":           "camera.sudo",
	"work-dir":       "camera.work_dir",
	"photo-root":     "storage.photo_root",
	"users-dir":      "storage.users_dir",
	"token-file":     "oauth.token_file",
	"http":           "http.addr",
	"broker":         "mqtt.broker",
	"heartbeat":      "heartbeat",
	"led-pin":        "led.pin",
	"timelapse":      "timelapse.interval",
	"debounce":       "pedal.debounce",
	"check-interval": "camera.check_interval",
}

// Load reads path (if non-empty), then PEDALCAM_* environment variables, then
// any flags in fs that were set on the command line. Flags win over env, env
// wins over the file. Returns an error if the result is invalid.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	for k, d := range defaults {
		v.SetDefault(k, d)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("config: bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the invariants the daemon relies on.
func (c *Config) Validate() error {
	if c.Camera.Model == "" {
		return errors.New("config: camera.model must be set")
	}
	if len(c.Camera.Command) == 0 {
		return errors.New("config: camera.command must be set")
	}
	if c.Camera.CaptureTimeout <= 0 {
		return errors.New("config: camera.capture_timeout must be positive")
	}
	if c.Storage.PhotoRoot == "" || c.Storage.UsersDir == "" || c.Storage.ActiveUserFile == "" {
		return errors.New("config: storage.photo_root, storage.users_dir and storage.active_user_file must be set")
	}
	if c.OAuth.TokenFile == "" {
		return errors.New("config: oauth.token_file must be set")
	}
	u, err := url.Parse(c.OAuth.RedirectURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("config: oauth.redirect_url %q is not an absolute URL", c.OAuth.RedirectURL)
	}
	if c.Pedal.ReadTimeout <= 0 {
		return errors.New("config: pedal.read_timeout must be positive")
	}
	if c.Pedal.MaxReadErrors < 1 {
		return errors.New("config: pedal.max_read_errors must be at least 1")
	}
	if c.Pedal.BurstCount < 2 {
		return errors.New("config: pedal.burst_count must be at least 2")
	}
	if c.Pedal.BurstWindow <= 0 || c.Pedal.Debounce < 0 {
		return errors.New("config: pedal.burst_window must be positive and pedal.debounce non-negative")
	}
	if c.Timelapse.Interval < time.Second {
		return errors.New("config: timelapse.interval must be at least 1s")
	}
	if c.Heartbeat < 0 {
		return errors.New("config: heartbeat must not be negative")
	}
	if c.Telegram.Token != "" && c.Telegram.Chat == "" {
		return errors.New("config: telegram.chat must be set when telegram.token is set")
	}
	return nil
}

// OAuthReady reports whether client credentials are configured.
func (c *Config) OAuthReady() bool {
	return c.OAuth.ClientID != "" && c.OAuth.ClientSecret != ""
}
