package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Default configuration values (production)
const (
	DefaultDomain          = "warpcall.qzz.io"
	DefaultSTUN            = "stun:stun.l.google.com:19302"
	DefaultTURN            = "turn:warpcall.qzz.io"
	DefaultTURNUser        = "warpcall"
	DefaultTURNPass        = "warpcall-secret"
	DefaultListen          = ":8080"
	DefaultMaxMessageBytes = 64 * 1024

	EnvPrefix = "WARPCALL"
)

// Keys understood by the loader. Flags with the same name (dashes for
// underscores) are bound to them.
const (
	KeyDomain          = "domain"
	KeyServerURL       = "server_url"
	KeySTUN            = "stun"
	KeyTURN            = "turn"
	KeyTURNUser        = "turn_user"
	KeyTURNPass        = "turn_pass"
	KeyRelay           = "relay"
	KeyAudio           = "audio"
	KeyVideo           = "video"
	KeyLoop            = "loop"
	KeyStay            = "stay"
	KeyListen          = "listen"
	KeyMaxMessageBytes = "max_message_bytes"
)

// legacyEnv are the environment names read before the WARPCALL_ prefix.
var legacyEnv = map[string]string{
	KeyDomain:   "DOMAIN",
	KeySTUN:     "STUN_SERVER",
	KeyTURN:     "TURN_SERVER",
	KeyTURNUser: "TURN_USERNAME",
	KeyTURNPass: "TURN_PASSWORD",
}

var ErrRelayWithoutTURN = errors.New("cannot force relay mode without TURN server configured")

// Config holds application configuration
type Config struct {
	// Domain hosts the relay and the web app room links point at.
	Domain string

	// WebSocketURL is the relay channel endpoint, derived from Domain
	// unless server_url is set.
	WebSocketURL string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool

	// Files standing in for capture devices.
	AudioPath string
	VideoPath string
	Loop      bool

	// StayInRoom keeps the participant in the room after the peer leaves.
	StayInRoom bool

	// Relay server settings.
	Listen          string
	MaxMessageBytes int64
}

// Loader resolves configuration with the following priority:
//  1. CLI flags (when set)
//  2. Environment variables (WARPCALL_*, then the legacy names)
//  3. Config file
//  4. Defaults
type Loader struct {
	v *viper.Viper
}

func NewLoader() *Loader {
	v := viper.New()

	v.SetDefault(KeyDomain, DefaultDomain)
	v.SetDefault(KeySTUN, DefaultSTUN)
	v.SetDefault(KeyTURN, DefaultTURN)
	v.SetDefault(KeyTURNUser, DefaultTURNUser)
	v.SetDefault(KeyTURNPass, DefaultTURNPass)
	v.SetDefault(KeyListen, DefaultListen)
	v.SetDefault(KeyMaxMessageBytes, DefaultMaxMessageBytes)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		// BindEnv with explicit names skips the prefix, so list both.
		_ = v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(key), legacy)
	}

	return &Loader{v: v}
}

// BindFlags binds every flag in fs whose name matches a key.
func (l *Loader) BindFlags(fs *pflag.FlagSet) error {
	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if bindErr := l.v.BindPFlag(key, f); bindErr != nil && err == nil {
			err = fmt.Errorf("bind flag %s: %w", f.Name, bindErr)
		}
	})
	return err
}

// Set overrides a key, above every other source.
func (l *Loader) Set(key string, value any) {
	l.v.Set(key, value)
}

// Load reads the optional config file and resolves the configuration.
func (l *Loader) Load(configFile string) (*Config, error) {
	if configFile != "" {
		l.v.SetConfigFile(configFile)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	cfg := &Config{
		Domain:          l.v.GetString(KeyDomain),
		WebSocketURL:    l.v.GetString(KeyServerURL),
		STUNServer:      l.v.GetString(KeySTUN),
		TURNServer:      l.v.GetString(KeyTURN),
		TURNUser:        l.v.GetString(KeyTURNUser),
		TURNPass:        l.v.GetString(KeyTURNPass),
		ForceRelay:      l.v.GetBool(KeyRelay),
		AudioPath:       l.v.GetString(KeyAudio),
		VideoPath:       l.v.GetString(KeyVideo),
		Loop:            l.v.GetBool(KeyLoop),
		StayInRoom:      l.v.GetBool(KeyStay),
		Listen:          l.v.GetString(KeyListen),
		MaxMessageBytes: l.v.GetInt64(KeyMaxMessageBytes),
	}
	if cfg.WebSocketURL == "" {
		cfg.WebSocketURL = fmt.Sprintf("wss://%s/ws", cfg.Domain)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	if c.ForceRelay && c.GetTURNServers() == nil {
		return ErrRelayWithoutTURN
	}
	if c.MaxMessageBytes <= 0 {
		return fmt.Errorf("max message bytes must be positive, got %d", c.MaxMessageBytes)
	}
	return nil
}

// GetRoomLink returns the webapp URL for a room ID
func (c *Config) GetRoomLink(roomID string) string {
	return fmt.Sprintf("https://%s/r/%s", c.Domain, roomID)
}

// ParseRoom accepts a bare room ID or a room link and returns the room ID.
func ParseRoom(arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if i := strings.Index(arg, "/r/"); i >= 0 {
		arg = arg[i+len("/r/"):]
	}
	arg = strings.TrimRight(arg, "/")
	if arg == "" || strings.ContainsAny(arg, "/?# ") {
		return "", fmt.Errorf("invalid room %q", arg)
	}
	return arg, nil
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	host := strings.TrimPrefix(strings.TrimPrefix(c.TURNServer, "turns:"), "turn:")
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", host),
		fmt.Sprintf("turn:%s:3478?transport=tcp", host),
		fmt.Sprintf("turns:%s:5349?transport=tcp", host),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}
