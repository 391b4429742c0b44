package internal

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

type Config struct {
	SocketURL         string        `env:"SOCKET_URL,required=true"`
	APIURL            string        `env:"API_URL,required=true"`
	BadgerFilepath    string        `env:"BADGER_FILEPATH,required=true"`
	LogLevel          string        `env:"LOG_LEVEL,default=INFO"`
	DailyLimit        int           `env:"DAILY_LIMIT,default=100"`
	SessionDuration   time.Duration `env:"SESSION_DURATION,default=5m"`
	MatchDisplayDelay time.Duration `env:"MATCH_DISPLAY_DELAY,default=1500ms"`
	BlockCloseDelay   time.Duration `env:"BLOCK_CLOSE_DELAY,default=1s"`
	ReconnectAttempts int           `env:"RECONNECT_ATTEMPTS,default=5"`
	ReconnectDelay    time.Duration `env:"RECONNECT_DELAY,default=1s"`
	ReconnectDelayMax time.Duration `env:"RECONNECT_DELAY_MAX,default=5s"`
	ConnectTimeout    time.Duration `env:"CONNECT_TIMEOUT,default=10s"`
	MaxImageBytes     int           `env:"MAX_IMAGE_BYTES,default=1048576"`
	VerificationTTL   time.Duration `env:"VERIFICATION_TTL,default=10m"`
	UpdatesBufferSize int           `env:"UPDATES_BUFFER_SIZE,default=64"`
}

// LoadConfig reads an optional .env file, then the environment. Missing
// endpoints are fatal: there is no fallback address.
func LoadConfig(files ...string) (Config, error) {
	// A missing .env file is fine, the environment may carry everything
	_ = godotenv.Load(files...)

	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	socketURL, err := NormalizeSocketURL(config.SocketURL)
	if err != nil {
		return Config{}, err
	}
	config.SocketURL = socketURL
	apiURL, err := normalizeHTTPURL(config.APIURL)
	if err != nil {
		return Config{}, err
	}
	config.APIURL = apiURL
	if config.DailyLimit <= 0 {
		return Config{}, fmt.Errorf("DAILY_LIMIT must be positive, got %d", config.DailyLimit)
	}
	if config.SessionDuration < 0 {
		return Config{}, fmt.Errorf("SESSION_DURATION must not be negative, got %s", config.SessionDuration)
	}
	return config, nil
}

// NormalizeSocketURL trims trailing slashes and maps http(s) onto ws(s).
func NormalizeSocketURL(raw string) (string, error) {
	u, err := parseEndpoint("SOCKET_URL", raw)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("SOCKET_URL must be http, https, ws or wss, got %q", u.Scheme)
	}
	return strings.TrimRight(u.String(), "/"), nil
}

func normalizeHTTPURL(raw string) (string, error) {
	u, err := parseEndpoint("API_URL", raw)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("API_URL must be http or https, got %q", u.Scheme)
	}
	return strings.TrimRight(u.String(), "/"), nil
}

func parseEndpoint(name, raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%s is required", name)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s is not a valid URL: %w", name, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%s has no host: %q", name, raw)
	}
	return u, nil
}
