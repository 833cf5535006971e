package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	mirrorerrors "github.com/pklaus/backup-wordpress-blog/internal/errors"
)

// FileName is the config file looked up in the archive folder.
const FileName = ".wpbackup.json"

// Config holds backup settings. CLI flags that are set explicitly override
// the values loaded here.
type Config struct {
	// Username is the default login name (the password is never read from config)
	Username string `json:"username,omitempty"`

	// Number is the maximum number of posts to back up
	Number int `json:"number,omitempty"`

	// Extension is the file extension of post documents, without the dot
	Extension string `json:"extension,omitempty"`

	// LongFilenames selects long-form post filenames
	LongFilenames bool `json:"long_filenames,omitempty"`

	// IncludeMetadata writes the front-matter block before each post body.
	// nil means "not set" so an explicit false can override the default.
	IncludeMetadata *bool `json:"include_metadata,omitempty"`

	// Media enables the media pass
	Media bool `json:"media,omitempty"`

	// Workers bounds concurrent item tasks. 1 reproduces sequential processing.
	Workers int `json:"workers,omitempty"`

	// DownloadRPS limits media downloads per second. 0 means unlimited.
	DownloadRPS float64 `json:"download_rps,omitempty"`

	// StrictCollisions fails the later of two items resolving to the same path
	StrictCollisions bool `json:"strict_collisions,omitempty"`

	// HTTPTimeoutSeconds is the per-request timeout for API calls
	HTTPTimeoutSeconds int `json:"http_timeout_seconds,omitempty"`

	// UserAgent is sent with every HTTP request
	UserAgent string `json:"user_agent,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	includeMetadata := true
	return &Config{
		Number:             4000,
		Extension:          "txt",
		IncludeMetadata:    &includeMetadata,
		Workers:            4,
		HTTPTimeoutSeconds: 60,
		UserAgent:          "wpbackup",
	}
}

// Load loads configuration from folder/.wpbackup.json.
// Returns default config if the file doesn't exist.
func Load(folder string) (*Config, error) {
	return loadFile(filepath.Join(folder, FileName), false)
}

// LoadFile loads configuration from an explicit path, which must exist.
func LoadFile(path string) (*Config, error) {
	return loadFile(path, true)
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist and !required.
func loadFileRaw(configPath string, required bool) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configPath, err)
	}

	return cfg, nil
}

func loadFile(configPath string, required bool) (*Config, error) {
	cfg, err := loadFileRaw(configPath, required)
	if err != nil {
		return nil, err
	}
	merged := Merge(DefaultConfig(), cfg)
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return merged, nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars if non-zero; booleans are OR'ed
// except IncludeMetadata, where a non-nil overlay wins.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.Username = firstNonEmpty(overlay.Username, base.Username)
	result.Extension = firstNonEmpty(strings.TrimPrefix(overlay.Extension, "."), base.Extension)
	result.UserAgent = firstNonEmpty(overlay.UserAgent, base.UserAgent)

	result.Number = overlay.Number
	if result.Number == 0 {
		result.Number = base.Number
	}

	result.Workers = overlay.Workers
	if result.Workers == 0 {
		result.Workers = base.Workers
	}

	result.HTTPTimeoutSeconds = overlay.HTTPTimeoutSeconds
	if result.HTTPTimeoutSeconds == 0 {
		result.HTTPTimeoutSeconds = base.HTTPTimeoutSeconds
	}

	result.DownloadRPS = overlay.DownloadRPS
	if result.DownloadRPS == 0 {
		result.DownloadRPS = base.DownloadRPS
	}

	// Booleans: overlay wins if true, else base
	result.LongFilenames = base.LongFilenames || overlay.LongFilenames
	result.Media = base.Media || overlay.Media
	result.StrictCollisions = base.StrictCollisions || overlay.StrictCollisions

	result.IncludeMetadata = base.IncludeMetadata
	if overlay.IncludeMetadata != nil {
		v := *overlay.IncludeMetadata
		result.IncludeMetadata = &v
	}

	return result
}

// Validate rejects out-of-range values.
func (c *Config) Validate() error {
	switch {
	case c.Number < 0:
		return mirrorerrors.NewInvalidRequest("number must be non-negative")
	case c.Workers < 0:
		return mirrorerrors.NewInvalidRequest("workers must be non-negative")
	case c.DownloadRPS < 0:
		return mirrorerrors.NewInvalidRequest("download_rps must be non-negative")
	case c.HTTPTimeoutSeconds < 0:
		return mirrorerrors.NewInvalidRequest("http_timeout_seconds must be non-negative")
	case strings.ContainsAny(c.Extension, "/\\"):
		return mirrorerrors.NewInvalidRequest(fmt.Sprintf("invalid extension %q", c.Extension))
	}
	return nil
}

// WithMetadata reports whether posts are written with their front matter.
func (c *Config) WithMetadata() bool {
	return c.IncludeMetadata == nil || *c.IncludeMetadata
}

// HTTPTimeout returns the API request timeout.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

func firstNonEmpty(a, b string) string {
	if s := strings.TrimSpace(a); s != "" {
		return s
	}
	return b
}
