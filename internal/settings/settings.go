// Package settings loads and saves the user's connection settings.
//
// Settings live in a YAML file under the user's config directory. Command
// line flags that were set explicitly override the file.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/koustreak/s3nav/internal/filestore"
	"github.com/spf13/pflag"
	"go.yaml.in/yaml/v3"
)

const (
	// AppDir is the directory name under the user config dir.
	AppDir = "s3nav"

	// FileName is the settings file name.
	FileName = "settings.yaml"

	DefaultLogLevel = "warn"
)

// Settings is everything needed to reach a store, except credentials.
type Settings struct {
	Endpoint  string  `yaml:"endpoint"`
	Region    string  `yaml:"region"`
	Bucket    string  `yaml:"bucket"`
	UseSSL    bool    `yaml:"use_ssl"`
	PathStyle bool    `yaml:"path_style"`
	Logging   Logging `yaml:"logging"`
}

// Logging controls the log file.
type Logging struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
}

// Default returns the settings used when no file exists.
func Default() *Settings {
	return &Settings{
		Region: filestore.DefaultRegion,
		UseSSL: true,
		Logging: Logging{
			Level: DefaultLogLevel,
		},
	}
}

// DefaultPath returns <user config dir>/s3nav/settings.yaml.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve config directory: %w", err)
	}
	return filepath.Join(dir, AppDir, FileName), nil
}

// RegisterFlags adds the flags Load understands to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("endpoint", "", "store endpoint, host[:port] or URL")
	fs.String("region", filestore.DefaultRegion, "store region")
	fs.String("bucket", "", "default bucket")
	fs.Bool("use-ssl", true, "connect over HTTPS")
	fs.Bool("path-style", false, "use path-style bucket addressing")
	fs.String("log-level", DefaultLogLevel, "log level (debug, info, warn, error)")
}

// Load loads settings from path and applies changed flags on top. A
// missing file yields the defaults. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Settings, error) {
	s := Default()

	if path != "" {
		if err := loadFromFile(s, path); err != nil {
			return nil, fmt.Errorf("failed to load settings file: %w", err)
		}
	}

	if flags != nil {
		if err := loadFromFlags(s, flags); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	return s, nil
}

func loadFromFile(s *Settings, path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return err
	}
	if s.Logging.Level == "" {
		s.Logging.Level = DefaultLogLevel
	}
	return nil
}

func loadFromFlags(s *Settings, flags *pflag.FlagSet) error {
	changed := func(name string) bool {
		return flags.Lookup(name) != nil && flags.Changed(name)
	}

	var err error
	if changed("endpoint") {
		if s.Endpoint, err = flags.GetString("endpoint"); err != nil {
			return err
		}
	}
	if changed("region") {
		if s.Region, err = flags.GetString("region"); err != nil {
			return err
		}
	}
	if changed("bucket") {
		if s.Bucket, err = flags.GetString("bucket"); err != nil {
			return err
		}
	}
	if changed("use-ssl") {
		if s.UseSSL, err = flags.GetBool("use-ssl"); err != nil {
			return err
		}
	}
	if changed("path-style") {
		if s.PathStyle, err = flags.GetBool("path-style"); err != nil {
			return err
		}
	}
	if changed("log-level") {
		if s.Logging.Level, err = flags.GetString("log-level"); err != nil {
			return err
		}
	}
	return nil
}

// Validate reports settings that cannot produce a connection.
func (s *Settings) Validate() error {
	if strings.TrimSpace(s.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if _, _, _, err := filestore.NormalizeEndpoint(s.Endpoint); err != nil {
		return err
	}
	switch strings.ToLower(s.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error", "disabled", "off":
	default:
		return fmt.Errorf("unknown log level %q", s.Logging.Level)
	}
	return nil
}

// Save writes the settings to path, creating its directory.
func (s *Settings) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}

// Params builds the per-call connection parameters.
func (s *Settings) Params(accessKey, secretKey string) filestore.ConnectionParams {
	return filestore.ConnectionParams{
		Endpoint:  s.Endpoint,
		AccessKey: accessKey,
		SecretKey: secretKey,
		UseTLS:    s.UseSSL,
		Region:    s.Region,
		PathStyle: s.PathStyle,
	}
}
