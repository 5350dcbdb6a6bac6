package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/courtcheck/courtcheck/internal/courtsrv/config"
	"github.com/courtcheck/courtcheck/internal/courtsrv/upstream"
)

// DefaultSessionFile is the default name of the session file
const DefaultSessionFile = "session.yaml"

// LoadConfig loads the service configuration from file. When the file does not
// exist a bare configuration is built from url, so the CLI can be used
// without a server setup.
func LoadConfig(file, url string) error {
	var (
		c   *config.ConfigParam
		err error
	)
	_, statErr := os.Stat(file)
	switch {
	case statErr == nil:
		c, err = config.ParseConfigFile(file, ".env")
	case errors.Is(statErr, os.ErrNotExist) && url != "":
		c, err = config.ParseConfig(fmt.Sprintf("format_version = %q\n[upstream]\nbase_url = %q\n", config.ConfigFormatVersion, url))
	case errors.Is(statErr, os.ErrNotExist):
		return fmt.Errorf("config file %s not found; pass --config or --base-url", file)
	default:
		return fmt.Errorf("unable to read config file: %w", statErr)
	}
	if err != nil {
		return err
	}
	if url != "" {
		c.Upstream.BaseURL = strings.TrimSuffix(url, "/")
	}
	config.SetConfig(c)
	return nil
}

// GetConfig returns the loaded service configuration
func GetConfig() *config.ConfigParam {
	return config.Config()
}

// SessionFile is what `courtcli login` stores between invocations.
type SessionFile struct {
	// BaseURL is the booking site the session belongs to
	BaseURL string `yaml:"base_url"`
	// Email the session was opened with
	Email string `yaml:"email"`
	// SessionID is the value of the upstream session cookie
	SessionID string `yaml:"session_id"`
	// AuthenticityToken is the CSRF token bound to the session
	AuthenticityToken string `yaml:"authenticity_token"`
}

// Session converts the stored file into an upstream session.
func (f *SessionFile) Session() upstream.Session {
	return upstream.Session{
		SessionToken: f.SessionID,
		CSRFToken:    f.AuthenticityToken,
	}
}

// DefaultSessionPath returns the default path for the session file.
// It uses the OS-specific config directory (e.g., ~/.config/courtcheck on Linux)
func DefaultSessionPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(configDir, "courtcheck", DefaultSessionFile), nil
}

func resolveSessionPath(file string) (string, error) {
	if file != "" {
		return file, nil
	}
	return DefaultSessionPath()
}

// ReadSession loads a stored session. A missing file means the user has not
// logged in yet.
func ReadSession(file string) (*SessionFile, error) {
	file, err := resolveSessionPath(file)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(file)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("no stored session; run \"courtcli login\" first")
		}
		return nil, fmt.Errorf("unable to read session file: %w", err)
	}
	var f SessionFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("unable to parse session file: %w", err)
	}
	if f.SessionID == "" || f.AuthenticityToken == "" {
		return nil, fmt.Errorf("stored session is incomplete; run \"courtcli login\" again")
	}
	return &f, nil
}

// WriteSession stores f, readable only by the current user.
func (f *SessionFile) WriteSession(file string) error {
	file, err := resolveSessionPath(file)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(file), 0o700); err != nil {
		return fmt.Errorf("unable to create session directory: %w", err)
	}
	b, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("unable to generate session file: %w", err)
	}
	if err := os.WriteFile(file, b, 0o600); err != nil {
		return fmt.Errorf("unable to write session file: %w", err)
	}
	return nil
}
