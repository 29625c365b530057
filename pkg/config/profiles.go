package config

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Profile is one named configuration block in the profiles file. Zero
// values leave the corresponding setting untouched.
type Profile struct {
	OpenAIAPIKey  string `yaml:"openai_api_key,omitempty"`
	OpenAIBaseURL string `yaml:"openai_base_url,omitempty"`
	Model         string `yaml:"model,omitempty"`
	MaxTokens     int    `yaml:"max_tokens,omitempty"`
	SystemPrompt  string `yaml:"system_prompt,omitempty"`
	MCPServerURL  string `yaml:"mcp_server_url,omitempty"`
	RedisAddr     string `yaml:"redis_addr,omitempty"`
	LogLevel      string `yaml:"log_level,omitempty"`
	LogFile       string `yaml:"log_file,omitempty"`
}

// ProfilesFile is the on-disk shape of ~/.config/cricket/profiles.yaml.
type ProfilesFile struct {
	Default  string             `yaml:"default,omitempty"`
	Profiles map[string]Profile `yaml:"profiles"`
}

// ProfilesPath returns the location of the profiles file, honoring the
// CRICKET_PROFILES_PATH override before falling back to the user config
// directory.
func ProfilesPath() (string, error) {
	if p := os.Getenv("CRICKET_PROFILES_PATH"); p != "" {
		return p, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "resolve user config dir")
	}
	return filepath.Join(dir, "cricket", "profiles.yaml"), nil
}

// LoadProfiles reads a profiles file. A missing file returns (nil, nil).
func LoadProfiles(path string) (*ProfilesFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "read %s", path)
	}
	pf := &ProfilesFile{}
	if err := yaml.Unmarshal(b, pf); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	if pf.Profiles == nil {
		pf.Profiles = map[string]Profile{}
	}
	return pf, nil
}

// SaveProfile upserts one profile and writes the file back, creating
// directories as needed. The first profile saved becomes the default.
func SaveProfile(path string, name string, p Profile) error {
	pf, err := LoadProfiles(path)
	if err != nil {
		return err
	}
	if pf == nil {
		pf = &ProfilesFile{Profiles: map[string]Profile{}}
	}
	pf.Profiles[name] = p
	if pf.Default == "" {
		pf.Default = name
	}
	return writeProfiles(path, pf)
}

func writeProfiles(path string, pf *ProfilesFile) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "create %s", dir)
		}
	}
	b, err := yaml.Marshal(pf)
	if err != nil {
		return errors.Wrap(err, "marshal profiles")
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return nil
}

func (p Profile) applyTo(s *Settings) {
	if p.OpenAIAPIKey != "" {
		s.OpenAIAPIKey = p.OpenAIAPIKey
	}
	if p.OpenAIBaseURL != "" {
		s.OpenAIBaseURL = p.OpenAIBaseURL
	}
	if p.Model != "" {
		s.Model = p.Model
	}
	if p.MaxTokens > 0 {
		s.MaxTokens = p.MaxTokens
	}
	if p.SystemPrompt != "" {
		s.SystemPrompt = p.SystemPrompt
	}
	if p.MCPServerURL != "" {
		s.MCPServerURL = p.MCPServerURL
	}
	if p.RedisAddr != "" {
		s.RedisAddr = p.RedisAddr
	}
	if p.LogLevel != "" {
		s.LogLevel = p.LogLevel
	}
	if p.LogFile != "" {
		s.LogFile = p.LogFile
	}
}

// FromSettings seeds a profile form with the currently resolved values.
func FromSettings(s *Settings) Profile {
	return Profile{
		OpenAIAPIKey:  s.OpenAIAPIKey,
		OpenAIBaseURL: s.OpenAIBaseURL,
		Model:         s.Model,
		MaxTokens:     s.MaxTokens,
		SystemPrompt:  s.SystemPrompt,
		MCPServerURL:  s.MCPServerURL,
		RedisAddr:     s.RedisAddr,
		LogLevel:      s.LogLevel,
		LogFile:       s.LogFile,
	}
}
