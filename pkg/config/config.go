package config

import (
	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

const (
	DefaultModel        = "gpt-4o"
	DefaultMaxTokens    = 1024
	DefaultMCPServerURL = "http://localhost:8081"
	DefaultSystemPrompt = "You are a helpful assistant. Use your tools when necessary."
)

// Settings is the resolved configuration for one cricket run. Precedence,
// lowest to highest: built-in defaults, the selected profile, environment
// variables (a .env file in the working directory is honored), then
// whatever flags the command applies on top.
type Settings struct {
	OpenAIAPIKey  string `yaml:"openai_api_key" env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `yaml:"openai_base_url" env:"OPENAI_BASE_URL"`
	Model         string `yaml:"model" env:"CRICKET_MODEL"`
	MaxTokens     int    `yaml:"max_tokens" env:"CRICKET_MAX_TOKENS"`
	SystemPrompt  string `yaml:"system_prompt" env:"CRICKET_SYSTEM_PROMPT"`
	MCPServerURL  string `yaml:"mcp_server_url" env:"MCP_SERVER_URL"`
	RedisAddr     string `yaml:"redis_addr" env:"CRICKET_REDIS_ADDR"`
	LogLevel      string `yaml:"log_level" env:"CRICKET_LOG_LEVEL"`
	LogFile       string `yaml:"log_file" env:"CRICKET_LOG_FILE"`
}

func Defaults() Settings {
	return Settings{
		Model:        DefaultModel,
		MaxTokens:    DefaultMaxTokens,
		SystemPrompt: DefaultSystemPrompt,
		MCPServerURL: DefaultMCPServerURL,
		LogLevel:     "info",
	}
}

// Load resolves settings for the named profile ("" picks the profile file's
// default). A missing profile file is fine; a named profile that does not
// exist is not.
func Load(profileName string) (*Settings, error) {
	_ = godotenv.Load()

	s := Defaults()

	path, err := ProfilesPath()
	if err == nil {
		if err := applyProfileFile(&s, path, profileName); err != nil {
			return nil, err
		}
	}

	if err := env.Parse(&s); err != nil {
		return nil, errors.Wrap(err, "parse environment")
	}
	return &s, nil
}

func applyProfileFile(s *Settings, path string, profileName string) error {
	pf, err := LoadProfiles(path)
	if err != nil {
		return err
	}
	if pf == nil {
		if profileName != "" {
			return errors.Errorf("profile %q requested but %s does not exist", profileName, path)
		}
		return nil
	}
	name := profileName
	if name == "" {
		name = pf.Default
	}
	if name == "" {
		return nil
	}
	p, ok := pf.Profiles[name]
	if !ok {
		return errors.Errorf("profile %q not found in %s", name, path)
	}
	p.applyTo(s)
	return nil
}
