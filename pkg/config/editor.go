package config

import (
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ProfileKeys lists the setting keys a profile can carry, in display order.
var ProfileKeys = []string{
	"openai_api_key",
	"openai_base_url",
	"model",
	"max_tokens",
	"system_prompt",
	"mcp_server_url",
	"redis_addr",
	"log_level",
	"log_file",
}

// ProfilesEditor gives the profiles subcommands key-level access to the
// profiles file. Load once, mutate, Save.
type ProfilesEditor struct {
	path string
	file *ProfilesFile
}

// NewProfilesEditor opens the profiles file at path. A missing file
// starts out empty and is created on Save.
func NewProfilesEditor(path string) (*ProfilesEditor, error) {
	pf, err := LoadProfiles(path)
	if err != nil {
		return nil, err
	}
	if pf == nil {
		pf = &ProfilesFile{Profiles: map[string]Profile{}}
	}
	return &ProfilesEditor{path: path, file: pf}, nil
}

func (e *ProfilesEditor) Save() error {
	return writeProfiles(e.path, e.file)
}

// Names returns the profile names in sorted order.
func (e *ProfilesEditor) Names() []string {
	names := make([]string, 0, len(e.file.Profiles))
	for name := range e.file.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *ProfilesEditor) Default() string {
	return e.file.Default
}

func (e *ProfilesEditor) SetDefault(name string) error {
	if _, ok := e.file.Profiles[name]; !ok {
		return errors.Errorf("profile %q does not exist", name)
	}
	e.file.Default = name
	return nil
}

func (e *ProfilesEditor) Get(name string) (Profile, error) {
	p, ok := e.file.Profiles[name]
	if !ok {
		return Profile{}, errors.Errorf("profile %q does not exist", name)
	}
	return p, nil
}

// SetValue sets one setting on a profile, creating the profile if
// needed. The first profile created becomes the default.
func (e *ProfilesEditor) SetValue(name string, key string, value string) error {
	p := e.file.Profiles[name]
	if err := p.setValue(key, value); err != nil {
		return err
	}
	e.file.Profiles[name] = p
	if e.file.Default == "" {
		e.file.Default = name
	}
	return nil
}

func (e *ProfilesEditor) GetValue(name string, key string) (string, error) {
	p, err := e.Get(name)
	if err != nil {
		return "", err
	}
	return p.Value(key)
}

// DeleteValue clears one setting, leaving it at its default.
func (e *ProfilesEditor) DeleteValue(name string, key string) error {
	p, err := e.Get(name)
	if err != nil {
		return err
	}
	if err := p.setValue(key, ""); err != nil {
		return err
	}
	e.file.Profiles[name] = p
	return nil
}

func (e *ProfilesEditor) Delete(name string) error {
	if _, ok := e.file.Profiles[name]; !ok {
		return errors.Errorf("profile %q does not exist", name)
	}
	delete(e.file.Profiles, name)
	if e.file.Default == name {
		e.file.Default = ""
	}
	return nil
}

func (e *ProfilesEditor) Duplicate(source string, target string) error {
	p, err := e.Get(source)
	if err != nil {
		return err
	}
	if _, ok := e.file.Profiles[target]; ok {
		return errors.Errorf("profile %q already exists", target)
	}
	e.file.Profiles[target] = p
	return nil
}

// Value returns the setting for key as a string, "" when unset.
func (p Profile) Value(key string) (string, error) {
	switch key {
	case "openai_api_key":
		return p.OpenAIAPIKey, nil
	case "openai_base_url":
		return p.OpenAIBaseURL, nil
	case "model":
		return p.Model, nil
	case "max_tokens":
		if p.MaxTokens == 0 {
			return "", nil
		}
		return strconv.Itoa(p.MaxTokens), nil
	case "system_prompt":
		return p.SystemPrompt, nil
	case "mcp_server_url":
		return p.MCPServerURL, nil
	case "redis_addr":
		return p.RedisAddr, nil
	case "log_level":
		return p.LogLevel, nil
	case "log_file":
		return p.LogFile, nil
	default:
		return "", errUnknownKey(key)
	}
}

// setValue parses and stores one setting. An empty value clears the
// setting back to its zero value.
func (p *Profile) setValue(key string, value string) error {
	switch key {
	case "openai_api_key":
		p.OpenAIAPIKey = value
	case "openai_base_url":
		p.OpenAIBaseURL = value
	case "model":
		p.Model = value
	case "max_tokens":
		if value == "" {
			p.MaxTokens = 0
			return nil
		}
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return errors.Errorf("max_tokens must be a non-negative number, got %q", value)
		}
		p.MaxTokens = n
	case "system_prompt":
		p.SystemPrompt = value
	case "mcp_server_url":
		p.MCPServerURL = value
	case "redis_addr":
		p.RedisAddr = value
	case "log_level":
		p.LogLevel = value
	case "log_file":
		p.LogFile = value
	default:
		return errUnknownKey(key)
	}
	return nil
}

func errUnknownKey(key string) error {
	return errors.Errorf("unknown setting %q (valid: %s)", key, strings.Join(ProfileKeys, ", "))
}
