// Package config reads IntelliPy settings through viper.
// Settings are always read at call time; nothing in the core keeps a snapshot across calls.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"intellipy/internal/logger"
)

// Namespace prefixes every setting key.
const Namespace = "intellipy"

// Setting names, relative to Namespace.
const (
	KeyProvider                = "llmProvider"
	KeyAWSRegion               = "awsRegion"
	KeyModelID                 = "modelId"
	KeyCustomEndpoint          = "customEndpoint"
	KeyCustomAPIKey            = "customApiKey"
	KeyCustomModel             = "customModel"
	KeyCustomFormat            = "customFormat"
	KeyGeminiAPIKey            = "geminiApiKey"
	KeyGeminiModel             = "geminiModel"
	KeyAnthropicAPIKey         = "anthropicApiKey"
	KeyAnthropicModel          = "anthropicModel"
	KeyOpenAIAPIKey            = "openaiApiKey"
	KeyOpenAIModel             = "openaiModel"
	KeyOpenAIBaseURL           = "openaiBaseUrl"
	KeyEnableInlineCompletions = "enableInlineCompletions"
	KeyBrowserChatURL          = "browserChatUrl"
)

// ErrInvalidEndpoint is returned by ValidateEndpoint for malformed URLs.
var ErrInvalidEndpoint = errors.New("invalid endpoint URL")

type setting struct {
	name     string
	def      any
	envNames []string
}

var settings = []setting{
	{KeyProvider, "bedrock", []string{"INTELLIPY_LLM_PROVIDER"}},
	{KeyAWSRegion, "us-east-1", []string{"INTELLIPY_AWS_REGION", "AWS_REGION"}},
	{KeyModelID, "anthropic.claude-3-5-sonnet-20241022-v2:0", []string{"INTELLIPY_MODEL_ID"}},
	{KeyCustomEndpoint, "", []string{"INTELLIPY_CUSTOM_ENDPOINT"}},
	{KeyCustomAPIKey, "", []string{"INTELLIPY_CUSTOM_API_KEY"}},
	{KeyCustomModel, "", []string{"INTELLIPY_CUSTOM_MODEL"}},
	{KeyCustomFormat, "openai", []string{"INTELLIPY_CUSTOM_FORMAT"}},
	{KeyGeminiAPIKey, "", []string{"INTELLIPY_GEMINI_API_KEY", "GEMINI_API_KEY"}},
	{KeyGeminiModel, "gemini-2.0-flash", []string{"INTELLIPY_GEMINI_MODEL"}},
	{KeyAnthropicAPIKey, "", []string{"INTELLIPY_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY"}},
	{KeyAnthropicModel, "claude-3-5-sonnet-latest", []string{"INTELLIPY_ANTHROPIC_MODEL"}},
	{KeyOpenAIAPIKey, "", []string{"INTELLIPY_OPENAI_API_KEY", "OPENAI_API_KEY"}},
	{KeyOpenAIModel, "gpt-4o-mini", []string{"INTELLIPY_OPENAI_MODEL"}},
	{KeyOpenAIBaseURL, "", []string{"INTELLIPY_OPENAI_BASE_URL"}},
	{KeyEnableInlineCompletions, true, []string{"INTELLIPY_ENABLE_INLINE_COMPLETIONS"}},
	{KeyBrowserChatURL, "https://m365.cloud.microsoft.com/chat/?auth=1", []string{"INTELLIPY_BROWSER_CHAT_URL"}},
}

// Key returns the fully qualified key for a setting name.
func Key(name string) string {
	return Namespace + "." + name
}

// Names returns every known setting name in declaration order.
func Names() []string {
	names := make([]string, 0, len(settings))
	for _, s := range settings {
		names = append(names, s.name)
	}
	return names
}

// Source is the read/write surface the core uses. *viper.Viper and *Settings satisfy it.
type Source interface {
	GetString(key string) string
	GetBool(key string) bool
	Set(key string, value any)
}

// Settings is a concurrency-safe wrapper around a viper instance.
type Settings struct {
	mu         sync.RWMutex
	v          *viper.Viper
	configFile string
	watcher    *fsnotify.Watcher
}

// New returns Settings carrying only defaults and environment bindings.
func New() *Settings {
	v := viper.New()
	for _, s := range settings {
		key := Key(s.name)
		v.SetDefault(key, s.def)
		args := append([]string{key}, s.envNames...)
		_ = v.BindEnv(args...)
	}
	return &Settings{v: v}
}

// Load builds Settings for a workspace root: .env files, then an optional intellipy.yaml
// found in the root or the user config dir. The config file is watched for changes.
func Load(root string) (*Settings, error) {
	configDir := userConfigDir()
	loadDotEnv(filepath.Join(configDir, ".env"))
	if root != "" {
		loadDotEnv(filepath.Join(root, ".env"))
	}

	s := New()
	s.v.SetConfigName(Namespace)
	s.v.SetConfigType("yaml")
	if root != "" {
		s.v.AddConfigPath(root)
	}
	if configDir != "" {
		s.v.AddConfigPath(configDir)
	}

	if err := s.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read configuration: %w", err)
		}
		logger.Debug("No configuration file found, using defaults and environment")
		return s, nil
	}

	s.configFile = s.v.ConfigFileUsed()
	logger.Debug("Configuration loaded", "file", s.configFile)

	if err := s.watch(); err != nil {
		logger.Warn("Configuration file will not be reloaded", "file", s.configFile, "error", err)
	}
	return s, nil
}

// watch reloads the config file when it changes. The directory is watched so that editors
// replacing the file by rename are seen too. Reloads hold the write lock; viper's own
// WatchConfig reloads without it.
func (s *Settings) watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(s.configFile)); err != nil {
		w.Close()
		return err
	}
	s.watcher = w

	target := filepath.Clean(s.configFile)
	go func() {
		for {
			select {
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target || !event.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}
				if err := s.reload(); err != nil {
					logger.Warn("Failed to reload configuration", "file", target, "error", err)
					continue
				}
				logger.Info("Configuration changed", "file", event.Name, "op", event.Op.String())
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("Configuration watcher error", "error", err)
			}
		}
	}()
	return nil
}

func (s *Settings) reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v.ReadInConfig()
}

// Close stops watching the config file.
func (s *Settings) Close() error {
	s.mu.Lock()
	w := s.watcher
	s.watcher = nil
	s.mu.Unlock()
	if w == nil {
		return nil
	}
	return w.Close()
}

// ConfigFile returns the config file in use, or "".
func (s *Settings) ConfigFile() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.configFile
}

// GetString returns the string value of a fully qualified key.
func (s *Settings) GetString(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v.GetString(key)
}

// GetBool returns the boolean value of a fully qualified key.
func (s *Settings) GetBool(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v.GetBool(key)
}

// Set overrides a key for the life of the process.
func (s *Settings) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v.Set(key, value)
}

// Save writes the current settings to path (or the loaded config file when path is empty).
func (s *Settings) Save(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if path == "" {
		path = s.configFile
	}
	if path == "" {
		path = filepath.Join(userConfigDir(), Namespace+".yaml")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := s.v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write configuration: %w", err)
	}
	s.configFile = path
	return nil
}

// Viper exposes the underlying instance for flag binding.
func (s *Settings) Viper() *viper.Viper {
	return s.v
}

// Snapshot is a typed view of the settings at one instant.
type Snapshot struct {
	Provider                string
	AWSRegion               string
	ModelID                 string
	CustomEndpoint          string
	CustomAPIKey            string
	CustomModel             string
	CustomFormat            string
	GeminiAPIKey            string
	GeminiModel             string
	AnthropicAPIKey         string
	AnthropicModel          string
	OpenAIAPIKey            string
	OpenAIModel             string
	OpenAIBaseURL           string
	EnableInlineCompletions bool
	BrowserChatURL          string
}

// Read builds a Snapshot from src. Callers read a fresh Snapshot per request.
func Read(src Source) Snapshot {
	get := func(name string) string { return strings.TrimSpace(src.GetString(Key(name))) }
	return Snapshot{
		Provider:                strings.ToLower(get(KeyProvider)),
		AWSRegion:               get(KeyAWSRegion),
		ModelID:                 get(KeyModelID),
		CustomEndpoint:          get(KeyCustomEndpoint),
		CustomAPIKey:            get(KeyCustomAPIKey),
		CustomModel:             get(KeyCustomModel),
		CustomFormat:            strings.ToLower(get(KeyCustomFormat)),
		GeminiAPIKey:            get(KeyGeminiAPIKey),
		GeminiModel:             get(KeyGeminiModel),
		AnthropicAPIKey:         get(KeyAnthropicAPIKey),
		AnthropicModel:          get(KeyAnthropicModel),
		OpenAIAPIKey:            get(KeyOpenAIAPIKey),
		OpenAIModel:             get(KeyOpenAIModel),
		OpenAIBaseURL:           get(KeyOpenAIBaseURL),
		EnableInlineCompletions: src.GetBool(Key(KeyEnableInlineCompletions)),
		BrowserChatURL:          get(KeyBrowserChatURL),
	}
}

// ValidateEndpoint checks that raw is an absolute http(s) URL with a host.
func ValidateEndpoint(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("%w: URL is required", ErrInvalidEndpoint)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https", ErrInvalidEndpoint)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidEndpoint)
	}
	return nil
}

func loadDotEnv(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := godotenv.Load(path); err != nil {
		logger.Warn("Failed to load .env file", "path", path, "error", err)
		return
	}
	logger.Debug("Loaded .env file", "path", path)
}

func userConfigDir() string {
	if dir := os.Getenv("INTELLIPY_CONFIG_DIR"); dir != "" {
		return dir
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(base, Namespace)
}

// Snapshot reads a typed view of the current settings.
func (s *Settings) Snapshot() Snapshot {
	return Read(s)
}
