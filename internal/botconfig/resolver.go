// Package botconfig loads and saves the per-user bot configuration kept as a
// JSON file under <dir>/<user_id>/config.json.
package botconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ragdesk/kb-chatbot/internal/model"
	"github.com/ragdesk/kb-chatbot/pkg/logger"
)

const fileName = "config.json"

var (
	// ErrInvalidUserID is returned for ids that cannot name a config file.
	ErrInvalidUserID = errors.New("botconfig: invalid user id")
	// ErrInvalidPatch is returned when an update does not decode onto BotConfig.
	ErrInvalidPatch = errors.New("botconfig: invalid config patch")
)

// Defaults returns the built-in configuration for provider.
func Defaults(provider string) model.BotConfig {
	return model.BotConfig{
		BotName:       "Assistant",
		LLMProvider:   provider,
		Temperature:   0.7,
		MaxTokens:     1024,
		TopP:          1.0,
		ResponseStyle: model.StyleBalanced,
	}
}

// Resolver reads and writes user configurations. Files are read and written
// without locking; concurrent saves for one user are last-writer-wins.
type Resolver struct {
	dir      string
	defaults model.BotConfig
	logger   *logger.Logger
}

// NewResolver creates a resolver rooted at dir.
func NewResolver(dir string, defaults model.BotConfig, log *logger.Logger) *Resolver {
	return &Resolver{dir: dir, defaults: defaults, logger: log}
}

// LoadDefaults overlays the YAML file at path on base. An empty path returns base.
func LoadDefaults(path string, base model.BotConfig) (model.BotConfig, error) {
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("failed to read bot defaults: %w", err)
	}
	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return base, fmt.Errorf("failed to parse bot defaults: %w", err)
	}
	return cfg, nil
}

// Defaults returns the resolver's defaults.
func (r *Resolver) Defaults() model.BotConfig {
	return clone(r.defaults)
}

// clone keeps decoding into a copy from writing through the shared template pointer.
func clone(c model.BotConfig) model.BotConfig {
	if c.PromptTemplate != nil {
		t := *c.PromptTemplate
		c.PromptTemplate = &t
	}
	return c
}

func (r *Resolver) path(userID string) (string, error) {
	if userID == "" || userID == "." || userID == ".." || strings.ContainsAny(userID, `/\`) {
		return "", ErrInvalidUserID
	}
	return filepath.Join(r.dir, userID, fileName), nil
}

// Load returns the user's configuration merged over the defaults. A missing or
// unreadable file yields the defaults; errors are logged, never returned.
func (r *Resolver) Load(userID string) model.BotConfig {
	cfg := clone(r.defaults)

	p, err := r.path(userID)
	if err != nil {
		r.logger.Warn("bot config path rejected", zap.String("user_id", userID), zap.Error(err))
		return cfg
	}

	data, err := os.ReadFile(p)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			r.logger.Warn("failed to read bot config", zap.String("user_id", userID), zap.Error(err))
		}
		return cfg
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		r.logger.Warn("corrupt bot config, using defaults", zap.String("user_id", userID), zap.Error(err))
		return clone(r.defaults)
	}
	return cfg
}

// Save writes cfg for userID, creating the user's directory.
func (r *Resolver) Save(userID string, cfg model.BotConfig) error {
	p, err := r.path(userID)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode bot config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("failed to write bot config: %w", err)
	}
	return nil
}

// Update overlays patch on the stored configuration and saves the result.
// Keys absent from patch keep their current values.
func (r *Resolver) Update(userID string, patch map[string]any) (model.BotConfig, error) {
	cfg := r.Load(userID)

	data, err := json.Marshal(patch)
	if err != nil {
		return cfg, fmt.Errorf("failed to encode config patch: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}

	if err := r.Save(userID, cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
