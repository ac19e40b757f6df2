package teamgames

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/xeipuuv/gojsonschema"
)

const (
	DefaultStoreSecretKey = "your-api-key-here"
	DefaultClaimCommand   = "tgclaim"
	DefaultSecretCommand  = "tgsecret"
	// SetCommandName is the fixed name of the rename command.
	SetCommandName = "tgsetcmd"
)

// ErrConfigNotFound is returned by a ConfigStore that has nothing persisted yet.
var ErrConfigNotFound = errors.New("config not found")

// RenamePolicy decides what happens to the old binding when a command is renamed.
type RenamePolicy string

const (
	// RenamePolicyOverwrite unregisters the old name and registers the new one in its place.
	RenamePolicyOverwrite RenamePolicy = "overwrite"
	// RenamePolicyRejectOnConflict refuses names that collide with any known command and
	// leaves the old binding live.
	RenamePolicyRejectOnConflict RenamePolicy = "reject-on-conflict"
)

// StoreConfig is the persisted plugin configuration.
type StoreConfig struct {
	StoreSecretKey string       `json:"store-secret-key"`
	ClaimCommand   string       `json:"claim-command"`
	SecretCommand  string       `json:"secret-command"`
	RenamePolicy   RenamePolicy `json:"rename-policy"`
}

// DefaultStoreConfig returns the built-in configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		StoreSecretKey: DefaultStoreSecretKey,
		ClaimCommand:   DefaultClaimCommand,
		SecretCommand:  DefaultSecretCommand,
		RenamePolicy:   RenamePolicyOverwrite,
	}
}

// ConfigField names a single mutable field of StoreConfig.
type ConfigField int

const (
	ConfigFieldStoreSecretKey ConfigField = iota
	ConfigFieldClaimCommand
	ConfigFieldSecretCommand
)

func (f ConfigField) String() string {
	switch f {
	case ConfigFieldStoreSecretKey:
		return "store-secret-key"
	case ConfigFieldClaimCommand:
		return "claim-command"
	case ConfigFieldSecretCommand:
		return "secret-command"
	default:
		return fmt.Sprintf("ConfigField(%d)", int(f))
	}
}

// ConfigStore persists the raw configuration document.
type ConfigStore interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
}

const storeConfigSchema = `{
  "type": "object",
  "properties": {
    "store-secret-key": {"type": ["string", "null"]},
    "claim-command": {"type": ["string", "null"], "pattern": "^[A-Za-z0-9_]*$"},
    "secret-command": {"type": ["string", "null"], "pattern": "^[A-Za-z0-9_]*$"},
    "rename-policy": {"type": ["string", "null"], "enum": ["overwrite", "reject-on-conflict", "", null]}
  }
}`

var storeConfigSchemaLoader = gojsonschema.NewStringLoader(storeConfigSchema)

// parseStoreConfig validates a persisted document and fills absent fields with defaults.
func parseStoreConfig(data []byte) (StoreConfig, error) {
	result, err := gojsonschema.Validate(storeConfigSchemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return StoreConfig{}, fmt.Errorf("validate config: %w", err)
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, fmt.Sprintf("%s: %s", desc.Context().String(), desc.Description()))
		}
		return StoreConfig{}, fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}

	var cfg StoreConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return StoreConfig{}, fmt.Errorf("decode config: %w", err)
	}

	defaults := DefaultStoreConfig()
	if cfg.StoreSecretKey == "" {
		cfg.StoreSecretKey = defaults.StoreSecretKey
	}
	if cfg.ClaimCommand == "" {
		cfg.ClaimCommand = defaults.ClaimCommand
	}
	if cfg.SecretCommand == "" {
		cfg.SecretCommand = defaults.SecretCommand
	}
	if cfg.RenamePolicy == "" {
		cfg.RenamePolicy = defaults.RenamePolicy
	}
	cfg.ClaimCommand = strings.ToLower(cfg.ClaimCommand)
	cfg.SecretCommand = strings.ToLower(cfg.SecretCommand)
	return cfg, nil
}

// resetCollidingCommands reverts command names that would bind the same name twice. Names equal
// to SetCommandName or to each other are replaced by their defaults.
func resetCollidingCommands(cfg StoreConfig) (StoreConfig, []ConfigField) {
	defaults := DefaultStoreConfig()
	reverted := make([]ConfigField, 0, 2)

	if cfg.ClaimCommand == SetCommandName {
		cfg.ClaimCommand = defaults.ClaimCommand
		reverted = append(reverted, ConfigFieldClaimCommand)
	}
	if cfg.SecretCommand == SetCommandName {
		cfg.SecretCommand = defaults.SecretCommand
		reverted = append(reverted, ConfigFieldSecretCommand)
	}
	if cfg.ClaimCommand == cfg.SecretCommand {
		if cfg.ClaimCommand != defaults.ClaimCommand {
			cfg.ClaimCommand = defaults.ClaimCommand
			reverted = appendField(reverted, ConfigFieldClaimCommand)
		}
		if cfg.SecretCommand != defaults.SecretCommand {
			cfg.SecretCommand = defaults.SecretCommand
			reverted = appendField(reverted, ConfigFieldSecretCommand)
		}
	}
	return cfg, reverted
}

func (c StoreConfig) command(field ConfigField) string {
	if field == ConfigFieldSecretCommand {
		return c.SecretCommand
	}
	return c.ClaimCommand
}

func appendField(fields []ConfigField, field ConfigField) []ConfigField {
	if slices.Contains(fields, field) {
		return fields
	}
	return append(fields, field)
}

// StoreConfigManager owns the live configuration and writes it through to a ConfigStore.
type StoreConfigManager struct {
	sync.RWMutex
	store  ConfigStore
	config StoreConfig
}

// LoadStoreConfig reads the persisted configuration. A missing or corrupt document is replaced
// by defaults. The result is always written back so the stored copy is normalized.
func LoadStoreConfig(ctx context.Context, logger runtime.Logger, store ConfigStore) *StoreConfigManager {
	cfg := DefaultStoreConfig()

	data, err := store.Read(ctx)
	switch {
	case errors.Is(err, ErrConfigNotFound):
		logger.Info("No TeamGames config found, creating default config")
	case err != nil:
		logger.Warn("Failed to read TeamGames config, using defaults: %v", err)
	default:
		parsed, err := parseStoreConfig(data)
		if err != nil {
			logger.Warn("TeamGames config is corrupt, reverting to defaults: %v", err)
			break
		}
		var reverted []ConfigField
		cfg, reverted = resetCollidingCommands(parsed)
		for _, field := range reverted {
			logger.Warn("TeamGames config %s collides with another command, reverting to default /%s", field, cfg.command(field))
		}
	}

	m := &StoreConfigManager{store: store, config: cfg}
	if err := m.persist(ctx, cfg); err != nil {
		logger.Error("Failed to save TeamGames config: %v", err)
	}
	return m
}

// Get returns a copy of the current configuration.
func (m *StoreConfigManager) Get() StoreConfig {
	m.RLock()
	defer m.RUnlock()
	return m.config
}

// Update sets one field and persists the whole configuration. The in-memory value is left
// unchanged when the write fails.
func (m *StoreConfigManager) Update(ctx context.Context, field ConfigField, value string) error {
	m.Lock()
	defer m.Unlock()

	next := m.config
	switch field {
	case ConfigFieldStoreSecretKey:
		next.StoreSecretKey = value
	case ConfigFieldClaimCommand:
		next.ClaimCommand = value
	case ConfigFieldSecretCommand:
		next.SecretCommand = value
	default:
		return fmt.Errorf("unknown config field %v", field)
	}

	if err := m.persist(ctx, next); err != nil {
		return err
	}
	m.config = next
	return nil
}

func (m *StoreConfigManager) persist(ctx context.Context, cfg StoreConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := m.store.Write(ctx, data); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// FileConfigStore keeps the configuration in a JSON file on local disk.
type FileConfigStore struct {
	Path string
}

func (s *FileConfigStore) Read(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrConfigNotFound
	}
	return data, err
}

func (s *FileConfigStore) Write(ctx context.Context, data []byte) error {
	if dir := filepath.Dir(s.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(s.Path, data, 0o600)
}
