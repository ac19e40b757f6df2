package teamgames

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// DefaultAPIURL is the TeamGames transaction endpoint.
const DefaultAPIURL = "https://api.teamgames.io/api/v3/store/transaction/update"

// Settings holds operator tunables read from the Nakama runtime environment. Unlike StoreConfig
// these are never written back.
type Settings struct {
	APIURL         string        `env:"TEAMGAMES_API_URL" envDefault:"https://api.teamgames.io/api/v3/store/transaction/update"`
	ClaimCooldown  time.Duration `env:"TEAMGAMES_CLAIM_COOLDOWN" envDefault:"10s"`
	RequestTimeout time.Duration `env:"TEAMGAMES_REQUEST_TIMEOUT" envDefault:"30s"`
	// PendingExpiry bounds how long a fetch response is still accepted after the request.
	PendingExpiry time.Duration `env:"TEAMGAMES_PENDING_EXPIRY" envDefault:"60s"`
	SweepSchedule string        `env:"TEAMGAMES_SWEEP_SCHEDULE" envDefault:"@every 1m"`
	// CooldownRetention is how many cooldown windows an idle entry survives before the sweep.
	CooldownRetention int    `env:"TEAMGAMES_COOLDOWN_RETENTION" envDefault:"6"`
	AdminGroup        string `env:"TEAMGAMES_ADMIN_GROUP" envDefault:"teamgames.admin"`
	ConfigFile        string `env:"TEAMGAMES_CONFIG_FILE" envDefault:"teamgames.json"`
	ItemsFile         string `env:"TEAMGAMES_ITEMS_FILE" envDefault:"items.json"`
	InventorySlots    int    `env:"TEAMGAMES_INVENTORY_SLOTS" envDefault:"30"`
	NotificationCode  int    `env:"TEAMGAMES_NOTIFICATION_CODE" envDefault:"1100"`
	// ReservedCommands are host command names that renamed commands may not take.
	ReservedCommands []string `env:"TEAMGAMES_RESERVED_COMMANDS" envSeparator:","`
}

// LoadSettings parses settings from an environment map, as handed to the runtime in
// runtime.RUNTIME_CTX_ENV. Unset variables take their defaults.
func LoadSettings(environ map[string]string) (*Settings, error) {
	if environ == nil {
		environ = map[string]string{}
	}
	settings := &Settings{}
	if err := env.ParseWithOptions(settings, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("parse settings env: %w", err)
	}
	if settings.ClaimCooldown <= 0 {
		return nil, fmt.Errorf("claim cooldown must be positive, got %v", settings.ClaimCooldown)
	}
	if settings.CooldownRetention < 1 {
		settings.CooldownRetention = 1
	}
	return settings, nil
}
