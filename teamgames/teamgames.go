// Package teamgames fulfills TeamGames store purchases inside a Nakama server. A player claims
// their purchases with a chat command, the plugin asks the store API what is pending and hands
// out the matching items.
package teamgames

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/robfig/cron/v3"
)

// Plugin holds all state of one running store integration.
type Plugin struct {
	settings   *Settings
	config     *StoreConfigManager
	messages   *MessageCatalog
	cooldowns  *CooldownTracker
	registry   *CommandRegistry
	fetcher    *TransactionFetcher
	host       Host
	publishers []Publisher
	now        func() time.Time

	renameMu  sync.Mutex
	scheduler *cron.Cron
}

// NewPlugin loads the persisted configuration and binds the configured command names.
func NewPlugin(ctx context.Context, logger runtime.Logger, settings *Settings, host Host, store ConfigStore, messages *MessageCatalog, publishers ...Publisher) (*Plugin, error) {
	if settings == nil {
		var err error
		if settings, err = LoadSettings(nil); err != nil {
			return nil, err
		}
	}
	if messages == nil {
		var err error
		if messages, err = DefaultMessageCatalog(); err != nil {
			return nil, err
		}
	}

	config := LoadStoreConfig(ctx, logger, store)
	cfg := config.Get()

	p := &Plugin{
		settings:  settings,
		config:    config,
		messages:  messages,
		cooldowns: NewCooldownTracker(settings.ClaimCooldown, settings.CooldownRetention),
		registry:  NewCommandRegistry(),
		fetcher: NewTransactionFetcher(&FetcherConfig{
			URL:     settings.APIURL,
			APIKey:  cfg.StoreSecretKey,
			Timeout: settings.RequestTimeout,
			Expiry:  settings.PendingExpiry,
		}),
		host:       host,
		publishers: publishers,
		now:        time.Now,
	}

	bindings := []struct {
		name string
		kind CommandKind
	}{
		{cfg.ClaimCommand, CommandKindClaim},
		{cfg.SecretCommand, CommandKindSecret},
		{SetCommandName, CommandKindSetName},
	}
	for _, binding := range bindings {
		if err := p.registry.Register(binding.name, binding.kind, p.handlerFor(binding.kind)); err != nil {
			p.fetcher.Close()
			return nil, fmt.Errorf("register %s command /%s: %w", binding.kind, binding.name, err)
		}
	}

	logger.Info("TeamGames commands registered: %v", p.registry.Names())
	return p, nil
}

// Config returns the live configuration.
func (p *Plugin) Config() StoreConfig {
	return p.config.Get()
}

// Commands returns the currently bound command names.
func (p *Plugin) Commands() []string {
	return p.registry.Names()
}

// Start schedules the periodic sweep of idle cooldowns and expired requests.
func (p *Plugin) Start(logger runtime.Logger) error {
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(p.settings.SweepSchedule, func() { p.Sweep(logger) }); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", p.settings.SweepSchedule, err)
	}
	scheduler.Start()
	p.scheduler = scheduler
	return nil
}

// Sweep drops idle cooldown entries and requests that can no longer complete.
func (p *Plugin) Sweep(logger runtime.Logger) {
	now := p.now()
	cooldowns := p.cooldowns.Sweep(now)
	requests := p.fetcher.SweepExpired(now)
	if cooldowns > 0 || requests > 0 {
		logger.Debug("Swept %d idle cooldowns and %d expired requests", cooldowns, requests)
	}
}

// Close stops the sweep and waits for in-flight requests to finish.
func (p *Plugin) Close() {
	if p.scheduler != nil {
		<-p.scheduler.Stop().Done()
		p.scheduler = nil
	}
	p.fetcher.Close()
}

// Init builds the plugin against a Nakama server and registers its entry points.
func Init(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, initializer runtime.Initializer) (*Plugin, error) {
	environ, _ := ctx.Value(runtime.RUNTIME_CTX_ENV).(map[string]string)
	settings, err := LoadSettings(environ)
	if err != nil {
		logger.Error("Failed to load TeamGames settings: %v", err)
		return nil, err
	}

	messages, err := DefaultMessageCatalog()
	if err != nil {
		logger.Error("Failed to load TeamGames messages: %v", err)
		return nil, err
	}

	items, err := LoadItemDefinitions(nk, settings.ItemsFile)
	if err != nil {
		logger.Warn("No item catalog loaded, every product will be reported as not found: %v", err)
	}
	logger.Info("Loaded %d TeamGames item definitions", len(items))

	host := NewNakamaHost(nk, logger, settings, items)
	store := NewNakamaConfigStore(nk, settings.ConfigFile)

	p, err := NewPlugin(ctx, logger, settings, host, store, messages, NewNakamaEventPublisher(nk))
	if err != nil {
		logger.Error("Failed to create TeamGames plugin: %v", err)
		return nil, err
	}
	if err := p.Register(initializer); err != nil {
		p.Close()
		logger.Error("Failed to register TeamGames entry points: %v", err)
		return nil, err
	}
	if err := p.Start(logger); err != nil {
		p.Close()
		logger.Error("Failed to start TeamGames sweep: %v", err)
		return nil, err
	}
	return p, nil
}
