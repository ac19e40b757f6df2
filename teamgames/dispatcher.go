package teamgames

import (
	"context"
	"errors"
	"strings"

	"github.com/heroiclabs/nakama-common/runtime"
)

const consoleActor = "RCON"

// Caller is whoever issued a command: a player session or the server console.
type Caller struct {
	UserID  string
	Name    string
	Console bool
}

// CommandContext carries one command invocation through its handler.
type CommandContext struct {
	Caller Caller
	// Player is nil when the caller is the console or could not be resolved.
	Player Player
	Name   string
	Args   []string

	replies []string
}

// Replies returns the messages produced for the caller.
func (c *CommandContext) Replies() []string {
	return c.replies
}

func (c *CommandContext) locale() string {
	if c.Player == nil {
		return ""
	}
	return c.Player.Locale()
}

func (c *CommandContext) actor() string {
	switch {
	case c.Caller.Console:
		return consoleActor
	case c.Player != nil && c.Player.DisplayName() != "":
		return c.Player.DisplayName()
	case c.Caller.Name != "":
		return c.Caller.Name
	default:
		return c.Caller.UserID
	}
}

// Dispatch runs the command bound to name. It reports false when no such command exists.
func (p *Plugin) Dispatch(ctx context.Context, logger runtime.Logger, caller Caller, name string, args []string) ([]string, bool) {
	handler, _, found := p.registry.Lookup(name)
	if !found {
		return nil, false
	}

	cmd := &CommandContext{
		Caller: caller,
		Name:   strings.ToLower(name),
		Args:   args,
	}
	if !caller.Console && caller.UserID != "" {
		if player, ok := p.host.ResolvePlayer(ctx, caller.UserID); ok {
			cmd.Player = player
		}
	}

	handler(ctx, logger, cmd)
	return cmd.Replies(), true
}

func (p *Plugin) reply(logger runtime.Logger, cmd *CommandContext, key string, args ...any) {
	cmd.replies = append(cmd.replies, p.messages.Message(logger, cmd.locale(), key, args...))
}

func (p *Plugin) authorized(ctx context.Context, cmd *CommandContext) bool {
	if cmd.Caller.Console {
		return true
	}
	if cmd.Player == nil {
		return false
	}
	return p.host.HasPermission(ctx, cmd.Player.UserID(), p.settings.AdminGroup)
}

func usableSecret(secret string) bool {
	return strings.TrimSpace(secret) != "" && secret != DefaultStoreSecretKey
}

func (p *Plugin) handlerFor(kind CommandKind) CommandHandler {
	switch kind {
	case CommandKindClaim:
		return p.handleClaim
	case CommandKindSecret:
		return p.handleSetSecret
	default:
		return p.handleSetCommandName
	}
}

func (p *Plugin) handleClaim(ctx context.Context, logger runtime.Logger, cmd *CommandContext) {
	if cmd.Caller.Console {
		p.reply(logger, cmd, MsgClaimPlayerOnly)
		return
	}
	if cmd.Player == nil {
		return
	}
	player := cmd.Player
	logger = logger.WithField("player", player.UserID())

	if !usableSecret(p.config.Get().StoreSecretKey) {
		logger.Warn("Claim by %s rejected, the store secret key has not been configured.", player.DisplayName())
		p.reply(logger, cmd, MsgApiOffline)
		return
	}

	decision := p.cooldowns.TryAcquire(player.UserID(), p.now())
	if !decision.Allowed {
		p.reply(logger, cmd, MsgClaimCooldown, decision.Remaining)
		return
	}

	requestID, err := p.fetcher.Fetch(logger, player, p.host, p.completeClaim)
	if err != nil {
		logger.Error("Failed to start transaction request: %v", err)
		p.reply(logger, cmd, MsgApiOffline)
		return
	}
	p.publish(ctx, logger, player.UserID(), newPublisherEvent(EventClaimRequested, requestID, p.now(), nil))
}

func (p *Plugin) completeClaim(ctx context.Context, logger runtime.Logger, player Player, result FetchResult) {
	if result.Err != nil {
		logger.Warn("Transaction request for %s failed: %v", player.UserID(), result.Err)
		p.Process(ctx, logger, player, 0, "")
		return
	}
	p.Process(ctx, logger, player, result.StatusCode, result.Body)
}

func (p *Plugin) handleSetSecret(ctx context.Context, logger runtime.Logger, cmd *CommandContext) {
	if !p.authorized(ctx, cmd) {
		p.reply(logger, cmd, MsgCommandReserved, p.settings.AdminGroup)
		return
	}
	if len(cmd.Args) != 1 {
		p.reply(logger, cmd, MsgSecretUsage, cmd.Name)
		return
	}

	secret := cmd.Args[0]
	if !usableSecret(secret) {
		p.reply(logger, cmd, MsgSecretInvalid)
		return
	}

	if err := p.config.Update(ctx, ConfigFieldStoreSecretKey, secret); err != nil {
		logger.Error("Failed to save store secret key: %v", err)
		p.reply(logger, cmd, MsgErrorProcessing)
		return
	}
	p.fetcher.SetAPIKey(secret)

	p.reply(logger, cmd, MsgSecretUpdated)
	logger.Warn("Store secret key has been updated by %s.", cmd.actor())
}

func (p *Plugin) handleSetCommandName(ctx context.Context, logger runtime.Logger, cmd *CommandContext) {
	if !p.authorized(ctx, cmd) {
		p.reply(logger, cmd, MsgCommandReserved, p.settings.AdminGroup)
		return
	}
	if len(cmd.Args) != 2 {
		p.reply(logger, cmd, MsgSetCommandUsage, SetCommandName)
		return
	}

	p.renameMu.Lock()
	defer p.renameMu.Unlock()

	cfg := p.config.Get()
	cmdType := strings.ToLower(cmd.Args[0])
	var (
		kind    CommandKind
		field   ConfigField
		current string
	)
	switch cmdType {
	case "claim":
		kind, field, current = CommandKindClaim, ConfigFieldClaimCommand, cfg.ClaimCommand
	case "secret":
		kind, field, current = CommandKindSecret, ConfigFieldSecretCommand, cfg.SecretCommand
	default:
		p.reply(logger, cmd, MsgInvalidCommandType)
		return
	}

	newName := cmd.Args[1]
	if err := ValidateCommandName(newName); err != nil {
		if errors.Is(err, ErrCommandNameEmpty) {
			p.reply(logger, cmd, MsgCommandNameEmpty)
		} else {
			p.reply(logger, cmd, MsgCommandNameInvalid, newName)
		}
		return
	}
	newName = strings.ToLower(newName)
	if newName == current {
		p.reply(logger, cmd, MsgCommandUpdated, cmdType, current, newName)
		return
	}

	var rollback func()
	switch cfg.RenamePolicy {
	case RenamePolicyRejectOnConflict:
		if p.commandNameInUse(newName) {
			p.reply(logger, cmd, MsgCommandNameTaken, newName)
			return
		}
		if err := p.registry.Register(newName, kind, p.handlerFor(kind)); err != nil {
			p.reply(logger, cmd, MsgCommandNameTaken, newName)
			return
		}
		rollback = func() { _ = p.registry.Unregister(newName) }
	default:
		if err := p.registry.Rebind(current, newName); err != nil {
			if !errors.Is(err, ErrCommandNameTaken) {
				logger.Error("Failed to rebind /%s to /%s: %v", current, newName, err)
			}
			p.reply(logger, cmd, MsgCommandNameTaken, newName)
			return
		}
		rollback = func() { _ = p.registry.Rebind(newName, current) }
	}

	if err := p.config.Update(ctx, field, newName); err != nil {
		logger.Error("Failed to save %s command name: %v", cmdType, err)
		rollback()
		p.reply(logger, cmd, MsgErrorProcessing)
		return
	}

	p.reply(logger, cmd, MsgCommandUpdated, cmdType, current, newName)
	logger.Warn("%s command has been updated from /%s to /%s by %s.", cmdType, current, newName, cmd.actor())
}

func (p *Plugin) commandNameInUse(name string) bool {
	if p.registry.Has(name) {
		return true
	}
	for _, hostCommand := range p.host.HostCommands() {
		if strings.EqualFold(hostCommand, name) {
			return true
		}
	}
	return false
}
