package teamgames

import (
	"context"

	"github.com/heroiclabs/nakama-common/runtime"
)

// Message keys in the locale catalogs.
const (
	MsgApiOffline         = "ApiOffline"
	MsgCommandReserved    = "CommandReserved"
	MsgSecretUsage        = "SecretUsage"
	MsgSecretUpdated      = "SecretUpdated"
	MsgSecretInvalid      = "SecretInvalid"
	MsgErrorProcessing    = "ErrorProcessing"
	MsgNullTransaction    = "NullTransaction"
	MsgInvalidAmount      = "InvalidAmount"
	MsgItemNotFound       = "ItemNotFound"
	MsgItemGiven          = "ItemGiven"
	MsgItemDropped        = "ItemDropped"
	MsgFailedToCreate     = "FailedToCreate"
	MsgFailedToDeliver    = "FailedToDeliver"
	MsgSetCommandUsage    = "SetCommandUsage"
	MsgInvalidCommandType = "InvalidCommandType"
	MsgCommandUpdated     = "CommandUpdated"
	MsgCommandNameEmpty   = "CommandNameEmpty"
	MsgCommandNameInvalid = "CommandNameInvalid"
	MsgCommandNameTaken   = "CommandNameTaken"
	MsgClaimPlayerOnly    = "ClaimPlayerOnly"
	MsgTeamGamesMessage   = "TeamGamesMessage"
	MsgClaimCooldown      = "ClaimCooldown"
)

// tell sends a localized message to a player outside of a command reply.
func (p *Plugin) tell(ctx context.Context, logger runtime.Logger, player Player, key string, args ...any) {
	text := p.messages.Message(logger, player.Locale(), key, args...)
	if err := p.host.SendMessage(ctx, player, text); err != nil {
		logger.Error("Failed to send %s message to %s: %v", key, player.UserID(), err)
	}
}
