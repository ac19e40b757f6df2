package teamgames

import (
	"context"
	"strconv"

	"github.com/heroiclabs/nakama-common/runtime"
)

// DeliveryOutcome is the result of handing an item to a player.
type DeliveryOutcome int

const (
	DeliveryFailed DeliveryOutcome = iota
	DeliveryGiven
	DeliveryDropped
)

func (o DeliveryOutcome) String() string {
	switch o {
	case DeliveryGiven:
		return "given"
	case DeliveryDropped:
		return "dropped"
	default:
		return "failed"
	}
}

// Deliver creates amount units of def and gives them to player, dropping them at the player's
// drop position when the inventory is full. The player is told the outcome and a log line is
// written for operators. It returns the outcome and the message key sent.
func (p *Plugin) Deliver(ctx context.Context, logger runtime.Logger, player Player, def *ItemDefinition, itemName string, amount int) (DeliveryOutcome, string) {
	metadata := map[string]string{
		"item_id": def.ID,
		"amount":  strconv.Itoa(amount),
	}

	item, err := p.host.CreateItem(ctx, def, amount)
	if err != nil || item == nil {
		logger.Error("Failed to create item %s x%d for %s: %v", itemName, amount, player.UserID(), err)
		p.tell(ctx, logger, player, MsgFailedToCreate, itemName)
		p.publish(ctx, logger, player.UserID(), newPublisherEvent(EventItemFailed, "", p.now(), metadata))
		return DeliveryFailed, MsgFailedToCreate
	}
	metadata["instance_id"] = item.InstanceID

	given, err := p.host.GiveItem(ctx, player, item)
	if err != nil {
		logger.Error("Failed to give item %s x%d to %s: %v", itemName, amount, player.UserID(), err)
		p.tell(ctx, logger, player, MsgFailedToDeliver, itemName)
		p.publish(ctx, logger, player.UserID(), newPublisherEvent(EventItemFailed, item.InstanceID, p.now(), metadata))
		return DeliveryFailed, MsgFailedToDeliver
	}

	if given {
		logger.Info("Gave %d %s to %s (%s).", amount, itemName, player.DisplayName(), player.UserID())
		p.tell(ctx, logger, player, MsgItemGiven, amount, itemName, player.DisplayName())
		p.publish(ctx, logger, player.UserID(), newPublisherEvent(EventItemGiven, item.InstanceID, p.now(), metadata))
		return DeliveryGiven, MsgItemGiven
	}

	position, err := p.host.DropItem(ctx, player, item)
	if err != nil {
		logger.Error("Inventory full and failed to drop item %s x%d for %s: %v", itemName, amount, player.UserID(), err)
		p.tell(ctx, logger, player, MsgFailedToDeliver, itemName)
		p.publish(ctx, logger, player.UserID(), newPublisherEvent(EventItemFailed, item.InstanceID, p.now(), metadata))
		return DeliveryFailed, MsgFailedToDeliver
	}

	logger.Info("Dropped %d %s to %s (%s) at %s, inventory full.", amount, itemName, player.DisplayName(), player.UserID(), position)
	metadata["position"] = position.String()
	p.tell(ctx, logger, player, MsgItemDropped, amount, itemName, player.DisplayName())
	p.publish(ctx, logger, player.UserID(), newPublisherEvent(EventItemDropped, item.InstanceID, p.now(), metadata))
	return DeliveryDropped, MsgItemDropped
}
