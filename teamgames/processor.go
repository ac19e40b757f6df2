package teamgames

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/heroiclabs/nakama-common/runtime"
)

// Transaction is one pending purchase returned by the store API. Every field may be missing.
type Transaction struct {
	PlayerName      *string `json:"player_name,omitempty"`
	ProductIDString *string `json:"product_id_string,omitempty"`
	ProductAmount   int     `json:"product_amount"`
	Message         *string `json:"message,omitempty"`
}

func (t *Transaction) hasProduct() bool {
	return t.ProductIDString != nil && *t.ProductIDString != ""
}

// TransactionStatus is what happened to a single transaction.
type TransactionStatus int

const (
	TransactionRejected TransactionStatus = iota
	TransactionRelayed
	TransactionDelivered
)

// TransactionResult records the handling of one transaction in a batch.
type TransactionResult struct {
	Status TransactionStatus
	// Delivery is set when Status is TransactionDelivered.
	Delivery DeliveryOutcome
	// Key is the message sent to the player.
	Key string
}

// ParseItemName extracts the item name from a product identifier such as "shop:wood". The
// second colon-separated segment wins, otherwise the whole string is used.
func ParseItemName(productID string) (string, bool) {
	parts := strings.Split(productID, ":")
	name := parts[0]
	if len(parts) > 1 {
		name = parts[1]
	}
	name = strings.TrimSpace(name)
	return name, name != ""
}

// Process handles a store API response for player. Batch-level failures produce no results.
// Otherwise there is one result per transaction, in response order.
func (p *Plugin) Process(ctx context.Context, logger runtime.Logger, player Player, statusCode int, body string) []*TransactionResult {
	if body == "" || statusCode != http.StatusOK {
		if body == "" {
			body = "No response"
		}
		logger.Warn("Failed to fetch transactions for %s: %s (Code: %d)", player.DisplayName(), body, statusCode)
		p.tell(ctx, logger, player, MsgApiOffline)
		return nil
	}

	var transactions []*Transaction
	if err := json.Unmarshal([]byte(body), &transactions); err != nil {
		logger.Warn("Error parsing JSON response: %v", err)
		p.tell(ctx, logger, player, MsgErrorProcessing)
		return nil
	}
	if transactions == nil {
		logger.Warn("No transactions found in the response.")
		p.tell(ctx, logger, player, MsgErrorProcessing)
		return nil
	}
	if len(transactions) == 0 {
		return nil
	}

	if len(transactions) == 1 && transactions[0] != nil && transactions[0].Message != nil && !transactions[0].hasProduct() {
		return []*TransactionResult{p.relay(ctx, logger, player, *transactions[0].Message)}
	}

	results := make([]*TransactionResult, 0, len(transactions))
	for i, transaction := range transactions {
		results = append(results, p.processTransaction(ctx, logger, player, i, transaction))
	}
	return results
}

func (p *Plugin) processTransaction(ctx context.Context, logger runtime.Logger, player Player, index int, transaction *Transaction) *TransactionResult {
	reject := func(key string, args ...any) *TransactionResult {
		p.tell(ctx, logger, player, key, args...)
		return &TransactionResult{Status: TransactionRejected, Key: key}
	}

	if transaction == nil {
		logger.Warn("Null transaction at index %d for %s", index, player.UserID())
		return reject(MsgNullTransaction)
	}
	if transaction.Message != nil && !transaction.hasProduct() {
		return p.relay(ctx, logger, player, *transaction.Message)
	}
	if transaction.ProductIDString == nil {
		logger.Warn("Malformed transaction at index %d for %s: no product and no message", index, player.UserID())
		return reject(MsgErrorProcessing)
	}
	if transaction.ProductAmount < 1 {
		logger.Warn("Invalid product amount %d for %s in transaction %d", transaction.ProductAmount, player.UserID(), index)
		return reject(MsgInvalidAmount, transaction.ProductAmount)
	}

	itemName, ok := ParseItemName(*transaction.ProductIDString)
	if !ok {
		logger.Warn("Could not resolve an item name from product %q", *transaction.ProductIDString)
		return reject(MsgItemNotFound, *transaction.ProductIDString)
	}
	def, found := p.host.FindItemDefinition(ctx, itemName)
	if !found {
		logger.Warn("Item %s not found for %s", itemName, player.UserID())
		return reject(MsgItemNotFound, itemName)
	}

	outcome, key := p.Deliver(ctx, logger, player, def, itemName, transaction.ProductAmount)
	return &TransactionResult{Status: TransactionDelivered, Delivery: outcome, Key: key}
}

func (p *Plugin) relay(ctx context.Context, logger runtime.Logger, player Player, message string) *TransactionResult {
	p.tell(ctx, logger, player, MsgTeamGamesMessage, message)
	p.publish(ctx, logger, player.UserID(), newPublisherEvent(EventMessageRelayed, "", p.now(), map[string]string{
		"message": message,
	}))
	return &TransactionResult{Status: TransactionRelayed, Key: MsgTeamGamesMessage}
}
