package teamgames

import (
	"context"
	"fmt"
)

// Player is a player account known to the host game server.
type Player interface {
	UserID() string
	DisplayName() string
	// Locale is the player's language tag, or empty when unknown.
	Locale() string
}

// Position is a point in the game world.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (p Position) String() string {
	return fmt.Sprintf("(%.2f, %.2f, %.2f)", p.X, p.Y, p.Z)
}

// ItemDefinition is an entry in the host's item catalog.
type ItemDefinition struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Category  string `json:"category,omitempty"`
	Stackable bool   `json:"stackable"`
	// MaxCount caps a single stack. Zero means unlimited.
	MaxCount int64 `json:"max_count,omitempty"`
	Disabled bool  `json:"disabled,omitempty"`
}

// Item is an instantiated stack of an item definition that has not been placed anywhere yet.
type Item struct {
	InstanceID string
	Definition *ItemDefinition
	Amount     int
}

// PlayerDirectory resolves players and their connection state.
type PlayerDirectory interface {
	// ResolvePlayer returns the player for a user ID, or false if there is no such player.
	ResolvePlayer(ctx context.Context, userID string) (Player, bool)
	// IsConnected reports whether the player currently holds a live session.
	IsConnected(ctx context.Context, userID string) bool
}

// Messenger delivers chat text to a player.
type Messenger interface {
	SendMessage(ctx context.Context, player Player, text string) error
}

// Permissions answers authorization questions about players.
type Permissions interface {
	HasPermission(ctx context.Context, userID, permission string) bool
}

// ItemCatalog looks up item definitions by name.
type ItemCatalog interface {
	FindItemDefinition(ctx context.Context, name string) (*ItemDefinition, bool)
}

// ItemService instantiates items and places them with a player or in the world.
type ItemService interface {
	CreateItem(ctx context.Context, def *ItemDefinition, amount int) (*Item, error)
	// GiveItem places the item in the player's inventory. It returns false without error when
	// the inventory has no room for the whole stack.
	GiveItem(ctx context.Context, player Player, item *Item) (bool, error)
	// DropItem places the item in the world at the player's drop position.
	DropItem(ctx context.Context, player Player, item *Item) (Position, error)
}

// CommandTables exposes command names the host already routes elsewhere.
type CommandTables interface {
	HostCommands() []string
}

// Host combines everything the plugin needs from the game server.
type Host interface {
	PlayerDirectory
	Messenger
	Permissions
	ItemCatalog
	ItemService
	CommandTables
}
