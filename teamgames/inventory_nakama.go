package teamgames

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/heroiclabs/nakama-common/runtime"
)

const (
	inventoryStorageCollection = "inventory"
	inventoryPageSize          = 100

	playerStateCollection = "player_state"
	playerPositionKey     = "position"

	worldDropsCollection = "world_drops"
)

// InventoryStack is one occupied inventory slot as stored for a player.
type InventoryStack struct {
	ItemID     string `json:"item_id"`
	Category   string `json:"category,omitempty"`
	Count      int64  `json:"count"`
	Source     string `json:"source,omitempty"`
	CreateTime int64  `json:"create_time"`
	UpdateTime int64  `json:"update_time"`
}

// WorldDrop is an item left in the world for a player whose inventory was full.
type WorldDrop struct {
	ItemID    string   `json:"item_id"`
	Count     int64    `json:"count"`
	OwnerID   string   `json:"owner_id"`
	Position  Position `json:"position"`
	DroppedAt int64    `json:"dropped_at"`
}

type storedStack struct {
	key     string
	version string
	stack   *InventoryStack
}

func (h *NakamaHost) listStacks(ctx context.Context, userID string) ([]*storedStack, error) {
	stacks := make([]*storedStack, 0)
	cursor := ""
	for {
		objects, nextCursor, err := h.nk.StorageList(ctx, "", userID, inventoryStorageCollection, inventoryPageSize, cursor)
		if err != nil {
			return nil, fmt.Errorf("list inventory: %w", err)
		}
		for _, obj := range objects {
			var stack InventoryStack
			if err := json.Unmarshal([]byte(obj.Value), &stack); err != nil {
				h.logger.Error("Failed to unmarshal inventory stack %s: %v", obj.Key, err)
				continue
			}
			stacks = append(stacks, &storedStack{key: obj.Key, version: obj.Version, stack: &stack})
		}
		if nextCursor == "" {
			return stacks, nil
		}
		cursor = nextCursor
	}
}

// GiveItem adds the whole item to the player's inventory or nothing at all. Stackable items top
// up existing stacks first. Every write is conditional on the version that was read.
func (h *NakamaHost) GiveItem(ctx context.Context, player Player, item *Item) (bool, error) {
	userID := player.UserID()
	def := item.Definition

	stacks, err := h.listStacks(ctx, userID)
	if err != nil {
		return false, err
	}

	now := time.Now().Unix()
	remaining := int64(item.Amount)
	writes := make([]*runtime.StorageWrite, 0)

	if def.Stackable {
		for _, existing := range stacks {
			if remaining == 0 {
				break
			}
			if existing.stack.ItemID != def.ID {
				continue
			}
			add := remaining
			if def.MaxCount > 0 {
				add = min(remaining, def.MaxCount-existing.stack.Count)
			}
			if add <= 0 {
				continue
			}
			existing.stack.Count += add
			existing.stack.UpdateTime = now
			remaining -= add

			write, err := stackWrite(userID, existing.key, existing.version, existing.stack)
			if err != nil {
				return false, err
			}
			writes = append(writes, write)
		}
	}

	size := int64(1)
	if def.Stackable {
		size = remaining
		if def.MaxCount > 0 {
			size = def.MaxCount
		}
	}
	needed := int64(0)
	if remaining > 0 {
		needed = (remaining + size - 1) / size
	}
	// New stacks are only built once all of them fit.
	if h.slots > 0 && int64(len(stacks))+needed > int64(h.slots) {
		return false, nil
	}

	for n := int64(0); remaining > 0; n++ {
		count := min(remaining, size)
		key := item.InstanceID
		if n > 0 {
			key = uuid.New().String()
		}
		stack := &InventoryStack{
			ItemID:     def.ID,
			Category:   def.Category,
			Count:      count,
			Source:     "teamgames",
			CreateTime: now,
			UpdateTime: now,
		}
		// "*" only writes if the key does not exist yet.
		write, err := stackWrite(userID, key, "*", stack)
		if err != nil {
			return false, err
		}
		writes = append(writes, write)
		remaining -= count
	}

	if _, err := h.nk.StorageWrite(ctx, writes); err != nil {
		return false, fmt.Errorf("write inventory: %w", err)
	}
	return true, nil
}

func stackWrite(userID, key, version string, stack *InventoryStack) (*runtime.StorageWrite, error) {
	value, err := json.Marshal(stack)
	if err != nil {
		return nil, fmt.Errorf("encode inventory stack: %w", err)
	}
	return &runtime.StorageWrite{
		Collection:      inventoryStorageCollection,
		Key:             key,
		UserID:          userID,
		Value:           string(value),
		Version:         version,
		PermissionRead:  runtime.STORAGE_PERMISSION_OWNER_READ,
		PermissionWrite: runtime.STORAGE_PERMISSION_OWNER_WRITE,
	}, nil
}

// dropPosition is the player's last reported position, or the origin when none is stored.
func (h *NakamaHost) dropPosition(ctx context.Context, userID string) (Position, error) {
	objects, err := h.nk.StorageRead(ctx, []*runtime.StorageRead{{
		Collection: playerStateCollection,
		Key:        playerPositionKey,
		UserID:     userID,
	}})
	if err != nil {
		return Position{}, fmt.Errorf("read player position: %w", err)
	}
	if len(objects) == 0 {
		return Position{}, nil
	}

	var position Position
	if err := json.Unmarshal([]byte(objects[0].Value), &position); err != nil {
		h.logger.Warn("Ignoring malformed position for %s: %v", userID, err)
		return Position{}, nil
	}
	return position, nil
}

// DropItem places the item in the world at the player's drop position.
func (h *NakamaHost) DropItem(ctx context.Context, player Player, item *Item) (Position, error) {
	position, err := h.dropPosition(ctx, player.UserID())
	if err != nil {
		return Position{}, err
	}

	drop := &WorldDrop{
		ItemID:    item.Definition.ID,
		Count:     int64(item.Amount),
		OwnerID:   player.UserID(),
		Position:  position,
		DroppedAt: time.Now().Unix(),
	}
	value, err := json.Marshal(drop)
	if err != nil {
		return Position{}, fmt.Errorf("encode world drop: %w", err)
	}

	if _, err := h.nk.StorageWrite(ctx, []*runtime.StorageWrite{{
		Collection:      worldDropsCollection,
		Key:             item.InstanceID,
		Value:           string(value),
		PermissionRead:  runtime.STORAGE_PERMISSION_PUBLIC_READ,
		PermissionWrite: runtime.STORAGE_PERMISSION_NO_WRITE,
	}}); err != nil {
		return Position{}, fmt.Errorf("write world drop: %w", err)
	}
	return position, nil
}
