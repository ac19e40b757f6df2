package teamgames

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/heroiclabs/nakama-common/api"
	"github.com/heroiclabs/nakama-common/runtime"
)

const (
	// Stream mode of the per-user notification stream every connected socket joins.
	streamModeNotifications = uint8(0)
	notificationSubject     = "TeamGames"
	groupListLimit          = 100
)

// nakamaPlayer is a player backed by a Nakama account.
type nakamaPlayer struct {
	userID      string
	displayName string
	locale      string
}

func (p *nakamaPlayer) UserID() string      { return p.userID }
func (p *nakamaPlayer) DisplayName() string { return p.displayName }
func (p *nakamaPlayer) Locale() string      { return p.locale }

// NakamaHost implements Host on top of the Nakama runtime.
type NakamaHost struct {
	nk               runtime.NakamaModule
	logger           runtime.Logger
	items            map[string]*ItemDefinition
	slots            int
	notificationCode int
	hostCommands     []string
}

func NewNakamaHost(nk runtime.NakamaModule, logger runtime.Logger, settings *Settings, items map[string]*ItemDefinition) *NakamaHost {
	hostCommands := make([]string, 0, len(settings.ReservedCommands)+1)
	hostCommands = append(hostCommands, RpcIdCommand)
	for _, name := range settings.ReservedCommands {
		if name = strings.TrimSpace(name); name != "" {
			hostCommands = append(hostCommands, strings.ToLower(name))
		}
	}
	if items == nil {
		items = make(map[string]*ItemDefinition)
	}
	return &NakamaHost{
		nk:               nk,
		logger:           logger,
		items:            items,
		slots:            settings.InventorySlots,
		notificationCode: settings.NotificationCode,
		hostCommands:     hostCommands,
	}
}

// LoadItemDefinitions reads the item catalog from a runtime data file holding a JSON array of
// definitions. Disabled items are skipped.
func LoadItemDefinitions(nk runtime.NakamaModule, path string) (map[string]*ItemDefinition, error) {
	file, err := nk.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open item catalog %s: %w", path, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read item catalog %s: %w", path, err)
	}
	return parseItemDefinitions(data)
}

func parseItemDefinitions(data []byte) (map[string]*ItemDefinition, error) {
	var defs []*ItemDefinition
	if err := json.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("decode item catalog: %w", err)
	}

	items := make(map[string]*ItemDefinition, len(defs))
	for _, def := range defs {
		if def == nil || def.ID == "" || def.Disabled {
			continue
		}
		items[strings.ToLower(def.ID)] = def
	}
	return items, nil
}

func (h *NakamaHost) ResolvePlayer(ctx context.Context, userID string) (Player, bool) {
	if userID == "" {
		return nil, false
	}
	account, err := h.nk.AccountGetId(ctx, userID)
	if err != nil || account == nil || account.User == nil {
		return nil, false
	}
	displayName := account.User.DisplayName
	if displayName == "" {
		displayName = account.User.Username
	}
	return &nakamaPlayer{
		userID:      userID,
		displayName: displayName,
		locale:      account.User.LangTag,
	}, true
}

func (h *NakamaHost) IsConnected(ctx context.Context, userID string) bool {
	presences, err := h.nk.StreamUserList(streamModeNotifications, userID, "", "", true, true)
	if err != nil {
		h.logger.Error("Failed to list presences for %s: %v", userID, err)
		return false
	}
	return len(presences) > 0
}

func (h *NakamaHost) SendMessage(ctx context.Context, player Player, text string) error {
	content := map[string]interface{}{
		"message": text,
	}
	return h.nk.NotificationSend(ctx, player.UserID(), notificationSubject, content, h.notificationCode, "", false)
}

func (h *NakamaHost) HasPermission(ctx context.Context, userID, permission string) bool {
	cursor := ""
	for {
		userGroups, next, err := h.nk.UserGroupsList(ctx, userID, groupListLimit, nil, cursor)
		if err != nil {
			h.logger.Error("Failed to get user groups for permission check: %v", err)
			return false
		}
		for _, userGroup := range userGroups {
			if userGroup.Group == nil || userGroup.Group.Name != permission {
				continue
			}
			// A pending join request does not grant anything.
			return userGroup.State != nil && userGroup.State.Value != int32(api.UserGroupList_UserGroup_JOIN_REQUEST)
		}
		if next == "" {
			return false
		}
		cursor = next
	}
}

func (h *NakamaHost) FindItemDefinition(ctx context.Context, name string) (*ItemDefinition, bool) {
	def, found := h.items[strings.ToLower(name)]
	return def, found
}

func (h *NakamaHost) CreateItem(ctx context.Context, def *ItemDefinition, amount int) (*Item, error) {
	if def == nil {
		return nil, fmt.Errorf("no item definition")
	}
	if amount < 1 {
		return nil, fmt.Errorf("invalid amount %d for item %s", amount, def.ID)
	}
	return &Item{
		InstanceID: uuid.New().String(),
		Definition: def,
		Amount:     amount,
	}, nil
}

func (h *NakamaHost) HostCommands() []string {
	return h.hostCommands
}
