package teamgames

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/heroiclabs/nakama-common/rtapi"
	"github.com/heroiclabs/nakama-common/runtime"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// RpcIdCommand runs a store command over RPC. Called with the server HTTP key and no session,
// the caller is the console.
const RpcIdCommand = "teamgames_command"

var (
	ErrPayloadDecode   = runtime.NewError("cannot decode json", INTERNAL_ERROR_CODE)
	ErrPayloadEncode   = runtime.NewError("cannot encode json", INTERNAL_ERROR_CODE)
	ErrPayloadEmpty    = runtime.NewError("payload should not be empty", INVALID_ARGUMENT_ERROR_CODE)
	ErrCommandRequired = runtime.NewError("command is required", INVALID_ARGUMENT_ERROR_CODE)
)

type commandRequest struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

type chatMessageContent struct {
	Message string `json:"message"`
}

func callerFromContext(ctx context.Context) Caller {
	userID, _ := ctx.Value(runtime.RUNTIME_CTX_USER_ID).(string)
	if userID == "" {
		return Caller{Name: consoleActor, Console: true}
	}
	username, _ := ctx.Value(runtime.RUNTIME_CTX_USERNAME).(string)
	return Caller{UserID: userID, Name: username}
}

// rpcCommand dispatches {"command": "...", "args": [...]} and answers with the replies.
func rpcCommand(p *Plugin) func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	return func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
		if payload == "" {
			return "", ErrPayloadEmpty
		}

		var request commandRequest
		if err := json.Unmarshal([]byte(payload), &request); err != nil {
			logger.Error("Failed to unmarshal command request: %v", err)
			return "", ErrPayloadDecode
		}
		name := strings.TrimPrefix(strings.TrimSpace(request.Command), "/")
		if name == "" {
			return "", ErrCommandRequired
		}

		replies, handled := p.Dispatch(ctx, logger, callerFromContext(ctx), name, request.Args)

		list := make([]interface{}, 0, len(replies))
		for _, reply := range replies {
			list = append(list, reply)
		}
		response, err := structpb.NewStruct(map[string]interface{}{
			"handled": handled,
			"replies": list,
		})
		if err != nil {
			logger.Error("Failed to build command response: %v", err)
			return "", ErrPayloadEncode
		}
		data, err := protojson.Marshal(response)
		if err != nil {
			logger.Error("Failed to marshal command response: %v", err)
			return "", ErrPayloadEncode
		}
		return string(data), nil
	}
}

// parseChatCommand splits "/name arg1 arg2" into its parts. ok is false for ordinary chat.
func parseChatCommand(text string) (name string, args []string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	fields := strings.Fields(text[1:])
	if len(fields) == 0 {
		return "", nil, false
	}
	return fields[0], fields[1:], true
}

// beforeChannelMessageSend runs registered slash commands typed into chat. Handled commands are
// answered by notification and never reach the channel.
func beforeChannelMessageSend(p *Plugin) func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, in *rtapi.Envelope) (*rtapi.Envelope, error) {
	return func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, in *rtapi.Envelope) (*rtapi.Envelope, error) {
		send := in.GetChannelMessageSend()
		if send == nil {
			return in, nil
		}

		var content chatMessageContent
		if err := json.Unmarshal([]byte(send.Content), &content); err != nil {
			return in, nil
		}
		name, args, ok := parseChatCommand(content.Message)
		if !ok || !p.registry.Has(name) {
			return in, nil
		}

		caller := callerFromContext(ctx)
		if caller.Console {
			return in, nil
		}

		replies, _ := p.Dispatch(ctx, logger, caller, name, args)
		if len(replies) > 0 {
			player, found := p.host.ResolvePlayer(ctx, caller.UserID)
			if !found {
				logger.Warn("Dropping %d command replies for unknown user %s", len(replies), caller.UserID)
				return nil, nil
			}
			for _, reply := range replies {
				if err := p.host.SendMessage(ctx, player, reply); err != nil {
					logger.Error("Failed to send command reply to %s: %v", caller.UserID, err)
				}
			}
		}
		return nil, nil
	}
}

// Register binds the plugin's entry points on the initializer.
func (p *Plugin) Register(initializer runtime.Initializer) error {
	if err := initializer.RegisterRpc(RpcIdCommand, rpcCommand(p)); err != nil {
		return err
	}
	if err := initializer.RegisterBeforeRt("ChannelMessageSend", beforeChannelMessageSend(p)); err != nil {
		return err
	}
	return nil
}
