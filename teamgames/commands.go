package teamgames

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/heroiclabs/nakama-common/runtime"
)

var (
	ErrCommandNameTaken   = errors.New("command name already in use")
	ErrCommandNotFound    = errors.New("command not found")
	ErrCommandNameEmpty   = errors.New("command name is empty")
	ErrCommandNameInvalid = errors.New("command name contains invalid characters")
)

var commandNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// CommandKind identifies which logical command a binding runs.
type CommandKind int

const (
	CommandKindClaim CommandKind = iota
	CommandKindSecret
	CommandKindSetName
)

func (k CommandKind) String() string {
	switch k {
	case CommandKindClaim:
		return "claim"
	case CommandKindSecret:
		return "secret"
	case CommandKindSetName:
		return "setcmd"
	default:
		return fmt.Sprintf("CommandKind(%d)", int(k))
	}
}

// CommandHandler runs a command. Replies are collected on the CommandContext.
type CommandHandler func(ctx context.Context, logger runtime.Logger, cmd *CommandContext)

type registeredCommand struct {
	name    string
	kind    CommandKind
	handler CommandHandler
}

// CommandRegistry maps live command names to handlers. Names are case-insensitive.
type CommandRegistry struct {
	sync.RWMutex
	commands map[string]*registeredCommand
}

func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{commands: make(map[string]*registeredCommand)}
}

// ValidateCommandName checks a proposed command name.
func ValidateCommandName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrCommandNameEmpty
	}
	if !commandNamePattern.MatchString(name) {
		return ErrCommandNameInvalid
	}
	return nil
}

// Register binds name to handler. It fails if the name is already bound.
func (r *CommandRegistry) Register(name string, kind CommandKind, handler CommandHandler) error {
	if err := ValidateCommandName(name); err != nil {
		return err
	}
	key := strings.ToLower(name)

	r.Lock()
	defer r.Unlock()
	if _, found := r.commands[key]; found {
		return ErrCommandNameTaken
	}
	r.commands[key] = &registeredCommand{name: key, kind: kind, handler: handler}
	return nil
}

// Unregister removes a binding.
func (r *CommandRegistry) Unregister(name string) error {
	key := strings.ToLower(name)

	r.Lock()
	defer r.Unlock()
	if _, found := r.commands[key]; !found {
		return ErrCommandNotFound
	}
	delete(r.commands, key)
	return nil
}

// Lookup returns the handler and kind bound to name.
func (r *CommandRegistry) Lookup(name string) (CommandHandler, CommandKind, bool) {
	r.RLock()
	defer r.RUnlock()
	cmd, found := r.commands[strings.ToLower(name)]
	if !found {
		return nil, 0, false
	}
	return cmd.handler, cmd.kind, true
}

func (r *CommandRegistry) Has(name string) bool {
	_, _, found := r.Lookup(name)
	return found
}

// Rebind moves the binding at oldName to newName under one lock. If newName is already bound
// the old binding is left in place and ErrCommandNameTaken is returned.
func (r *CommandRegistry) Rebind(oldName, newName string) error {
	if err := ValidateCommandName(newName); err != nil {
		return err
	}
	oldKey := strings.ToLower(oldName)
	newKey := strings.ToLower(newName)

	r.Lock()
	defer r.Unlock()

	cmd, found := r.commands[oldKey]
	if !found {
		return ErrCommandNotFound
	}
	if oldKey == newKey {
		return nil
	}

	delete(r.commands, oldKey)
	if _, taken := r.commands[newKey]; taken {
		r.commands[oldKey] = cmd
		return ErrCommandNameTaken
	}
	r.commands[newKey] = &registeredCommand{name: newKey, kind: cmd.kind, handler: cmd.handler}
	return nil
}

// Names returns the bound names in sorted order.
func (r *CommandRegistry) Names() []string {
	r.RLock()
	defer r.RUnlock()
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
