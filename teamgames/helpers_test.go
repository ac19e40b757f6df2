package teamgames

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type logEntry struct {
	Level   string
	Message string
}

type logSink struct {
	sync.Mutex
	entries []logEntry
}

// testLogger implements runtime.Logger on top of zaptest and remembers every line.
type testLogger struct {
	sugar  *zap.SugaredLogger
	fields map[string]interface{}
	sink   *logSink
}

func newTestLogger(t *testing.T) *testLogger {
	return &testLogger{
		sugar:  zaptest.NewLogger(t).Sugar(),
		fields: map[string]interface{}{},
		sink:   &logSink{},
	}
}

func (l *testLogger) log(level, format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	l.sink.Lock()
	l.sink.entries = append(l.sink.entries, logEntry{Level: level, Message: msg})
	l.sink.Unlock()

	switch level {
	case "debug":
		l.sugar.Debug(msg)
	case "info":
		l.sugar.Info(msg)
	case "warn":
		l.sugar.Warn(msg)
	default:
		l.sugar.Error(msg)
	}
}

func (l *testLogger) Debug(format string, v ...interface{}) { l.log("debug", format, v...) }
func (l *testLogger) Info(format string, v ...interface{})  { l.log("info", format, v...) }
func (l *testLogger) Warn(format string, v ...interface{})  { l.log("warn", format, v...) }
func (l *testLogger) Error(format string, v ...interface{}) { l.log("error", format, v...) }

func (l *testLogger) WithField(key string, v interface{}) runtime.Logger {
	return l.WithFields(map[string]interface{}{key: v})
}

func (l *testLogger) WithFields(fields map[string]interface{}) runtime.Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
		args = append(args, k, v)
	}
	return &testLogger{sugar: l.sugar.With(args...), fields: merged, sink: l.sink}
}

func (l *testLogger) Fields() map[string]interface{} {
	return l.fields
}

// Lines returns the logged messages at level.
func (l *testLogger) Lines(level string) []string {
	l.sink.Lock()
	defer l.sink.Unlock()
	lines := make([]string, 0)
	for _, entry := range l.sink.entries {
		if entry.Level == level {
			lines = append(lines, entry.Message)
		}
	}
	return lines
}

func (l *testLogger) Contains(level, substr string) bool {
	for _, line := range l.Lines(level) {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

type fakePlayer struct {
	id     string
	name   string
	locale string
}

func (p *fakePlayer) UserID() string      { return p.id }
func (p *fakePlayer) DisplayName() string { return p.name }
func (p *fakePlayer) Locale() string      { return p.locale }

// fakeHost is an in-memory game server.
type fakeHost struct {
	sync.Mutex
	players      map[string]*fakePlayer
	disconnected map[string]bool
	admins       map[string]bool
	items        map[string]*ItemDefinition
	hostCommands []string

	inventoryFull bool
	createErr     error
	giveErr       error
	dropErr       error
	sendErr       error
	dropPosition  Position

	messages map[string][]string
	created  []*Item
	given    []*Item
	dropped  []*Item
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		players:      map[string]*fakePlayer{},
		disconnected: map[string]bool{},
		admins:       map[string]bool{},
		items:        map[string]*ItemDefinition{},
		messages:     map[string][]string{},
	}
}

func (h *fakeHost) addPlayer(id, name string) *fakePlayer {
	h.Lock()
	defer h.Unlock()
	player := &fakePlayer{id: id, name: name}
	h.players[id] = player
	return player
}

func (h *fakeHost) addItem(id string) *ItemDefinition {
	h.Lock()
	defer h.Unlock()
	def := &ItemDefinition{ID: id, Name: id, Stackable: true}
	h.items[id] = def
	return def
}

func (h *fakeHost) messagesFor(userID string) []string {
	h.Lock()
	defer h.Unlock()
	return append([]string(nil), h.messages[userID]...)
}

func (h *fakeHost) ResolvePlayer(ctx context.Context, userID string) (Player, bool) {
	h.Lock()
	defer h.Unlock()
	player, found := h.players[userID]
	if !found {
		return nil, false
	}
	return player, true
}

func (h *fakeHost) IsConnected(ctx context.Context, userID string) bool {
	h.Lock()
	defer h.Unlock()
	_, found := h.players[userID]
	return found && !h.disconnected[userID]
}

func (h *fakeHost) SendMessage(ctx context.Context, player Player, text string) error {
	h.Lock()
	defer h.Unlock()
	if h.sendErr != nil {
		return h.sendErr
	}
	h.messages[player.UserID()] = append(h.messages[player.UserID()], text)
	return nil
}

func (h *fakeHost) HasPermission(ctx context.Context, userID, permission string) bool {
	h.Lock()
	defer h.Unlock()
	return h.admins[userID]
}

func (h *fakeHost) FindItemDefinition(ctx context.Context, name string) (*ItemDefinition, bool) {
	h.Lock()
	defer h.Unlock()
	def, found := h.items[name]
	return def, found
}

func (h *fakeHost) CreateItem(ctx context.Context, def *ItemDefinition, amount int) (*Item, error) {
	h.Lock()
	defer h.Unlock()
	if h.createErr != nil {
		return nil, h.createErr
	}
	item := &Item{InstanceID: fmt.Sprintf("item-%d", len(h.created)+1), Definition: def, Amount: amount}
	h.created = append(h.created, item)
	return item, nil
}

func (h *fakeHost) GiveItem(ctx context.Context, player Player, item *Item) (bool, error) {
	h.Lock()
	defer h.Unlock()
	if h.giveErr != nil {
		return false, h.giveErr
	}
	if h.inventoryFull {
		return false, nil
	}
	h.given = append(h.given, item)
	return true, nil
}

func (h *fakeHost) DropItem(ctx context.Context, player Player, item *Item) (Position, error) {
	h.Lock()
	defer h.Unlock()
	if h.dropErr != nil {
		return Position{}, h.dropErr
	}
	h.dropped = append(h.dropped, item)
	return h.dropPosition, nil
}

func (h *fakeHost) HostCommands() []string {
	return h.hostCommands
}

// memoryConfigStore keeps the configuration document in memory.
type memoryConfigStore struct {
	sync.Mutex
	data     []byte
	readErr  error
	writeErr error
	writes   int
}

func (s *memoryConfigStore) Read(ctx context.Context) ([]byte, error) {
	s.Lock()
	defer s.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	if s.data == nil {
		return nil, ErrConfigNotFound
	}
	return s.data, nil
}

func (s *memoryConfigStore) Write(ctx context.Context, data []byte) error {
	s.Lock()
	defer s.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.data = append([]byte(nil), data...)
	s.writes++
	return nil
}

func (s *memoryConfigStore) failWrites(err error) {
	s.Lock()
	s.writeErr = err
	s.Unlock()
}

type recordingPublisher struct {
	sync.Mutex
	events []*PublisherEvent
}

func (p *recordingPublisher) Send(ctx context.Context, logger runtime.Logger, userID string, events []*PublisherEvent) {
	p.Lock()
	defer p.Unlock()
	p.events = append(p.events, events...)
}

func (p *recordingPublisher) names() []string {
	p.Lock()
	defer p.Unlock()
	names := make([]string, 0, len(p.events))
	for _, event := range p.events {
		names = append(names, event.Name)
	}
	return names
}

type fakeClock struct {
	sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.Lock()
	defer c.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.Lock()
	c.now = c.now.Add(d)
	c.Unlock()
}

var errBoom = errors.New("boom")

type testPlugin struct {
	*Plugin
	host      *fakeHost
	store     *memoryConfigStore
	logger    *testLogger
	clock     *fakeClock
	publisher *recordingPublisher
}

// newTestPlugin builds a plugin on a fake host with a configured store secret. edit may adjust
// the settings and the initial configuration document before the plugin loads them.
func newTestPlugin(t *testing.T, edit func(settings *Settings, store *memoryConfigStore)) *testPlugin {
	t.Helper()

	settings, err := LoadSettings(map[string]string{
		"TEAMGAMES_API_URL": "http://127.0.0.1:1/unused",
	})
	require.NoError(t, err)

	store := &memoryConfigStore{data: []byte(`{"store-secret-key": "live-key"}`)}
	if edit != nil {
		edit(settings, store)
	}

	host := newFakeHost()
	logger := newTestLogger(t)
	publisher := &recordingPublisher{}
	messages, err := DefaultMessageCatalog()
	require.NoError(t, err)

	p, err := NewPlugin(context.Background(), logger, settings, host, store, messages, publisher)
	require.NoError(t, err)
	t.Cleanup(p.Close)

	clock := newFakeClock()
	p.now = clock.Now
	p.fetcher.now = clock.Now

	return &testPlugin{Plugin: p, host: host, store: store, logger: logger, clock: clock, publisher: publisher}
}

func (tp *testPlugin) render(key string, args ...any) string {
	return tp.messages.Message(tp.logger, "", key, args...)
}

func (tp *testPlugin) player(id, name string) Caller {
	tp.host.addPlayer(id, name)
	return Caller{UserID: id, Name: name}
}

func (tp *testPlugin) admin(id, name string) Caller {
	caller := tp.player(id, name)
	tp.host.Lock()
	tp.host.admins[id] = true
	tp.host.Unlock()
	return caller
}

var console = Caller{Name: consoleActor, Console: true}
