package teamgames

import (
	"context"
	"database/sql"
	"os"

	"github.com/heroiclabs/nakama-common/api"
	"github.com/heroiclabs/nakama-common/rtapi"
	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/stretchr/testify/mock"
)

// MockNakamaModule stubs the parts of runtime.NakamaModule the plugin calls. Anything else
// panics through the nil embedded interface.
type MockNakamaModule struct {
	runtime.NakamaModule
	mock.Mock
}

func (m *MockNakamaModule) StreamUserList(mode uint8, subject, subcontext, label string, includeHidden, includeNotHidden bool) ([]runtime.Presence, error) {
	args := m.Called(mode, subject, subcontext, label, includeHidden, includeNotHidden)
	presences, _ := args.Get(0).([]runtime.Presence)
	return presences, args.Error(1)
}

func (m *MockNakamaModule) AccountGetId(ctx context.Context, userID string) (*api.Account, error) {
	args := m.Called(ctx, userID)
	account, _ := args.Get(0).(*api.Account)
	return account, args.Error(1)
}

func (m *MockNakamaModule) NotificationSend(ctx context.Context, userID, subject string, content map[string]interface{}, code int, sender string, persistent bool) error {
	args := m.Called(ctx, userID, subject, content, code, sender, persistent)
	return args.Error(0)
}

func (m *MockNakamaModule) UserGroupsList(ctx context.Context, userID string, limit int, state *int, cursor string) ([]*api.UserGroupList_UserGroup, string, error) {
	args := m.Called(ctx, userID, limit, state, cursor)
	groups, _ := args.Get(0).([]*api.UserGroupList_UserGroup)
	return groups, args.String(1), args.Error(2)
}

func (m *MockNakamaModule) ReadFile(path string) (*os.File, error) {
	args := m.Called(path)
	file, _ := args.Get(0).(*os.File)
	return file, args.Error(1)
}

func (m *MockNakamaModule) StorageList(ctx context.Context, callerID, userID, collection string, limit int, cursor string) ([]*api.StorageObject, string, error) {
	args := m.Called(ctx, callerID, userID, collection, limit, cursor)
	objects, _ := args.Get(0).([]*api.StorageObject)
	return objects, args.String(1), args.Error(2)
}

func (m *MockNakamaModule) StorageRead(ctx context.Context, objectIDs []*runtime.StorageRead) ([]*api.StorageObject, error) {
	args := m.Called(ctx, objectIDs)
	objects, _ := args.Get(0).([]*api.StorageObject)
	return objects, args.Error(1)
}

func (m *MockNakamaModule) StorageWrite(ctx context.Context, writes []*runtime.StorageWrite) ([]*api.StorageObjectAck, error) {
	args := m.Called(ctx, writes)
	acks, _ := args.Get(0).([]*api.StorageObjectAck)
	return acks, args.Error(1)
}

func (m *MockNakamaModule) Event(ctx context.Context, evt *api.Event) error {
	args := m.Called(ctx, evt)
	return args.Error(0)
}

type rpcFunction = func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error)
type beforeRtFunction = func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, in *rtapi.Envelope) (*rtapi.Envelope, error)

// testInitializer records registrations.
type testInitializer struct {
	runtime.Initializer
	rpcs     map[string]rpcFunction
	beforeRt map[string]beforeRtFunction
}

func newTestInitializer() *testInitializer {
	return &testInitializer{rpcs: map[string]rpcFunction{}, beforeRt: map[string]beforeRtFunction{}}
}

func (i *testInitializer) RegisterRpc(id string, fn func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error)) error {
	i.rpcs[id] = fn
	return nil
}

func (i *testInitializer) RegisterBeforeRt(id string, fn func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, in *rtapi.Envelope) (*rtapi.Envelope, error)) error {
	i.beforeRt[id] = fn
	return nil
}
