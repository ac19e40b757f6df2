package teamgames

import (
	"context"
	"fmt"
	"io"

	"github.com/heroiclabs/nakama-common/runtime"
)

const (
	configStorageCollection = "teamgames"
	configStorageKey        = "config"
)

// NakamaConfigStore keeps the configuration as a system-owned storage object. Until one has
// been written, the runtime data file at SeedFile is read instead.
type NakamaConfigStore struct {
	nk       runtime.NakamaModule
	SeedFile string
}

func NewNakamaConfigStore(nk runtime.NakamaModule, seedFile string) *NakamaConfigStore {
	return &NakamaConfigStore{nk: nk, SeedFile: seedFile}
}

func (s *NakamaConfigStore) Read(ctx context.Context) ([]byte, error) {
	objects, err := s.nk.StorageRead(ctx, []*runtime.StorageRead{{
		Collection: configStorageCollection,
		Key:        configStorageKey,
	}})
	if err != nil {
		return nil, fmt.Errorf("read config object: %w", err)
	}
	if len(objects) > 0 {
		return []byte(objects[0].Value), nil
	}
	return s.readSeed()
}

func (s *NakamaConfigStore) readSeed() ([]byte, error) {
	if s.SeedFile == "" {
		return nil, ErrConfigNotFound
	}
	file, err := s.nk.ReadFile(s.SeedFile)
	if err != nil {
		return nil, ErrConfigNotFound
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", s.SeedFile, err)
	}
	return data, nil
}

func (s *NakamaConfigStore) Write(ctx context.Context, data []byte) error {
	_, err := s.nk.StorageWrite(ctx, []*runtime.StorageWrite{{
		Collection:      configStorageCollection,
		Key:             configStorageKey,
		Value:           string(data),
		PermissionRead:  runtime.STORAGE_PERMISSION_NO_READ,
		PermissionWrite: runtime.STORAGE_PERMISSION_NO_WRITE,
	}})
	if err != nil {
		return fmt.Errorf("write config object: %w", err)
	}
	return nil
}
