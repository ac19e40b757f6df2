package main

import (
	"context"
	"database/sql"
	"time"

	"github.com/heroiclabs/nakama-common/runtime"

	"teamgames/teamgames"
)

// noinspection GoUnusedExportedFunction
func InitModule(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, initializer runtime.Initializer) error {
	initStart := time.Now()

	logger.Info("Loading TeamGames Nakama plugin...")

	if _, err := teamgames.Init(ctx, logger, nk, initializer); err != nil {
		return err
	}

	logger.Info("TeamGames Nakama plugin loaded in '%d' msec.", time.Since(initStart).Milliseconds())
	return nil
}

// main is required for `go build` of a main package; Nakama loads this module
// as a plugin (-buildmode=plugin) and calls InitModule instead.
func main() {}
