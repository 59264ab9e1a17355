package app

import (
	"fmt"

	"github.com/gonglijing/nbconsole/internal/config"
	"github.com/gonglijing/nbconsole/internal/database"
	"github.com/gonglijing/nbconsole/internal/logger"
)

func openStore(cfg *config.Config, log *logger.Logger) (*database.Store, *database.HealthChecker, error) {
	log.Info("Opening database", "path", cfg.DBPath)
	store, err := database.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return store, database.NewHealthChecker(store, 0), nil
}
