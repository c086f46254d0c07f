package cooldown

import (
	"fmt"
	"log"

	"restricted-promotion/database"
	"restricted-promotion/models"
)

// Open creates the store selected by storage.driver.
func Open(cfg *models.AppConfig) (Store, error) {
	switch cfg.Storage.Driver {
	case "memory":
		log.Println("Cooldown: using in-memory store, history is lost on restart")
		return NewMemStore(), nil
	case "redis":
		s, err := NewRedisStore(cfg.Storage.RedisURL, cfg.BanPeriod.Retention())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return s, nil
	case "sqlite", "":
		db, err := database.NewCooldownDB(cfg.Storage.Path)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
