package implementation

import (
	"fmt"

	config "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Config"
	logger "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Logger"
	interfaces "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Repository/Interfaces"
	"gorm.io/gorm"
)

// NewStore connects the backend named by STORAGE_BACKEND
func NewStore(cfg *config.Config, log *logger.Logger) (interfaces.Store, error) {
	timeout := cfg.Storage.ConnectTimeout

	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		db, err := ConnectPostgresWithTimeout(cfg, timeout)
		if err != nil {
			return nil, err
		}
		return NewPostgresStore(db, log), nil

	case config.BackendMySQL, config.BackendSQLite:
		var (
			db  *gorm.DB
			err error
		)
		if cfg.Storage.Backend == config.BackendMySQL {
			db, err = OpenMySQL(cfg)
		} else {
			db, err = OpenSQLite(cfg.Storage.SQLitePath)
		}
		if err != nil {
			return nil, err
		}
		return NewGormStore(db, log)

	case config.BackendMongo:
		client, err := ConnectMongoWithTimeout(cfg, timeout)
		if err != nil {
			return nil, err
		}
		return NewMongoStore(client, cfg.Storage.Mongo.Database, log), nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
