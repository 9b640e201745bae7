package implementation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	config "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Config"
	logger "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Logger"
	dhtmodels "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Models"
	"gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Models/apperrors"
	auth_models "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Models/auth"
	interfaces "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Repository/Interfaces"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// GormStore serves the MySQL and SQLite backends
type GormStore struct {
	db     *gorm.DB
	sqlDB  *sql.DB
	logger *logger.Logger
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().Local()
		},
	}
}

// OpenMySQL connects to the MySQL schema used by the original deployment
func OpenMySQL(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(cfg.GetMySQLDSN()), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("unable to open MySQL connection: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unable to access MySQL pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.Storage.MySQL.MaxConns)
	sqlDB.SetMaxIdleConns(cfg.Storage.MySQL.MinConns)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// OpenSQLite opens (creating if needed) a SQLite database file
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000&_journal_mode=WAL"), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("unable to open SQLite database: %w", err)
	}
	return db, nil
}

func NewGormStore(db *gorm.DB, log *logger.Logger) (*GormStore, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unable to access connection pool: %w", err)
	}
	return &GormStore{
		db:     db,
		sqlDB:  sqlDB,
		logger: log.WithComponent("gorm").WithField("dialect", db.Dialector.Name()),
	}, nil
}

// Acquire pins one pooled connection and binds a fresh gorm session to it
func (s *GormStore) Acquire(ctx context.Context) (interfaces.Gateway, error) {
	conn, err := s.sqlDB.Conn(ctx)
	if err != nil {
		s.logger.Logger.Error().Err(err).Msg("Connection failed")
		return nil, apperrors.Connection("acquire", err)
	}

	tx := s.db.Session(&gorm.Session{Context: ctx, NewDB: true})
	tx.Statement.ConnPool = conn

	return &gormGateway{db: tx, conn: conn, logger: s.logger}, nil
}

func (s *GormStore) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

// Bootstrap migrates the three tables
func (s *GormStore) Bootstrap(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(gormModels()...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

func (s *GormStore) Close() error {
	return s.sqlDB.Close()
}

type gormGateway struct {
	db        *gorm.DB
	conn      *sql.Conn
	logger    *logger.Logger
	closeOnce sync.Once
	closeErr  error
}

func (g *gormGateway) fail(op string, err error) error {
	return logFailure(g.logger, apperrors.Persistence(op, apperrors.StageExecute, err))
}

func (g *gormGateway) InsertReading(ctx context.Context, reading *dhtmodels.SensorReading) error {
	rec := readingRecord{
		DeviceID:    reading.DeviceID,
		Temperature: reading.Temperature,
		Humidity:    reading.Humidity,
		RelayStatus: reading.RelayStatus,
	}
	if err := g.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return g.fail("insert_reading", err)
	}
	reading.ID = rec.ID
	reading.CreatedAt = rec.CreatedAt
	return nil
}

func (g *gormGateway) FetchLatestReadings(ctx context.Context, deviceID, limit int) ([]dhtmodels.SensorReading, error) {
	var recs []readingRecord
	err := g.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return []dhtmodels.SensorReading{}, g.fail("fetch_latest_readings", err)
	}

	readings := make([]dhtmodels.SensorReading, 0, len(recs))
	for _, rec := range recs {
		readings = append(readings, rec.toModel())
	}
	return oldestFirst(readings), nil
}

func (g *gormGateway) GetThresholds(ctx context.Context) (dhtmodels.ThresholdConfig, error) {
	var rec thresholdRecord
	err := g.db.WithContext(ctx).Where("id = ?", dhtmodels.ThresholdRowID).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return dhtmodels.DefaultThresholds(), nil
	}
	if err != nil {
		return dhtmodels.DefaultThresholds(), g.fail("get_thresholds", err)
	}
	return dhtmodels.ThresholdConfig{
		TempThreshold: rec.TempThreshold,
		HumThreshold:  rec.HumThreshold,
		UpdatedAt:     rec.UpdatedAt,
	}, nil
}

func (g *gormGateway) SetThresholds(ctx context.Context, temp, hum float64) error {
	rec := thresholdRecord{
		ID:            dhtmodels.ThresholdRowID,
		TempThreshold: temp,
		HumThreshold:  hum,
		UpdatedAt:     time.Now().UTC(),
	}
	err := g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"temp_threshold", "hum_threshold", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return g.fail("set_thresholds", err)
	}
	return nil
}

func (g *gormGateway) FindUserByUsername(ctx context.Context, username string) (*auth_models.UserAccount, error) {
	var rec userRecord
	err := g.db.WithContext(ctx).Where("username = ?", username).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, g.fail("find_user_by_username", err)
	}
	return rec.toModel(), nil
}

func (g *gormGateway) InsertUser(ctx context.Context, username, passwordHash string) error {
	user := auth_models.NewUserAccount(username, passwordHash)
	rec := userRecord{
		Username: user.Username,
		Password: user.PasswordHash,
		Role:     user.Role,
	}
	err := g.db.WithContext(ctx).Create(&rec).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperrors.ErrUsernameTaken
	}
	if err != nil {
		return g.fail("insert_user", err)
	}
	return nil
}

func (g *gormGateway) Close() error {
	g.closeOnce.Do(func() {
		g.closeErr = g.conn.Close()
	})
	return g.closeErr
}
