package implementation

import (
	"time"

	dhtmodels "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Models"
	auth_models "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Models/auth"
)

// readingRecord maps tbl_dht11 for the gorm backends
type readingRecord struct {
	ID          int64     `gorm:"primaryKey;autoIncrement"`
	DeviceID    int       `gorm:"not null;index:idx_dht11_device_created,priority:1"`
	Temperature float64   `gorm:"not null"`
	Humidity    float64   `gorm:"not null"`
	RelayStatus string    `gorm:"size:3;not null;default:Off"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index:idx_dht11_device_created,priority:2"`
}

func (readingRecord) TableName() string {
	return "tbl_dht11"
}

func (r readingRecord) toModel() dhtmodels.SensorReading {
	return dhtmodels.SensorReading{
		ID:          r.ID,
		DeviceID:    r.DeviceID,
		Temperature: r.Temperature,
		Humidity:    r.Humidity,
		RelayStatus: r.RelayStatus,
		CreatedAt:   r.CreatedAt,
	}
}

// thresholdRecord maps the single row of tbl_threshold
type thresholdRecord struct {
	ID            int       `gorm:"primaryKey;autoIncrement:false"`
	TempThreshold float64   `gorm:"not null"`
	HumThreshold  float64   `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

func (thresholdRecord) TableName() string {
	return "tbl_threshold"
}

// userRecord maps users. The password column holds the bcrypt hash.
type userRecord struct {
	ID       int64  `gorm:"primaryKey;autoIncrement"`
	Username string `gorm:"size:191;not null;uniqueIndex"`
	Password string `gorm:"size:255;not null"`
	Role     string `gorm:"size:32;not null;default:user"`
}

func (userRecord) TableName() string {
	return "users"
}

func (u userRecord) toModel() *auth_models.UserAccount {
	return &auth_models.UserAccount{
		ID:           u.ID,
		Username:     u.Username,
		PasswordHash: u.Password,
		Role:         u.Role,
	}
}

// gormModels lists every table for AutoMigrate
func gormModels() []interface{} {
	return []interface{}{
		&readingRecord{},
		&thresholdRecord{},
		&userRecord{},
	}
}
