package implementation

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/lib/pq"
	logger "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Logger"
	dhtmodels "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Models"
	"gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Models/apperrors"
	auth_models "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Models/auth"
)

// pq code for unique_violation
const pqUniqueViolation = "23505"

// postgresGateway runs every statement as a prepared statement on one
// reserved connection
type postgresGateway struct {
	conn      *sql.Conn
	logger    *logger.Logger
	closeOnce sync.Once
	closeErr  error
}

func newPostgresGateway(conn *sql.Conn, log *logger.Logger) *postgresGateway {
	return &postgresGateway{conn: conn, logger: log}
}

func (g *postgresGateway) prepare(ctx context.Context, op, query string) (*sql.Stmt, error) {
	stmt, err := g.conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, logFailure(g.logger, apperrors.Persistence(op, apperrors.StagePrepare, err))
	}
	return stmt, nil
}

func (g *postgresGateway) InsertReading(ctx context.Context, reading *dhtmodels.SensorReading) error {
	const op = "insert_reading"

	stmt, err := g.prepare(ctx, op, `
		INSERT INTO tbl_dht11 (device_id, temperature, humidity, relay_status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	err = stmt.QueryRowContext(ctx, reading.DeviceID, reading.Temperature, reading.Humidity, reading.RelayStatus).
		Scan(&reading.ID, &reading.CreatedAt)
	if err != nil {
		return logFailure(g.logger, apperrors.Persistence(op, apperrors.StageExecute, err))
	}
	return nil
}

func (g *postgresGateway) FetchLatestReadings(ctx context.Context, deviceID, limit int) ([]dhtmodels.SensorReading, error) {
	const op = "fetch_latest_readings"

	stmt, err := g.prepare(ctx, op, `
		SELECT id, device_id, temperature, humidity, relay_status, created_at
		FROM tbl_dht11
		WHERE device_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`)
	if err != nil {
		return []dhtmodels.SensorReading{}, err
	}
	defer stmt.Close()

	rows, err := stmt.QueryContext(ctx, deviceID, limit)
	if err != nil {
		return []dhtmodels.SensorReading{}, logFailure(g.logger, apperrors.Persistence(op, apperrors.StageExecute, err))
	}
	defer rows.Close()

	readings := make([]dhtmodels.SensorReading, 0, limit)
	for rows.Next() {
		var r dhtmodels.SensorReading
		if err := rows.Scan(&r.ID, &r.DeviceID, &r.Temperature, &r.Humidity, &r.RelayStatus, &r.CreatedAt); err != nil {
			return []dhtmodels.SensorReading{}, logFailure(g.logger, apperrors.Persistence(op, apperrors.StageScan, err))
		}
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return []dhtmodels.SensorReading{}, logFailure(g.logger, apperrors.Persistence(op, apperrors.StageScan, err))
	}

	return oldestFirst(readings), nil
}

func (g *postgresGateway) GetThresholds(ctx context.Context) (dhtmodels.ThresholdConfig, error) {
	const op = "get_thresholds"

	stmt, err := g.prepare(ctx, op, `
		SELECT temp_threshold, hum_threshold, updated_at
		FROM tbl_threshold
		WHERE id = $1
		LIMIT 1
	`)
	if err != nil {
		return dhtmodels.DefaultThresholds(), err
	}
	defer stmt.Close()

	var t dhtmodels.ThresholdConfig
	err = stmt.QueryRowContext(ctx, dhtmodels.ThresholdRowID).Scan(&t.TempThreshold, &t.HumThreshold, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return dhtmodels.DefaultThresholds(), nil
	}
	if err != nil {
		return dhtmodels.DefaultThresholds(), logFailure(g.logger, apperrors.Persistence(op, apperrors.StageExecute, err))
	}
	return t, nil
}

func (g *postgresGateway) SetThresholds(ctx context.Context, temp, hum float64) error {
	const op = "set_thresholds"

	stmt, err := g.prepare(ctx, op, `
		INSERT INTO tbl_threshold (id, temp_threshold, hum_threshold, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (id)
		DO UPDATE SET temp_threshold = EXCLUDED.temp_threshold,
		              hum_threshold = EXCLUDED.hum_threshold,
		              updated_at = EXCLUDED.updated_at
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	if _, err := stmt.ExecContext(ctx, dhtmodels.ThresholdRowID, temp, hum); err != nil {
		return logFailure(g.logger, apperrors.Persistence(op, apperrors.StageExecute, err))
	}
	return nil
}

func (g *postgresGateway) FindUserByUsername(ctx context.Context, username string) (*auth_models.UserAccount, error) {
	const op = "find_user_by_username"

	stmt, err := g.prepare(ctx, op, `SELECT id, username, password, role FROM users WHERE username = $1`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	var user auth_models.UserAccount
	err = stmt.QueryRowContext(ctx, username).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, logFailure(g.logger, apperrors.Persistence(op, apperrors.StageExecute, err))
	}
	return &user, nil
}

func (g *postgresGateway) InsertUser(ctx context.Context, username, passwordHash string) error {
	const op = "insert_user"

	stmt, err := g.prepare(ctx, op, `INSERT INTO users (username, password, role) VALUES ($1, $2, $3)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	if _, err := stmt.ExecContext(ctx, username, passwordHash, auth_models.RoleUser); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return apperrors.ErrUsernameTaken
		}
		return logFailure(g.logger, apperrors.Persistence(op, apperrors.StageExecute, err))
	}
	return nil
}

// Close returns the connection to the pool
func (g *postgresGateway) Close() error {
	g.closeOnce.Do(func() {
		g.closeErr = g.conn.Close()
	})
	return g.closeErr
}
