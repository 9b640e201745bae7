package implementation

import (
	"context"
	"errors"
	"testing"

	dhtmodels "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Models"
	"gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Models/apperrors"
	interfaces "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Repository/Interfaces"
)

// runGatewaySuite checks the behaviour every backend must share. The store
// must be bootstrapped and empty.
func runGatewaySuite(t *testing.T, store interfaces.Store) {
	t.Helper()

	acquire := func(t *testing.T) interfaces.Gateway {
		t.Helper()
		gw, err := store.Acquire(context.Background())
		if err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
		t.Cleanup(func() { gw.Close() })
		return gw
	}

	t.Run("fetch with no rows", func(t *testing.T) {
		gw := acquire(t)
		readings, err := gw.FetchLatestReadings(context.Background(), 4242, 50)
		if err != nil {
			t.Fatalf("FetchLatestReadings() error = %v", err)
		}
		if readings == nil || len(readings) != 0 {
			t.Errorf("FetchLatestReadings() = %v, want empty non-nil slice", readings)
		}
	})

	t.Run("insert then fetch oldest first", func(t *testing.T) {
		gw := acquire(t)
		ctx := context.Background()

		temps := []float64{20.5, 21, 22.25, 23, 24.5}
		for _, temp := range temps {
			r := dhtmodels.SensorReading{DeviceID: 101, Temperature: temp, Humidity: 55, RelayStatus: dhtmodels.RelayOn}
			if err := gw.InsertReading(ctx, &r); err != nil {
				t.Fatalf("InsertReading() error = %v", err)
			}
			if r.ID == 0 || r.CreatedAt.IsZero() {
				t.Errorf("InsertReading() did not assign id/created_at: %+v", r)
			}
		}
		other := dhtmodels.SensorReading{DeviceID: 102, Temperature: 30, Humidity: 40, RelayStatus: dhtmodels.RelayOff}
		if err := gw.InsertReading(ctx, &other); err != nil {
			t.Fatalf("InsertReading() error = %v", err)
		}

		all, err := gw.FetchLatestReadings(ctx, 101, 50)
		if err != nil {
			t.Fatalf("FetchLatestReadings() error = %v", err)
		}
		if len(all) != len(temps) {
			t.Fatalf("len = %d, want %d", len(all), len(temps))
		}
		for i, r := range all {
			if r.Temperature != temps[i] {
				t.Errorf("all[%d].Temperature = %v, want %v", i, r.Temperature, temps[i])
			}
			if r.DeviceID != 101 {
				t.Errorf("all[%d].DeviceID = %d, want 101", i, r.DeviceID)
			}
		}

		latest, err := gw.FetchLatestReadings(ctx, 101, 3)
		if err != nil {
			t.Fatalf("FetchLatestReadings() error = %v", err)
		}
		want := temps[2:]
		if len(latest) != len(want) {
			t.Fatalf("len = %d, want %d", len(latest), len(want))
		}
		for i, r := range latest {
			if r.Temperature != want[i] {
				t.Errorf("latest[%d].Temperature = %v, want %v", i, r.Temperature, want[i])
			}
		}
	})

	t.Run("thresholds default then upsert", func(t *testing.T) {
		gw := acquire(t)
		ctx := context.Background()

		got, err := gw.GetThresholds(ctx)
		if err != nil {
			t.Fatalf("GetThresholds() error = %v", err)
		}
		if got.TempThreshold != dhtmodels.DefaultTempThreshold || got.HumThreshold != dhtmodels.DefaultHumThreshold {
			t.Errorf("GetThresholds() = %+v, want defaults", got)
		}

		if err := gw.SetThresholds(ctx, 28, 60); err != nil {
			t.Fatalf("SetThresholds() error = %v", err)
		}
		if err := gw.SetThresholds(ctx, 30.5, 65.0); err != nil {
			t.Fatalf("SetThresholds() error = %v", err)
		}

		got, err = gw.GetThresholds(ctx)
		if err != nil {
			t.Fatalf("GetThresholds() error = %v", err)
		}
		if got.TempThreshold != 30.5 || got.HumThreshold != 65.0 {
			t.Errorf("GetThresholds() = %+v, want 30.5/65.0", got)
		}
		if got.UpdatedAt.IsZero() {
			t.Error("GetThresholds() UpdatedAt not stamped")
		}
	})

	t.Run("users", func(t *testing.T) {
		gw := acquire(t)
		ctx := context.Background()

		user, err := gw.FindUserByUsername(ctx, "alice")
		if err != nil || user != nil {
			t.Fatalf("FindUserByUsername() = %v, %v; want nil, nil", user, err)
		}

		if err := gw.InsertUser(ctx, "alice", "$2a$10$hash"); err != nil {
			t.Fatalf("InsertUser() error = %v", err)
		}

		user, err = gw.FindUserByUsername(ctx, "alice")
		if err != nil {
			t.Fatalf("FindUserByUsername() error = %v", err)
		}
		if user == nil || user.Username != "alice" || user.PasswordHash != "$2a$10$hash" || user.Role != "user" {
			t.Errorf("FindUserByUsername() = %+v", user)
		}

		err = gw.InsertUser(ctx, "alice", "other")
		if !errors.Is(err, apperrors.ErrUsernameTaken) {
			t.Errorf("InsertUser() duplicate error = %v, want ErrUsernameTaken", err)
		}
	})

	t.Run("close is idempotent", func(t *testing.T) {
		gw, err := store.Acquire(context.Background())
		if err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
		if err := gw.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
		if err := gw.Close(); err != nil {
			t.Errorf("second Close() error = %v", err)
		}
	})
}
