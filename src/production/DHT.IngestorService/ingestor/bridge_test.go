package ingestor

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	config "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Config"
	logger "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Logger"
	dhtmodels "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Models"
	"gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Models/apperrors"
	implementation "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Repository/Implementation"
	interfaces "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Repository/Interfaces"
)

func TestDeviceFromTopic(t *testing.T) {
	tests := []struct {
		pattern string
		topic   string
		want    string
		ok      bool
	}{
		{"dht11/+/reading", "dht11/101/reading", "101", true},
		{"dht11/+/reading", "dht11/101/status", "", false},
		{"dht11/+/reading", "dht11//reading", "", false},
		{"dht11/+/reading", "dht11/101/reading/extra", "", false},
		{"sensors/site/+", "sensors/site/7", "7", true},
		{"dht11/fixed", "dht11/fixed", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			got, ok := DeviceFromTopic(tt.pattern, tt.topic)
			if got != tt.want || ok != tt.ok {
				t.Errorf("DeviceFromTopic(%q, %q) = %q, %v, want %q, %v", tt.pattern, tt.topic, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestParsePayload(t *testing.T) {
	tests := []struct {
		name    string
		device  string
		payload string
		want    dhtmodels.SensorReading
		wantErr string
	}{
		{
			name:    "numbers",
			device:  "101",
			payload: `{"temp":24.5,"hum":55,"relay":"On"}`,
			want:    dhtmodels.SensorReading{DeviceID: 101, Temperature: 24.5, Humidity: 55, RelayStatus: "On"},
		},
		{
			name:    "strings",
			device:  "7",
			payload: `{"temp":"-3.25","hum":"0","relay":"Off"}`,
			want:    dhtmodels.SensorReading{DeviceID: 7, Temperature: -3.25, Humidity: 0, RelayStatus: "Off"},
		},
		{
			name:    "unknown relay",
			device:  "7",
			payload: `{"temp":20,"hum":40,"relay":"toggling"}`,
			want:    dhtmodels.SensorReading{DeviceID: 7, Temperature: 20, Humidity: 40, RelayStatus: "Off"},
		},
		{name: "not json", device: "1", payload: `temp=1`, wantErr: "Invalid JSON data received."},
		{name: "missing hum", device: "1", payload: `{"temp":20,"relay":"On"}`, wantErr: "Missing GET parameter: hum"},
		{name: "temperature too high", device: "1", payload: `{"temp":81,"hum":40,"relay":"On"}`, wantErr: "Invalid sensor values or failed sanitization"},
		{name: "bool temperature", device: "1", payload: `{"temp":true,"hum":40,"relay":"On"}`, wantErr: "Invalid sensor values or failed sanitization"},
		{name: "non numeric device", device: "abc", payload: `{"temp":20,"hum":40,"relay":"On"}`, wantErr: "Invalid sensor values or failed sanitization"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePayload(tt.device, []byte(tt.payload))
			if tt.wantErr != "" {
				var appErr *apperrors.Error
				if !errors.As(err, &appErr) || appErr.Public() != tt.wantErr {
					t.Fatalf("ParsePayload() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePayload() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ParsePayload() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func testMQTTConfig(queue int) config.MQTTConfig {
	return config.MQTTConfig{
		Topic:          "dht11/+/reading",
		ThresholdTopic: "dht11/thresholds",
		ErrorTopic:     "dht11/errors",
		QueueSize:      queue,
	}
}

func newSQLiteStore(t *testing.T) interfaces.Store {
	t.Helper()
	db, err := implementation.OpenSQLite(filepath.Join(t.TempDir(), "bridge.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	store, err := implementation.NewGormStore(db, logger.Nop())
	if err != nil {
		t.Fatalf("NewGormStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	return store
}

func fetchAll(t *testing.T, store interfaces.Store, device int) []dhtmodels.SensorReading {
	t.Helper()
	gw, err := store.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer gw.Close()
	readings, err := gw.FetchLatestReadings(context.Background(), device, 100)
	if err != nil {
		t.Fatal(err)
	}
	return readings
}

// startWriter runs the writer without a broker connection
func startWriter(b *Bridge) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.writer(context.Background())
	}()
}

func TestBridge_StoresValidReadingsInOrder(t *testing.T) {
	store := newSQLiteStore(t)
	b := New(testMQTTConfig(16), "tcp://localhost:1883", store, logger.Nop())
	startWriter(b)

	b.onMessage(nil, fakeMessage{"dht11/101/reading", []byte(`{"temp":21,"hum":50,"relay":"On"}`)})
	b.onMessage(nil, fakeMessage{"dht11/101/reading", []byte(`{"temp":99,"hum":50,"relay":"On"}`)})
	b.onMessage(nil, fakeMessage{"dht11/101/status", []byte(`{"temp":22,"hum":50,"relay":"On"}`)})
	b.onMessage(nil, fakeMessage{"dht11/101/reading", []byte(`{"temp":"22.5","hum":"51","relay":"Off"}`)})
	b.Stop()

	readings := fetchAll(t, store, 101)
	if len(readings) != 2 {
		t.Fatalf("stored %d readings, want 2: %+v", len(readings), readings)
	}
	if readings[0].Temperature != 21 || readings[1].Temperature != 22.5 || readings[1].RelayStatus != "Off" {
		t.Errorf("readings = %+v", readings)
	}
}

func TestBridge_FullQueueDrops(t *testing.T) {
	store := newSQLiteStore(t)
	b := New(testMQTTConfig(1), "tcp://localhost:1883", store, logger.Nop())

	// no writer running, so only the first message fits
	b.onMessage(nil, fakeMessage{"dht11/5/reading", []byte(`{"temp":20,"hum":40,"relay":"On"}`)})
	b.onMessage(nil, fakeMessage{"dht11/5/reading", []byte(`{"temp":21,"hum":40,"relay":"On"}`)})

	if got := len(b.msgCh); got != 1 {
		t.Fatalf("queued = %d, want 1", got)
	}

	startWriter(b)
	b.Stop()

	if got := len(fetchAll(t, store, 5)); got != 1 {
		t.Errorf("stored = %d, want 1", got)
	}
}

func TestBridge_IgnoresMessagesAfterStop(t *testing.T) {
	store := newSQLiteStore(t)
	b := New(testMQTTConfig(4), "tcp://localhost:1883", store, logger.Nop())
	b.Stop()

	b.onMessage(nil, fakeMessage{"dht11/5/reading", []byte(`{"temp":20,"hum":40,"relay":"On"}`)})
	if len(b.msgCh) != 0 {
		t.Error("message queued after Stop")
	}
}

type unreachableStore struct {
	interfaces.Store
	attempts int
}

func (s *unreachableStore) Acquire(ctx context.Context) (interfaces.Gateway, error) {
	s.attempts++
	return nil, apperrors.Connection("acquire", errors.New("refused"))
}

func TestBridge_StoreFailureIsContained(t *testing.T) {
	b := New(testMQTTConfig(4), "tcp://localhost:1883", &unreachableStore{}, logger.Nop())

	done := make(chan struct{})
	go func() {
		b.handle(context.Background(), deviceMessage{
			Topic:      "dht11/9/reading",
			Payload:    []byte(`{"temp":20,"hum":40,"relay":"On"}`),
			ReceivedAt: time.Now(),
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handle blocked on store failure")
	}
}

func TestBridge_BreakerOpensOnConnectionFailures(t *testing.T) {
	store := &unreachableStore{}
	b := New(testMQTTConfig(4), "tcp://localhost:1883", store, logger.Nop())
	reading := dhtmodels.SensorReading{DeviceID: 1, Temperature: 20, Humidity: 40, RelayStatus: "On"}

	for i := 0; i < breakerMaxFailures; i++ {
		if err := b.persist(context.Background(), &reading); !apperrors.Is(err, apperrors.KindConnection) {
			t.Fatalf("persist() #%d error = %v, want connection error", i, err)
		}
	}
	if got := b.BreakerState(); got != "open" {
		t.Fatalf("BreakerState() = %q, want open", got)
	}

	err := b.persist(context.Background(), &reading)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("persist() with open breaker error = %v, want ErrOpenState", err)
	}
	if store.attempts != breakerMaxFailures {
		t.Errorf("Acquire attempts = %d, want %d", store.attempts, breakerMaxFailures)
	}
}

func TestBridge_PublishThresholdsRequiresConnection(t *testing.T) {
	b := New(testMQTTConfig(4), "tcp://localhost:1883", &unreachableStore{}, logger.Nop())

	err := b.PublishThresholds(context.Background(), dhtmodels.DefaultThresholds())
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("PublishThresholds() error = %v, want ErrNotConnected", err)
	}
	if b.IsConnected() {
		t.Error("IsConnected() = true without a client")
	}
}

func TestBridge_Subscription(t *testing.T) {
	cfg := testMQTTConfig(1)
	if got := New(cfg, "", nil, logger.Nop()).subscription(); got != "dht11/+/reading" {
		t.Errorf("subscription = %q", got)
	}
	cfg.SharedGroup = "gateways"
	if got := New(cfg, "", nil, logger.Nop()).subscription(); got != "$share/gateways/dht11/+/reading" {
		t.Errorf("shared subscription = %q", got)
	}
}
