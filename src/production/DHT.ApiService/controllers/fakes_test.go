package controllers

import (
	"context"
	"sync"
	"time"

	dhtmodels "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Models"
	"gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Models/apperrors"
	auth_models "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Models/auth"
	interfaces "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Repository/Interfaces"
)

// fakeStore keeps everything in memory and lets tests inject failures
type fakeStore struct {
	mu         sync.Mutex
	readings   []dhtmodels.SensorReading
	thresholds *dhtmodels.ThresholdConfig
	users      map[string]*auth_models.UserAccount
	nextID     int64

	acquireErr   error
	pingErr      error
	insertErr    error
	fetchErr     error
	thresholdErr error
	setErr       error
	findErr      error
	insertUsrErr error

	acquired int
	released int
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: make(map[string]*auth_models.UserAccount)}
}

func (s *fakeStore) Acquire(ctx context.Context) (interfaces.Gateway, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acquireErr != nil {
		return nil, s.acquireErr
	}
	s.acquired++
	return &fakeGateway{s: s}, nil
}

func (s *fakeStore) Ping(ctx context.Context) error      { return s.pingErr }
func (s *fakeStore) Bootstrap(ctx context.Context) error { return nil }
func (s *fakeStore) Close() error                        { return nil }

func (s *fakeStore) readingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.readings)
}

func (s *fakeStore) openGateways() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquired - s.released
}

type fakeGateway struct {
	s      *fakeStore
	closed bool
}

func (g *fakeGateway) InsertReading(ctx context.Context, reading *dhtmodels.SensorReading) error {
	g.s.mu.Lock()
	defer g.s.mu.Unlock()
	if g.s.insertErr != nil {
		return g.s.insertErr
	}
	g.s.nextID++
	reading.ID = g.s.nextID
	reading.CreatedAt = time.Now().UTC().Truncate(time.Second)
	g.s.readings = append(g.s.readings, *reading)
	return nil
}

func (g *fakeGateway) FetchLatestReadings(ctx context.Context, deviceID, limit int) ([]dhtmodels.SensorReading, error) {
	g.s.mu.Lock()
	defer g.s.mu.Unlock()
	if g.s.fetchErr != nil {
		return nil, g.s.fetchErr
	}
	out := []dhtmodels.SensorReading{}
	for i := len(g.s.readings) - 1; i >= 0 && len(out) < limit; i-- {
		if g.s.readings[i].DeviceID == deviceID {
			out = append([]dhtmodels.SensorReading{g.s.readings[i]}, out...)
		}
	}
	return out, nil
}

func (g *fakeGateway) GetThresholds(ctx context.Context) (dhtmodels.ThresholdConfig, error) {
	g.s.mu.Lock()
	defer g.s.mu.Unlock()
	if g.s.thresholdErr != nil {
		return dhtmodels.DefaultThresholds(), g.s.thresholdErr
	}
	if g.s.thresholds == nil {
		return dhtmodels.DefaultThresholds(), nil
	}
	return *g.s.thresholds, nil
}

func (g *fakeGateway) SetThresholds(ctx context.Context, temp, hum float64) error {
	g.s.mu.Lock()
	defer g.s.mu.Unlock()
	if g.s.setErr != nil {
		return g.s.setErr
	}
	g.s.thresholds = &dhtmodels.ThresholdConfig{TempThreshold: temp, HumThreshold: hum, UpdatedAt: time.Now()}
	return nil
}

func (g *fakeGateway) FindUserByUsername(ctx context.Context, username string) (*auth_models.UserAccount, error) {
	g.s.mu.Lock()
	defer g.s.mu.Unlock()
	if g.s.findErr != nil {
		return nil, g.s.findErr
	}
	u, ok := g.s.users[username]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

func (g *fakeGateway) InsertUser(ctx context.Context, username, passwordHash string) error {
	g.s.mu.Lock()
	defer g.s.mu.Unlock()
	if g.s.insertUsrErr != nil {
		return g.s.insertUsrErr
	}
	if _, ok := g.s.users[username]; ok {
		return apperrors.ErrUsernameTaken
	}
	u := auth_models.NewUserAccount(username, passwordHash)
	u.ID = int64(len(g.s.users) + 1)
	g.s.users[username] = u
	return nil
}

func (g *fakeGateway) Close() error {
	g.s.mu.Lock()
	defer g.s.mu.Unlock()
	if !g.closed {
		g.closed = true
		g.s.released++
	}
	return nil
}

// recordingPublisher captures published thresholds
type recordingPublisher struct {
	mu        sync.Mutex
	published []dhtmodels.ThresholdConfig
	err       error
}

func (p *recordingPublisher) PublishThresholds(ctx context.Context, thresholds dhtmodels.ThresholdConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, thresholds)
	return p.err
}

type fakeBroker bool

func (b fakeBroker) IsConnected() bool { return bool(b) }
