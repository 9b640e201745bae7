package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	config "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Config"
	logger "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Logger"
	dhtmodels "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Models"
	api_models "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Models/api"
	"gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Models/apperrors"
	ratelimit "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.RateLimit"
	session "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Session"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	router    *gin.Engine
	store     *fakeStore
	sessions  *session.MemoryStore
	publisher *recordingPublisher
	cookie    string
}

func testSessionConfig() *config.SessionConfig {
	return &config.SessionConfig{CookieName: "DHTSESSID", TTL: time.Hour}
}

// newTestEnv wires every controller against a fake store. rateLimit of
// zero disables the limiter.
func newTestEnv(t *testing.T, rateLimit time.Duration) *testEnv {
	t.Helper()

	env := &testEnv{
		store:     newFakeStore(),
		sessions:  session.NewMemoryStore(),
		publisher: &recordingPublisher{},
	}
	t.Cleanup(func() { env.sessions.Close() })

	cfg := testSessionConfig()
	log := logger.Nop()
	guards := RouteGuards{
		Session:   session.Middleware(env.sessions, cfg, log),
		RateLimit: ratelimit.NewLimiter(env.sessions, rateLimit, cfg.TTL, log).Middleware(),
	}

	env.router = gin.New()
	NewSensorController(env.store, env.publisher, log, guards).RegisterRoutes(env.router, true)
	NewFetchController(env.store, log).RegisterRoutes(env.router, true)
	NewAuthController(env.store, env.sessions, bcrypt.MinCost, log, guards).RegisterRoutes(env.router, true)
	NewHealthController(env.store, fakeBroker(true), log).RegisterRoutes(env.router)
	return env
}

// do sends a request, carrying the session cookie across calls
func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	if e.cookie != "" {
		req.AddCookie(&http.Cookie{Name: "DHTSESSID", Value: e.cookie})
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	for _, c := range w.Result().Cookies() {
		if c.Name == "DHTSESSID" {
			e.cookie = c.Value
		}
	}
	return w
}

func (e *testEnv) get(t *testing.T, target string) *httptest.ResponseRecorder {
	return e.do(t, httptest.NewRequest(http.MethodGet, target, nil))
}

func (e *testEnv) postJSON(t *testing.T, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return e.do(t, req)
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("response %q is not JSON: %v", w.Body.String(), err)
	}
	return env
}

func assertFailure(t *testing.T, w *httptest.ResponseRecorder, status int, message string) {
	t.Helper()
	if w.Code != status {
		t.Errorf("status = %d, want %d (body %s)", w.Code, status, w.Body.String())
	}
	env := decode(t, w)
	if env.Status != api_models.StatusError || env.Message != message {
		t.Errorf("envelope = %+v, want error %q", env, message)
	}
}

func TestIngest_EchoesReading(t *testing.T) {
	env := newTestEnv(t, 0)

	w := env.get(t, "/api/dht11?id=101&temp=24.5&hum=55.0&relay=On")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	resp := decode(t, w)
	if resp.Status != api_models.StatusSuccess {
		t.Fatalf("status field = %q", resp.Status)
	}
	var data api_models.IngestData
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatalf("data: %v", err)
	}
	want := api_models.IngestData{
		DeviceID:      101,
		Temperature:   24.5,
		Humidity:      55.0,
		RelayStatus:   "On",
		Timestamp:     data.Timestamp,
		TempThreshold: 26,
		HumThreshold:  70,
	}
	if data != want {
		t.Errorf("data = %+v, want %+v", data, want)
	}
	if _, err := time.Parse(dhtmodels.TimestampLayout, data.Timestamp); err != nil {
		t.Errorf("timestamp %q: %v", data.Timestamp, err)
	}
	if env.store.readingCount() != 1 {
		t.Errorf("stored readings = %d, want 1", env.store.readingCount())
	}
	if open := env.store.openGateways(); open != 0 {
		t.Errorf("gateways left open = %d", open)
	}
}

func TestIngest_UnknownRelayStoredAsOff(t *testing.T) {
	env := newTestEnv(t, 0)

	w := env.get(t, "/api/dht11?id=7&temp=20&hum=40&relay=maybe")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := env.store.readings[0].RelayStatus; got != "Off" {
		t.Errorf("relay = %q, want Off", got)
	}
}

func TestIngest_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		message string
	}{
		{"missing id", "temp=1&hum=1&relay=On", "Missing GET parameter: id"},
		{"missing relay", "id=1&temp=1&hum=1", "Missing GET parameter: relay"},
		{"non numeric temp", "id=1&temp=abc&hum=1&relay=On", "Invalid sensor values or failed sanitization"},
		{"humidity out of range", "id=1&temp=20&hum=101&relay=On", "Invalid sensor values or failed sanitization"},
		{"zero device", "id=0&temp=20&hum=50&relay=On", "Invalid sensor values or failed sanitization"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, 0)
			w := env.get(t, "/api/dht11?"+tt.query)
			assertFailure(t, w, http.StatusBadRequest, tt.message)
			if env.store.readingCount() != 0 {
				t.Error("rejected reading was stored")
			}
		})
	}
}

func TestIngest_StoreFailures(t *testing.T) {
	t.Run("connection", func(t *testing.T) {
		env := newTestEnv(t, 0)
		env.store.acquireErr = apperrors.Connection("acquire", errors.New("refused"))
		w := env.get(t, "/api/dht11?id=101&temp=24.5&hum=55&relay=On")
		assertFailure(t, w, http.StatusInternalServerError, MsgConnectionFailed)
	})

	t.Run("insert", func(t *testing.T) {
		env := newTestEnv(t, 0)
		env.store.insertErr = apperrors.Persistence("insert_reading", apperrors.StageExecute, errors.New("disk full"))
		w := env.get(t, "/api/dht11?id=101&temp=24.5&hum=55&relay=On")
		assertFailure(t, w, http.StatusInternalServerError, MsgInsertFailed)
		if strings.Contains(w.Body.String(), "disk full") {
			t.Error("database error leaked to client")
		}
	})
}

func TestIngest_RateLimited(t *testing.T) {
	env := newTestEnv(t, 2*time.Second)

	first := env.get(t, "/api/dht11?id=101&temp=24.5&hum=55&relay=On")
	if first.Code != http.StatusOK {
		t.Fatalf("first status = %d", first.Code)
	}
	second := env.get(t, "/api/dht11?id=101&temp=24.6&hum=55&relay=On")
	assertFailure(t, second, http.StatusTooManyRequests, "Too many requests")

	if env.store.readingCount() != 1 {
		t.Errorf("stored readings = %d, want 1", env.store.readingCount())
	}
}

func TestThresholds_UpdateThenFetch(t *testing.T) {
	env := newTestEnv(t, 0)

	w := env.postJSON(t, "/api/dht11", `{"temp_threshold":30.5,"hum_threshold":65.0}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if resp := decode(t, w); resp.Message != MsgThresholdsUpdated {
		t.Errorf("message = %q", resp.Message)
	}
	if len(env.publisher.published) != 1 || env.publisher.published[0].TempThreshold != 30.5 {
		t.Errorf("published = %+v", env.publisher.published)
	}

	w = env.get(t, "/api/dht11?fetch_thresholds=1")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got api_models.ThresholdValues
	if err := json.Unmarshal(decode(t, w).Data, &got); err != nil {
		t.Fatal(err)
	}
	if got != (api_models.ThresholdValues{TempThreshold: 30.5, HumThreshold: 65.0}) {
		t.Errorf("thresholds = %+v", got)
	}
}

func TestThresholds_DefaultsWhenUnset(t *testing.T) {
	env := newTestEnv(t, 0)

	var got api_models.ThresholdValues
	if err := json.Unmarshal(decode(t, env.get(t, "/api/dht11?fetch_thresholds")).Data, &got); err != nil {
		t.Fatal(err)
	}
	if got.TempThreshold != 26 || got.HumThreshold != 70 {
		t.Errorf("thresholds = %+v, want defaults", got)
	}
}

func TestThresholds_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"not json", `temp=1`, "Invalid JSON data received."},
		{"missing hum", `{"temp_threshold":30}`, "Missing JSON parameter: hum_threshold"},
		{"out of range", `{"temp_threshold":99,"hum_threshold":50}`, "Invalid threshold values"},
		{"not a number", `{"temp_threshold":"hot","hum_threshold":50}`, "Invalid threshold values"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, 0)
			w := env.postJSON(t, "/api/dht11", tt.body)
			assertFailure(t, w, http.StatusBadRequest, tt.message)
			if env.store.thresholds != nil {
				t.Error("thresholds were written")
			}
			if len(env.publisher.published) != 0 {
				t.Error("rejected thresholds were published")
			}
		})
	}
}

func TestThresholds_WriteFailure(t *testing.T) {
	env := newTestEnv(t, 0)
	env.store.setErr = apperrors.Persistence("set_thresholds", apperrors.StageExecute, errors.New("locked"))

	w := env.postJSON(t, "/api/dht11", `{"temp_threshold":30,"hum_threshold":60}`)
	assertFailure(t, w, http.StatusInternalServerError, MsgThresholdUpdateFailed)
	if len(env.publisher.published) != 0 {
		t.Error("failed update was published")
	}
}

func TestThresholds_PublishFailureStillSucceeds(t *testing.T) {
	env := newTestEnv(t, 0)
	env.publisher.err = errors.New("broker down")

	w := env.postJSON(t, "/api/dht11", `{"temp_threshold":30,"hum_threshold":60}`)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestSensor_LegacyRoute(t *testing.T) {
	env := newTestEnv(t, 0)

	w := env.get(t, "/backend/dht11_api.php?id=101&temp=24.5&hum=55.0&relay=On")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("nosniff header missing")
	}
}
