package ingestor

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	config "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Config"
	logger "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Logger"
	metrics "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Metrics"
	dhtmodels "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Models"
	"gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Models/apperrors"
	interfaces "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Repository/Interfaces"
)

// ErrNotConnected is returned when publishing while the broker is unreachable
var ErrNotConnected = errors.New("mqtt: not connected")

const publishTimeout = 5 * time.Second

// Error types reported to devices on the error topic
const (
	errInvalidTopic   = "invalid_topic"
	errInvalidPayload = "invalid_payload"
	errQueueFull      = "queue_full"
	errStorage        = "storage_error"
)

type deviceMessage struct {
	Topic      string
	Payload    []byte
	ReceivedAt time.Time
}

// Bridge subscribes to device readings on the broker, stores them through
// the same validation as the HTTP endpoint, and publishes threshold updates
// back to the devices
type Bridge struct {
	cfg       config.MQTTConfig
	brokerURL string
	store     interfaces.Store
	breaker   *gobreaker.CircuitBreaker[struct{}]
	client    mqtt.Client
	msgCh     chan deviceMessage
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	logger    *logger.Logger
}

// New creates a bridge. Start must be called before messages flow.
func New(cfg config.MQTTConfig, brokerURL string, store interfaces.Store, log *logger.Logger) *Bridge {
	log = log.WithComponent("mqtt_bridge")
	return &Bridge{
		cfg:       cfg,
		brokerURL: brokerURL,
		store:     store,
		breaker:   newStoreBreaker(log),
		msgCh:     make(chan deviceMessage, cfg.QueueSize),
		stopCh:    make(chan struct{}),
		logger:    log,
	}
}

// Start connects to the broker and launches the writer
func (b *Bridge) Start(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(b.brokerURL).
		SetClientID(b.cfg.ClientID).
		SetOrderMatters(false).
		SetKeepAlive(b.cfg.KeepAlive).
		SetPingTimeout(b.cfg.PingTimeout).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetCleanSession(false)

	if b.cfg.BrokerUser != "" {
		opts.SetUsername(b.cfg.BrokerUser)
		opts.SetPassword(b.cfg.BrokerPass)
	}

	if b.cfg.UseTLS {
		tlsCfg, err := tlsConfig(b.cfg.CACertPath)
		if err != nil {
			return err
		}
		opts.SetTLSConfig(tlsCfg)
	}

	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		b.logger.Logger.Error().Err(err).Msg("MQTT connection lost")
	}
	opts.OnConnect = func(c mqtt.Client) {
		topic := b.subscription()
		b.logger.Logger.Info().Str("topic", topic).Msg("MQTT connected, subscribing to topic")
		if token := c.Subscribe(topic, 1, b.onMessage); token.Wait() && token.Error() != nil {
			b.logger.Logger.Error().Err(token.Error()).Str("topic", topic).Msg("Failed to subscribe to MQTT topic")
		}
	}

	b.client = mqtt.NewClient(opts)
	if tk := b.client.Connect(); tk.Wait() && tk.Error() != nil {
		return tk.Error()
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.writer(ctx)
	}()

	return nil
}

// Stop disconnects and waits for queued readings to be written
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		if b.client != nil && b.client.IsConnected() {
			b.client.Disconnect(500)
		}
		close(b.stopCh)
		b.wg.Wait()
	})
}

// IsConnected reports the broker connection state
func (b *Bridge) IsConnected() bool {
	return b.client != nil && b.client.IsConnected()
}

func (b *Bridge) subscription() string {
	if b.cfg.SharedGroup != "" {
		return fmt.Sprintf("$share/%s/%s", b.cfg.SharedGroup, b.cfg.Topic)
	}
	return b.cfg.Topic
}

// onMessage queues without blocking the paho router; a full queue drops
// the reading and tells the device
func (b *Bridge) onMessage(_ mqtt.Client, m mqtt.Message) {
	msg := deviceMessage{
		Topic:      m.Topic(),
		Payload:    append([]byte(nil), m.Payload()...),
		ReceivedAt: time.Now().UTC(),
	}

	select {
	case <-b.stopCh:
		return
	default:
	}

	select {
	case b.msgCh <- msg:
		metrics.MQTTQueueDepth.Inc()
	default:
		metrics.RecordMQTTMessage("dropped")
		b.logger.Logger.Warn().Str("topic", msg.Topic).Msg("Reading queue full, dropping message")
		device, _ := DeviceFromTopic(b.cfg.Topic, msg.Topic)
		b.publishError(device, errQueueFull, "Gateway is busy, reading dropped")
	}
}

func (b *Bridge) writer(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			b.drain(context.Background())
			return
		case <-b.stopCh:
			b.drain(ctx)
			return
		case msg := <-b.msgCh:
			metrics.MQTTQueueDepth.Dec()
			b.handle(ctx, msg)
		}
	}
}

// drain writes whatever is still queued
func (b *Bridge) drain(ctx context.Context) {
	for {
		select {
		case msg := <-b.msgCh:
			metrics.MQTTQueueDepth.Dec()
			b.handle(ctx, msg)
		default:
			return
		}
	}
}

// handle validates and stores one message
func (b *Bridge) handle(ctx context.Context, msg deviceMessage) {
	device, ok := DeviceFromTopic(b.cfg.Topic, msg.Topic)
	if !ok {
		metrics.RecordMQTTMessage("invalid")
		metrics.RecordRejectedReading(metrics.SourceMQTT, "topic")
		b.logger.Logger.Warn().Str("topic", msg.Topic).Str("expected", b.cfg.Topic).Msg("Invalid topic format")
		b.publishError("unknown", errInvalidTopic, fmt.Sprintf("Invalid topic format: %s, expected: %s", msg.Topic, b.cfg.Topic))
		return
	}

	reading, err := ParsePayload(device, msg.Payload)
	if err != nil {
		metrics.RecordMQTTMessage("invalid")
		metrics.RecordRejectedReading(metrics.SourceMQTT, "validation")
		message := "Invalid payload"
		var appErr *apperrors.Error
		if errors.As(err, &appErr) {
			message = appErr.Public()
		}
		b.logger.Logger.Warn().Str("device_id", device).Str("reason", message).Msg("Rejected MQTT reading")
		b.publishError(device, errInvalidPayload, message)
		return
	}

	if err := b.persist(ctx, &reading); err != nil {
		metrics.RecordMQTTMessage("error")
		metrics.RecordRejectedReading(metrics.SourceMQTT, "storage")
		b.logger.Logger.Error().Err(err).Int("device_id", reading.DeviceID).Msg("Error storing MQTT reading")
		b.publishError(device, errStorage, "Failed to store reading")
		return
	}

	metrics.RecordMQTTMessage("stored")
	metrics.RecordReading(metrics.SourceMQTT)
	b.logger.Logger.Debug().Int("device_id", reading.DeviceID).Dur("queued", time.Since(msg.ReceivedAt)).Msg("Stored MQTT reading")
}

// persist holds a gateway only for the duration of one insert. While the
// breaker is open it fails fast with gobreaker.ErrOpenState.
func (b *Bridge) persist(ctx context.Context, reading *dhtmodels.SensorReading) error {
	_, err := b.breaker.Execute(func() (struct{}, error) {
		gw, err := b.store.Acquire(ctx)
		if err != nil {
			metrics.StoreAcquireFailures.Inc()
			return struct{}{}, err
		}
		defer gw.Close()

		return struct{}{}, gw.InsertReading(ctx, reading)
	})
	return err
}

// BreakerState reports the datastore circuit breaker state
func (b *Bridge) BreakerState() string {
	return b.breaker.State().String()
}

// PublishThresholds sends the thresholds as a retained message so devices
// that connect later pick them up
func (b *Bridge) PublishThresholds(ctx context.Context, thresholds dhtmodels.ThresholdConfig) error {
	if !b.IsConnected() {
		return ErrNotConnected
	}

	payload, err := json.Marshal(map[string]interface{}{
		"temp_threshold": thresholds.TempThreshold,
		"hum_threshold":  thresholds.HumThreshold,
	})
	if err != nil {
		return fmt.Errorf("marshal thresholds: %w", err)
	}

	token := b.client.Publish(b.cfg.ThresholdTopic, 1, true, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("publish thresholds: %w", err)
		}
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(publishTimeout):
		return fmt.Errorf("publish thresholds: timed out after %s", publishTimeout)
	}

	b.logger.Logger.Info().Str("topic", b.cfg.ThresholdTopic).Msg("Published thresholds")
	return nil
}

// publishError reports a rejected reading back to the device
func (b *Bridge) publishError(deviceID, errorType, message string) {
	if !b.IsConnected() {
		return
	}

	payloadJSON, err := json.Marshal(map[string]interface{}{
		"error_type": errorType,
		"message":    message,
		"device_id":  deviceID,
		"timestamp":  time.Now().UTC(),
	})
	if err != nil {
		b.logger.Logger.Error().Err(err).Msg("Failed to marshal error payload")
		return
	}

	errorTopic := fmt.Sprintf("%s/%s", b.cfg.ErrorTopic, deviceID)
	token := b.client.Publish(errorTopic, 1, false, payloadJSON)
	if token.WaitTimeout(publishTimeout) && token.Error() != nil {
		b.logger.Logger.Error().Err(token.Error()).Str("topic", errorTopic).Msg("Failed to publish error")
	}
}

func tlsConfig(caFile string) (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if caFile == "" {
		return cfg, nil
	}
	ca, err := os.ReadFile(caFile)
	if err != nil {
		return nil, err
	}
	cp := x509.NewCertPool()
	if !cp.AppendCertsFromPEM(ca) {
		return nil, fmt.Errorf("bad CA file")
	}
	cfg.RootCAs = cp
	return cfg, nil
}
