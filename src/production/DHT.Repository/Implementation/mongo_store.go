package implementation

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	config "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Config"
	logger "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Logger"
	dhtmodels "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Models"
	"gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Models/apperrors"
	auth_models "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Models/auth"
	interfaces "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Repository/Interfaces"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Collection names
const (
	readingsCollection   = "readings"
	thresholdsCollection = "thresholds"
	usersCollection      = "users"
	countersCollection   = "counters"
)

// ConnectMongoWithTimeout creates a MongoDB client with a timeout context
func ConnectMongoWithTimeout(cfg *config.Config, timeout time.Duration) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	clientOptions := options.Client().ApplyURI(cfg.Storage.Mongo.URI)

	// Atlas clusters are reached over TLS
	if strings.HasPrefix(cfg.Storage.Mongo.URI, "mongodb+srv://") {
		clientOptions.SetTLSConfig(&tls.Config{
			MinVersion: tls.VersionTLS12,
		})
	}

	clientOptions.SetServerSelectionTimeout(timeout)
	clientOptions.SetConnectTimeout(timeout)
	clientOptions.SetSocketTimeout(30 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to MongoDB: %w", err)
	}

	// Test the connection
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("unable to ping MongoDB: %w", err)
	}

	return client, nil
}

// MongoStore hands out gateways bound to their own client session
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	logger *logger.Logger
}

func NewMongoStore(client *mongo.Client, database string, log *logger.Logger) *MongoStore {
	return &MongoStore{
		client: client,
		db:     client.Database(database),
		logger: log.WithComponent("mongo"),
	}
}

// Acquire pings the primary first because starting a client session does
// no network I/O and would hide an unreachable server
func (s *MongoStore) Acquire(ctx context.Context) (interfaces.Gateway, error) {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		s.logger.Logger.Error().Err(err).Msg("Connection failed")
		return nil, apperrors.Connection("acquire", err)
	}

	sess, err := s.client.StartSession()
	if err != nil {
		s.logger.Logger.Error().Err(err).Msg("Connection failed")
		return nil, apperrors.Connection("acquire", err)
	}
	return &mongoGateway{db: s.db, sess: sess, logger: s.logger}, nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Bootstrap creates the indexes the gateway relies on
func (s *MongoStore) Bootstrap(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := s.db.Collection(readingsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "device_id", Value: 1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: -1}},
		Options: options.Index().SetName("idx_device_created_desc"),
	})
	if err != nil {
		return fmt.Errorf("failed to create readings index: %w", err)
	}

	_, err = s.db.Collection(usersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetName("uniq_username").SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create users index: %w", err)
	}

	return nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

type thresholdDoc struct {
	ID            int       `bson:"_id"`
	TempThreshold float64   `bson:"temp_threshold"`
	HumThreshold  float64   `bson:"hum_threshold"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

type counterDoc struct {
	ID  string `bson:"_id"`
	Seq int64  `bson:"seq"`
}

type mongoGateway struct {
	db        *mongo.Database
	sess      mongo.Session
	logger    *logger.Logger
	closeOnce sync.Once
}

func (g *mongoGateway) fail(op string, err error) error {
	return logFailure(g.logger, apperrors.Persistence(op, apperrors.StageExecute, err))
}

// bind runs subsequent operations on the gateway's session
func (g *mongoGateway) bind(ctx context.Context) context.Context {
	return mongo.NewSessionContext(ctx, g.sess)
}

// nextID hands out sequential integer ids so documents keep the numeric
// ids clients already see from the SQL backends
func (g *mongoGateway) nextID(ctx context.Context, name string) (int64, error) {
	var counter counterDoc
	err := g.db.Collection(countersCollection).FindOneAndUpdate(
		ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, err
	}
	return counter.Seq, nil
}

func (g *mongoGateway) InsertReading(ctx context.Context, reading *dhtmodels.SensorReading) error {
	const op = "insert_reading"
	ctx = g.bind(ctx)

	id, err := g.nextID(ctx, readingsCollection)
	if err != nil {
		return g.fail(op, err)
	}

	doc := *reading
	doc.ID = id
	// BSON dates carry millisecond precision
	doc.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)

	if _, err := g.db.Collection(readingsCollection).InsertOne(ctx, doc); err != nil {
		return g.fail(op, err)
	}
	*reading = doc
	return nil
}

func (g *mongoGateway) FetchLatestReadings(ctx context.Context, deviceID, limit int) ([]dhtmodels.SensorReading, error) {
	const op = "fetch_latest_readings"
	ctx = g.bind(ctx)

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := g.db.Collection(readingsCollection).Find(ctx, bson.M{"device_id": deviceID}, opts)
	if err != nil {
		return []dhtmodels.SensorReading{}, g.fail(op, err)
	}
	defer cursor.Close(ctx)

	readings := make([]dhtmodels.SensorReading, 0, limit)
	if err := cursor.All(ctx, &readings); err != nil {
		return []dhtmodels.SensorReading{}, logFailure(g.logger, apperrors.Persistence(op, apperrors.StageScan, err))
	}
	return oldestFirst(readings), nil
}

func (g *mongoGateway) GetThresholds(ctx context.Context) (dhtmodels.ThresholdConfig, error) {
	ctx = g.bind(ctx)

	var doc thresholdDoc
	err := g.db.Collection(thresholdsCollection).FindOne(ctx, bson.M{"_id": dhtmodels.ThresholdRowID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return dhtmodels.DefaultThresholds(), nil
	}
	if err != nil {
		return dhtmodels.DefaultThresholds(), g.fail("get_thresholds", err)
	}
	return dhtmodels.ThresholdConfig{
		TempThreshold: doc.TempThreshold,
		HumThreshold:  doc.HumThreshold,
		UpdatedAt:     doc.UpdatedAt,
	}, nil
}

func (g *mongoGateway) SetThresholds(ctx context.Context, temp, hum float64) error {
	ctx = g.bind(ctx)

	doc := thresholdDoc{
		ID:            dhtmodels.ThresholdRowID,
		TempThreshold: temp,
		HumThreshold:  hum,
		UpdatedAt:     time.Now().UTC(),
	}
	_, err := g.db.Collection(thresholdsCollection).ReplaceOne(
		ctx,
		bson.M{"_id": dhtmodels.ThresholdRowID},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return g.fail("set_thresholds", err)
	}
	return nil
}

func (g *mongoGateway) FindUserByUsername(ctx context.Context, username string) (*auth_models.UserAccount, error) {
	ctx = g.bind(ctx)

	var user auth_models.UserAccount
	err := g.db.Collection(usersCollection).FindOne(ctx, bson.M{"username": username}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, g.fail("find_user_by_username", err)
	}
	return &user, nil
}

func (g *mongoGateway) InsertUser(ctx context.Context, username, passwordHash string) error {
	const op = "insert_user"
	ctx = g.bind(ctx)

	id, err := g.nextID(ctx, usersCollection)
	if err != nil {
		return g.fail(op, err)
	}

	user := auth_models.NewUserAccount(username, passwordHash)
	user.ID = id
	if _, err := g.db.Collection(usersCollection).InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperrors.ErrUsernameTaken
		}
		return g.fail(op, err)
	}
	return nil
}

func (g *mongoGateway) Close() error {
	g.closeOnce.Do(func() {
		g.sess.EndSession(context.Background())
	})
	return nil
}
