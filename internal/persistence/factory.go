package persistence

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Zorrojurro/project-aarna/internal/config"
	"github.com/Zorrojurro/project-aarna/pkg/awsconf"
)

// Open builds the store selected by cfg.Persistence.Driver. The returned
// close function releases any connection the store holds.
func Open(ctx context.Context, cfg *config.Config) (Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Persistence.Driver {
	case config.DriverMemory:
		return NewMemoryStore(), noop, nil

	case config.DriverFile:
		return NewFileStore(cfg.Persistence.Path), noop, nil

	case config.DriverPostgres:
		db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Database.GetDatabaseURL())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		store := NewPostgresStore(db)
		if err := store.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return store, db.Close, nil

	case config.DriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Persistence.RedisAddr,
			Password: cfg.Persistence.RedisPassword,
			DB:       cfg.Persistence.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return NewRedisStore(client, "portal:"), client.Close, nil

	case config.DriverDynamoDB:
		awsCfg, err := awsconf.Load(ctx, cfg.AWS)
		if err != nil {
			return nil, nil, err
		}
		return NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.Persistence.DynamoTable), noop, nil

	case config.DriverMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Persistence.MongoURI))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to mongo: %w", err)
		}
		closeFn := func() error { return client.Disconnect(context.Background()) }
		return NewMongoStore(client.Database(cfg.Persistence.MongoDatabase)), closeFn, nil

	default:
		return nil, nil, fmt.Errorf("unknown persistence driver %q", cfg.Persistence.Driver)
	}
}
