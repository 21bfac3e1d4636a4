package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/kds/internal/kds"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type OrderRepo struct {
	client     *mongo.Client
	db         *mongo.Database
	collection *mongo.Collection
	logger     apt.Logger
	config     *apt.Config
}

func NewOrderRepo(config *apt.Config, logger apt.Logger) *OrderRepo {
	return &OrderRepo{
		logger: logger,
		config: config,
	}
}

func (r *OrderRepo) Start(ctx context.Context) error {
	mongoURL, _ := r.config.GetString("db.mongo.url")
	if mongoURL == "" {
		mongoURL = "mongodb://localhost:27017"
	}

	dbName, _ := r.config.GetString("db.mongo.name")
	if dbName == "" {
		dbName = "kds"
	}

	clientOptions := options.Client().ApplyURI(mongoURL).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return fmt.Errorf("cannot connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("cannot ping MongoDB: %w", err)
	}

	r.client = client
	r.db = client.Database(dbName)
	r.collection = r.db.Collection("orders")

	indexModel := mongo.IndexModel{
		Keys: bson.D{{Key: "status", Value: 1}},
	}
	if _, err := r.collection.Indexes().CreateOne(ctx, indexModel); err != nil {
		return fmt.Errorf("cannot create status index: %w", err)
	}

	r.logger.Infof("Connected to MongoDB: %s, database: %s, collection: orders", mongoURL, dbName)
	return nil
}

func (r *OrderRepo) Stop(ctx context.Context) error {
	if r.client != nil {
		if err := r.client.Disconnect(ctx); err != nil {
			return fmt.Errorf("cannot disconnect from MongoDB: %w", err)
		}
		r.logger.Info("Disconnected from MongoDB")
	}
	return nil
}

func (r *OrderRepo) Create(ctx context.Context, o *kds.Order) error {
	return kds.WithRetry(ctx, func(ctx context.Context) error {
		_, err := r.collection.InsertOne(ctx, o)
		if err != nil {
			return fmt.Errorf("cannot insert order: %w", err)
		}
		return nil
	})
}

func (r *OrderRepo) Update(ctx context.Context, o *kds.Order) error {
	return kds.WithRetry(ctx, func(ctx context.Context) error {
		result, err := r.collection.UpdateOne(ctx, bson.M{"_id": o.ID}, bson.M{"$set": o})
		if err != nil {
			return fmt.Errorf("cannot update order: %w", err)
		}
		if result.MatchedCount == 0 {
			return fmt.Errorf("%w: order %s", kds.ErrNotFound, o.ID)
		}
		return nil
	})
}

func (r *OrderRepo) FindByID(ctx context.Context, id kds.OrderID) (*kds.Order, error) {
	var order kds.Order
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&order)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("%w: order %s", kds.ErrNotFound, id)
		}
		return nil, fmt.Errorf("cannot find order: %w", err)
	}
	return &order, nil
}

func (r *OrderRepo) List(ctx context.Context, filter kds.OrderFilter) ([]kds.Order, error) {
	query := bson.M{}

	if filter.Status != nil {
		query["status"] = *filter.Status
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}})

	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	if filter.Offset > 0 {
		opts.SetSkip(int64(filter.Offset))
	}

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("cannot find orders: %w", err)
	}
	defer cursor.Close(ctx)

	var orders []kds.Order
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("cannot decode orders: %w", err)
	}

	return orders, nil
}
