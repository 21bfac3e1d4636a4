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

type TicketRepo struct {
	client     *mongo.Client
	db         *mongo.Database
	collection *mongo.Collection
	logger     apt.Logger
	config     *apt.Config
}

func NewTicketRepo(config *apt.Config, logger apt.Logger) *TicketRepo {
	return &TicketRepo{
		logger: logger,
		config: config,
	}
}

func (r *TicketRepo) Start(ctx context.Context) error {
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
	r.collection = r.db.Collection("tickets")

	for _, field := range []string{"order_id", "station", "status"} {
		indexModel := mongo.IndexModel{
			Keys: bson.D{{Key: field, Value: 1}},
		}
		if _, err := r.collection.Indexes().CreateOne(ctx, indexModel); err != nil {
			return fmt.Errorf("cannot create %s index: %w", field, err)
		}
	}

	r.logger.Infof("Connected to MongoDB: %s, database: %s, collection: tickets", mongoURL, dbName)
	return nil
}

func (r *TicketRepo) GetDatabase() *mongo.Database {
	return r.db
}

func (r *TicketRepo) Stop(ctx context.Context) error {
	if r.client != nil {
		if err := r.client.Disconnect(ctx); err != nil {
			return fmt.Errorf("cannot disconnect from MongoDB: %w", err)
		}
		r.logger.Info("Disconnected from MongoDB")
	}
	return nil
}

func (r *TicketRepo) Create(ctx context.Context, t *kds.Ticket) error {
	return kds.WithRetry(ctx, func(ctx context.Context) error {
		_, err := r.collection.InsertOne(ctx, t)
		if err != nil {
			return fmt.Errorf("cannot insert ticket: %w", err)
		}
		return nil
	})
}

func (r *TicketRepo) Update(ctx context.Context, t *kds.Ticket) error {
	return kds.WithRetry(ctx, func(ctx context.Context) error {
		result, err := r.collection.UpdateOne(ctx, bson.M{"_id": t.ID}, bson.M{"$set": t})
		if err != nil {
			return fmt.Errorf("cannot update ticket: %w", err)
		}
		if result.MatchedCount == 0 {
			return fmt.Errorf("%w: ticket %s", kds.ErrNotFound, t.ID)
		}
		return nil
	})
}

func (r *TicketRepo) FindByID(ctx context.Context, id kds.TicketID) (*kds.Ticket, error) {
	var ticket kds.Ticket
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&ticket)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("%w: ticket %s", kds.ErrNotFound, id)
		}
		return nil, fmt.Errorf("cannot find ticket: %w", err)
	}
	return &ticket, nil
}

func (r *TicketRepo) List(ctx context.Context, filter kds.TicketRepoFilter) ([]kds.Ticket, error) {
	query := bson.M{}

	if filter.Station != nil {
		query["station"] = *filter.Station
	}
	if filter.Status != nil {
		query["status"] = *filter.Status
	}
	if filter.OrderID != nil {
		query["order_id"] = *filter.OrderID
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "start_time", Value: 1}})

	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	if filter.Offset > 0 {
		opts.SetSkip(int64(filter.Offset))
	}

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("cannot find tickets: %w", err)
	}
	defer cursor.Close(ctx)

	var tickets []kds.Ticket
	if err := cursor.All(ctx, &tickets); err != nil {
		return nil, fmt.Errorf("cannot decode tickets: %w", err)
	}

	return tickets, nil
}

func (r *TicketRepo) DeleteByOrderID(ctx context.Context, id kds.OrderID) error {
	return kds.WithRetry(ctx, func(ctx context.Context) error {
		if _, err := r.collection.DeleteMany(ctx, bson.M{"order_id": id}); err != nil {
			return fmt.Errorf("cannot delete tickets for order %s: %w", id, err)
		}
		return nil
	})
}
