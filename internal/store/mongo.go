package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store 持有到 MongoDB 的连接，消息集合通过 Messages() 访问。
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect 负责建立到 MongoDB 的连接，并带有简单的重试来等待容器就绪。
func Connect(ctx context.Context, url, dbName string) (*Store, error) {
	var client *mongo.Client
	var err error
	for i := 0; i < 10; i++ {
		client, err = mongo.Connect(ctx, options.Client().ApplyURI(url))
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = client.Ping(pingCtx, nil)
			cancel()
			if err == nil {
				return &Store{client: client, db: client.Database(dbName)}, nil
			}
			_ = client.Disconnect(ctx)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(500+i*200) * time.Millisecond):
		}
	}
	return nil, err
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Messages 返回消息集合的操作入口。
func (s *Store) Messages() *Messages {
	return &Messages{col: s.db.Collection("messages")}
}
