package store

import (
	"context"
	"errors"
	"time"

	"chatapi/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrNotFound  = errors.New("message not found")
	ErrInvalidID = errors.New("invalid message id")
)

// Messages 封装消息集合的持久化操作。_id 单调递增，作为历史分页的游标。
type Messages struct {
	col *mongo.Collection
}

type document struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Room      string             `bson:"room"`
	Username  string             `bson:"username"`
	Content   string             `bson:"content"`
	CreatedAt time.Time          `bson:"created_at"`
}

func (d document) wire() models.Message {
	return models.Message{
		ID:        d.ID.Hex(),
		Room:      d.Room,
		Username:  d.Username,
		Content:   d.Content,
		CreatedAt: models.FormatTime(d.CreatedAt),
	}
}

// Insert 写入一条新消息，返回带 Store 分配标识的线上表示。
func (m *Messages) Insert(ctx context.Context, room, username, content string) (models.Message, error) {
	doc := document{
		Room:      room,
		Username:  username,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	res, err := m.col.InsertOne(ctx, doc)
	if err != nil {
		return models.Message{}, err
	}
	doc.ID = res.InsertedID.(primitive.ObjectID)
	return doc.wire(), nil
}

// Recent 返回房间最近的 limit 条消息，按时间升序。
func (m *Messages) Recent(ctx context.Context, room string, limit int64) ([]models.Message, error) {
	return m.ListBefore(ctx, room, "", limit)
}

// ListBefore 分页查询：返回 beforeID 之前的 limit 条消息，按时间升序。
// beforeID 为空表示从最新一条开始。
func (m *Messages) ListBefore(ctx context.Context, room, beforeID string, limit int64) ([]models.Message, error) {
	filter := bson.M{"room": room}
	if beforeID != "" {
		oid, err := primitive.ObjectIDFromHex(beforeID)
		if err != nil {
			return nil, ErrInvalidID
		}
		filter["_id"] = bson.M{"$lt": oid}
	}

	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: -1}}).SetLimit(limit)
	cursor, err := m.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var msgs []models.Message
	for cursor.Next(ctx) {
		var doc document
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		msgs = append(msgs, doc.wire())
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}

	// 查询按 _id 降序取最新 limit 条，反转为升序
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Delete 按 id 和房间双重限定删除消息，防止跨房间误删。
func (m *Messages) Delete(ctx context.Context, room, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrInvalidID
	}
	res, err := m.col.DeleteOne(ctx, bson.M{"_id": oid, "room": room})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
