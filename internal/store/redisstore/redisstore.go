// Package redisstore is a store.Repository keeping JSON blobs in Redis.
//
// Conversations are read-modify-written without WATCH, so two concurrent
// appends to one conversation can lose a message_count increment.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ragdesk/kb-chatbot/internal/model"
	"github.com/ragdesk/kb-chatbot/internal/store"
)

const prefix = "kbchat:"

func conversationKey(id string) string { return prefix + "conv:" + id }
func userConversationsKey(userID string) string { return prefix + "user:" + userID + ":convs" }
func messagesKey(conversationID string) string { return prefix + "msgs:" + conversationID }
func faqsKey(userID string) string { return prefix + "user:" + userID + ":faqs" }
func filesKey(userID string) string { return prefix + "user:" + userID + ":files" }
func urlsKey(userID string) string { return prefix + "user:" + userID + ":urls" }
func statKey(name string) string { return prefix + "stats:" + name }

// Store is a Redis-backed Repository.
type Store struct {
	rdb *redis.Client
}

var _ store.Repository = (*Store)(nil)

// New wraps a connected client.
func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Connect creates a client and checks it with PING.
func Connect(ctx context.Context, addr, password string, db int) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return New(rdb), nil
}

func (s *Store) getConversation(ctx context.Context, id string) (*model.Conversation, error) {
	data, err := s.rdb.Get(ctx, conversationKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get conversation %s: %w", id, err)
	}
	var conv model.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("failed to decode conversation %s: %w", id, err)
	}
	return &conv, nil
}

func (s *Store) setConversation(ctx context.Context, conv *model.Conversation) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("failed to encode conversation: %w", err)
	}
	return s.rdb.Set(ctx, conversationKey(conv.ID), data, 0).Err()
}

func (s *Store) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("failed to encode conversation: %w", err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, conversationKey(conv.ID), data, 0)
		pipe.SAdd(ctx, userConversationsKey(conv.UserID), conv.ID)
		pipe.Incr(ctx, statKey("conversations"))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

func (s *Store) GetConversation(ctx context.Context, userID, id string) (*model.Conversation, error) {
	conv, err := s.getConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv.UserID != userID {
		return nil, store.ErrNotFound
	}
	return conv, nil
}

func (s *Store) ListConversations(ctx context.Context, userID string, limit, offset int) ([]model.Conversation, int, error) {
	limit, offset = store.Page(limit, offset)

	ids, err := s.rdb.SMembers(ctx, userConversationsKey(userID)).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list conversation ids: %w", err)
	}

	convs := make([]model.Conversation, 0, len(ids))
	for _, id := range ids {
		conv, err := s.getConversation(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, 0, err
		}
		convs = append(convs, *conv)
	}

	sort.Slice(convs, func(i, j int) bool {
		if convs[i].UpdatedAt.Equal(convs[j].UpdatedAt) {
			return convs[i].ID > convs[j].ID
		}
		return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
	})

	total := len(convs)
	start := min(offset, total)
	end := min(start+limit, total)
	return convs[start:end], total, nil
}

func (s *Store) UpdateConversationMetadata(ctx context.Context, userID, id string, metadata map[string]any) error {
	conv, err := s.GetConversation(ctx, userID, id)
	if err != nil {
		return err
	}
	conv.Metadata = metadata
	conv.UpdatedAt = time.Now().UTC()
	return s.setConversation(ctx, conv)
}

func (s *Store) EndConversation(ctx context.Context, userID, id string) error {
	conv, err := s.GetConversation(ctx, userID, id)
	if err != nil {
		return err
	}
	conv.IsActive = false
	conv.UpdatedAt = time.Now().UTC()
	return s.setConversation(ctx, conv)
}

func (s *Store) AppendMessage(ctx context.Context, msg *model.Message) error {
	conv, err := s.GetConversation(ctx, msg.UserID, msg.ConversationID)
	if err != nil {
		return err
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	conv.MessageCount++
	conv.UpdatedAt = msg.CreatedAt
	if conv.Title == "" && msg.Role == model.RoleUser {
		conv.Title = store.TitleFromMessage(msg.Content)
	}
	convData, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("failed to encode conversation: %w", err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, messagesKey(msg.ConversationID), data)
		pipe.Set(ctx, conversationKey(conv.ID), convData, 0)
		pipe.Incr(ctx, statKey("messages"))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

func (s *Store) RecentMessages(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	raw, err := s.rdb.LRange(ctx, messagesKey(conversationID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}

	msgs := make([]model.Message, 0, len(raw))
	for _, r := range raw {
		var m model.Message
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			return nil, fmt.Errorf("failed to decode message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (s *Store) CreateFAQ(ctx context.Context, faq *model.FAQ) error {
	return s.putRecord(ctx, faqsKey(faq.UserID), "faqs", faq.ID, faq)
}

func (s *Store) ListFAQs(ctx context.Context, userID string) ([]model.FAQ, error) {
	out, err := listRecords[model.FAQ](ctx, s.rdb, faqsKey(userID))
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) DeleteFAQ(ctx context.Context, userID, id string) error {
	return s.deleteRecord(ctx, faqsKey(userID), "faqs", id)
}

func (s *Store) CreateFile(ctx context.Context, f *model.UploadedFile) error {
	return s.putRecord(ctx, filesKey(f.UserID), "files", f.ID, f)
}

func (s *Store) ListFiles(ctx context.Context, userID string) ([]model.UploadedFile, error) {
	out, err := listRecords[model.UploadedFile](ctx, s.rdb, filesKey(userID))
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) DeleteFile(ctx context.Context, userID, id string) error {
	return s.deleteRecord(ctx, filesKey(userID), "files", id)
}

func (s *Store) CreateURL(ctx context.Context, u *model.CrawledURL) error {
	return s.putRecord(ctx, urlsKey(u.UserID), "urls", u.ID, u)
}

func (s *Store) ListURLs(ctx context.Context, userID string) ([]model.CrawledURL, error) {
	out, err := listRecords[model.CrawledURL](ctx, s.rdb, urlsKey(userID))
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) DeleteURL(ctx context.Context, userID, id string) error {
	return s.deleteRecord(ctx, urlsKey(userID), "urls", id)
}

func (s *Store) putRecord(ctx context.Context, key, stat, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, id, data)
		pipe.Incr(ctx, statKey(stat))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store record: %w", err)
	}
	return nil
}

func (s *Store) deleteRecord(ctx context.Context, key, stat, id string) error {
	n, err := s.rdb.HDel(ctx, key, id).Result()
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return s.rdb.Decr(ctx, statKey(stat)).Err()
}

func listRecords[T any](ctx context.Context, rdb *redis.Client, key string) ([]T, error) {
	raw, err := rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	out := make([]T, 0, len(raw))
	for _, r := range raw {
		var v T
		if err := json.Unmarshal([]byte(r), &v); err != nil {
			return nil, fmt.Errorf("failed to decode record: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Store) Stats(ctx context.Context) (model.Stats, error) {
	names := []string{"conversations", "messages", "faqs", "files", "urls"}
	keys := make([]string, len(names))
	for i, n := range names {
		keys[i] = statKey(n)
	}

	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return model.Stats{}, fmt.Errorf("failed to read stats: %w", err)
	}

	counts := make([]int64, len(vals))
	for i, v := range vals {
		if str, ok := v.(string); ok {
			counts[i], _ = strconv.ParseInt(str, 10, 64)
		}
	}
	return model.Stats{
		Conversations: counts[0],
		Messages:      counts[1],
		FAQs:          counts[2],
		Files:         counts[3],
		URLs:          counts[4],
	}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}
