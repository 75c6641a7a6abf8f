package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/SteamVC/SteamVC_Talk/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
)

type RedisStore struct{ rdb *redis.Client }

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

const usersKey = "users"

func userKey(username string) string {
	return fmt.Sprintf("users:%s", username)
}
func messageKey(id string) string {
	return fmt.Sprintf("messages:%s", id)
}

// conversationKey は送受信の向きに関係なく同じキーになるようにソートします
func conversationKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return fmt.Sprintf("conversations:%s:%s", pair[0], pair[1])
}
func unreadKey(receiver, sender string) string {
	return fmt.Sprintf("unread:%s:%s", receiver, sender)
}

func (rs *RedisStore) CreateMessage(ctx context.Context, msg models.ChatMessage) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	pipe := rs.rdb.TxPipeline()
	pipe.Set(ctx, messageKey(msg.ID), b, 0)
	pipe.ZAdd(ctx, conversationKey(msg.Sender, msg.Receiver), redis.Z{
		Score:  float64(msg.Timestamp.UnixMilli()),
		Member: msg.ID,
	})
	if !msg.Read {
		pipe.SAdd(ctx, unreadKey(msg.Receiver, msg.Sender), msg.ID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (rs *RedisStore) ListConversation(ctx context.Context, a, b string, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 {
		return []models.ChatMessage{}, nil
	}
	ids, err := rs.rdb.ZRange(ctx, conversationKey(a, b), int64(-limit), -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []models.ChatMessage{}, nil
	}

	keys := lo.Map(ids, func(id string, _ int) string { return messageKey(id) })
	vals, err := rs.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	// 既読フラグは未読setの所属から求める
	unreadAB, err := rs.rdb.SMembers(ctx, unreadKey(a, b)).Result()
	if err != nil {
		return nil, err
	}
	unreadBA, err := rs.rdb.SMembers(ctx, unreadKey(b, a)).Result()
	if err != nil {
		return nil, err
	}
	unread := lo.SliceToMap(append(unreadAB, unreadBA...), func(id string) (string, struct{}) {
		return id, struct{}{}
	})

	res := make([]models.ChatMessage, 0, len(ids))
	for _, val := range vals {
		s, ok := val.(string)
		if !ok {
			continue
		}
		var m models.ChatMessage
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			log.Warnw("skipping undecodable message", "error", err)
			continue
		}
		_, isUnread := unread[m.ID]
		m.Read = !isUnread
		res = append(res, m)
	}
	return res, nil
}

func (rs *RedisStore) LastMessage(ctx context.Context, a, b string) (models.ChatMessage, bool, error) {
	msgs, err := rs.ListConversation(ctx, a, b, 1)
	if err != nil || len(msgs) == 0 {
		return models.ChatMessage{}, false, err
	}
	return msgs[0], true, nil
}

func (rs *RedisStore) MarkRead(ctx context.Context, receiver, sender string) (int, error) {
	pipe := rs.rdb.TxPipeline()
	n := pipe.SCard(ctx, unreadKey(receiver, sender))
	pipe.Del(ctx, unreadKey(receiver, sender))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return int(n.Val()), nil
}

func (rs *RedisStore) CountUnread(ctx context.Context, receiver, sender string) (int, error) {
	n, err := rs.rdb.SCard(ctx, unreadKey(receiver, sender)).Result()
	return int(n), err
}

func (rs *RedisStore) AddUser(ctx context.Context, user models.User) error {
	b, err := json.Marshal(user)
	if err != nil {
		return err
	}
	added, err := addUserScript.Run(ctx, rs.rdb, []string{userKey(user.Username), usersKey}, b, user.Username).Int()
	if err != nil {
		return err
	}
	if added == 0 {
		return ErrUserAlreadyExists
	}
	return nil
}

// addUserScript はユーザーの保存と一覧への追加を1回で行います
// 既存ユーザーでも一覧への追加だけは行います
var addUserScript = redis.NewScript(`
redis.call("SADD", KEYS[2], ARGV[2])
if redis.call("EXISTS", KEYS[1]) == 1 then
	return 0
end
redis.call("SET", KEYS[1], ARGV[1])
return 1
`)

func (rs *RedisStore) ExistsUser(ctx context.Context, username string) (bool, error) {
	return rs.rdb.SIsMember(ctx, usersKey, username).Result()
}

func (rs *RedisStore) ListUsers(ctx context.Context) ([]models.User, error) {
	names, err := rs.rdb.SMembers(ctx, usersKey).Result()
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return []models.User{}, nil
	}
	sort.Strings(names)

	keys := lo.Map(names, func(n string, _ int) string { return userKey(n) })
	vals, err := rs.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	res := make([]models.User, 0, len(names))
	for i, val := range vals {
		u := models.User{Username: names[i]}
		if s, ok := val.(string); ok {
			if err := json.Unmarshal([]byte(s), &u); err != nil {
				log.Warnw("undecodable user record", "username", names[i], "error", err)
				u = models.User{Username: names[i]}
			}
		}
		res = append(res, u)
	}
	return res, nil
}

// Close は呼び出し元が所有するクライアントを閉じません
func (rs *RedisStore) Close() error { return nil }
