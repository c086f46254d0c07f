package cooldown

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"restricted-promotion/models"

	"github.com/redis/go-redis/v9"
)

// serverField holds the server-level timestamp inside a server's hash.
// Discord snowflakes never start with '@', so it cannot clash with an author ID.
const serverField = "@server"

const entrySep = "|"

// RedisStore keeps one hash per target server. Every write refreshes the
// key TTL to the retention horizon, so expired state disappears on its own.
type RedisStore struct {
	Client *redis.Client
	TTL    time.Duration
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	ctx := context.Background()
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return nil, err
	}
	return &RedisStore{Client: rdb, TTL: ttl}, nil
}

func redisCooldownKey(serverID string) string {
	return "cooldown/" + serverID
}

func (s *RedisStore) Get(ctx context.Context, serverID string) (*models.CooldownRecord, error) {
	vals, err := s.Client.HGetAll(ctx, redisCooldownKey(serverID)).Result()
	if err != nil {
		return nil, err
	}
	serverTS, ok := vals[serverField]
	if !ok {
		return nil, nil
	}
	rec := &models.CooldownRecord{
		ServerID: serverID,
		Authors:  make(map[string]time.Time, len(vals)-1),
		Messages: make(map[string]models.MessageRef, len(vals)-1),
	}
	if rec.LastAdvertisedAt, err = parseNanos(serverTS); err != nil {
		return nil, err
	}
	for field, v := range vals {
		if field == serverField {
			continue
		}
		at, msg, err := parseAuthorEntry(v)
		if err != nil {
			return nil, err
		}
		rec.Authors[field] = at
		rec.Messages[field] = msg
	}
	return rec, nil
}

func (s *RedisStore) Upsert(ctx context.Context, serverID, authorID string, msg models.MessageRef, at time.Time) error {
	key := redisCooldownKey(serverID)
	ts := strconv.FormatInt(at.UnixNano(), 10)
	entry := strings.Join([]string{ts, msg.ChannelID, msg.MessageID}, entrySep)
	_, err := s.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, serverField, ts, authorID, entry)
		if s.TTL > 0 {
			pipe.Expire(ctx, key, s.TTL)
		}
		return nil
	})
	return err
}

func (s *RedisStore) Close() error {
	return s.Client.Close()
}

// parseAuthorEntry decodes "<unix nanos>|<channel id>|<message id>".
func parseAuthorEntry(v string) (time.Time, models.MessageRef, error) {
	parts := strings.SplitN(v, entrySep, 3)
	at, err := parseNanos(parts[0])
	if err != nil {
		return time.Time{}, models.MessageRef{}, err
	}
	var msg models.MessageRef
	if len(parts) == 3 {
		msg = models.MessageRef{ChannelID: parts[1], MessageID: parts[2]}
	}
	return at, msg, nil
}

func parseNanos(v string) (time.Time, error) {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cooldown timestamp %q: %w", v, err)
	}
	return time.Unix(0, n), nil
}
