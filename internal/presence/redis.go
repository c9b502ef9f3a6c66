package presence

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "presence:"

// removeConn drops one connection id and deletes the set once it is empty,
// returning the number of connections left.
var removeConn = redis.NewScript(`
redis.call("SREM", KEYS[1], ARGV[1])
local left = redis.call("SCARD", KEYS[1])
if left == 0 then
	redis.call("DEL", KEYS[1])
end
return left
`)

// Redis keeps one set of connection ids per user so several relay processes
// can share the table.
type Redis struct {
	client redis.UniversalClient
}

func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

func key(userID string) string { return keyPrefix + userID }

func (r *Redis) MarkOnline(ctx context.Context, userID, connID string) (bool, error) {
	var added, card *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		added = pipe.SAdd(ctx, key(userID), connID)
		card = pipe.SCard(ctx, key(userID))
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("presence mark online: %w", err)
	}
	return added.Val() == 1 && card.Val() == 1, nil
}

func (r *Redis) MarkOffline(ctx context.Context, userID, connID string) (bool, error) {
	left, err := removeConn.Run(ctx, r.client, []string{key(userID)}, connID).Int64()
	if err != nil {
		return false, fmt.Errorf("presence mark offline: %w", err)
	}
	return left == 0, nil
}

func (r *Redis) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := r.client.Exists(ctx, key(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("presence lookup: %w", err)
	}
	return n > 0, nil
}

func (r *Redis) OnlineSubsetOf(ctx context.Context, userIDs []string) ([]string, error) {
	if len(userIDs) == 0 {
		return []string{}, nil
	}

	cmds := make([]*redis.IntCmd, len(userIDs))
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range userIDs {
			cmds[i] = pipe.Exists(ctx, key(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("presence subset: %w", err)
	}

	online := make([]string, 0, len(userIDs))
	for i, cmd := range cmds {
		if cmd.Val() > 0 {
			online = append(online, userIDs[i])
		}
	}
	return online, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
