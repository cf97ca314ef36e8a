package core

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"
)

// releaseScript deletes the key only while it still belongs to the caller.
var releaseScript = rueidis.NewLuaScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker hands out short-lived exclusive claims on redis keys so that two
// worker processes never reconcile the same guild for the same task at once.
type Locker struct {
	client rueidis.Client
	owner  string
	ttl    time.Duration
}

// NewLocker creates a locker whose claims are tagged with owner.
func NewLocker(client rueidis.Client, owner string, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}

	return &Locker{
		client: client,
		owner:  owner,
		ttl:    ttl,
	}
}

// Acquire claims the key. It returns false when another owner holds it.
func (l *Locker) Acquire(ctx context.Context, key string) (bool, error) {
	err := l.client.Do(ctx, l.client.B().Set().Key(key).Value(l.owner).Nx().Px(l.ttl).Build()).Error()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}

	return true, nil
}

// Release drops the claim if it is still held by this locker.
func (l *Locker) Release(ctx context.Context, key string) error {
	if err := releaseScript.Exec(ctx, l.client, []string{key}, []string{l.owner}).Error(); err != nil {
		return fmt.Errorf("failed to release lock %s: %w", key, err)
	}

	return nil
}

// tickLockKey names the claim a task holds on one guild.
func tickLockKey(task string, guildID uint64) string {
	return fmt.Sprintf("tick:%s:%d", task, guildID)
}
