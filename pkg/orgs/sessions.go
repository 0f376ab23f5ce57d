package orgs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/opsgate/gatehouse/pkg/observability"
)

// Session is one live user session tracked in Redis.
type Session struct {
	UserID     string    `json:"user_id"`
	TenantID   string    `json:"tenant_id"`
	Edition    string    `json:"edition"`
	LoginAt    time.Time `json:"login_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// SessionRegistry tracks live sessions in Redis. Entries expire on their own
// when a session goes quiet, so an unclean disconnect never leaks a record.
type SessionRegistry struct {
	client  *redis.Client
	ttl     time.Duration
	metrics *observability.Metrics
}

// NewSessionRegistry creates a registry over an existing Redis client.
// Sessions not touched within ttl are dropped.
func NewSessionRegistry(client *redis.Client, ttl time.Duration, metrics *observability.Metrics) *SessionRegistry {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &SessionRegistry{client: client, ttl: ttl, metrics: metrics}
}

func sessionKey(tenantID, userID string) string {
	return fmt.Sprintf("gatehouse:session:%s:%s", tenantID, userID)
}

// Login records a fresh session for the user.
func (r *SessionRegistry) Login(ctx context.Context, session *Session) error {
	now := time.Now().UTC()
	if session.LoginAt.IsZero() {
		session.LoginAt = now
	}
	session.LastSeenAt = now

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	start := time.Now()
	err = r.client.Set(ctx, sessionKey(session.TenantID, session.UserID), data, r.ttl).Err()
	r.recordCommand("set", start, err)
	if err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// Touch refreshes the session's last-seen time and TTL. A missing session is
// not an error; the caller treats the user as logged out.
func (r *SessionRegistry) Touch(ctx context.Context, tenantID, userID string) (bool, error) {
	key := sessionKey(tenantID, userID)

	start := time.Now()
	data, err := r.client.Get(ctx, key).Result()
	r.recordCommand("get", start, err)
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load session: %w", err)
	}

	var session Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		// Corrupt entry; drop it rather than failing every touch.
		r.client.Del(ctx, key)
		return false, nil
	}
	session.LastSeenAt = time.Now().UTC()

	payload, err := json.Marshal(&session)
	if err != nil {
		return false, fmt.Errorf("failed to marshal session: %w", err)
	}

	start = time.Now()
	err = r.client.Set(ctx, key, payload, r.ttl).Err()
	r.recordCommand("set", start, err)
	if err != nil {
		return false, fmt.Errorf("failed to refresh session: %w", err)
	}
	return true, nil
}

// Logout removes the user's session.
func (r *SessionRegistry) Logout(ctx context.Context, tenantID, userID string) error {
	start := time.Now()
	err := r.client.Del(ctx, sessionKey(tenantID, userID)).Err()
	r.recordCommand("del", start, err)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Get returns the user's live session, or nil when none exists.
func (r *SessionRegistry) Get(ctx context.Context, tenantID, userID string) (*Session, error) {
	start := time.Now()
	data, err := r.client.Get(ctx, sessionKey(tenantID, userID)).Result()
	r.recordCommand("get", start, err)
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var session Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

// ActiveUsers returns the user ids with live sessions in the tenant.
func (r *SessionRegistry) ActiveUsers(ctx context.Context, tenantID string) ([]string, error) {
	pattern := fmt.Sprintf("gatehouse:session:%s:*", tenantID)
	prefix := fmt.Sprintf("gatehouse:session:%s:", tenantID)

	var users []string
	iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		users = append(users, key[len(prefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan sessions: %w", err)
	}
	return users, nil
}

// CountActive returns the number of live sessions across all tenants. The
// sweeper publishes it as a gauge.
func (r *SessionRegistry) CountActive(ctx context.Context) (int64, error) {
	var count int64
	iter := r.client.Scan(ctx, 0, "gatehouse:session:*", 500).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return count, nil
}

func (r *SessionRegistry) recordCommand(command string, start time.Time, err error) {
	if r.metrics == nil {
		return
	}
	status := "success"
	if err != nil && err != redis.Nil {
		status = "error"
	}
	r.metrics.RedisCommandsTotal.WithLabelValues(command, status).Inc()
	r.metrics.RedisCommandDuration.WithLabelValues(command).Observe(time.Since(start).Seconds())
}
