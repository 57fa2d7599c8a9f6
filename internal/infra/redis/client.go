// Package redis holds the reminder schedule: a sorted set of deferred
// questions scored by their due time.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const remindersKey = "arbiter:reminders"

// Client wraps Redis operations for the reminder schedule.
type Client struct {
	rdb *redis.Client
}

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Reminder is one deferred question waiting to resurface.
type Reminder struct {
	QuestionID    int64
	CorrelationID string
	Due           time.Time
}

func memberFor(questionID int64, correlationID string) string {
	return fmt.Sprintf("%d:%s", questionID, correlationID)
}

func parseMember(member string, score float64) (Reminder, error) {
	id, cid, ok := strings.Cut(member, ":")
	if !ok {
		return Reminder{}, fmt.Errorf("malformed reminder member %q", member)
	}
	questionID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return Reminder{}, fmt.Errorf("malformed reminder member %q: %w", member, err)
	}
	return Reminder{
		QuestionID:    questionID,
		CorrelationID: cid,
		Due:           time.Unix(int64(score), 0).UTC(),
	}, nil
}

// Schedule books a reminder at the given due time. Rescheduling the same
// question overwrites the previous due time.
func (c *Client) Schedule(ctx context.Context, questionID int64, correlationID string, due time.Time) error {
	err := c.rdb.ZAdd(ctx, remindersKey, redis.Z{
		Score:  float64(due.Unix()),
		Member: memberFor(questionID, correlationID),
	}).Err()
	if err != nil {
		return fmt.Errorf("zadd reminder: %w", err)
	}
	return nil
}

const popBatchSize = 256

// popDueScript removes and returns due members in one server-side step, so
// concurrent workers never pop the same reminder.
var popDueScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'WITHSCORES', 'LIMIT', 0, ARGV[2])
if #due > 0 then
	local members = {}
	for i = 1, #due, 2 do
		members[#members + 1] = due[i]
	end
	redis.call('ZREM', KEYS[1], unpack(members))
end
return due
`)

// PopDue atomically removes and returns reminders due at or before now,
// bounded to popBatchSize per call; the worker's next poll drains the rest.
func (c *Client) PopDue(ctx context.Context, now time.Time) ([]Reminder, error) {
	raw, err := popDueScript.Run(ctx, c.rdb, []string{remindersKey},
		strconv.FormatInt(now.Unix(), 10), popBatchSize).Result()
	if err != nil {
		return nil, fmt.Errorf("pop due reminders: %w", err)
	}

	entries, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected reply type %T for due reminders", raw)
	}
	return parsePopReply(entries)
}

// parsePopReply decodes the script's flat member/score reply. Malformed
// entries are dropped rather than wedging the loop; the script already
// removed them.
func parsePopReply(entries []interface{}) ([]Reminder, error) {
	if len(entries)%2 != 0 {
		return nil, fmt.Errorf("odd reply length %d for due reminders", len(entries))
	}

	reminders := make([]Reminder, 0, len(entries)/2)
	for i := 0; i < len(entries); i += 2 {
		member, ok := entries[i].(string)
		if !ok {
			continue
		}
		scoreStr, ok := entries[i+1].(string)
		if !ok {
			continue
		}
		score, err := strconv.ParseFloat(scoreStr, 64)
		if err != nil {
			continue
		}
		r, err := parseMember(member, score)
		if err != nil {
			continue
		}
		reminders = append(reminders, r)
	}
	return reminders, nil
}

// PendingReminders returns how many reminders are currently booked.
func (c *Client) PendingReminders(ctx context.Context) (int64, error) {
	n, err := c.rdb.ZCard(ctx, remindersKey).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard reminders: %w", err)
	}
	return n, nil
}
