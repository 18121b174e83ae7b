// Package historian captures an append-only log of executed server commands.
// The game server pushes one record per command onto a Redis list; a separate
// consumer service pops records in batches and persists them to postgres.
// Recording is best-effort and never affects the outcome of a command.
package historian

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultQueue is the Redis list commands are pushed onto when
// HISTORIAN_QUEUE_NAME is not set.
const DefaultQueue = "hall_commands"

// CommandRecord holds minimal info about a single executed command.
type CommandRecord struct {
	GameID     string      `json:"game_id"`
	InstanceID string      `json:"instance_id"`
	Player     string      `json:"player"`
	Command    string      `json:"command"`
	Reply      interface{} `json:"reply,omitempty"`
	Timestamp  int64       `json:"timestamp"` // epoch millis
}

// Historian is the producer side: it pushes command records onto the queue.
// A nil *Historian is valid and records nothing, so callers never need to
// branch on whether history capture is configured.
type Historian struct {
	client *redis.Client
	queue  string
	log    *logrus.Logger
}

// New wraps an existing Redis client.
func New(client *redis.Client, queue string, log *logrus.Logger) *Historian {
	if queue == "" {
		queue = DefaultQueue
	}
	return &Historian{client: client, queue: queue, log: log}
}

// NewFromEnv builds a Historian from REDIS_ADDR, REDIS_DB and
// HISTORIAN_QUEUE_NAME. Returns nil when REDIS_ADDR is unset.
func NewFromEnv(log *logrus.Logger) *Historian {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   getEnvInt("REDIS_DB", 0),
	})
	return New(client, os.Getenv("HISTORIAN_QUEUE_NAME"), log)
}

// Record pushes one command record onto the queue. Failures are logged and
// swallowed; the command that produced the record has already committed.
func (h *Historian) Record(ctx context.Context, rec CommandRecord) {
	if h == nil {
		return
	}
	if rec.Timestamp == 0 {
		rec.Timestamp = time.Now().UnixMilli()
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		h.log.WithError(err).Warn("historian: failed to encode command record")
		return
	}
	if err := h.client.RPush(ctx, h.queue, payload).Err(); err != nil {
		h.log.WithError(err).WithField("command", rec.Command).
			Warn("historian: failed to enqueue command record")
	}
}

// Close releases the underlying Redis client.
func (h *Historian) Close() error {
	if h == nil {
		return nil
	}
	return h.client.Close()
}

func getEnvInt(key string, defVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defVal
	}
	return i
}
