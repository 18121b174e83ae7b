package historian

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const commandLogSchema = `
CREATE TABLE IF NOT EXISTS command_log (
	id          bigserial PRIMARY KEY,
	game_id     text NOT NULL,
	instance_id text NOT NULL,
	player      text NOT NULL,
	command     text NOT NULL,
	reply       jsonb,
	recorded_at timestamptz NOT NULL
);

CREATE INDEX IF NOT EXISTS command_log_game_idx ON command_log (game_id, recorded_at);
`

// Service is the consumer side of the historian: it pops command records
// from the Redis queue, accumulates them in a batch, and flushes the batch
// to postgres in a single transaction.
type Service struct {
	redisClient *redis.Client
	pool        *pgxpool.Pool
	queue       string
	batchSize   int
	flushDelay  time.Duration
	log         *logrus.Logger

	batchMu sync.Mutex
	batch   []CommandRecord
}

// NewService constructs a consumer over the given clients.
func NewService(redisClient *redis.Client, pool *pgxpool.Pool, queue string, log *logrus.Logger) *Service {
	if queue == "" {
		queue = DefaultQueue
	}
	return &Service{
		redisClient: redisClient,
		pool:        pool,
		queue:       queue,
		batchSize:   getEnvInt("HISTORIAN_BATCH_SIZE", 20),
		flushDelay:  time.Duration(getEnvInt("HISTORIAN_FLUSH_MS", 500)) * time.Millisecond,
		log:         log,
		batch:       make([]CommandRecord, 0, 20),
	}
}

// Run consumes the queue until ctx is cancelled. The remaining batch is
// flushed before returning.
func (s *Service) Run(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, commandLogSchema); err != nil {
		return fmt.Errorf("ensure command_log schema: %w", err)
	}

	ticker := time.NewTicker(s.flushDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.flush(context.Background())
			return ctx.Err()

		case <-ticker.C:
			s.flush(ctx)

		default:
			// BLPop with a short timeout so cancellation is noticed.
			res, err := s.redisClient.BLPop(ctx, 3*time.Second, s.queue).Result()
			if err != nil {
				if errors.Is(err, context.Canceled) {
					continue
				}
				if !errors.Is(err, redis.Nil) {
					s.log.WithError(err).Error("historian: BLPop failed")
				}
				continue
			}
			if len(res) < 2 {
				continue
			}
			var rec CommandRecord
			if err := json.Unmarshal([]byte(res[1]), &rec); err != nil {
				s.log.WithError(err).Warn("historian: invalid command record")
				continue
			}
			s.append(ctx, rec)
		}
	}
}

func (s *Service) append(ctx context.Context, rec CommandRecord) {
	s.batchMu.Lock()
	s.batch = append(s.batch, rec)
	full := len(s.batch) >= s.batchSize
	s.batchMu.Unlock()
	if full {
		s.flush(ctx)
	}
}

func (s *Service) flush(ctx context.Context) {
	s.batchMu.Lock()
	if len(s.batch) == 0 {
		s.batchMu.Unlock()
		return
	}
	batch := make([]CommandRecord, len(s.batch))
	copy(batch, s.batch)
	s.batch = s.batch[:0]
	s.batchMu.Unlock()

	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range batch {
			reply, err := json.Marshal(rec.Reply)
			if err != nil {
				return fmt.Errorf("encode reply: %w", err)
			}
			_, err = tx.Exec(ctx,
				`INSERT INTO command_log (game_id, instance_id, player, command, reply, recorded_at)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				rec.GameID, rec.InstanceID, rec.Player, rec.Command, reply,
				time.UnixMilli(rec.Timestamp).UTC())
			if err != nil {
				return fmt.Errorf("insert command record: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		s.log.WithError(err).Error("historian: failed to flush batch")
		return
	}
	s.log.WithField("count", len(batch)).Debug("historian: flushed command batch")
}
