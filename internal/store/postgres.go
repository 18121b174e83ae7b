// internal/store/postgres.go
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openarcade/hall/internal/models"
)

// Postgres is a Store backed by postgres via pgx. Entity-group serialization
// uses a row lock on the owning game: every transaction first upserts and
// locks the game row, so two commands racing on the same game (or any of its
// instances) apply one after the other.
type Postgres struct {
	pool *pgxpool.Pool
}

// ConnectPostgres builds a pool from the standard environment variables
// (POSTGRES_USER, POSTGRES_PASSWORD, PG_HOST, PG_PORT, PG_DATABASE) and
// ensures the schema exists.
func ConnectPostgres(ctx context.Context) (*Postgres, error) {
	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		os.Getenv("POSTGRES_USER"),
		os.Getenv("POSTGRES_PASSWORD"),
		os.Getenv("PG_HOST"),
		os.Getenv("PG_PORT"),
		os.Getenv("PG_DATABASE"),
	)
	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse pgx config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	s := &Postgres{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Pool exposes the underlying pool for collaborators that run their own
// queries, like the historian.
func (s *Postgres) Pool() *pgxpool.Pool {
	return s.pool
}

// Close releases the pool.
func (s *Postgres) Close() {
	s.pool.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS games (
	game_id        text PRIMARY KEY,
	instance_count bigint NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS game_instances (
	game_id     text NOT NULL,
	instance_id text NOT NULL,
	players     jsonb NOT NULL,
	invited     jsonb NOT NULL,
	leader      text NOT NULL,
	public      boolean NOT NULL DEFAULT false,
	is_full     boolean NOT NULL DEFAULT false,
	max_players integer NOT NULL DEFAULT 0,
	created_at  timestamptz NOT NULL,
	ext         jsonb NOT NULL DEFAULT '{}'::jsonb,
	PRIMARY KEY (game_id, instance_id)
);

CREATE TABLE IF NOT EXISTS messages (
	id          uuid PRIMARY KEY,
	game_id     text NOT NULL,
	instance_id text NOT NULL,
	msg_type    text NOT NULL,
	recipient   text NOT NULL DEFAULT '',
	sender      text NOT NULL,
	content     jsonb,
	ext         jsonb NOT NULL DEFAULT '{}'::jsonb,
	created_at  timestamptz NOT NULL
);

CREATE INDEX IF NOT EXISTS messages_instance_created_idx
	ON messages (game_id, instance_id, created_at);
`

func (s *Postgres) ensureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// RunInTransaction implements Store.
func (s *Postgres) RunInTransaction(ctx context.Context, gid string, fn func(tx Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		// Anchor the entity group: create-if-absent and lock the game row
		// for the duration of the transaction.
		if _, err := tx.Exec(ctx,
			`INSERT INTO games (game_id, instance_count) VALUES ($1, 0)
			 ON CONFLICT (game_id) DO NOTHING`, gid); err != nil {
			return fmt.Errorf("anchor entity group %s: %w", gid, err)
		}
		if _, err := tx.Exec(ctx,
			`SELECT instance_count FROM games WHERE game_id = $1 FOR UPDATE`, gid); err != nil {
			return fmt.Errorf("lock entity group %s: %w", gid, err)
		}
		return fn(&pgTx{ctx: ctx, tx: tx})
	})
}

type pgTx struct {
	ctx context.Context
	tx  pgx.Tx
}

func (t *pgTx) GetGame(gid string) (*models.Game, error) {
	g := &models.Game{ID: gid}
	err := t.tx.QueryRow(t.ctx,
		`SELECT instance_count FROM games WHERE game_id = $1`, gid).
		Scan(&g.InstanceCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get game %s: %w", gid, err)
	}
	return g, nil
}

func (t *pgTx) PutGame(g *models.Game) error {
	_, err := t.tx.Exec(t.ctx,
		`INSERT INTO games (game_id, instance_count) VALUES ($1, $2)
		 ON CONFLICT (game_id) DO UPDATE SET instance_count = $2`,
		g.ID, g.InstanceCount)
	if err != nil {
		return fmt.Errorf("put game %s: %w", g.ID, err)
	}
	return nil
}

const instanceColumns = `game_id, instance_id, players, invited, leader,
	public, is_full, max_players, created_at, ext`

func scanInstance(row pgx.Row) (*models.GameInstance, error) {
	inst := &models.GameInstance{}
	var players, invited, ext []byte
	err := row.Scan(&inst.GameID, &inst.ID, &players, &invited, &inst.Leader,
		&inst.Public, &inst.Full, &inst.MaxPlayers, &inst.CreatedAt, &ext)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(players, &inst.Players); err != nil {
		return nil, fmt.Errorf("decode players: %w", err)
	}
	if err := json.Unmarshal(invited, &inst.Invited); err != nil {
		return nil, fmt.Errorf("decode invited: %w", err)
	}
	if err := json.Unmarshal(ext, &inst.Ext); err != nil {
		return nil, fmt.Errorf("decode ext: %w", err)
	}
	if inst.Ext == nil {
		inst.Ext = make(models.ExtFields)
	}
	return inst, nil
}

func (t *pgTx) GetInstance(gid, iid string) (*models.GameInstance, error) {
	row := t.tx.QueryRow(t.ctx,
		`SELECT `+instanceColumns+` FROM game_instances
		 WHERE game_id = $1 AND instance_id = $2`, gid, iid)
	inst, err := scanInstance(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get instance %s/%s: %w", gid, iid, err)
	}
	return inst, nil
}

func (t *pgTx) PutInstance(inst *models.GameInstance) error {
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = time.Now().UTC()
	}
	players, err := json.Marshal(inst.Players)
	if err != nil {
		return fmt.Errorf("encode players: %w", err)
	}
	invited, err := json.Marshal(inst.Invited)
	if err != nil {
		return fmt.Errorf("encode invited: %w", err)
	}
	ext, err := json.Marshal(inst.Ext)
	if err != nil {
		return fmt.Errorf("encode ext: %w", err)
	}
	_, err = t.tx.Exec(t.ctx,
		`INSERT INTO game_instances (`+instanceColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (game_id, instance_id) DO UPDATE SET
			players = $3, invited = $4, leader = $5, public = $6,
			is_full = $7, max_players = $8, ext = $10`,
		inst.GameID, inst.ID, players, invited, inst.Leader,
		inst.Public, inst.Full, inst.MaxPlayers, inst.CreatedAt, ext)
	if err != nil {
		return fmt.Errorf("put instance %s/%s: %w", inst.GameID, inst.ID, err)
	}
	return nil
}

func (t *pgTx) DeleteInstance(gid, iid string) error {
	_, err := t.tx.Exec(t.ctx,
		`DELETE FROM game_instances WHERE game_id = $1 AND instance_id = $2`, gid, iid)
	if err != nil {
		return fmt.Errorf("delete instance %s/%s: %w", gid, iid, err)
	}
	return nil
}

func (t *pgTx) PublicInstances(gid string) ([]*models.GameInstance, error) {
	rows, err := t.tx.Query(t.ctx,
		`SELECT `+instanceColumns+` FROM game_instances
		 WHERE game_id = $1 AND public AND NOT is_full
		 ORDER BY created_at DESC`, gid)
	if err != nil {
		return nil, fmt.Errorf("query public instances: %w", err)
	}
	defer rows.Close()
	var out []*models.GameInstance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func (t *pgTx) instanceIDs(query, gid, player string) ([]string, error) {
	rows, err := t.tx.Query(t.ctx, query, gid, player)
	if err != nil {
		return nil, fmt.Errorf("query instance ids: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (t *pgTx) InstancesJoinedBy(gid, player string) ([]string, error) {
	return t.instanceIDs(
		`SELECT instance_id FROM game_instances
		 WHERE game_id = $1 AND players ? $2
		 ORDER BY created_at DESC`, gid, player)
}

func (t *pgTx) InstancesInviting(gid, player string) ([]string, error) {
	return t.instanceIDs(
		`SELECT instance_id FROM game_instances
		 WHERE game_id = $1 AND invited ? $2 AND NOT is_full
		 ORDER BY created_at DESC`, gid, player)
}

func (t *pgTx) PutMessages(msgs ...*models.Message) error {
	for _, m := range msgs {
		if m.CreatedAt.IsZero() {
			m.CreatedAt = time.Now().UTC()
		}
		ext, err := json.Marshal(m.Ext)
		if err != nil {
			return fmt.Errorf("encode message ext: %w", err)
		}
		_, err = t.tx.Exec(t.ctx,
			`INSERT INTO messages
				(id, game_id, instance_id, msg_type, recipient, sender, content, ext, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 ON CONFLICT (id) DO UPDATE SET
				msg_type = $4, recipient = $5, content = $7, ext = $8`,
			m.ID.String(), m.GameID, m.InstanceID, m.MsgType, m.Recipient,
			m.Sender, []byte(m.Content), ext, m.CreatedAt)
		if err != nil {
			return fmt.Errorf("put message %s: %w", m.ID, err)
		}
	}
	return nil
}

const messageColumns = `id, game_id, instance_id, msg_type, recipient, sender,
	content, ext, created_at`

func scanMessage(row pgx.Row) (*models.Message, error) {
	m := &models.Message{}
	var id string
	var content, ext []byte
	err := row.Scan(&id, &m.GameID, &m.InstanceID, &m.MsgType, &m.Recipient,
		&m.Sender, &content, &ext, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	m.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("decode message id: %w", err)
	}
	m.Content = content
	if err := json.Unmarshal(ext, &m.Ext); err != nil {
		return nil, fmt.Errorf("decode message ext: %w", err)
	}
	if m.Ext == nil {
		m.Ext = make(models.ExtFields)
	}
	return m, nil
}

func (t *pgTx) GetMessage(gid, iid string, id uuid.UUID) (*models.Message, error) {
	row := t.tx.QueryRow(t.ctx,
		`SELECT `+messageColumns+` FROM messages
		 WHERE game_id = $1 AND instance_id = $2 AND id = $3`,
		gid, iid, id.String())
	m, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", id, err)
	}
	return m, nil
}

func (t *pgTx) DeleteMessage(gid, iid string, id uuid.UUID) error {
	_, err := t.tx.Exec(t.ctx,
		`DELETE FROM messages WHERE game_id = $1 AND instance_id = $2 AND id = $3`,
		gid, iid, id.String())
	if err != nil {
		return fmt.Errorf("delete message %s: %w", id, err)
	}
	return nil
}

func (t *pgTx) Messages(q MessageQuery) ([]*models.Message, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultFetchLimit
	}
	sql := `SELECT ` + messageColumns + ` FROM messages
		WHERE game_id = $1 AND instance_id = $2`
	args := []interface{}{q.GameID, q.InstanceID}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if q.MsgType != "" {
		sql += ` AND msg_type = ` + arg(q.MsgType)
	}
	if q.Sender != "" {
		sql += ` AND sender = ` + arg(q.Sender)
	}
	if q.Recipient != nil {
		r := *q.Recipient
		if q.RecipientExact || r == "" {
			sql += ` AND recipient = ` + arg(r)
		} else {
			sql += ` AND recipient IN (` + arg(r) + `, '')`
		}
	}
	if !q.After.IsZero() {
		sql += ` AND created_at > ` + arg(q.After)
	}
	sql += ` ORDER BY created_at DESC LIMIT ` + arg(limit)

	rows, err := t.tx.Query(t.ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()
	var out []*models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (t *pgTx) DeleteMessages(gid, iid, msgType string, limit int) (int, error) {
	if limit <= 0 {
		limit = DefaultFetchLimit
	}
	sql := `DELETE FROM messages WHERE id IN (
		SELECT id FROM messages
		WHERE game_id = $1 AND instance_id = $2`
	args := []interface{}{gid, iid}
	if msgType != "" {
		args = append(args, msgType)
		sql += fmt.Sprintf(" AND msg_type = $%d", len(args))
	}
	args = append(args, limit)
	sql += fmt.Sprintf(" ORDER BY created_at LIMIT $%d)", len(args))

	tag, err := t.tx.Exec(t.ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("delete messages: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
