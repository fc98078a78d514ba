package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"tacticsrpg/pkg/integration"
)

// PostgresStore is the production Store backend: a pgx connection pool
// backing the schema applied by the embedded goose migrations. Used when
// config.StoreDriver is "postgres".
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn, runs pending migrations, and returns a
// ready-to-use Store.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	logrus.WithField("component", "PostgresStore").Info("connected and migrated")
	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}

func (p *PostgresStore) CreateUser(ctx context.Context, u User) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO users (id, display_name, created_at) VALUES ($1, $2, $3)`,
		u.ID, u.DisplayName, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("create user %q: %w", u.ID, err)
	}
	return nil
}

func (p *PostgresStore) GetUser(ctx context.Context, id string) (User, error) {
	var u User
	err := p.pool.QueryRow(ctx,
		`SELECT id, display_name, created_at FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.DisplayName, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user %q: %w", id, err)
	}
	return u, nil
}

func (p *PostgresStore) CreateCharacter(ctx context.Context, c Character) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO characters (id, owner_user_id, class_tag, appearance, hp, max_hp,
			attack, defense, initiative, move_range, attack_range, xp, level, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		c.ID, c.OwnerUserID, c.ClassTag, c.Appearance,
		c.BaseStats.HP, c.BaseStats.MaxHP, c.BaseStats.Attack, c.BaseStats.Defense,
		c.BaseStats.Initiative, c.BaseStats.MoveRange, c.BaseStats.AttackRange,
		c.XP, c.Level, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create character %q: %w", c.ID, err)
	}
	return nil
}

func (p *PostgresStore) GetCharacter(ctx context.Context, id string) (Character, error) {
	var c Character
	err := p.pool.QueryRow(ctx, `
		SELECT id, owner_user_id, class_tag, appearance, hp, max_hp, attack, defense,
			initiative, move_range, attack_range, xp, level, created_at, updated_at
		FROM characters WHERE id = $1`, id,
	).Scan(&c.ID, &c.OwnerUserID, &c.ClassTag, &c.Appearance,
		&c.BaseStats.HP, &c.BaseStats.MaxHP, &c.BaseStats.Attack, &c.BaseStats.Defense,
		&c.BaseStats.Initiative, &c.BaseStats.MoveRange, &c.BaseStats.AttackRange,
		&c.XP, &c.Level, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Character{}, ErrNotFound
	}
	if err != nil {
		return Character{}, fmt.Errorf("get character %q: %w", id, err)
	}
	return c, nil
}

func (p *PostgresStore) UpdateCharacter(ctx context.Context, c Character) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE characters SET class_tag=$2, appearance=$3, hp=$4, max_hp=$5, attack=$6,
			defense=$7, initiative=$8, move_range=$9, attack_range=$10, xp=$11, level=$12, updated_at=$13
		WHERE id=$1`,
		c.ID, c.ClassTag, c.Appearance, c.BaseStats.HP, c.BaseStats.MaxHP, c.BaseStats.Attack,
		c.BaseStats.Defense, c.BaseStats.Initiative, c.BaseStats.MoveRange, c.BaseStats.AttackRange,
		c.XP, c.Level, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update character %q: %w", c.ID, err)
	}
	return nil
}

func (p *PostgresStore) CreateSession(ctx context.Context, s Session) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO sessions (id, invite_code, host_user_id, max_players, turn_deadline_seconds,
			difficulty, phase, state_version, created_at, ended_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		s.ID, s.InviteCode, s.HostUserID, s.Config.MaxPlayers, s.Config.TurnDeadlineSecond,
		s.Config.Difficulty, s.Phase, s.StateVersion, s.CreatedAt, s.EndedAt)
	if err != nil {
		return fmt.Errorf("create session %q: %w", s.ID, err)
	}
	return nil
}

func (p *PostgresStore) scanSession(row pgx.Row) (Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.InviteCode, &s.HostUserID, &s.Config.MaxPlayers,
		&s.Config.TurnDeadlineSecond, &s.Config.Difficulty, &s.Phase, &s.StateVersion,
		&s.CreatedAt, &s.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("scan session: %w", err)
	}
	return s, nil
}

const sessionColumns = `id, invite_code, host_user_id, max_players, turn_deadline_seconds,
	difficulty, phase, state_version, created_at, ended_at`

func (p *PostgresStore) GetSession(ctx context.Context, id string) (Session, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	return p.scanSession(row)
}

func (p *PostgresStore) GetSessionByInviteCode(ctx context.Context, code string) (Session, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE invite_code = $1 AND phase <> 'ended'`, code)
	return p.scanSession(row)
}

func (p *PostgresStore) UpdateSession(ctx context.Context, s Session) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE sessions SET invite_code=$2, max_players=$3, turn_deadline_seconds=$4,
			difficulty=$5, phase=$6, state_version=$7, ended_at=$8
		WHERE id=$1`,
		s.ID, s.InviteCode, s.Config.MaxPlayers, s.Config.TurnDeadlineSecond,
		s.Config.Difficulty, s.Phase, s.StateVersion, s.EndedAt)
	if err != nil {
		return fmt.Errorf("update session %q: %w", s.ID, err)
	}
	return nil
}

func (p *PostgresStore) ListActiveSessions(ctx context.Context) ([]Session, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE phase <> 'ended'`)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		s, err := p.scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (p *PostgresStore) UpsertParticipant(ctx context.Context, part Participant) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO participants (session_id, user_id, role, character_id, ready, connected, joined_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (session_id, user_id) DO UPDATE SET
			role=$3, character_id=$4, ready=$5, connected=$6`,
		part.SessionID, part.UserID, part.Role, part.CharacterID, part.Ready, part.Connected, part.JoinedAt)
	if err != nil {
		return fmt.Errorf("upsert participant %q/%q: %w", part.SessionID, part.UserID, err)
	}
	return nil
}

func (p *PostgresStore) RemoveParticipant(ctx context.Context, sessionID, userID string) error {
	_, err := p.pool.Exec(ctx,
		`DELETE FROM participants WHERE session_id = $1 AND user_id = $2`, sessionID, userID)
	if err != nil {
		return fmt.Errorf("remove participant %q/%q: %w", sessionID, userID, err)
	}
	return nil
}

func (p *PostgresStore) ListParticipants(ctx context.Context, sessionID string) ([]Participant, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT session_id, user_id, role, character_id, ready, connected, joined_at
		FROM participants WHERE session_id = $1`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list participants for %q: %w", sessionID, err)
	}
	defer rows.Close()

	var participants []Participant
	for rows.Next() {
		var part Participant
		if err := rows.Scan(&part.SessionID, &part.UserID, &part.Role, &part.CharacterID,
			&part.Ready, &part.Connected, &part.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		participants = append(participants, part)
	}
	return participants, rows.Err()
}

// PutSnapshot writes a snapshot row guarded by retry + circuit breaker, the
// same resilience policy FileStore applies, since both backends share the
// same "three consecutive failures force-pause" contract with callers.
func (p *PostgresStore) PutSnapshot(ctx context.Context, snap Snapshot) error {
	return integration.ExecuteStoreOperation(ctx, func(ctx context.Context) error {
		_, err := p.pool.Exec(ctx, `
			INSERT INTO snapshots (session_id, state_version, state, created_at)
			VALUES ($1,$2,$3,$4)
			ON CONFLICT (session_id, state_version) DO UPDATE SET state=$3, created_at=$4`,
			snap.SessionID, snap.StateVersion, snap.State, snap.Timestamp)
		if err != nil {
			return fmt.Errorf("put snapshot %q@%d: %w", snap.SessionID, snap.StateVersion, err)
		}
		return nil
	})
}

func (p *PostgresStore) GetLatestSnapshot(ctx context.Context, sessionID string) (Snapshot, error) {
	var snap Snapshot
	err := p.pool.QueryRow(ctx, `
		SELECT session_id, state_version, state, created_at FROM snapshots
		WHERE session_id = $1 ORDER BY state_version DESC LIMIT 1`, sessionID,
	).Scan(&snap.SessionID, &snap.StateVersion, &snap.State, &snap.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("get latest snapshot for %q: %w", sessionID, err)
	}
	return snap, nil
}
