package persist

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"
)

type BotAccountRow struct {
	ID           int32
	Name         string
	PasswordHash string
	BotCount     int16
	MaxBots      int16
	Online       bool
	CreatedAt    time.Time
	LastActive   *time.Time
}

type AccountRepo struct {
	db *DB
}

func NewAccountRepo(db *DB) *AccountRepo {
	return &AccountRepo{db: db}
}

func (r *AccountRepo) Load(ctx context.Context, name string) (*BotAccountRow, error) {
	row := &BotAccountRow{}
	err := r.db.Pool.QueryRow(ctx,
		`SELECT id, name, password_hash, bot_count, max_bots, online, created_at, last_active
		 FROM bot_accounts WHERE name = $1`, name,
	).Scan(
		&row.ID, &row.Name, &row.PasswordHash, &row.BotCount, &row.MaxBots,
		&row.Online, &row.CreatedAt, &row.LastActive,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row, nil
}

func (r *AccountRepo) Create(ctx context.Context, name, rawPassword string, maxBots int16) (*BotAccountRow, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(rawPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	row := &BotAccountRow{
		Name:         name,
		PasswordHash: string(hash),
		MaxBots:      maxBots,
		CreatedAt:    time.Now(),
	}
	err = r.db.Pool.QueryRow(ctx,
		`INSERT INTO bot_accounts (name, password_hash, max_bots)
		 VALUES ($1, $2, $3) RETURNING id`,
		row.Name, row.PasswordHash, row.MaxBots,
	).Scan(&row.ID)
	if err != nil {
		return nil, err
	}
	return row, nil
}

func (r *AccountRepo) ValidatePassword(hash string, rawPassword string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(rawPassword)) == nil
}

func (r *AccountRepo) SetOnline(ctx context.Context, id int32, online bool) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE bot_accounts SET online = $2, last_active = NOW() WHERE id = $1`,
		id, online,
	)
	return err
}

// AdjustBotCount moves the account's live-bot counter by delta, clamped at
// zero. A failing bot load decrements through here.
func (r *AccountRepo) AdjustBotCount(ctx context.Context, id int32, delta int) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE bot_accounts SET bot_count = GREATEST(bot_count + $2, 0) WHERE id = $1`,
		id, delta,
	)
	return err
}
