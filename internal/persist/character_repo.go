package persist

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

type BotCharacterRow struct {
	ID        int64
	AccountID int32
	Name      string
	ClassID   int32
	Level     int16
	Exp       int64
	HP        int32
	MaxHP     int32
	X         float64
	Y         float64
	Z         float64
	MapID     int32
	Heading   float64
	Alive     bool
	DeletedAt *time.Time
}

type CharacterRepo struct {
	db *DB
}

func NewCharacterRepo(db *DB) *CharacterRepo {
	return &CharacterRepo{db: db}
}

const characterColumns = `id, account_id, name, class_id, level, exp, hp, max_hp,
	        x, y, z, map_id, heading, alive, deleted_at`

func scanCharacter(row pgx.Row) (*BotCharacterRow, error) {
	c := &BotCharacterRow{}
	err := row.Scan(
		&c.ID, &c.AccountID, &c.Name, &c.ClassID, &c.Level, &c.Exp, &c.HP, &c.MaxHP,
		&c.X, &c.Y, &c.Z, &c.MapID, &c.Heading, &c.Alive, &c.DeletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *CharacterRepo) LoadByID(ctx context.Context, id int64) (*BotCharacterRow, error) {
	return scanCharacter(r.db.Pool.QueryRow(ctx,
		`SELECT `+characterColumns+`
		 FROM bot_characters WHERE id = $1 AND deleted_at IS NULL`, id,
	))
}

func (r *CharacterRepo) LoadByAccount(ctx context.Context, accountID int32) ([]BotCharacterRow, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+characterColumns+`
		 FROM bot_characters
		 WHERE account_id = $1 AND deleted_at IS NULL
		 ORDER BY id`, accountID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []BotCharacterRow
	for rows.Next() {
		var c BotCharacterRow
		if err := rows.Scan(
			&c.ID, &c.AccountID, &c.Name, &c.ClassID, &c.Level, &c.Exp, &c.HP, &c.MaxHP,
			&c.X, &c.Y, &c.Z, &c.MapID, &c.Heading, &c.Alive, &c.DeletedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (r *CharacterRepo) Create(ctx context.Context, c *BotCharacterRow) error {
	return r.db.Pool.QueryRow(ctx,
		`INSERT INTO bot_characters (
			account_id, name, class_id, level, exp, hp, max_hp,
			x, y, z, map_id, heading, alive
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING id`,
		c.AccountID, c.Name, c.ClassID, c.Level, c.Exp, c.HP, c.MaxHP,
		c.X, c.Y, c.Z, c.MapID, c.Heading, c.Alive,
	).Scan(&c.ID)
}

// Save flushes the mutable state a bot changes while playing.
func (r *CharacterRepo) Save(ctx context.Context, c *BotCharacterRow) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE bot_characters
		 SET level = $2, exp = $3, hp = $4, max_hp = $5,
		     x = $6, y = $7, z = $8, map_id = $9, heading = $10, alive = $11
		 WHERE id = $1`,
		c.ID, c.Level, c.Exp, c.HP, c.MaxHP,
		c.X, c.Y, c.Z, c.MapID, c.Heading, c.Alive,
	)
	return err
}

func (r *CharacterRepo) SoftDelete(ctx context.Context, id int64) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE bot_characters SET deleted_at = NOW() WHERE id = $1`, id,
	)
	return err
}
