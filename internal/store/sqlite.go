package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// SQLiteDB implements the DB interface using SQLite.
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB opens (or creates) the database at path.
func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return &SQLiteDB{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations.
func (s *SQLiteDB) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS games (
			owner TEXT PRIMARY KEY,
			to_collect TEXT NOT NULL,
			collected TEXT NOT NULL,
			time INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			owner TEXT PRIMARY KEY,
			completed_sets INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS frozen_assets (
			asset_id INTEGER PRIMARY KEY,
			owner TEXT NOT NULL,
			time INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_frozen_assets_owner ON frozen_assets(owner, asset_id)`,
		`CREATE TABLE IF NOT EXISTS reward_tiers (
			completions INTEGER PRIMARY KEY,
			contract TEXT NOT NULL,
			amount TEXT NOT NULL,
			symbol TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS assets (
			asset_id INTEGER PRIMARY KEY,
			owner TEXT NOT NULL,
			template_id INTEGER NOT NULL,
			mint INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_assets_owner ON assets(owner)`,
		`CREATE INDEX IF NOT EXISTS idx_assets_mint ON assets(mint)`,
		`CREATE TABLE IF NOT EXISTS settings (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			maintenance INTEGER NOT NULL DEFAULT 0
		)`,
		`INSERT OR IGNORE INTO settings (id, maintenance) VALUES (1, 0)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// GetGame returns the running game for owner, or ErrNotFound.
func (s *SQLiteDB) GetGame(owner string) (*Game, error) {
	row := s.db.QueryRow(
		`SELECT owner, to_collect, collected, time FROM games WHERE owner = ?`, owner)

	var game Game
	var toCollect, collected string
	var unixMicro int64
	if err := row.Scan(&game.Owner, &toCollect, &collected, &unixMicro); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get game: %w", err)
	}

	if err := json.Unmarshal([]byte(toCollect), &game.ToCollect); err != nil {
		return nil, fmt.Errorf("failed to decode to_collect: %w", err)
	}
	if err := json.Unmarshal([]byte(collected), &game.Collected); err != nil {
		return nil, fmt.Errorf("failed to decode collected: %w", err)
	}
	game.Time = time.UnixMicro(unixMicro).UTC()

	return &game, nil
}

// GetUser returns the progress record for owner, or ErrNotFound.
func (s *SQLiteDB) GetUser(owner string) (*User, error) {
	row := s.db.QueryRow(
		`SELECT owner, completed_sets FROM users WHERE owner = ?`, owner)

	var user User
	if err := row.Scan(&user.Owner, &user.CompletedSets); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// GetFreeze returns the freeze record for an asset, or ErrNotFound.
func (s *SQLiteDB) GetFreeze(assetID uint64) (*FrozenAsset, error) {
	row := s.db.QueryRow(
		`SELECT asset_id, owner, time FROM frozen_assets WHERE asset_id = ?`, assetID)
	return scanFreeze(row)
}

// InsertFreeze creates a freeze record. ErrFrozenExists if one is present.
func (s *SQLiteDB) InsertFreeze(f *FrozenAsset) error {
	_, err := s.db.Exec(
		`INSERT INTO frozen_assets (asset_id, owner, time) VALUES (?, ?, ?)`,
		f.AssetID, f.Owner, f.Time.UnixMicro())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrFrozenExists
		}
		return fmt.Errorf("failed to insert freeze: %w", err)
	}
	return nil
}

// DeleteFreeze removes the freeze record for an asset, if any.
func (s *SQLiteDB) DeleteFreeze(assetID uint64) error {
	if _, err := s.db.Exec(`DELETE FROM frozen_assets WHERE asset_id = ?`, assetID); err != nil {
		return fmt.Errorf("failed to delete freeze: %w", err)
	}
	return nil
}

// FreezesByOwner returns all freeze records held by owner, ordered by
// asset id. Backed by the owner index so the scan stays cheap.
func (s *SQLiteDB) FreezesByOwner(owner string) ([]FrozenAsset, error) {
	rows, err := s.db.Query(
		`SELECT asset_id, owner, time FROM frozen_assets WHERE owner = ? ORDER BY asset_id`, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list freezes: %w", err)
	}
	defer rows.Close()

	var freezes []FrozenAsset
	for rows.Next() {
		var f FrozenAsset
		var unixMicro int64
		if err := rows.Scan(&f.AssetID, &f.Owner, &unixMicro); err != nil {
			return nil, fmt.Errorf("failed to scan freeze: %w", err)
		}
		f.Time = time.UnixMicro(unixMicro).UTC()
		freezes = append(freezes, f)
	}

	return freezes, rows.Err()
}

// GetRewardTier returns the tier keyed by completions, or ErrNotFound.
func (s *SQLiteDB) GetRewardTier(completions uint64) (*RewardTier, error) {
	row := s.db.QueryRow(
		`SELECT completions, contract, amount, symbol FROM reward_tiers WHERE completions = ?`,
		completions)

	var tier RewardTier
	var amount string
	if err := row.Scan(&tier.Completions, &tier.Contract, &amount, &tier.Symbol); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get reward tier: %w", err)
	}

	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("failed to parse reward amount %q: %w", amount, err)
	}
	tier.Amount = parsed

	return &tier, nil
}

// MaxRewardTier returns the highest defined tier key, or ErrNotFound when
// the table is empty.
func (s *SQLiteDB) MaxRewardTier() (uint64, error) {
	row := s.db.QueryRow(`SELECT MAX(completions) FROM reward_tiers`)

	var max sql.NullInt64
	if err := row.Scan(&max); err != nil {
		return 0, fmt.Errorf("failed to get max reward tier: %w", err)
	}
	if !max.Valid {
		return 0, ErrNotFound
	}

	return uint64(max.Int64), nil
}

// PutRewardTier creates or replaces a reward tier.
func (s *SQLiteDB) PutRewardTier(t *RewardTier) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO reward_tiers (completions, contract, amount, symbol) VALUES (?, ?, ?, ?)`,
		t.Completions, t.Contract, t.Amount.String(), t.Symbol)
	if err != nil {
		return fmt.Errorf("failed to put reward tier: %w", err)
	}
	return nil
}

// GetAsset returns one catalogue entry, or ErrNotFound.
func (s *SQLiteDB) GetAsset(assetID uint64) (*Asset, error) {
	row := s.db.QueryRow(
		`SELECT asset_id, owner, template_id, mint FROM assets WHERE asset_id = ?`, assetID)

	var asset Asset
	if err := row.Scan(&asset.AssetID, &asset.Owner, &asset.TemplateID, &asset.Mint); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}

	return &asset, nil
}

// PutAssets upserts a batch of catalogue entries in one transaction.
func (s *SQLiteDB) PutAssets(assets []Asset) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT OR REPLACE INTO assets (asset_id, owner, template_id, mint) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare asset insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range assets {
		if _, err := stmt.Exec(a.AssetID, a.Owner, a.TemplateID, a.Mint); err != nil {
			return fmt.Errorf("failed to insert asset %d: %w", a.AssetID, err)
		}
	}

	return tx.Commit()
}

// MintPool returns every distinct mint number in the catalogue, ascending.
func (s *SQLiteDB) MintPool() ([]uint16, error) {
	rows, err := s.db.Query(`SELECT DISTINCT mint FROM assets ORDER BY mint`)
	if err != nil {
		return nil, fmt.Errorf("failed to query mint pool: %w", err)
	}
	defer rows.Close()

	var pool []uint16
	for rows.Next() {
		var mint uint16
		if err := rows.Scan(&mint); err != nil {
			return nil, fmt.Errorf("failed to scan mint: %w", err)
		}
		pool = append(pool, mint)
	}

	return pool, rows.Err()
}

// Maintenance reports whether the maintenance flag is set.
func (s *SQLiteDB) Maintenance() (bool, error) {
	row := s.db.QueryRow(`SELECT maintenance FROM settings WHERE id = 1`)

	var on bool
	if err := row.Scan(&on); err != nil {
		return false, fmt.Errorf("failed to read maintenance flag: %w", err)
	}
	return on, nil
}

// SetMaintenance toggles the maintenance flag.
func (s *SQLiteDB) SetMaintenance(on bool) error {
	if _, err := s.db.Exec(`UPDATE settings SET maintenance = ? WHERE id = 1`, on); err != nil {
		return fmt.Errorf("failed to set maintenance flag: %w", err)
	}
	return nil
}

// ApplyNewGame replaces any existing game for the owner and upserts the
// user record in one transaction.
func (s *SQLiteDB) ApplyNewGame(game *Game, user *User) error {
	toCollect, collected, err := encodeSets(game)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO users (owner, completed_sets) VALUES (?, ?)`,
		user.Owner, user.CompletedSets); err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM games WHERE owner = ?`, game.Owner); err != nil {
		return fmt.Errorf("failed to discard old game: %w", err)
	}

	if _, err := tx.Exec(
		`INSERT INTO games (owner, to_collect, collected, time) VALUES (?, ?, ?, ?)`,
		game.Owner, toCollect, collected, game.Time.UnixMicro()); err != nil {
		return fmt.Errorf("failed to insert game: %w", err)
	}

	return tx.Commit()
}

// ApplyVerify persists the result of one verify pass: the grown collected
// set, the expired freezes being released, and the new freezes. All or
// nothing; a freeze collision rolls the whole pass back.
func (s *SQLiteDB) ApplyVerify(game *Game, release []uint64, freezes []FrozenAsset) error {
	_, collected, err := encodeSets(game)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, assetID := range release {
		if _, err := tx.Exec(`DELETE FROM frozen_assets WHERE asset_id = ?`, assetID); err != nil {
			return fmt.Errorf("failed to release freeze %d: %w", assetID, err)
		}
	}

	for _, f := range freezes {
		if _, err := tx.Exec(
			`INSERT INTO frozen_assets (asset_id, owner, time) VALUES (?, ?, ?)`,
			f.AssetID, f.Owner, f.Time.UnixMicro()); err != nil {
			if isUniqueViolation(err) {
				return ErrFrozenExists
			}
			return fmt.Errorf("failed to insert freeze %d: %w", f.AssetID, err)
		}
	}

	res, err := tx.Exec(`UPDATE games SET collected = ? WHERE owner = ?`, collected, game.Owner)
	if err != nil {
		return fmt.Errorf("failed to update collected: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

// ApplyComplete updates the user's progress and removes the finished game
// in one transaction.
func (s *SQLiteDB) ApplyComplete(owner string, user *User) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`UPDATE users SET completed_sets = ? WHERE owner = ?`,
		user.CompletedSets, user.Owner); err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM games WHERE owner = ?`, owner); err != nil {
		return fmt.Errorf("failed to delete game: %w", err)
	}

	return tx.Commit()
}

func scanFreeze(row *sql.Row) (*FrozenAsset, error) {
	var f FrozenAsset
	var unixMicro int64
	if err := row.Scan(&f.AssetID, &f.Owner, &unixMicro); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan freeze: %w", err)
	}
	f.Time = time.UnixMicro(unixMicro).UTC()
	return &f, nil
}

func encodeSets(game *Game) (string, string, error) {
	toCollect, err := json.Marshal(sliceOrEmpty(game.ToCollect))
	if err != nil {
		return "", "", fmt.Errorf("failed to encode to_collect: %w", err)
	}
	collected, err := json.Marshal(sliceOrEmpty(game.Collected))
	if err != nil {
		return "", "", fmt.Errorf("failed to encode collected: %w", err)
	}
	return string(toCollect), string(collected), nil
}

func sliceOrEmpty(s []uint16) []uint16 {
	if s == nil {
		return []uint16{}
	}
	return s
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "constraint failed: frozen_assets.asset_id")
}
