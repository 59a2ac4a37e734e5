package store

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a keyed lookup has no row.
var ErrNotFound = errors.New("store: not found")

// ErrFrozenExists is returned when inserting a freeze record for an asset
// that already has a live one. The insert is a compare-and-set on the asset
// id: exactly one concurrent caller can win.
var ErrFrozenExists = errors.New("store: asset already frozen")

// DB is the persistence boundary for games, users, freezes, reward tiers
// and the mint catalogue. The ApplyX methods commit a whole operation's
// writes in one transaction so a failure never leaves partial state behind.
type DB interface {
	Close() error
	Migrate() error

	GetGame(owner string) (*Game, error)
	GetUser(owner string) (*User, error)

	GetFreeze(assetID uint64) (*FrozenAsset, error)
	InsertFreeze(f *FrozenAsset) error
	DeleteFreeze(assetID uint64) error
	FreezesByOwner(owner string) ([]FrozenAsset, error)

	GetRewardTier(completions uint64) (*RewardTier, error)
	MaxRewardTier() (uint64, error)
	PutRewardTier(t *RewardTier) error

	GetAsset(assetID uint64) (*Asset, error)
	PutAssets(assets []Asset) error
	MintPool() ([]uint16, error)

	Maintenance() (bool, error)
	SetMaintenance(on bool) error

	ApplyNewGame(game *Game, user *User) error
	ApplyVerify(game *Game, release []uint64, freezes []FrozenAsset) error
	ApplyComplete(owner string, user *User) error
}

// Game is one running session. ToCollect is fixed at creation; Collected
// only ever grows until the game is completed or regenerated.
type Game struct {
	Owner     string    `json:"owner" db:"owner"`
	ToCollect []uint16  `json:"to_collect" db:"to_collect"`
	Collected []uint16  `json:"collected" db:"collected"`
	Time      time.Time `json:"time" db:"time"`
}

// User carries per-player progress across games.
type User struct {
	Owner         string `json:"owner" db:"owner"`
	CompletedSets uint64 `json:"completed_sets" db:"completed_sets"`
}

// FrozenAsset is an exclusivity hold on one asset. At most one live record
// exists per asset id.
type FrozenAsset struct {
	AssetID uint64    `json:"asset_id" db:"asset_id"`
	Owner   string    `json:"owner" db:"owner"`
	Time    time.Time `json:"time" db:"time"`
}

// RewardTier maps a completed-set count to a token payout.
type RewardTier struct {
	Completions uint64          `json:"completions" db:"completions"`
	Contract    string          `json:"contract" db:"contract"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	Symbol      string          `json:"symbol" db:"symbol"`
}

// Asset is one entry of the mint catalogue: who owns it and which mint
// number it carries.
type Asset struct {
	AssetID    uint64 `json:"asset_id" db:"asset_id"`
	Owner      string `json:"owner" db:"owner"`
	TemplateID uint64 `json:"template_id" db:"template_id"`
	Mint       uint16 `json:"mint" db:"mint"`
}
