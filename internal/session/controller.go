// Package session orchestrates the game lifecycle: starting games,
// verifying submitted assets against the outstanding targets, completing
// finished sets and releasing freeze locks.
package session

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/crptomonkeys/monKey-matching/internal/engine"
	"github.com/crptomonkeys/monKey-matching/internal/eventlog"
	"github.com/crptomonkeys/monKey-matching/internal/freeze"
	"github.com/crptomonkeys/monKey-matching/internal/ledger"
	"github.com/crptomonkeys/monKey-matching/internal/match"
	"github.com/crptomonkeys/monKey-matching/internal/metrics"
	"github.com/crptomonkeys/monKey-matching/internal/store"
)

// Authorizer proves that the caller is the named owner.
type Authorizer interface {
	Authorize(ctx context.Context, owner string) error
}

// Params is the immutable per-operation game configuration.
type Params struct {
	Salt                 string
	RegenerationCooldown time.Duration
	NewGameBase          uint64
	MintOffset           uint16
	MaxMint              uint64
	RewardReset          uint64
	RewardCap            uint64
	RewardMemo           string
	RewardAccount        string
}

// CompletionResult reports the outcome of a completed game.
type CompletionResult struct {
	CompletedSets uint64            `json:"completed_sets"`
	Reward        *store.RewardTier `json:"reward,omitempty"`
}

// Controller runs every game entry point as one atomic unit of work. The
// clock is read once per operation so no value straddles a cooldown or
// expiry boundary mid-computation.
type Controller struct {
	db      store.DB
	locks   *freeze.Manager
	tokens  ledger.Ledger
	events  *eventlog.Logger
	metrics *metrics.Collection
	auth    Authorizer
	params  Params
	now     func() time.Time
	log     *logrus.Entry
}

// NewController wires a controller. now may be nil, defaulting to UTC
// wall-clock time.
func NewController(
	db store.DB,
	locks *freeze.Manager,
	tokens ledger.Ledger,
	events *eventlog.Logger,
	mc *metrics.Collection,
	auth Authorizer,
	params Params,
	now func() time.Time,
) *Controller {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Controller{
		db:      db,
		locks:   locks,
		tokens:  tokens,
		events:  events,
		metrics: mc,
		auth:    auth,
		params:  params,
		now:     now,
		log:     logrus.WithField("component", "session"),
	}
}

// NewGame starts a fresh game for owner, replacing a previous one only
// after the regeneration cooldown has elapsed. The target set is derived
// from the shared salt, the owner, their completed-set count and the
// creation time, so it is reproducible given the logged time.
func (c *Controller) NewGame(ctx context.Context, owner string) (*store.Game, error) {
	if err := c.gate(ctx, owner, "newgame"); err != nil {
		return nil, err
	}
	now := c.now()

	existing, err := c.db.GetGame(owner)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, c.fail("newgame", err)
	}
	if existing != nil && now.Before(existing.Time.Add(c.params.RegenerationCooldown)) {
		return nil, c.fail("newgame", ErrCooldownActive)
	}

	user, err := c.db.GetUser(owner)
	if errors.Is(err, store.ErrNotFound) {
		user = &store.User{Owner: owner}
	} else if err != nil {
		return nil, c.fail("newgame", err)
	} else if user.CompletedSets >= c.params.RewardReset {
		user.CompletedSets = 0
	}

	pool, err := c.db.MintPool()
	if err != nil {
		return nil, c.fail("newgame", err)
	}

	seed := engine.DeriveSeed(c.params.Salt, owner, user.CompletedSets, now)
	count := targetCount(c.params.NewGameBase, user.CompletedSets)
	targets := engine.SpreadSet(engine.NewByteGenerator(seed), pool, count, c.params.MintOffset)

	game := &store.Game{
		Owner:     owner,
		ToCollect: targets,
		Collected: []uint16{},
		Time:      now,
	}

	if err := c.db.ApplyNewGame(game, user); err != nil {
		return nil, c.fail("newgame", err)
	}

	c.events.Emit(eventlog.TagNewGame, owner, targets)
	c.metrics.GamesStarted.Inc()
	c.log.WithFields(logrus.Fields{
		"owner":   owner,
		"targets": len(targets),
	}).Info("game started")

	return game, nil
}

// Verify assigns the submitted assets to the game's outstanding targets.
// Every asset must be owned by the caller and resolvable to a mint
// number; any freeze on a presented asset must be expired (it is released
// as part of the pass) or the whole operation fails.
func (c *Controller) Verify(ctx context.Context, owner string, assetIDs []uint64) (*store.Game, error) {
	if err := c.gate(ctx, owner, "verify"); err != nil {
		return nil, err
	}
	now := c.now()

	game, err := c.db.GetGame(owner)
	if errors.Is(err, store.ErrNotFound) {
		return nil, c.fail("verify", ErrNoActiveGame)
	} else if err != nil {
		return nil, c.fail("verify", err)
	}

	if _, err := c.db.GetUser(owner); errors.Is(err, store.ErrNotFound) {
		return nil, c.fail("verify", ErrUnknownUser)
	} else if err != nil {
		return nil, c.fail("verify", err)
	}

	candidates, err := c.resolveOwned(owner, assetIDs)
	if err != nil {
		return nil, c.fail("verify", err)
	}

	release, err := c.locks.Precheck(assetIDs, now)
	if err != nil {
		return nil, c.fail("verify", err)
	}

	remainder := match.Remainder(game.ToCollect, game.Collected)
	matches := match.Assign(remainder, candidates, c.params.MintOffset, c.params.MaxMint)

	freezes := make([]store.FrozenAsset, 0, len(matches))
	for _, m := range matches {
		game.Collected = append(game.Collected, m.Target)
		freezes = append(freezes, store.FrozenAsset{AssetID: m.AssetID, Owner: owner, Time: now})
	}

	if err := c.db.ApplyVerify(game, release, freezes); err != nil {
		if errors.Is(err, store.ErrFrozenExists) {
			// Lost the race for an asset to another caller mid-pass.
			return nil, c.fail("verify", ErrOwnership)
		}
		return nil, c.fail("verify", err)
	}

	c.metrics.MintsMatched.Add(float64(len(matches)))
	c.metrics.AssetsFrozen.Add(float64(len(freezes)))
	c.metrics.AssetsReleased.Add(float64(len(release)))
	c.log.WithFields(logrus.Fields{
		"owner":     owner,
		"submitted": len(assetIDs),
		"matched":   len(matches),
	}).Info("assets verified")

	return game, nil
}

// Complete finishes the game if enough targets were collected, advances
// the owner's progress and resolves the reward tier. Token movement is
// dispatched fire-and-forget after the state commit.
func (c *Controller) Complete(ctx context.Context, owner string) (*CompletionResult, error) {
	if err := c.gate(ctx, owner, "complete"); err != nil {
		return nil, err
	}

	game, err := c.db.GetGame(owner)
	if errors.Is(err, store.ErrNotFound) {
		return nil, c.fail("complete", ErrNoActiveGame)
	} else if err != nil {
		return nil, c.fail("complete", err)
	}

	user, err := c.db.GetUser(owner)
	if errors.Is(err, store.ErrNotFound) {
		return nil, c.fail("complete", ErrUnknownUser)
	} else if err != nil {
		return nil, c.fail("complete", err)
	}

	required := requiredCount(len(game.ToCollect))
	if len(game.Collected) < required {
		return nil, c.fail("complete", &IncompleteSetError{Required: required, Got: len(game.Collected)})
	}

	if user.CompletedSets < c.params.RewardCap {
		user.CompletedSets++
	}

	tier, err := c.lookupReward(user.CompletedSets)
	if err != nil {
		return nil, c.fail("complete", err)
	}

	// Read the treasury balance before committing; a failed read aborts
	// the operation with no state change.
	balance := decimal.Zero
	if tier.Amount.IsPositive() {
		balance, err = c.tokens.BalanceOf(ctx, tier.Contract, c.params.RewardAccount, tier.Symbol)
		if err != nil {
			return nil, c.fail("complete", err)
		}
	}

	if err := c.db.ApplyComplete(owner, user); err != nil {
		return nil, c.fail("complete", err)
	}

	if tier.Amount.IsPositive() {
		c.dispatchReward(owner, tier, balance)
	}

	c.events.Emit(eventlog.TagCompletedToCollect, owner, game.ToCollect)
	c.events.Emit(eventlog.TagCompletedCollected, owner, game.Collected)
	c.metrics.GamesCompleted.Inc()
	c.log.WithFields(logrus.Fields{
		"owner":          owner,
		"completed_sets": user.CompletedSets,
	}).Info("game completed")

	return &CompletionResult{CompletedSets: user.CompletedSets, Reward: tier}, nil
}

// Unfreeze releases one expired freeze lock. Releasing an asset that is
// not frozen is a no-op.
func (c *Controller) Unfreeze(ctx context.Context, owner string, assetID uint64) error {
	if err := c.gate(ctx, owner, "unfreeze"); err != nil {
		return err
	}

	released, err := c.locks.Unlock(assetID, c.now())
	if err != nil {
		return c.fail("unfreeze", err)
	}
	if released {
		c.metrics.AssetsReleased.Inc()
	}
	return nil
}

// UnfreezeAll releases every expired freeze lock held by the caller,
// leaving live ones untouched.
func (c *Controller) UnfreezeAll(ctx context.Context, owner string) error {
	if err := c.gate(ctx, owner, "unfreezeall"); err != nil {
		return err
	}

	released, err := c.locks.UnlockAllExpired(owner, c.now())
	if err != nil {
		return c.fail("unfreezeall", err)
	}
	c.metrics.AssetsReleased.Add(float64(released))
	return nil
}

func (c *Controller) gate(ctx context.Context, owner, op string) error {
	if err := c.auth.Authorize(ctx, owner); err != nil {
		return c.fail(op, err)
	}

	on, err := c.db.Maintenance()
	if err != nil {
		return c.fail(op, err)
	}
	if on {
		return c.fail(op, ErrMaintenance)
	}

	return nil
}

func (c *Controller) fail(op string, err error) error {
	c.metrics.OperationErrors.WithLabelValues(op).Inc()
	return err
}

func (c *Controller) resolveOwned(owner string, assetIDs []uint64) ([]match.Candidate, error) {
	candidates := make([]match.Candidate, 0, len(assetIDs))
	for _, id := range assetIDs {
		asset, err := c.db.GetAsset(id)
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrMintUnknown
		} else if err != nil {
			return nil, err
		}

		if asset.Owner != owner {
			return nil, ErrOwnership
		}

		candidates = append(candidates, match.Candidate{AssetID: asset.AssetID, Mint: asset.Mint})
	}
	return candidates, nil
}

func (c *Controller) lookupReward(completedSets uint64) (*store.RewardTier, error) {
	maxTier, err := c.db.MaxRewardTier()
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoRewardTier
	} else if err != nil {
		return nil, err
	}

	key := completedSets
	if key > maxTier {
		key = c.params.RewardCap
	}

	tier, err := c.db.GetRewardTier(key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoRewardTier
	} else if err != nil {
		return nil, err
	}

	return tier, nil
}

func (c *Controller) dispatchReward(owner string, tier *store.RewardTier, balance decimal.Decimal) {
	if balance.GreaterThanOrEqual(tier.Amount) {
		c.tokens.Transfer(ledger.Transfer{
			Contract: tier.Contract,
			From:     c.params.RewardAccount,
			To:       owner,
			Quantity: tier.Amount,
			Symbol:   tier.Symbol,
			Memo:     c.params.RewardMemo,
		})
		return
	}

	// Not enough held supply; issue fresh tokens, then pass them on.
	c.tokens.Issue(ledger.Issue{
		Contract: tier.Contract,
		Quantity: tier.Amount,
		Symbol:   tier.Symbol,
		Memo:     c.params.RewardMemo,
	})
	c.tokens.Transfer(ledger.Transfer{
		Contract: tier.Contract,
		From:     tier.Contract,
		To:       owner,
		Quantity: tier.Amount,
		Symbol:   tier.Symbol,
		Memo:     c.params.RewardMemo,
	})
}

// targetCount is base^min(63, completed+1), saturating instead of
// overflowing; the generator clamps it to the pool size anyway.
func targetCount(base, completedSets uint64) uint64 {
	exp := completedSets + 1
	if exp > 63 {
		exp = 63
	}

	result := uint64(1)
	for i := uint64(0); i < exp; i++ {
		if base != 0 && result > math.MaxUint64/base {
			return math.MaxUint64
		}
		result *= base
	}
	return result
}

// requiredCount scales the completion threshold slightly below 100%:
// n - ceil(log10(n)).
func requiredCount(size int) int {
	if size <= 0 {
		return 0
	}
	return size - int(math.Ceil(math.Log10(float64(size))))
}
