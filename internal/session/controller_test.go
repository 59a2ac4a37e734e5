package session

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/crptomonkeys/monKey-matching/internal/eventlog"
	"github.com/crptomonkeys/monKey-matching/internal/freeze"
	"github.com/crptomonkeys/monKey-matching/internal/ledger"
	"github.com/crptomonkeys/monKey-matching/internal/metrics"
	"github.com/crptomonkeys/monKey-matching/internal/store"
)

type allowAll struct{}

func (allowAll) Authorize(ctx context.Context, owner string) error { return nil }

type fakeLedger struct {
	balance    decimal.Decimal
	balanceErr error
	transfers  []ledger.Transfer
	issues     []ledger.Issue
}

func (f *fakeLedger) BalanceOf(ctx context.Context, contract, holder, symbol string) (decimal.Decimal, error) {
	return f.balance, f.balanceErr
}

func (f *fakeLedger) Transfer(t ledger.Transfer) { f.transfers = append(f.transfers, t) }
func (f *fakeLedger) Issue(i ledger.Issue)       { f.issues = append(f.issues, i) }

type fixture struct {
	db     store.DB
	ctrl   *Controller
	tokens *fakeLedger
	now    time.Time
}

func testParams() Params {
	return Params{
		Salt:                 "test-salt",
		RegenerationCooldown: 24 * time.Hour,
		NewGameBase:          4,
		MintOffset:           5,
		MaxMint:              4000,
		RewardReset:          10,
		RewardCap:            10,
		RewardMemo:           "match reward",
		RewardAccount:        "monkeysmatch",
	}
}

func newFixture(t *testing.T, params Params) *fixture {
	t.Helper()

	db, err := store.NewSQLiteDB(":memory:")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}

	f := &fixture{
		db:     db,
		tokens: &fakeLedger{balance: decimal.RequireFromString("1000")},
		now:    time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	f.ctrl = NewController(
		db,
		freeze.NewManager(db, 72*time.Hour),
		f.tokens,
		eventlog.New(),
		metrics.New(prometheus.NewRegistry()),
		allowAll{},
		params,
		func() time.Time { return f.now },
	)

	return f
}

// seedCatalogue loads ten alice-owned assets with mints 100..1000 (well
// beyond the exclusion zone of offset 5) plus one asset owned by bob.
func seedCatalogue(t *testing.T, db store.DB) {
	t.Helper()

	assets := make([]store.Asset, 0, 11)
	for i := 1; i <= 10; i++ {
		assets = append(assets, store.Asset{
			AssetID:    uint64(i),
			Owner:      "alice",
			TemplateID: 1,
			Mint:       uint16(i * 100),
		})
	}
	assets = append(assets, store.Asset{AssetID: 999, Owner: "bob", TemplateID: 1, Mint: 1500})

	if err := db.PutAssets(assets); err != nil {
		t.Fatalf("failed to seed assets: %v", err)
	}
}

func seedRewards(t *testing.T, db store.DB) {
	t.Helper()

	for tier := uint64(1); tier <= 10; tier++ {
		err := db.PutRewardTier(&store.RewardTier{
			Completions: tier,
			Contract:    "banano.token",
			Amount:      decimal.NewFromInt(int64(tier)),
			Symbol:      "BAN",
		})
		if err != nil {
			t.Fatalf("failed to seed reward tier %d: %v", tier, err)
		}
	}
}

// assetsForTargets maps each target back to the seeded asset carrying the
// exact mint.
func assetsForTargets(targets []uint16) []uint64 {
	ids := make([]uint64, 0, len(targets))
	for _, target := range targets {
		ids = append(ids, uint64(target/100))
	}
	return ids
}

func TestNewGameGeneratesTargets(t *testing.T) {
	f := newFixture(t, testParams())
	seedCatalogue(t, f.db)

	game, err := f.ctrl.NewGame(context.Background(), "alice")
	if err != nil {
		t.Fatalf("NewGame failed: %v", err)
	}

	// base^(0+1) = 4 targets requested, pool is large enough.
	if len(game.ToCollect) != 4 {
		t.Errorf("expected 4 targets, got %d", len(game.ToCollect))
	}
	if len(game.Collected) != 0 {
		t.Errorf("expected empty collected, got %v", game.Collected)
	}

	if _, err := f.db.GetUser("alice"); err != nil {
		t.Errorf("user not created: %v", err)
	}
}

func TestNewGameCooldown(t *testing.T) {
	f := newFixture(t, testParams())
	seedCatalogue(t, f.db)

	if _, err := f.ctrl.NewGame(context.Background(), "alice"); err != nil {
		t.Fatalf("NewGame failed: %v", err)
	}

	f.now = f.now.Add(time.Hour)
	if _, err := f.ctrl.NewGame(context.Background(), "alice"); !errors.Is(err, ErrCooldownActive) {
		t.Errorf("expected ErrCooldownActive, got %v", err)
	}

	f.now = f.now.Add(24 * time.Hour)
	if _, err := f.ctrl.NewGame(context.Background(), "alice"); err != nil {
		t.Errorf("regeneration after cooldown failed: %v", err)
	}
}

func TestNewGameResetsProgress(t *testing.T) {
	f := newFixture(t, testParams())
	seedCatalogue(t, f.db)

	// Progress at the reset threshold goes back to zero on start.
	game := &store.Game{Owner: "alice", ToCollect: []uint16{1}, Collected: []uint16{}, Time: f.now.Add(-48 * time.Hour)}
	user := &store.User{Owner: "alice", CompletedSets: 10}
	if err := f.db.ApplyNewGame(game, user); err != nil {
		t.Fatal(err)
	}

	if _, err := f.ctrl.NewGame(context.Background(), "alice"); err != nil {
		t.Fatalf("NewGame failed: %v", err)
	}

	got, err := f.db.GetUser("alice")
	if err != nil {
		t.Fatal(err)
	}
	if got.CompletedSets != 0 {
		t.Errorf("expected reset to 0, got %d", got.CompletedSets)
	}
}

func TestMaintenanceGatesEveryEntryPoint(t *testing.T) {
	f := newFixture(t, testParams())
	if err := f.db.SetMaintenance(true); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if _, err := f.ctrl.NewGame(ctx, "alice"); !errors.Is(err, ErrMaintenance) {
		t.Errorf("NewGame: expected ErrMaintenance, got %v", err)
	}
	if _, err := f.ctrl.Verify(ctx, "alice", nil); !errors.Is(err, ErrMaintenance) {
		t.Errorf("Verify: expected ErrMaintenance, got %v", err)
	}
	if _, err := f.ctrl.Complete(ctx, "alice"); !errors.Is(err, ErrMaintenance) {
		t.Errorf("Complete: expected ErrMaintenance, got %v", err)
	}
	if err := f.ctrl.Unfreeze(ctx, "alice", 1); !errors.Is(err, ErrMaintenance) {
		t.Errorf("Unfreeze: expected ErrMaintenance, got %v", err)
	}
	if err := f.ctrl.UnfreezeAll(ctx, "alice"); !errors.Is(err, ErrMaintenance) {
		t.Errorf("UnfreezeAll: expected ErrMaintenance, got %v", err)
	}
}

func TestVerifyRequiresGame(t *testing.T) {
	f := newFixture(t, testParams())

	if _, err := f.ctrl.Verify(context.Background(), "alice", nil); !errors.Is(err, ErrNoActiveGame) {
		t.Errorf("expected ErrNoActiveGame, got %v", err)
	}
}

func TestVerifyOwnership(t *testing.T) {
	f := newFixture(t, testParams())
	seedCatalogue(t, f.db)

	if _, err := f.ctrl.NewGame(context.Background(), "alice"); err != nil {
		t.Fatal(err)
	}

	// Bob's asset.
	if _, err := f.ctrl.Verify(context.Background(), "alice", []uint64{999}); !errors.Is(err, ErrOwnership) {
		t.Errorf("expected ErrOwnership, got %v", err)
	}

	// Unknown asset.
	if _, err := f.ctrl.Verify(context.Background(), "alice", []uint64{123456}); !errors.Is(err, ErrMintUnknown) {
		t.Errorf("expected ErrMintUnknown, got %v", err)
	}
}

func TestVerifyEmptySubmissionIsIdempotent(t *testing.T) {
	f := newFixture(t, testParams())
	seedCatalogue(t, f.db)

	game, err := f.ctrl.NewGame(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}

	after, err := f.ctrl.Verify(context.Background(), "alice", nil)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if len(after.Collected) != 0 {
		t.Errorf("empty submission changed collected: %v", after.Collected)
	}
	if len(after.ToCollect) != len(game.ToCollect) {
		t.Errorf("targets changed: %v != %v", after.ToCollect, game.ToCollect)
	}
}

func TestVerifyCollectedStaysWithinTargets(t *testing.T) {
	f := newFixture(t, testParams())
	seedCatalogue(t, f.db)

	game, err := f.ctrl.NewGame(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}

	// Submit everything alice owns; only targets may enter collected.
	all := []uint64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	after, err := f.ctrl.Verify(context.Background(), "alice", all)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	targets := map[uint16]int{}
	for _, v := range game.ToCollect {
		targets[v]++
	}
	for _, v := range after.Collected {
		if targets[v] == 0 {
			t.Errorf("collected value %d is not among targets %v", v, game.ToCollect)
		}
		targets[v]--
	}
}

func TestVerifyFreezesMatchedAssets(t *testing.T) {
	f := newFixture(t, testParams())
	seedCatalogue(t, f.db)

	game, err := f.ctrl.NewGame(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}

	ids := assetsForTargets(game.ToCollect)
	if _, err := f.ctrl.Verify(context.Background(), "alice", ids); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	for _, id := range ids {
		rec, err := f.db.GetFreeze(id)
		if err != nil {
			t.Errorf("asset %d not frozen: %v", id, err)
			continue
		}
		if rec.Owner != "alice" {
			t.Errorf("asset %d frozen for %s", id, rec.Owner)
		}
	}

	// A frozen asset cannot be re-presented while the hold is live.
	if _, err := f.ctrl.Verify(context.Background(), "alice", ids[:1]); !errors.Is(err, freeze.ErrStillFrozen) {
		t.Errorf("expected ErrStillFrozen, got %v", err)
	}
}

func TestCompleteBelowThreshold(t *testing.T) {
	f := newFixture(t, testParams())
	seedCatalogue(t, f.db)
	seedRewards(t, f.db)

	if _, err := f.ctrl.NewGame(context.Background(), "alice"); err != nil {
		t.Fatal(err)
	}

	_, err := f.ctrl.Complete(context.Background(), "alice")
	var incomplete *IncompleteSetError
	if !errors.As(err, &incomplete) {
		t.Fatalf("expected IncompleteSetError, got %v", err)
	}
	// 4 targets require 4 - ceil(log10(4)) = 3.
	if incomplete.Required != 3 {
		t.Errorf("expected required 3, got %d", incomplete.Required)
	}
}

func TestEndToEndCompletion(t *testing.T) {
	f := newFixture(t, testParams())
	seedCatalogue(t, f.db)
	seedRewards(t, f.db)

	game, err := f.ctrl.NewGame(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(game.ToCollect) != 4 {
		t.Fatalf("expected 4 targets, got %d", len(game.ToCollect))
	}

	if _, err := f.ctrl.Verify(context.Background(), "alice", assetsForTargets(game.ToCollect)); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	result, err := f.ctrl.Complete(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if result.CompletedSets != 1 {
		t.Errorf("expected 1 completed set, got %d", result.CompletedSets)
	}
	if result.Reward == nil || result.Reward.Completions != 1 {
		t.Errorf("expected tier 1 reward, got %+v", result.Reward)
	}

	// Treasury held enough, so a direct transfer was dispatched.
	if len(f.tokens.transfers) != 1 {
		t.Fatalf("expected 1 transfer, got %d", len(f.tokens.transfers))
	}
	tr := f.tokens.transfers[0]
	if tr.To != "alice" || tr.From != "monkeysmatch" || !tr.Quantity.Equal(decimal.NewFromInt(1)) {
		t.Errorf("unexpected transfer: %+v", tr)
	}
	if len(f.tokens.issues) != 0 {
		t.Errorf("no issuance expected, got %v", f.tokens.issues)
	}

	// Session is gone.
	if _, err := f.db.GetGame("alice"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("game not released: %v", err)
	}
}

func TestCompleteIssuesWhenBalanceShort(t *testing.T) {
	f := newFixture(t, testParams())
	seedCatalogue(t, f.db)
	seedRewards(t, f.db)
	f.tokens.balance = decimal.Zero

	game, err := f.ctrl.NewGame(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.ctrl.Verify(context.Background(), "alice", assetsForTargets(game.ToCollect)); err != nil {
		t.Fatal(err)
	}
	if _, err := f.ctrl.Complete(context.Background(), "alice"); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if len(f.tokens.issues) != 1 {
		t.Fatalf("expected 1 issue, got %d", len(f.tokens.issues))
	}
	if len(f.tokens.transfers) != 1 {
		t.Fatalf("expected 1 transfer, got %d", len(f.tokens.transfers))
	}
	if f.tokens.transfers[0].From != "banano.token" {
		t.Errorf("issued tokens must move from the contract, got %s", f.tokens.transfers[0].From)
	}
}

func TestCompleteZeroRewardIsSilent(t *testing.T) {
	f := newFixture(t, testParams())
	seedCatalogue(t, f.db)
	if err := f.db.PutRewardTier(&store.RewardTier{
		Completions: 1, Contract: "banano.token", Amount: decimal.Zero, Symbol: "BAN",
	}); err != nil {
		t.Fatal(err)
	}

	game, err := f.ctrl.NewGame(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.ctrl.Verify(context.Background(), "alice", assetsForTargets(game.ToCollect)); err != nil {
		t.Fatal(err)
	}
	if _, err := f.ctrl.Complete(context.Background(), "alice"); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if len(f.tokens.transfers) != 0 || len(f.tokens.issues) != 0 {
		t.Errorf("zero reward must dispatch nothing, got %v / %v", f.tokens.transfers, f.tokens.issues)
	}
}

func TestCompleteMissingTier(t *testing.T) {
	f := newFixture(t, testParams())
	seedCatalogue(t, f.db)

	game, err := f.ctrl.NewGame(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.ctrl.Verify(context.Background(), "alice", assetsForTargets(game.ToCollect)); err != nil {
		t.Fatal(err)
	}

	if _, err := f.ctrl.Complete(context.Background(), "alice"); !errors.Is(err, ErrNoRewardTier) {
		t.Errorf("expected ErrNoRewardTier, got %v", err)
	}
}

func TestTargetCount(t *testing.T) {
	tests := []struct {
		base      uint64
		completed uint64
		want      uint64
	}{
		{4, 0, 4},
		{4, 1, 16},
		{2, 2, 8},
		{4, 62, math.MaxUint64}, // saturates
		{10, 100, math.MaxUint64},
	}

	for _, tt := range tests {
		if got := targetCount(tt.base, tt.completed); got != tt.want {
			t.Errorf("targetCount(%d, %d) = %d, want %d", tt.base, tt.completed, got, tt.want)
		}
	}
}

func TestRequiredCount(t *testing.T) {
	tests := []struct {
		size int
		want int
	}{
		{100, 98},
		{10, 9},
		{4, 3},
		{1, 1},
		{0, 0},
	}

	for _, tt := range tests {
		if got := requiredCount(tt.size); got != tt.want {
			t.Errorf("requiredCount(%d) = %d, want %d", tt.size, got, tt.want)
		}
	}
}
