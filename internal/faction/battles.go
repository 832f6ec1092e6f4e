package faction

import (
	"context"
	"fmt"
	"math"

	"github.com/solmae/animus/internal/fault"
	"github.com/solmae/animus/pkg/types"
)

// StartBattle opens a territorial battle against the territory's current
// controller. Attacking one's own territory, or a territory already under
// battle, is rejected.
func (e *Engine) StartBattle(ctx context.Context, territoryID, attacker string) (types.Battle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	terr, ok := e.territories[territoryID]
	if !ok {
		return types.Battle{}, fault.Errorf(fault.InvalidArgument, "faction: unknown territory %q", territoryID)
	}
	if _, ok := e.factions[attacker]; !ok {
		return types.Battle{}, fault.Errorf(fault.InvalidArgument, "faction: unknown faction %q", attacker)
	}
	defender := terr.ControllingFaction
	if attacker == defender {
		return types.Battle{}, fault.Errorf(fault.InvalidArgument, "faction: %s already controls %s", attacker, territoryID)
	}
	if terr.Contested {
		return types.Battle{}, fault.Errorf(fault.InvalidArgument, "faction: %s is already under battle", territoryID)
	}

	b := types.Battle{
		ID:               newID(),
		TerritoryID:      territoryID,
		Attacker:         attacker,
		Defender:         defender,
		AttackerStrength: e.uniform(0.4, 0.8),
		DefenderStrength: e.uniform(0.5, 0.9),
		Status:           types.BattleInProgress,
		StartedAt:        e.now(),
	}
	if err := e.store.PutBattle(ctx, b); err != nil {
		return types.Battle{}, fmt.Errorf("faction: start battle: %w", err)
	}

	terr.Contested = true
	if err := e.store.PutTerritory(ctx, *terr); err != nil {
		return types.Battle{}, fmt.Errorf("faction: start battle: %w", err)
	}

	fa, fd := e.factions[attacker], e.factions[defender]
	e.shiftRelation(fa, fd, BattleStartDelta, false)
	if err := e.persistFactions(ctx, fa, fd); err != nil {
		return types.Battle{}, err
	}

	msg := fmt.Sprintf("%s march on %s, held by %s", fa.Name, terr.Name, fd.Name)
	e.record(types.EventBattleStarted, msg, attacker, defender)
	e.log.Info("battle started", "territory", territoryID, "attacker", attacker, "defender", defender)
	return b, nil
}

// ResolveBattle forces an open battle to a result immediately, without
// waiting for attrition to settle it.
func (e *Engine) ResolveBattle(ctx context.Context, battleID string) (types.Battle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.store.GetBattle(ctx, battleID)
	if err != nil {
		return types.Battle{}, fmt.Errorf("faction: resolve battle: %w", err)
	}
	if b == nil {
		return types.Battle{}, fault.Errorf(fault.InvalidArgument, "faction: unknown battle %q", battleID)
	}
	if b.Status != types.BattleInProgress {
		return *b, nil
	}
	if err := e.resolveLocked(ctx, b); err != nil {
		return types.Battle{}, err
	}
	return *b, nil
}

// Battles returns battles filtered by status; empty status means all.
func (e *Engine) Battles(ctx context.Context, status types.BattleStatus) ([]types.Battle, error) {
	return e.store.ListBattles(ctx, status)
}

// resolveLocked settles a battle: both sides roll, the higher effective
// strength wins, the winner takes the territory at reduced control, and
// casualties drain both factions' strength pools. Caller holds the mutex.
func (e *Engine) resolveLocked(ctx context.Context, b *types.Battle) error {
	effA, effD := e.effectiveStrengths(b)
	rollA := effA * e.uniform(0.8, 1.2)
	rollD := effD * e.uniform(0.9, 1.1)
	attackerWon := rollA > rollD

	casA := int((1 - b.AttackerStrength) * 100 * e.uniform(0.5, 1.5))
	casD := int((1 - b.DefenderStrength) * 100 * e.uniform(0.5, 1.5))
	b.Casualties = casA + casD
	if attackerWon {
		b.Status = types.BattleAttackerWon
	} else {
		b.Status = types.BattleDefenderWon
	}
	if err := e.store.PutBattle(ctx, *b); err != nil {
		return fmt.Errorf("faction: resolve battle: %w", err)
	}

	fa, fd := e.factions[b.Attacker], e.factions[b.Defender]
	if fa != nil && fd != nil {
		// Each side's pool shrinks in proportion to the other's punch.
		e.addResource(fa, ResourceStrength, -0.15*math.Min(effD, 1))
		e.addResource(fd, ResourceStrength, -0.15*math.Min(effA, 1))
		e.shiftRelation(fa, fd, BattleResultDelta, false)
		if err := e.persistFactions(ctx, fa, fd); err != nil {
			return err
		}
	}

	terr, ok := e.territories[b.TerritoryID]
	if ok {
		terr.Contested = false
		if attackerWon {
			terr.ControllingFaction = b.Attacker
			terr.ControlStrength = WinnerControlStrength
		}
		if err := e.store.PutTerritory(ctx, *terr); err != nil {
			return fmt.Errorf("faction: resolve battle: %w", err)
		}
	}

	winner, loser := b.Defender, b.Attacker
	if attackerWon {
		winner, loser = b.Attacker, b.Defender
	}
	name := b.TerritoryID
	if ok {
		name = terr.Name
	}
	msg := fmt.Sprintf("%s defeat %s at %s, %d fall", e.factionName(winner), e.factionName(loser), name, b.Casualties)
	e.record(types.EventBattleResolved, msg, b.Attacker, b.Defender)
	if attackerWon {
		e.record(types.EventTerritoryTaken,
			fmt.Sprintf("%s seize control of %s", e.factionName(winner), name), winner)
	}
	e.log.Info("battle resolved",
		"battle", b.ID, "territory", b.TerritoryID, "winner", winner, "casualties", b.Casualties)
	return nil
}

// factionName resolves a display name, falling back to the id. Caller
// holds the mutex.
func (e *Engine) factionName(id string) string {
	if f, ok := e.factions[id]; ok {
		return f.Name
	}
	return id
}
