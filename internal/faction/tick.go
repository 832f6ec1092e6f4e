package faction

import (
	"context"
	"math"

	"github.com/solmae/animus/pkg/types"
)

// TickResult summarizes one faction tick.
type TickResult struct {
	RelationsDrifted int
	BattlesAdvanced  int
	BattlesResolved  int
	TradesExecuted   int
	TradesDisrupted  int
}

// Tick advances the faction layer by deltaHours of simulated time:
// unpinned relations drift toward neutral with a 48-hour half-life, open
// battles lose strength to attrition and resolve once lopsided, and active
// trade routes roll when the tick crosses a day boundary. nowHours is the
// world clock's total after the advance.
func (e *Engine) Tick(ctx context.Context, deltaHours, nowHours float64) (TickResult, error) {
	if deltaHours <= 0 {
		return TickResult{}, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	var res TickResult
	if err := e.driftRelations(ctx, deltaHours, &res); err != nil {
		return res, err
	}
	if err := e.advanceBattles(ctx, deltaHours, &res); err != nil {
		return res, err
	}
	if crossedDay(nowHours, deltaHours) {
		if err := e.rollTrades(ctx, &res); err != nil {
			return res, err
		}
	}
	return res, nil
}

// driftRelations decays every unpinned relation score toward 0. Factions
// iterate in sorted order and each pair moves once. Caller holds the mutex.
func (e *Engine) driftRelations(ctx context.Context, deltaHours float64, res *TickResult) error {
	factor := driftFactor(deltaHours)
	ids := e.factionIDs()
	dirty := make(map[string]*types.Faction)
	for i, a := range ids {
		fa := e.factions[a]
		for _, b := range ids[i+1:] {
			rel, ok := fa.Relations[b]
			if !ok || rel.Pinned || rel.Score == 0 {
				continue
			}
			rel.Score *= factor
			if math.Abs(rel.Score) < 0.005 {
				rel.Score = 0
			}
			rel.Label = types.FactionRelationLabel(rel.Score)
			fb := e.factions[b]
			fa.Relations[b] = rel
			fb.Relations[a] = rel
			dirty[a], dirty[b] = fa, fb
			res.RelationsDrifted++
		}
	}
	for _, id := range ids {
		if f, ok := dirty[id]; ok {
			if err := e.persistFactions(ctx, f); err != nil {
				return err
			}
		}
	}
	return nil
}

// advanceBattles applies attrition to every open battle and resolves the
// lopsided ones. Caller holds the mutex.
func (e *Engine) advanceBattles(ctx context.Context, deltaHours float64, res *TickResult) error {
	battles, err := e.store.ListBattles(ctx, types.BattleInProgress)
	if err != nil {
		return err
	}
	for i := range battles {
		b := &battles[i]
		effA, effD := e.effectiveStrengths(b)

		b.AttackerStrength = math.Max(0.05, b.AttackerStrength-AttritionRate*effD*deltaHours)
		b.DefenderStrength = math.Max(0.05, b.DefenderStrength-AttritionRate*effA*deltaHours)
		res.BattlesAdvanced++

		effA, effD = e.effectiveStrengths(b)
		if effA < ResolveRatio*effD || effD < ResolveRatio*effA {
			if err := e.resolveLocked(ctx, b); err != nil {
				return err
			}
			res.BattlesResolved++
			continue
		}
		if err := e.store.PutBattle(ctx, *b); err != nil {
			return err
		}
	}
	return nil
}

// effectiveStrengths computes both sides' effective strength: raw strength
// scaled by faction morale, with the defender additionally scaled by the
// contested territory's control. Caller holds the mutex.
func (e *Engine) effectiveStrengths(b *types.Battle) (attacker, defender float64) {
	attacker = b.AttackerStrength * e.morale(b.Attacker)
	bonus := 1.0
	if t, ok := e.territories[b.TerritoryID]; ok {
		bonus += DefenderTerritoryBonus * t.ControlStrength
	}
	defender = b.DefenderStrength * e.morale(b.Defender) * bonus
	return attacker, defender
}

// rollTrades executes the daily roll for every active route. Caller holds
// the mutex.
func (e *Engine) rollTrades(ctx context.Context, res *TickResult) error {
	routes, err := e.store.ListRoutes(ctx)
	if err != nil {
		return err
	}
	for i := range routes {
		if routes[i].Status != types.RouteActive {
			continue
		}
		outcome, err := e.executeLocked(ctx, &routes[i])
		if err != nil {
			return err
		}
		if outcome.Disrupted {
			res.TradesDisrupted++
		} else if outcome.Success {
			res.TradesExecuted++
		}
	}
	return nil
}

// crossedDay reports whether the tick that ended at nowHours started on an
// earlier simulated day.
func crossedDay(nowHours, deltaHours float64) bool {
	return int(nowHours/24) > int((nowHours-deltaHours)/24)
}
