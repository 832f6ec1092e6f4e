package faction

import (
	"context"

	"github.com/solmae/animus/pkg/types"
)

// Default faction ids.
const (
	FactionGuards   = "guards"
	FactionTraders  = "traders"
	FactionOutcasts = "outcasts"
	FactionCitizens = "citizens"
)

// seedFactions is the default political landscape. Guards and outcasts are
// sworn enemies, pinned so the enmity never drifts away.
func seedFactions() []types.Faction {
	rel := func(score float64, pinned bool) types.FactionRelation {
		return types.FactionRelation{
			Score:  score,
			Label:  types.FactionRelationLabel(score),
			Pinned: pinned,
		}
	}
	return []types.Faction{
		{
			ID:     FactionGuards,
			Name:   "City Guards",
			Values: []string{"order", "duty", "vigilance"},
			Resources: map[string]float64{
				ResourceStrength: 0.8,
				ResourceMorale:   1.0,
				ResourceGold:     200,
			},
			Relations: map[string]types.FactionRelation{
				FactionTraders:  rel(0.4, false),
				FactionCitizens: rel(0.5, false),
				FactionOutcasts: rel(-0.6, true),
			},
		},
		{
			ID:     FactionTraders,
			Name:   "Merchant Guild",
			Values: []string{"profit", "negotiation", "connections"},
			Resources: map[string]float64{
				ResourceStrength: 0.5,
				ResourceMorale:   1.0,
				ResourceGold:     500,
			},
			Relations: map[string]types.FactionRelation{
				FactionGuards:   rel(0.4, false),
				FactionCitizens: rel(0.3, false),
				FactionOutcasts: rel(-0.2, false),
			},
		},
		{
			ID:     FactionOutcasts,
			Name:   "The Outcasts",
			Values: []string{"survival", "freedom", "loyalty to their own"},
			Resources: map[string]float64{
				ResourceStrength: 0.6,
				ResourceMorale:   0.9,
				ResourceGold:     50,
			},
			Relations: map[string]types.FactionRelation{
				FactionGuards:   rel(-0.6, true),
				FactionTraders:  rel(-0.2, false),
				FactionCitizens: rel(-0.3, false),
			},
		},
		{
			ID:     FactionCitizens,
			Name:   "Free Citizens",
			Values: []string{"community", "safety", "fairness"},
			Resources: map[string]float64{
				ResourceStrength: 0.4,
				ResourceMorale:   1.0,
				ResourceGold:     150,
			},
			Relations: map[string]types.FactionRelation{
				FactionGuards:   rel(0.5, false),
				FactionTraders:  rel(0.3, false),
				FactionOutcasts: rel(-0.3, false),
			},
		},
	}
}

// seedTerritories is the default control map.
func seedTerritories() []types.Territory {
	return []types.Territory{
		{ID: "gates", Name: "City Gates", ControllingFaction: FactionGuards, ControlStrength: 1.0, StrategicValue: 0.9},
		{ID: "market", Name: "Market Square", ControllingFaction: FactionTraders, ControlStrength: 1.0, StrategicValue: 0.8},
		{ID: "docks", Name: "The Docks", ControllingFaction: FactionTraders, ControlStrength: 1.0, StrategicValue: 0.7},
		{ID: "slums", Name: "The Slums", ControllingFaction: FactionOutcasts, ControlStrength: 1.0, StrategicValue: 0.4},
		{ID: "old_quarter", Name: "Old Quarter", ControllingFaction: FactionCitizens, ControlStrength: 1.0, StrategicValue: 0.5},
		{ID: "northern_pass", Name: "Northern Pass", ControllingFaction: FactionGuards, ControlStrength: 1.0, StrategicValue: 0.6},
	}
}

// seed installs the default world into an empty store.
func (e *Engine) seed(ctx context.Context) error {
	for _, f := range seedFactions() {
		f := f
		if err := e.store.PutFaction(ctx, f); err != nil {
			return err
		}
		e.factions[f.ID] = &f
	}
	for _, t := range seedTerritories() {
		t := t
		if err := e.store.PutTerritory(ctx, t); err != nil {
			return err
		}
		e.territories[t.ID] = &t
	}
	e.log.Info("default factions seeded", "factions", len(e.factions), "territories", len(e.territories))
	return nil
}
