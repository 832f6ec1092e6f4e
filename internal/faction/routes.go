package faction

import (
	"context"
	"fmt"

	"github.com/solmae/animus/internal/fault"
	"github.com/solmae/animus/pkg/types"
)

// TradeOutcome reports one roll on a trade route.
type TradeOutcome struct {
	Route     types.TradeRoute `json:"route"`
	Success   bool             `json:"success"`
	Disrupted bool             `json:"disrupted"`
	Gold      int              `json:"gold"`
}

// EstablishRoute opens a trade route between two factions with randomly
// drawn goods, margin and risk, and nudges their relation upward.
func (e *Engine) EstablishRoute(ctx context.Context, from, to string) (types.TradeRoute, error) {
	if from == to {
		return types.TradeRoute{}, fault.New(fault.InvalidArgument, "faction: route endpoints must differ")
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	fa, okA := e.factions[from]
	fb, okB := e.factions[to]
	if !okA || !okB {
		return types.TradeRoute{}, fault.Errorf(fault.InvalidArgument, "faction: unknown pair %q/%q", from, to)
	}

	r := types.TradeRoute{
		ID:            newID(),
		From:          from,
		To:            to,
		Goods:         e.sampleGoods(),
		ProfitMargin:  e.uniform(0.05, 0.25),
		RiskLevel:     e.uniform(0.1, 0.5),
		Status:        types.RouteActive,
		EstablishedAt: e.now(),
	}
	if err := e.store.PutRoute(ctx, r); err != nil {
		return types.TradeRoute{}, fmt.Errorf("faction: establish route: %w", err)
	}

	e.shiftRelation(fa, fb, TradeDealDelta, false)
	if err := e.persistFactions(ctx, fa, fb); err != nil {
		return types.TradeRoute{}, err
	}

	msg := fmt.Sprintf("%s and %s open a trade route in %s", fa.Name, fb.Name, joinGoods(r.Goods))
	e.record(types.EventRouteEstablished, msg, from, to)
	e.log.Info("route established", "route", r.ID, "from", from, "to", to, "goods", r.Goods)
	return r, nil
}

// ExecuteRoute rolls one trade on a route: success with probability
// 1−risk pays both endpoints, failure rolls again against risk for
// disruption (so disruption probability is risk squared).
func (e *Engine) ExecuteRoute(ctx context.Context, routeID string) (TradeOutcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, err := e.store.GetRoute(ctx, routeID)
	if err != nil {
		return TradeOutcome{}, fmt.Errorf("faction: execute route: %w", err)
	}
	if r == nil {
		return TradeOutcome{}, fault.Errorf(fault.InvalidArgument, "faction: unknown route %q", routeID)
	}
	if r.Status != types.RouteActive {
		return TradeOutcome{}, fault.Errorf(fault.InvalidArgument, "faction: route %q is %s", routeID, r.Status)
	}
	return e.executeLocked(ctx, r)
}

// executeLocked rolls a trade on an active route. Caller holds the mutex.
func (e *Engine) executeLocked(ctx context.Context, r *types.TradeRoute) (TradeOutcome, error) {
	if e.dice.Float64() < 1-r.RiskLevel {
		r.TotalTrades++
		if err := e.store.PutRoute(ctx, *r); err != nil {
			return TradeOutcome{}, fmt.Errorf("faction: execute route: %w", err)
		}
		gold := int(float64(RouteBaseGold) * (1 + r.ProfitMargin))
		for _, id := range []string{r.From, r.To} {
			if f, ok := e.factions[id]; ok {
				e.addResource(f, ResourceGold, float64(gold))
				if err := e.persistFactions(ctx, f); err != nil {
					return TradeOutcome{}, err
				}
			}
		}
		msg := fmt.Sprintf("caravan between %s and %s arrives, %d gold changes hands",
			e.factionName(r.From), e.factionName(r.To), gold)
		e.record(types.EventRouteExecuted, msg, r.From, r.To)
		return TradeOutcome{Route: *r, Success: true, Gold: gold}, nil
	}

	// Failed trade; roll again for disruption.
	if e.dice.Float64() < r.RiskLevel {
		r.Status = types.RouteDisrupted
		if err := e.store.PutRoute(ctx, *r); err != nil {
			return TradeOutcome{}, fmt.Errorf("faction: execute route: %w", err)
		}
		msg := fmt.Sprintf("bandits cut the route between %s and %s",
			e.factionName(r.From), e.factionName(r.To))
		e.record(types.EventRouteDisrupted, msg, r.From, r.To)
		e.log.Info("route disrupted", "route", r.ID)
		return TradeOutcome{Route: *r, Disrupted: true}, nil
	}
	return TradeOutcome{Route: *r}, nil
}

// DisruptRoute forces an active route into the disrupted state.
func (e *Engine) DisruptRoute(ctx context.Context, routeID string) (types.TradeRoute, error) {
	return e.setRouteStatus(ctx, routeID, types.RouteActive, types.RouteDisrupted, types.EventRouteDisrupted,
		"the route between %s and %s is cut off")
}

// RestoreRoute returns a disrupted route to service.
func (e *Engine) RestoreRoute(ctx context.Context, routeID string) (types.TradeRoute, error) {
	return e.setRouteStatus(ctx, routeID, types.RouteDisrupted, types.RouteActive, types.EventRouteRestored,
		"the route between %s and %s reopens")
}

// Routes returns every trade route.
func (e *Engine) Routes(ctx context.Context) ([]types.TradeRoute, error) {
	return e.store.ListRoutes(ctx)
}

func (e *Engine) setRouteStatus(ctx context.Context, routeID string, from, to types.RouteStatus, kind types.EventKind, format string) (types.TradeRoute, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, err := e.store.GetRoute(ctx, routeID)
	if err != nil {
		return types.TradeRoute{}, fmt.Errorf("faction: route %s: %w", to, err)
	}
	if r == nil {
		return types.TradeRoute{}, fault.Errorf(fault.InvalidArgument, "faction: unknown route %q", routeID)
	}
	if r.Status != from {
		return types.TradeRoute{}, fault.Errorf(fault.InvalidArgument, "faction: route %q is %s, not %s", routeID, r.Status, from)
	}
	r.Status = to
	if err := e.store.PutRoute(ctx, *r); err != nil {
		return types.TradeRoute{}, fmt.Errorf("faction: route %s: %w", to, err)
	}
	e.record(kind, fmt.Sprintf(format, e.factionName(r.From), e.factionName(r.To)), r.From, r.To)
	e.log.Info("route status changed", "route", r.ID, "status", to)
	return *r, nil
}

// sampleGoods draws 1-3 distinct goods in catalog order. Caller holds the
// mutex.
func (e *Engine) sampleGoods() []string {
	n := 1 + e.dice.IntN(3)
	picked := make(map[int]bool, n)
	for len(picked) < n {
		picked[e.dice.IntN(len(types.TradeGoods))] = true
	}
	goods := make([]string, 0, n)
	for i, g := range types.TradeGoods {
		if picked[i] {
			goods = append(goods, g)
		}
	}
	return goods
}

func joinGoods(goods []string) string {
	switch len(goods) {
	case 0:
		return "goods"
	case 1:
		return goods[0]
	default:
		out := goods[0]
		for _, g := range goods[1:] {
			out += ", " + g
		}
		return out
	}
}
