package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/solmae/animus/pkg/types"
)

// factionRow is the scan target for the factions table; values, resources
// and relations are JSON columns.
type factionRow struct {
	ID            string `db:"id"`
	Name          string `db:"name"`
	ValuesJSON    string `db:"values_json"`
	ResourcesJSON string `db:"resources_json"`
	RelationsJSON string `db:"relations_json"`
}

func factionToRow(f types.Faction) (factionRow, error) {
	values := f.Values
	if values == nil {
		values = []string{}
	}
	vb, err := json.Marshal(values)
	if err != nil {
		return factionRow{}, fmt.Errorf("marshal values: %w", err)
	}
	resources := f.Resources
	if resources == nil {
		resources = map[string]float64{}
	}
	rb, err := json.Marshal(resources)
	if err != nil {
		return factionRow{}, fmt.Errorf("marshal resources: %w", err)
	}
	relations := f.Relations
	if relations == nil {
		relations = map[string]types.FactionRelation{}
	}
	relb, err := json.Marshal(relations)
	if err != nil {
		return factionRow{}, fmt.Errorf("marshal relations: %w", err)
	}
	return factionRow{
		ID:            f.ID,
		Name:          f.Name,
		ValuesJSON:    string(vb),
		ResourcesJSON: string(rb),
		RelationsJSON: string(relb),
	}, nil
}

func (row factionRow) toFaction() (types.Faction, error) {
	f := types.Faction{ID: row.ID, Name: row.Name}
	if err := json.Unmarshal([]byte(row.ValuesJSON), &f.Values); err != nil {
		return f, fmt.Errorf("unmarshal values: %w", err)
	}
	if err := json.Unmarshal([]byte(row.ResourcesJSON), &f.Resources); err != nil {
		return f, fmt.Errorf("unmarshal resources: %w", err)
	}
	if err := json.Unmarshal([]byte(row.RelationsJSON), &f.Relations); err != nil {
		return f, fmt.Errorf("unmarshal relations: %w", err)
	}
	return f, nil
}

// PutFaction inserts or replaces a faction record.
func (s *Store) PutFaction(ctx context.Context, f types.Faction) error {
	if f.ID == "" {
		return fmt.Errorf("store: put faction: id required")
	}
	row, err := factionToRow(f)
	if err != nil {
		return fmt.Errorf("store: put faction %s: %w", f.ID, err)
	}
	const query = `
		INSERT INTO factions (id, name, values_json, resources_json, relations_json)
		VALUES (:id, :name, :values_json, :resources_json, :relations_json)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			values_json = excluded.values_json,
			resources_json = excluded.resources_json,
			relations_json = excluded.relations_json`
	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("store: put faction %s: %w", f.ID, err)
	}
	return nil
}

// GetFaction retrieves a faction by id. Returns (nil, nil) when absent.
func (s *Store) GetFaction(ctx context.Context, id string) (*types.Faction, error) {
	var row factionRow
	err := s.db.GetContext(ctx, &row,
		`SELECT id, name, values_json, resources_json, relations_json FROM factions WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get faction %s: %w", id, err)
	}
	f, err := row.toFaction()
	if err != nil {
		return nil, fmt.Errorf("store: get faction %s: %w", id, err)
	}
	return &f, nil
}

// ListFactions returns all factions ordered by id.
func (s *Store) ListFactions(ctx context.Context) ([]types.Faction, error) {
	var rows []factionRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, name, values_json, resources_json, relations_json FROM factions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: list factions: %w", err)
	}
	factions := make([]types.Faction, 0, len(rows))
	for _, row := range rows {
		f, err := row.toFaction()
		if err != nil {
			return nil, fmt.Errorf("store: list factions: %w", err)
		}
		factions = append(factions, f)
	}
	return factions, nil
}

// ── territories ───────────────────────────────────────────────────────────────

// PutTerritory inserts or replaces a territory record.
func (s *Store) PutTerritory(ctx context.Context, t types.Territory) error {
	if t.ID == "" {
		return fmt.Errorf("store: put territory: id required")
	}
	const query = `
		INSERT INTO territories (id, name, controlling_faction, control_strength, strategic_value, contested)
		VALUES (:id, :name, :controlling_faction, :control_strength, :strategic_value, :contested)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			controlling_faction = excluded.controlling_faction,
			control_strength = excluded.control_strength,
			strategic_value = excluded.strategic_value,
			contested = excluded.contested`
	if _, err := s.db.NamedExecContext(ctx, query, t); err != nil {
		return fmt.Errorf("store: put territory %s: %w", t.ID, err)
	}
	return nil
}

// GetTerritory retrieves a territory by id. Returns (nil, nil) when absent.
func (s *Store) GetTerritory(ctx context.Context, id string) (*types.Territory, error) {
	var t types.Territory
	err := s.db.GetContext(ctx, &t, `
		SELECT id, name, controlling_faction, control_strength, strategic_value, contested
		FROM territories WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get territory %s: %w", id, err)
	}
	return &t, nil
}

// ListTerritories returns all territories ordered by id.
func (s *Store) ListTerritories(ctx context.Context) ([]types.Territory, error) {
	var territories []types.Territory
	err := s.db.SelectContext(ctx, &territories, `
		SELECT id, name, controlling_faction, control_strength, strategic_value, contested
		FROM territories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: list territories: %w", err)
	}
	return territories, nil
}

// ── trade routes ──────────────────────────────────────────────────────────────

// routeRow is the scan target for the trade_routes table; goods is a JSON
// column.
type routeRow struct {
	ID            string    `db:"id"`
	FromFaction   string    `db:"from_faction"`
	ToFaction     string    `db:"to_faction"`
	GoodsJSON     string    `db:"goods_json"`
	ProfitMargin  float64   `db:"profit_margin"`
	RiskLevel     float64   `db:"risk_level"`
	Status        string    `db:"status"`
	TotalTrades   int       `db:"total_trades"`
	EstablishedAt time.Time `db:"established_at"`
}

func routeToRow(r types.TradeRoute) (routeRow, error) {
	goods := r.Goods
	if goods == nil {
		goods = []string{}
	}
	gb, err := json.Marshal(goods)
	if err != nil {
		return routeRow{}, fmt.Errorf("marshal goods: %w", err)
	}
	return routeRow{
		ID:            r.ID,
		FromFaction:   r.From,
		ToFaction:     r.To,
		GoodsJSON:     string(gb),
		ProfitMargin:  r.ProfitMargin,
		RiskLevel:     r.RiskLevel,
		Status:        string(r.Status),
		TotalTrades:   r.TotalTrades,
		EstablishedAt: r.EstablishedAt,
	}, nil
}

func (row routeRow) toRoute() (types.TradeRoute, error) {
	r := types.TradeRoute{
		ID:            row.ID,
		From:          row.FromFaction,
		To:            row.ToFaction,
		ProfitMargin:  row.ProfitMargin,
		RiskLevel:     row.RiskLevel,
		Status:        types.RouteStatus(row.Status),
		TotalTrades:   row.TotalTrades,
		EstablishedAt: row.EstablishedAt,
	}
	if err := json.Unmarshal([]byte(row.GoodsJSON), &r.Goods); err != nil {
		return r, fmt.Errorf("unmarshal goods: %w", err)
	}
	return r, nil
}

// PutRoute inserts or replaces a trade route record.
func (s *Store) PutRoute(ctx context.Context, r types.TradeRoute) error {
	if r.ID == "" {
		return fmt.Errorf("store: put route: id required")
	}
	row, err := routeToRow(r)
	if err != nil {
		return fmt.Errorf("store: put route %s: %w", r.ID, err)
	}
	const query = `
		INSERT INTO trade_routes (id, from_faction, to_faction, goods_json,
			profit_margin, risk_level, status, total_trades, established_at)
		VALUES (:id, :from_faction, :to_faction, :goods_json,
			:profit_margin, :risk_level, :status, :total_trades, :established_at)
		ON CONFLICT (id) DO UPDATE SET
			goods_json = excluded.goods_json,
			profit_margin = excluded.profit_margin,
			risk_level = excluded.risk_level,
			status = excluded.status,
			total_trades = excluded.total_trades`
	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("store: put route %s: %w", r.ID, err)
	}
	return nil
}

// GetRoute retrieves a trade route by id. Returns (nil, nil) when absent.
func (s *Store) GetRoute(ctx context.Context, id string) (*types.TradeRoute, error) {
	var row routeRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, from_faction, to_faction, goods_json, profit_margin,
			risk_level, status, total_trades, established_at
		FROM trade_routes WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get route %s: %w", id, err)
	}
	r, err := row.toRoute()
	if err != nil {
		return nil, fmt.Errorf("store: get route %s: %w", id, err)
	}
	return &r, nil
}

// ListRoutes returns all trade routes ordered by id.
func (s *Store) ListRoutes(ctx context.Context) ([]types.TradeRoute, error) {
	var rows []routeRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, from_faction, to_faction, goods_json, profit_margin,
			risk_level, status, total_trades, established_at
		FROM trade_routes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: list routes: %w", err)
	}
	routes := make([]types.TradeRoute, 0, len(rows))
	for _, row := range rows {
		r, err := row.toRoute()
		if err != nil {
			return nil, fmt.Errorf("store: list routes: %w", err)
		}
		routes = append(routes, r)
	}
	return routes, nil
}

// ── battles ───────────────────────────────────────────────────────────────────

// PutBattle inserts or replaces a battle record.
func (s *Store) PutBattle(ctx context.Context, b types.Battle) error {
	if b.ID == "" {
		return fmt.Errorf("store: put battle: id required")
	}
	const query = `
		INSERT INTO battles (id, territory_id, attacker, defender,
			attacker_strength, defender_strength, status, casualties, started_at)
		VALUES (:id, :territory_id, :attacker, :defender,
			:attacker_strength, :defender_strength, :status, :casualties, :started_at)
		ON CONFLICT (id) DO UPDATE SET
			attacker_strength = excluded.attacker_strength,
			defender_strength = excluded.defender_strength,
			status = excluded.status,
			casualties = excluded.casualties`
	if _, err := s.db.NamedExecContext(ctx, query, b); err != nil {
		return fmt.Errorf("store: put battle %s: %w", b.ID, err)
	}
	return nil
}

// GetBattle retrieves a battle by id. Returns (nil, nil) when absent.
func (s *Store) GetBattle(ctx context.Context, id string) (*types.Battle, error) {
	var b types.Battle
	err := s.db.GetContext(ctx, &b, `
		SELECT id, territory_id, attacker, defender, attacker_strength,
			defender_strength, status, casualties, started_at
		FROM battles WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get battle %s: %w", id, err)
	}
	return &b, nil
}

// ListBattles returns battles, optionally filtered by status. An empty
// status returns every battle.
func (s *Store) ListBattles(ctx context.Context, status types.BattleStatus) ([]types.Battle, error) {
	query := `
		SELECT id, territory_id, attacker, defender, attacker_strength,
			defender_strength, status, casualties, started_at
		FROM battles`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY started_at, id`

	var battles []types.Battle
	if err := s.db.SelectContext(ctx, &battles, query, args...); err != nil {
		return nil, fmt.Errorf("store: list battles: %w", err)
	}
	return battles, nil
}
