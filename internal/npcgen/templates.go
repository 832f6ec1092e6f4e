package npcgen

import "github.com/solmae/animus/pkg/types"

// Archetype keys accepted by [Generator.Mint].
const (
	RoleGatekeeper = "gatekeeper"
	RoleGuard      = "guard"
	RoleMerchant   = "merchant"
	RoleCivilian   = "civilian"
	RoleScholar    = "scholar"
	RoleWarrior    = "warrior"
)

// roleOrder fixes archetype iteration so random picks replay identically
// from a given dice stream.
var roleOrder = []string{
	RoleGatekeeper, RoleGuard, RoleMerchant, RoleCivilian, RoleScholar, RoleWarrior,
}

// roleTemplate describes one archetype: the display roles, duty zones and
// speaking styles it draws from, the trait ranges that make the role
// recognisable, and the faction a fresh recruit joins.
type roleTemplate struct {
	roles   []string
	zones   []string
	styles  []string
	traits  map[types.Trait][2]float64
	faction string
}

var roleTemplates = map[string]roleTemplate{
	RoleGatekeeper: {
		roles:  []string{"Guarded Gatekeeper", "Suspicious Watchman", "Vigilant Sentry"},
		zones:  []string{"gates", "northern_pass", "docks"},
		styles: []string{"Direct and cautious", "Questioning and skeptical", "Blunt and defensive"},
		traits: map[types.Trait][2]float64{
			types.TraitParanoia:   {0.6, 0.9},
			types.TraitDiscipline: {0.5, 0.8},
		},
		faction: "guards",
	},
	RoleGuard: {
		roles:  []string{"Disciplined Protector", "Veteran Soldier", "Elite Defender"},
		zones:  []string{"gates", "market", "old_quarter"},
		styles: []string{"Military formal", "Strict and commanding", "Professional and direct"},
		traits: map[types.Trait][2]float64{
			types.TraitDiscipline: {0.7, 0.9},
			types.TraitAggression: {0.4, 0.7},
		},
		faction: "guards",
	},
	RoleMerchant: {
		roles:  []string{"Opportunistic Trader", "Shrewd Dealer", "Cunning Broker"},
		zones:  []string{"market", "docks", "slums"},
		styles: []string{"Friendly but calculating", "Persuasive", "Business-focused"},
		traits: map[types.Trait][2]float64{
			types.TraitOpportunism: {0.7, 0.95},
			types.TraitCuriosity:   {0.6, 0.8},
		},
		faction: "traders",
	},
	RoleCivilian: {
		roles:  []string{"Cautious Survivor", "Weary Refugee", "Hopeful Settler"},
		zones:  []string{"old_quarter", "slums", "market"},
		styles: []string{"Nervous and careful", "Grateful but scared", "Hopeful"},
		traits: map[types.Trait][2]float64{
			types.TraitEmpathy: {0.5, 0.8},
		},
		faction: "citizens",
	},
	RoleScholar: {
		roles:  []string{"Wise Researcher", "Curious Academic", "Knowledge Keeper"},
		zones:  []string{"old_quarter", "market"},
		styles: []string{"Analytical and thoughtful", "Inquisitive", "Educational"},
		traits: map[types.Trait][2]float64{
			types.TraitCuriosity:  {0.8, 0.95},
			types.TraitDiscipline: {0.6, 0.8},
		},
		faction: "citizens",
	},
	RoleWarrior: {
		roles:  []string{"Battle-Hardened Fighter", "Fierce Combatant", "Tactical Warrior"},
		zones:  []string{"northern_pass", "slums"},
		styles: []string{"Aggressive and confident", "Strategic", "Direct and forceful"},
		traits: map[types.Trait][2]float64{
			types.TraitAggression:    {0.7, 0.9},
			types.TraitRiskTolerance: {0.6, 0.8},
		},
		faction: "outcasts",
	},
}

// roleGoals maps each archetype to its standing objective. Zone-bound
// objectives get the duty zone as target at mint time.
var roleGoals = map[string]types.Goal{
	RoleGatekeeper: {Type: types.GoalProtect, Description: "Keep the gate secure", Priority: 0.7},
	RoleGuard:      {Type: types.GoalProtect, Description: "Maintain order", Priority: 0.7},
	RoleMerchant:   {Type: types.GoalTrade, Description: "Maximize profit", Priority: 0.6},
	RoleCivilian:   {Type: types.GoalSurvive, Description: "Stay alive another day", Priority: 0.95},
	RoleScholar:    {Type: types.GoalAcquire, Description: "Gather knowledge", Priority: 0.5},
	RoleWarrior:    {Type: types.GoalTerritory, Description: "Protect our territory", Priority: 0.75},
}

var (
	firstNames = []string{
		"Marcus", "Elena", "Kai", "Zara", "Dmitri", "Aria", "Cole", "Nora",
		"Jax", "Luna", "Rafe", "Iris", "Silas", "Maya", "Finn", "Sage",
	}
	lastNames = []string{
		"Cross", "Stone", "Rivers", "Steel", "Ash", "North", "West", "Gray",
		"Black", "White", "Green", "Vale", "Hunt", "Fox", "Wolf", "Hawk",
	}
)

// fullNameChance is how often a rolled name carries a family name.
const fullNameChance = 0.6

// backstoryTemplates are filled with {name}, {role} and {zone}.
var backstoryTemplates = []string{
	"{name} has been working as a {role} at {zone} for several years. Trust is earned through actions, not words.",
	"A survivor who found purpose as a {role}. {name} protects {zone} with unwavering dedication.",
	"Former wanderer turned {role}. {name} knows the harsh realities of the roads and guards {zone} carefully.",
	"{name} arrived at {zone} seeking safety and stayed to serve as {role}. Loyalty is paramount.",
	"Experienced {role} at {zone}. {name} has seen both the best and worst of humanity.",
}

// zoneDisplay renders territory ids for prose.
var zoneDisplay = map[string]string{
	"gates":         "the city gates",
	"market":        "the market square",
	"docks":         "the docks",
	"slums":         "the slums",
	"old_quarter":   "the old quarter",
	"northern_pass": "the northern pass",
}

func displayZone(zone string) string {
	if d, ok := zoneDisplay[zone]; ok {
		return d
	}
	return zone
}
