package plan

import (
	"encoding/json"
	"strings"

	"github.com/aiorreal/quota-service/internal/logger"
	"github.com/aiorreal/quota-service/internal/models"
	"github.com/aiorreal/quota-service/pkg/utils"
)

// Plan is one catalog entry: quota amount and cycle for a product class.
type Plan struct {
	ID         string   `json:"planId"`
	Key        string   `json:"planKey"`
	Cycle      string   `json:"cycle"`
	Quota      int      `json:"quota"`
	ProductIDs []string `json:"productIds"`
}

// Free reports whether this is the free tier.
func (p Plan) Free() bool { return p.ID == PlanFree }

// Canonical plan ids
const (
	PlanFree           = "free"
	PlanPremiumMonthly = "premium_monthly"
	PlanPremiumYearly  = "premium_yearly"
)

// Catalog is a process-wide immutable plan table, loaded once at startup.
type Catalog struct {
	plans []Plan
	byID  map[string]Plan
}

func defaults() []Plan {
	return []Plan{
		{
			ID:    PlanFree,
			Key:   "free",
			Cycle: models.CycleMonthly,
			Quota: 2,
		},
		{
			ID:         PlanPremiumMonthly,
			Key:        "premium",
			Cycle:      models.CycleMonthly,
			Quota:      100,
			ProductIDs: []string{"aiorreal-monthly", "aiorreal_premium_monthly"},
		},
		{
			ID:         PlanPremiumYearly,
			Key:        "premium",
			Cycle:      models.CycleYearly,
			Quota:      1000,
			ProductIDs: []string{"aiorreal-yearly", "aiorreal-annual", "aiorreal_premium_yearly"},
		},
	}
}

// Default returns the embedded catalog.
func Default() *Catalog {
	return newCatalog(defaults())
}

// Load builds a catalog from a configuration string. The expected shape is
// either a JSON array of plan entries or an object with a "plans" array.
// Malformed configuration logs a warning and falls back to the defaults;
// startup never fails on catalog parsing.
func Load(configJSON string) *Catalog {
	if strings.TrimSpace(configJSON) == "" {
		return Default()
	}

	plans, err := parse(configJSON)
	if err != nil {
		logger.Warn("Plan catalog override is malformed; using defaults",
			"error", err,
			"config", utils.Truncate(configJSON, 200),
		)
		return Default()
	}
	if len(plans) == 0 {
		logger.Warn("Plan catalog override is empty; using defaults")
		return Default()
	}
	return newCatalog(plans)
}

func parse(configJSON string) ([]Plan, error) {
	data := []byte(configJSON)

	var plans []Plan
	if err := json.Unmarshal(data, &plans); err == nil {
		return plans, nil
	}

	var wrapper struct {
		Plans []Plan `json:"plans"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, err
	}
	return wrapper.Plans, nil
}

func newCatalog(plans []Plan) *Catalog {
	byID := make(map[string]Plan, len(plans))
	for _, p := range plans {
		byID[strings.ToLower(p.ID)] = p
	}
	return &Catalog{plans: plans, byID: byID}
}

// GetByID looks up a plan by exact, case-insensitive plan id.
func (c *Catalog) GetByID(planID string) (Plan, bool) {
	p, ok := c.byID[strings.ToLower(strings.TrimSpace(planID))]
	return p, ok
}

// Resolve maps an opaque product or plan identifier to a catalog entry.
// Providers report non-canonical product identifiers, so substring matching
// absorbs store-prefix variation. Rules, tried in order:
//  1. candidate contains "aiorreal-monthly" -> monthly premium;
//     "aiorreal-yearly" or "aiorreal-annual" -> yearly premium
//  2. exact plan id match
//  3. any registered product id is a substring of the candidate
func (c *Catalog) Resolve(candidate string) (Plan, bool) {
	s := strings.ToLower(strings.TrimSpace(candidate))
	if s == "" {
		return Plan{}, false
	}

	if strings.Contains(s, "aiorreal-monthly") {
		if p, ok := c.byID[PlanPremiumMonthly]; ok {
			return p, true
		}
	}
	if utils.ContainsAny(s, []string{"aiorreal-yearly", "aiorreal-annual"}) {
		if p, ok := c.byID[PlanPremiumYearly]; ok {
			return p, true
		}
	}

	if p, ok := c.byID[s]; ok {
		return p, true
	}

	for _, p := range c.plans {
		for _, pid := range p.ProductIDs {
			if pid != "" && strings.Contains(s, strings.ToLower(pid)) {
				return p, true
			}
		}
	}

	return Plan{}, false
}
