package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	BillingCycleMonthly = "monthly"
	BillingCycleYearly  = "yearly"
)

// Plan is one row of the pricing lookup table. Prices are minor units.
type Plan struct {
	ID           string   `mapstructure:"id" json:"id"`
	Name         string   `mapstructure:"name" json:"name"`
	Currency     string   `mapstructure:"currency" json:"currency"`
	MonthlyPrice int64    `mapstructure:"monthlyPrice" json:"monthly_price"`
	YearlyPrice  int64    `mapstructure:"yearlyPrice" json:"yearly_price"`
	Seats        int      `mapstructure:"seats" json:"seats"`
	Features     []string `mapstructure:"features" json:"features"`
}

// PriceFor returns the plan price for a billing cycle.
func (p Plan) PriceFor(cycle string) (int64, bool) {
	switch cycle {
	case BillingCycleMonthly:
		return p.MonthlyPrice, true
	case BillingCycleYearly:
		return p.YearlyPrice, true
	default:
		return 0, false
	}
}

type PlanCatalog struct {
	DefaultPlan string `mapstructure:"defaultPlan" json:"default_plan"`
	Plans       []Plan `mapstructure:"plans" json:"plans"`
}

func DefaultPlanCatalog() PlanCatalog {
	return PlanCatalog{
		DefaultPlan: "starter",
		Plans: []Plan{
			{ID: "free", Name: "Free", Currency: "USD", MonthlyPrice: 0, YearlyPrice: 0, Seats: 1, Features: []string{"1 workspace"}},
			{ID: "starter", Name: "Starter", Currency: "USD", MonthlyPrice: 1_900, YearlyPrice: 19_000, Seats: 3, Features: []string{"3 seats", "email support"}},
			{ID: "team", Name: "Team", Currency: "USD", MonthlyPrice: 4_900, YearlyPrice: 49_000, Seats: 10, Features: []string{"10 seats", "shared records", "priority support"}},
			{ID: "enterprise", Name: "Enterprise", Currency: "USD", MonthlyPrice: 19_900, YearlyPrice: 199_000, Seats: 100, Features: []string{"SSO", "audit log", "dedicated support"}},
		},
	}
}

// Lookup finds a plan by id.
func (c PlanCatalog) Lookup(id string) (Plan, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, plan := range c.Plans {
		if plan.ID == id {
			return plan, true
		}
	}
	return Plan{}, false
}

// PlanCatalogHolder keeps the current catalog and swaps it on file change.
type PlanCatalogHolder struct {
	current atomic.Value // holds PlanCatalog
}

// NewStaticPlanCatalogHolder wraps a fixed catalog, mostly for tests.
func NewStaticPlanCatalogHolder(catalog PlanCatalog) *PlanCatalogHolder {
	holder := &PlanCatalogHolder{}
	holder.current.Store(catalog)
	return holder
}

func NewPlanCatalogHolder(cfg Config, log *zap.Logger) (*PlanCatalogHolder, error) {
	v := viper.New()

	if cfg.PlansConfigPath != "" {
		v.SetConfigFile(cfg.PlansConfigPath)
	} else {
		v.SetConfigName("plans")
		v.SetConfigType("yml")
		v.AddConfigPath("/var/lib/launchpad/config") // Volume-mounted config
		v.AddConfigPath("/etc/launchpad")            // System config
		v.AddConfigPath(".")                         // Current directory (dev mode)
	}

	v.SetEnvPrefix("LAUNCHPAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPlanCatalog()
	fromFile := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if cfg.PlansConfigPath == "" {
				return nil, err
			}
			// explicit path that cannot be read
			log.Warn("plans config unreadable, using defaults", zap.String("path", cfg.PlansConfigPath), zap.Error(err))
		}
		fromFile = false
	}

	catalog := defaults
	if fromFile {
		var parsed PlanCatalog
		if err := v.UnmarshalKey("pricing", &parsed); err != nil {
			return nil, err
		}
		catalog = parsed
	}
	catalog = normalizeCatalog(catalog)
	if err := ValidatePlanCatalog(catalog); err != nil {
		return nil, err
	}

	holder := &PlanCatalogHolder{}
	holder.current.Store(catalog)

	if fromFile {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated PlanCatalog
			if err := v.UnmarshalKey("pricing", &updated); err != nil {
				log.Warn("plans config reload failed", zap.Error(err))
				return
			}
			updated = normalizeCatalog(updated)
			if err := ValidatePlanCatalog(updated); err != nil {
				log.Warn("invalid plans config ignored", zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("plans config reloaded", zap.String("file", e.Name))
		})
	}

	return holder, nil
}

func (h *PlanCatalogHolder) Get() PlanCatalog {
	return h.current.Load().(PlanCatalog)
}

// Lookup finds a plan in the current catalog.
func (h *PlanCatalogHolder) Lookup(id string) (Plan, bool) {
	return h.Get().Lookup(id)
}

func (h *PlanCatalogHolder) List() []Plan {
	plans := h.Get().Plans
	out := make([]Plan, len(plans))
	copy(out, plans)
	return out
}

func normalizeCatalog(c PlanCatalog) PlanCatalog {
	c.DefaultPlan = strings.ToLower(strings.TrimSpace(c.DefaultPlan))
	for i := range c.Plans {
		c.Plans[i].ID = strings.ToLower(strings.TrimSpace(c.Plans[i].ID))
		c.Plans[i].Currency = strings.ToUpper(strings.TrimSpace(c.Plans[i].Currency))
	}
	return c
}

func ValidatePlanCatalog(c PlanCatalog) error {
	if len(c.Plans) == 0 {
		return errors.New("pricing.plans cannot be empty")
	}
	seen := make(map[string]struct{}, len(c.Plans))
	for _, plan := range c.Plans {
		if plan.ID == "" {
			return errors.New("pricing.plans[].id cannot be empty")
		}
		if _, ok := seen[plan.ID]; ok {
			return fmt.Errorf("pricing.plans: duplicate plan %q", plan.ID)
		}
		seen[plan.ID] = struct{}{}
		if plan.MonthlyPrice < 0 || plan.YearlyPrice < 0 {
			return fmt.Errorf("pricing.plans: negative price for %q", plan.ID)
		}
	}
	if c.DefaultPlan != "" {
		if _, ok := seen[c.DefaultPlan]; !ok {
			return fmt.Errorf("pricing.defaultPlan %q is not a plan", c.DefaultPlan)
		}
	}
	return nil
}
