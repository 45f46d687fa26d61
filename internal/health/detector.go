package health

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pulseengine/pulse/pkg/errors"
	"github.com/pulseengine/pulse/pkg/types"
)

// Weights assigns the relative importance of the five health dimensions.
// The weights must sum to 1.0.
type Weights struct {
	Funding      float64 `json:"funding"`
	People       float64 `json:"people"`
	Momentum     float64 `json:"momentum"`
	Ownership    float64 `json:"ownership"`
	Completeness float64 `json:"completeness"`
}

// Thresholds holds the domain thresholds need detection fires on. These are
// illustrative defaults; operators should calibrate them against real
// historical data.
type Thresholds struct {
	// CriticalFundingGap is the absolute gap at or above which a funding
	// need is critical.
	CriticalFundingGap decimal.Decimal `json:"critical_funding_gap"`
	// EngagementWindowDays is the rolling window engagement counts cover.
	EngagementWindowDays int `json:"engagement_window_days"`
	// LowEngagementCount is the minimum events expected within the window.
	LowEngagementCount int `json:"low_engagement_count"`
	// HealthyEngagement is the event count that earns a full people score.
	HealthyEngagement int `json:"healthy_engagement"`
	// StaleActivityDays is the inactivity span that fires a momentum need.
	StaleActivityDays int `json:"stale_activity_days"`
	// MomentumDecayDays is the inactivity span at which momentum reaches 0.
	MomentumDecayDays int `json:"momentum_decay_days"`
	// MinFieldCoverage is the required-field coverage below which a
	// completeness need fires.
	MinFieldCoverage float64 `json:"min_field_coverage"`
}

// Config contains health scoring configuration
type Config struct {
	Weights Weights `json:"weights"`
	// Neutral is the dimension score assigned when a dimension's inputs are
	// missing, so incompleteness is penalized only through the completeness
	// dimension rather than cratering the others.
	Neutral    float64    `json:"neutral"`
	Thresholds Thresholds `json:"thresholds"`
}

// DefaultConfig returns default health scoring configuration
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			Funding:      0.25,
			People:       0.25,
			Momentum:     0.20,
			Ownership:    0.20,
			Completeness: 0.10,
		},
		Neutral: 50,
		Thresholds: Thresholds{
			CriticalFundingGap:   decimal.NewFromInt(20000),
			EngagementWindowDays: 90,
			LowEngagementCount:   1,
			HealthyEngagement:    20,
			StaleActivityDays:    45,
			MomentumDecayDays:    90,
			MinFieldCoverage:     0.5,
		},
	}
}

// Validate checks the configuration; violations are fatal at startup.
func (c Config) Validate() error {
	sum := c.Weights.Funding + c.Weights.People + c.Weights.Momentum +
		c.Weights.Ownership + c.Weights.Completeness
	if math.Abs(sum-1.0) > 1e-9 {
		return errors.NewConfigurationError(
			fmt.Sprintf("health dimension weights must sum to 1.0, got %v", sum))
	}
	if c.Neutral < 0 || c.Neutral > 100 {
		return errors.NewConfigurationError("neutral score must be in [0,100]")
	}
	if c.Thresholds.CriticalFundingGap.IsNegative() {
		return errors.NewConfigurationError("critical funding gap must not be negative")
	}
	if c.Thresholds.EngagementWindowDays <= 0 || c.Thresholds.HealthyEngagement <= 0 ||
		c.Thresholds.StaleActivityDays <= 0 || c.Thresholds.MomentumDecayDays <= 0 {
		return errors.NewConfigurationError("health day windows and engagement targets must be positive")
	}
	if c.Thresholds.MinFieldCoverage < 0 || c.Thresholds.MinFieldCoverage > 1 {
		return errors.NewConfigurationError("min field coverage must be in [0,1]")
	}
	return nil
}

// Detector computes per-entity health scores and derives needs. It is a
// pure function over the entities it is given plus the reference time.
type Detector struct {
	config Config
}

// NewDetector creates a new detector, validating its configuration.
func NewDetector(config Config) (*Detector, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Detector{config: config}, nil
}

// ScoreAll computes health scores for all entities, sorted by entity id.
func (d *Detector) ScoreAll(entities []types.Entity, now time.Time) []types.HealthScore {
	scores := make([]types.HealthScore, 0, len(entities))
	for _, e := range entities {
		scores = append(scores, d.ScoreEntity(e, now))
	}

	sort.Slice(scores, func(i, j int) bool { return scores[i].EntityID < scores[j].EntityID })
	return scores
}

// ScoreEntity computes one entity's health score. Every dimension is
// clamped to [0,100] before weighting and the overall score is the rounded
// weighted sum, so it is always within [0,100] too.
func (d *Detector) ScoreEntity(e types.Entity, now time.Time) types.HealthScore {
	dims := types.DimensionScores{
		Funding:      d.fundingScore(e),
		People:       d.peopleScore(e),
		Momentum:     d.momentumScore(e, now),
		Ownership:    d.ownershipScore(e),
		Completeness: clamp(e.Coverage() * 100),
	}

	w := d.config.Weights
	overall := w.Funding*dims.Funding +
		w.People*dims.People +
		w.Momentum*dims.Momentum +
		w.Ownership*dims.Ownership +
		w.Completeness*dims.Completeness

	return types.HealthScore{
		EntityID:   e.ID,
		Overall:    int(math.Round(overall)),
		Dimensions: dims,
		ComputedAt: now,
	}
}

// fundingScore scales received funding against the target. Entities without
// funding data get the neutral score.
func (d *Detector) fundingScore(e types.Entity) float64 {
	if !e.Has(types.FieldFundingTarget) || !e.Has(types.FieldFundingReceived) {
		return d.config.Neutral
	}
	if e.FundingTarget.IsZero() {
		// Nothing to raise; funded by definition.
		return 100
	}

	ratio, _ := e.FundingReceived.Div(e.FundingTarget).Float64()
	return clamp(ratio * 100)
}

// peopleScore scales engagement events within the rolling window against
// the healthy-engagement target.
func (d *Detector) peopleScore(e types.Entity) float64 {
	if !e.Has(types.FieldEngagementEvents) {
		return d.config.Neutral
	}

	target := float64(d.config.Thresholds.HealthyEngagement)
	return clamp(float64(e.EngagementEvents) / target * 100)
}

// momentumScore decays linearly with time since the last recorded activity,
// reaching zero at MomentumDecayDays.
func (d *Detector) momentumScore(e types.Entity, now time.Time) float64 {
	if !e.Has(types.FieldLastActivityAt) {
		return d.config.Neutral
	}

	days := now.Sub(e.LastActivityAt).Hours() / 24
	if days < 0 {
		days = 0
	}
	decay := float64(d.config.Thresholds.MomentumDecayDays)
	return clamp(100 * (1 - days/decay))
}

// ownershipScore rewards entities with active owners; two or more earn the
// full score.
func (d *Detector) ownershipScore(e types.Entity) float64 {
	if !e.Has(types.FieldOwnerCount) {
		return d.config.Neutral
	}

	return clamp(float64(e.OwnerCount) * 50)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
