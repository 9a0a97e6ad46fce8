package engine

import (
	"github.com/caarlos0/env/v11"
	"github.com/rotisserie/eris"
)

// BlowoutModel selects which blowout-classification formulation is used.
type BlowoutModel int

const (
	// BlowoutModelThreshold compares a skill/imbalance score against the
	// mild/moderate/severe thresholds. The default.
	BlowoutModelThreshold BlowoutModel = iota
	// BlowoutModelBernoulli draws an explicit Bernoulli with the score as
	// the success probability.
	BlowoutModelBernoulli
)

// RetentionModel selects which continuation-probability formulation is used.
type RetentionModel int

const (
	// RetentionModelLogistic computes P(continue) as a sigmoid over the
	// weighted recent-experience terms.
	RetentionModelLogistic RetentionModel = iota
	// RetentionModelSimplified subtracts bounded penalties from each
	// player's base continuation probability.
	RetentionModelSimplified
)

// RetentionParams bundles the retention-model coefficients.
type RetentionParams struct {
	Base         float64
	ThetaPing    float64
	ThetaSearch  float64
	ThetaBlowout float64
	ThetaWin     float64
	ThetaPerf    float64
	Floor        float64
	// ExperienceWindow caps how many recent matches feed the rolling
	// averages. Clamped to historyCap.
	ExperienceWindow int
}

// RegionOverride holds a subset of Config fields that can be overridden
// per-region. A nil pointer means "inherit the global Config value".
type RegionOverride struct {
	MaxPing   *float64
	WeightGeo *float64
}

// Config holds every tunable parameter of the simulation. Zero-value
// Config is invalid; use DefaultConfig() and override.
type Config struct {
	MaxPing float64 `env:"MATCHSIM_MAX_PING" envDefault:"200"`

	DeltaPingInitial float64 `env:"MATCHSIM_DELTA_PING_INITIAL" envDefault:"10"`
	DeltaPingRate    float64 `env:"MATCHSIM_DELTA_PING_RATE" envDefault:"2"`
	DeltaPingMax     float64 `env:"MATCHSIM_DELTA_PING_MAX" envDefault:"100"`

	SkillSimilarityInitial float64 `env:"MATCHSIM_SKILL_SIM_INITIAL" envDefault:"0.05"`
	SkillSimilarityRate    float64 `env:"MATCHSIM_SKILL_SIM_RATE" envDefault:"0.01"`
	SkillSimilarityMax     float64 `env:"MATCHSIM_SKILL_SIM_MAX" envDefault:"0.5"`

	MaxSkillDisparityInitial float64 `env:"MATCHSIM_SKILL_DISPARITY_INITIAL" envDefault:"0.1"`
	MaxSkillDisparityRate    float64 `env:"MATCHSIM_SKILL_DISPARITY_RATE" envDefault:"0.02"`
	MaxSkillDisparityMax     float64 `env:"MATCHSIM_SKILL_DISPARITY_MAX" envDefault:"0.8"`

	WeightGeo      float64 `env:"MATCHSIM_WEIGHT_GEO" envDefault:"0.3"`
	WeightSkill    float64 `env:"MATCHSIM_WEIGHT_SKILL" envDefault:"0.4"`
	WeightInput    float64 `env:"MATCHSIM_WEIGHT_INPUT" envDefault:"0.15"`
	WeightPlatform float64 `env:"MATCHSIM_WEIGHT_PLATFORM" envDefault:"0.15"`

	QualityWeightPing         float64 `env:"MATCHSIM_QW_PING" envDefault:"0.4"`
	QualityWeightSkillBalance float64 `env:"MATCHSIM_QW_SKILL_BALANCE" envDefault:"0.4"`
	QualityWeightWaitTime     float64 `env:"MATCHSIM_QW_WAIT_TIME" envDefault:"0.2"`

	TickIntervalSeconds float64 `env:"MATCHSIM_TICK_INTERVAL" envDefault:"5"`
	NumSkillBuckets     int     `env:"MATCHSIM_NUM_SKILL_BUCKETS" envDefault:"10"`
	TopKCandidates      int     `env:"MATCHSIM_TOP_K" envDefault:"50"`

	// ArrivalRate is the expected Poisson arrivals per tick. Negative means
	// auto-scale to 0.2% of the population per tick; zero disables arrivals.
	ArrivalRate float64 `env:"MATCHSIM_ARRIVAL_RATE" envDefault:"-1"`

	PartyPlayerFraction float64 `env:"MATCHSIM_PARTY_FRACTION" envDefault:"0.2"`

	Gamma float64 `env:"MATCHSIM_GAMMA" envDefault:"2.0"`

	BlowoutModel              BlowoutModel
	BlowoutSkillCoefficient   float64 `env:"MATCHSIM_BLOWOUT_SKILL_COEF" envDefault:"0.6"`
	BlowoutImbalanceCoefficient float64 `env:"MATCHSIM_BLOWOUT_IMBALANCE_COEF" envDefault:"0.4"`
	BlowoutMildThreshold      float64 `env:"MATCHSIM_BLOWOUT_MILD" envDefault:"0.2"`
	BlowoutModerateThreshold  float64 `env:"MATCHSIM_BLOWOUT_MODERATE" envDefault:"0.45"`
	BlowoutSevereThreshold    float64 `env:"MATCHSIM_BLOWOUT_SEVERE" envDefault:"0.7"`

	EnableSkillEvolution   bool    `env:"MATCHSIM_ENABLE_SKILL_EVOLUTION" envDefault:"false"`
	SkillLearningRate      float64 `env:"MATCHSIM_SKILL_LEARNING_RATE" envDefault:"0.05"`
	PerformanceNoiseStd    float64 `env:"MATCHSIM_PERFORMANCE_NOISE_STD" envDefault:"0.15"`
	SkillUpdateBatchSize   int     `env:"MATCHSIM_SKILL_UPDATE_BATCH_SIZE" envDefault:"200"`

	UseExactTeamBalancing bool `env:"MATCHSIM_EXACT_TEAM_BALANCING" envDefault:"true"`

	// AllowUnderfullLobbies permits committing a short lobby once every
	// member has waited at least UnderfullWaitFloorSeconds.
	AllowUnderfullLobbies    bool    `env:"MATCHSIM_ALLOW_UNDERFULL" envDefault:"false"`
	UnderfullWaitFloorSeconds float64 `env:"MATCHSIM_UNDERFULL_WAIT_FLOOR" envDefault:"120"`

	// EnableServerCapacityGuard turns on feasibility rule 5 (DC capacity
	// check under the candidate playlist).
	EnableServerCapacityGuard bool `env:"MATCHSIM_CAPACITY_GUARD" envDefault:"false"`

	RetentionModel RetentionModel
	Retention      RetentionParams

	RegionOverrides map[Region]RegionOverride
}

// DefaultConfig returns a Config with every field set to its documented
// default.
func DefaultConfig() Config {
	return Config{
		MaxPing:                  200,
		DeltaPingInitial:         10,
		DeltaPingRate:            2,
		DeltaPingMax:             100,
		SkillSimilarityInitial:   0.05,
		SkillSimilarityRate:      0.01,
		SkillSimilarityMax:       0.5,
		MaxSkillDisparityInitial: 0.1,
		MaxSkillDisparityRate:    0.02,
		MaxSkillDisparityMax:     0.8,
		WeightGeo:                0.3,
		WeightSkill:              0.4,
		WeightInput:              0.15,
		WeightPlatform:           0.15,
		QualityWeightPing:        0.4,
		QualityWeightSkillBalance: 0.4,
		QualityWeightWaitTime:    0.2,
		TickIntervalSeconds:      5,
		NumSkillBuckets:          10,
		TopKCandidates:           50,
		ArrivalRate:              -1,
		PartyPlayerFraction:      0.2,
		Gamma:                    2.0,
		BlowoutModel:             BlowoutModelThreshold,
		BlowoutSkillCoefficient:  0.6,
		BlowoutImbalanceCoefficient: 0.4,
		BlowoutMildThreshold:     0.2,
		BlowoutModerateThreshold: 0.45,
		BlowoutSevereThreshold:   0.7,
		EnableSkillEvolution:     false,
		SkillLearningRate:        0.05,
		PerformanceNoiseStd:      0.15,
		SkillUpdateBatchSize:     200,
		UseExactTeamBalancing:    true,
		AllowUnderfullLobbies:    false,
		UnderfullWaitFloorSeconds: 120,
		RetentionModel:           RetentionModelLogistic,
		Retention: RetentionParams{
			Base:             1.2,
			ThetaPing:        -0.01,
			ThetaSearch:      -0.004,
			ThetaBlowout:     -1.0,
			ThetaWin:         0.6,
			ThetaPerf:        0.4,
			Floor:            0.3,
			ExperienceWindow: 10,
		},
	}
}

// ApplyEnv overrides tagged fields from environment variables. Fields
// without an `env` tag (enums, nested structs) are left untouched.
func (c *Config) ApplyEnv() error {
	if err := env.Parse(c); err != nil {
		return eris.Wrap(err, "failed to apply environment overrides to config")
	}
	return nil
}

// Validate rejects out-of-range or inconsistent configuration at
// construction time. It also clamps Retention.ExperienceWindow into the
// history-ring capacity.
func (c *Config) Validate() error {
	switch {
	case c.MaxPing <= 0:
		return eris.New("MaxPing must be positive")
	case c.DeltaPingInitial < 0 || c.DeltaPingRate < 0 || c.DeltaPingMax < c.DeltaPingInitial:
		return eris.New("invalid delta-ping backoff curve")
	case c.SkillSimilarityInitial < 0 || c.SkillSimilarityRate < 0 || c.SkillSimilarityMax < c.SkillSimilarityInitial:
		return eris.New("invalid skill-similarity backoff curve")
	case c.MaxSkillDisparityInitial < 0 || c.MaxSkillDisparityRate < 0 || c.MaxSkillDisparityMax < c.MaxSkillDisparityInitial:
		return eris.New("invalid skill-disparity backoff curve")
	case c.TickIntervalSeconds <= 0:
		return eris.New("TickIntervalSeconds must be positive")
	case c.NumSkillBuckets <= 0:
		return eris.New("NumSkillBuckets must be positive")
	case c.TopKCandidates <= 0:
		return eris.New("TopKCandidates must be positive")
	case c.PartyPlayerFraction < 0 || c.PartyPlayerFraction > 1:
		return eris.New("PartyPlayerFraction must be in [0, 1]")
	case c.Gamma <= 0:
		return eris.New("Gamma must be positive")
	case c.BlowoutMildThreshold >= c.BlowoutModerateThreshold || c.BlowoutModerateThreshold >= c.BlowoutSevereThreshold:
		return eris.New("blowout thresholds must be strictly increasing: mild < moderate < severe")
	case c.SkillUpdateBatchSize <= 0:
		return eris.New("SkillUpdateBatchSize must be positive")
	case c.Retention.Floor <= 0 || c.Retention.Floor >= 1:
		return eris.New("Retention.Floor must be in (0, 1)")
	case c.Retention.ExperienceWindow <= 0:
		return eris.New("Retention.ExperienceWindow must be positive")
	}
	if c.Retention.ExperienceWindow > historyCap {
		c.Retention.ExperienceWindow = historyCap
	}
	return nil
}

// effectiveMaxPing returns MaxPing, overridden per-region if configured.
func (c Config) effectiveMaxPing(r Region) float64 {
	if ov, ok := c.RegionOverrides[r]; ok && ov.MaxPing != nil {
		return *ov.MaxPing
	}
	return c.MaxPing
}

// effectiveWeightGeo returns WeightGeo, overridden per-region if configured.
func (c Config) effectiveWeightGeo(r Region) float64 {
	if ov, ok := c.RegionOverrides[r]; ok && ov.WeightGeo != nil {
		return *ov.WeightGeo
	}
	return c.WeightGeo
}
