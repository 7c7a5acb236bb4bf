package ckbdynamic

import "log/slog"

// Config holds every recognised generator parameter from spec.md §6.
// It is intentionally a plain, YAML-serializable struct (mirrors
// cluster.ClusterConfig): pkg/config layers file loading and
// go-playground/validator struct-tag checks on top of it, while the
// cross-field feasibility check that needs the constructed distributions
// lives in New.
type Config struct {
	N            int `yaml:"n" validate:"required,gte=1"`
	NumTimesteps int `yaml:"numTimesteps" validate:"gte=0"`

	MinCommunitySize       int     `yaml:"minCommunitySize" validate:"required,gte=1"`
	MaxCommunitySize       int     `yaml:"maxCommunitySize" validate:"required,gtefield=MinCommunitySize"`
	CommunitySizeExponent  float64 `yaml:"communitySizeExponent" validate:"gte=0"`

	MinCommunityMembership      int     `yaml:"minCommunityMembership" validate:"required,gte=1"`
	MaxCommunityMembership      int     `yaml:"maxCommunityMembership" validate:"required,gtefield=MinCommunityMembership"`
	CommunityMembershipExponent float64 `yaml:"communityMembershipExponent" validate:"gte=0"`

	IntraCommunityEdgeProbability float64 `yaml:"intraCommunityEdgeProbability" validate:"gt=0,lte=1"`
	IntraCommunityEdgeExponent    float64 `yaml:"intraCommunityEdgeExponent" validate:"gte=0"`

	Epsilon float64 `yaml:"epsilon" validate:"gte=0,lte=1"`

	EdgeSharpness float64 `yaml:"edgeSharpness" validate:"gt=0,lte=1"`

	CommunityEventProbability float64 `yaml:"communityEventProbability" validate:"gte=0,lte=1"`
	NodeEventProbability      float64 `yaml:"nodeEventProbability" validate:"gte=0,lte=1"`
	PerturbationProbability   float64 `yaml:"perturbationProbability" validate:"gte=0,lte=1"`

	TEffect int    `yaml:"tEffect" validate:"required,gte=1"`
	Seed    uint64 `yaml:"seed"`

	// LegacyMergeBias reproduces the original NetworKit merge-partner draw
	// (ia in [0,N), ib in [1,N), collision forced to ib=0), which slightly
	// over-represents community index 0 as a merge partner. Default true
	// to match upstream; set false for an unbiased draw. See spec.md §9.
	LegacyMergeBias bool `yaml:"legacyMergeBias"`

	// Debug enables InternalInvariantViolated assertions on solver
	// postconditions (spec.md §7); off by default.
	Debug bool `yaml:"debug"`

	// SizeDistribution and MembershipDistribution let a caller substitute
	// the empirical (G,C)-backed samplers spec.md §4.1 describes; when nil
	// the engine builds the analytic power-law distributions from the
	// fields above.
	SizeDistribution       SizeDistribution       `yaml:"-"`
	MembershipDistribution MembershipDistribution `yaml:"-"`

	// Logger receives per-run diagnostics (§10.2); defaults to a
	// tint-backed slog.Logger writing to stderr when nil.
	Logger *slog.Logger `yaml:"-"`

	// Metrics receives per-timestep and per-solver-run statistics
	// (§11); nil-safe, like middleware.Metrics's recorder.
	Metrics EngineMetrics `yaml:"-"`
}

// DefaultConfig returns reasonable analytic power-law defaults.
func DefaultConfig() Config {
	return Config{
		N:                             1000,
		NumTimesteps:                  100,
		MinCommunitySize:              5,
		MaxCommunitySize:              50,
		CommunitySizeExponent:         2,
		MinCommunityMembership:        1,
		MaxCommunityMembership:        4,
		CommunityMembershipExponent:   1.5,
		IntraCommunityEdgeProbability: 0.9,
		IntraCommunityEdgeExponent:    0.1,
		Epsilon:                       1e-4,
		EdgeSharpness:                 1,
		CommunityEventProbability:     0.01,
		NodeEventProbability:          0.01,
		PerturbationProbability:       0,
		TEffect:                       20,
		Seed:                          1,
		LegacyMergeBias:               true,
	}
}

// EngineMetrics receives run statistics. The engine checks for a nil
// interface before every call, so leaving Config.Metrics nil disables
// metrics; implementations need not handle a nil receiver themselves.
type EngineMetrics interface {
	SetNodesAlive(n int)
	SetCommunities(n int)
	SetAvailableCommunities(n int)
	SetActiveEvents(n int)
	IncGraphEvents(kind GraphEventKind)
	IncCommunityEvents(kind CommunityEventKind)
	ObserveSolverRun(missingMembersBefore, missingMembersAfter, overassignmentRounds int)
}
