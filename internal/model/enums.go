// Package model defines the closed data types shared across kessa's
// observation, persistence, search, and clustering components.
package model

// Domain is the problem domain of a GHAP entry.
type Domain string

const (
	DomainDebugging     Domain = "debugging"
	DomainRefactoring   Domain = "refactoring"
	DomainFeature       Domain = "feature"
	DomainTesting       Domain = "testing"
	DomainConfiguration Domain = "configuration"
	DomainDocumentation Domain = "documentation"
	DomainPerformance   Domain = "performance"
	DomainSecurity      Domain = "security"
	DomainIntegration   Domain = "integration"
)

// Domains lists every valid Domain value, in declaration order.
func Domains() []Domain {
	return []Domain{
		DomainDebugging, DomainRefactoring, DomainFeature, DomainTesting,
		DomainConfiguration, DomainDocumentation, DomainPerformance,
		DomainSecurity, DomainIntegration,
	}
}

// Valid reports whether d is one of the declared Domain values.
func (d Domain) Valid() bool {
	for _, v := range Domains() {
		if v == d {
			return true
		}
	}
	return false
}

// Strategy is the problem-solving approach used for a GHAP entry.
type Strategy string

const (
	StrategySystematicElimination Strategy = "systematic-elimination"
	StrategyTrialAndError         Strategy = "trial-and-error"
	StrategyResearchFirst         Strategy = "research-first"
	StrategyDivideAndConquer      Strategy = "divide-and-conquer"
	StrategyRootCauseAnalysis     Strategy = "root-cause-analysis"
	StrategyCopyFromSimilar       Strategy = "copy-from-similar"
	StrategyCheckAssumptions      Strategy = "check-assumptions"
	StrategyReadTheError          Strategy = "read-the-error"
	StrategyAskUser               Strategy = "ask-user"
)

// Strategies lists every valid Strategy value, in declaration order.
func Strategies() []Strategy {
	return []Strategy{
		StrategySystematicElimination, StrategyTrialAndError, StrategyResearchFirst,
		StrategyDivideAndConquer, StrategyRootCauseAnalysis, StrategyCopyFromSimilar,
		StrategyCheckAssumptions, StrategyReadTheError, StrategyAskUser,
	}
}

// Valid reports whether s is one of the declared Strategy values.
func (s Strategy) Valid() bool {
	for _, v := range Strategies() {
		if v == s {
			return true
		}
	}
	return false
}

// OutcomeStatus is the resolution status of a GHAP entry.
type OutcomeStatus string

const (
	OutcomeConfirmed OutcomeStatus = "confirmed"
	OutcomeFalsified OutcomeStatus = "falsified"
	OutcomeAbandoned OutcomeStatus = "abandoned"
)

// OutcomeStatuses lists every valid OutcomeStatus value.
func OutcomeStatuses() []OutcomeStatus {
	return []OutcomeStatus{OutcomeConfirmed, OutcomeFalsified, OutcomeAbandoned}
}

// Valid reports whether s is one of the declared OutcomeStatus values.
func (s OutcomeStatus) Valid() bool {
	for _, v := range OutcomeStatuses() {
		if v == s {
			return true
		}
	}
	return false
}

// RootCauseCategory classifies why a hypothesis was falsified.
type RootCauseCategory string

const (
	RootCauseWrongAssumption      RootCauseCategory = "wrong-assumption"
	RootCauseMissingInformation   RootCauseCategory = "missing-information"
	RootCauseExternalDependency   RootCauseCategory = "external-dependency"
	RootCauseRaceCondition        RootCauseCategory = "race-condition"
	RootCauseEnvironmental        RootCauseCategory = "environmental"
	RootCauseIntegrationMismatch  RootCauseCategory = "integration-mismatch"
	RootCauseOversight            RootCauseCategory = "oversight"
	RootCauseOther                RootCauseCategory = "other"
)

// RootCauseCategories lists every valid RootCauseCategory value.
func RootCauseCategories() []RootCauseCategory {
	return []RootCauseCategory{
		RootCauseWrongAssumption, RootCauseMissingInformation, RootCauseExternalDependency,
		RootCauseRaceCondition, RootCauseEnvironmental, RootCauseIntegrationMismatch,
		RootCauseOversight, RootCauseOther,
	}
}

// Valid reports whether c is one of the declared RootCauseCategory values.
func (c RootCauseCategory) Valid() bool {
	for _, v := range RootCauseCategories() {
		if v == c {
			return true
		}
	}
	return false
}

// ConfidenceTier is the coarse quality label assigned at resolve.
type ConfidenceTier string

const (
	TierGold      ConfidenceTier = "gold"
	TierSilver    ConfidenceTier = "silver"
	TierBronze    ConfidenceTier = "bronze"
	TierAbandoned ConfidenceTier = "abandoned"
)

// Weight maps a tier to the weight used in cluster-weight averaging.
func (t ConfidenceTier) Weight() float64 {
	switch t {
	case TierGold:
		return 1.0
	case TierSilver:
		return 0.7
	case TierBronze:
		return 0.4
	default:
		return 0.0
	}
}

// Axis is a semantic projection of a GHAP entry into its own collection.
type Axis string

const (
	AxisFull      Axis = "full"
	AxisStrategy  Axis = "strategy"
	AxisSurprise  Axis = "surprise"
	AxisRootCause Axis = "root_cause"
)

// Axes lists every valid Axis value.
func Axes() []Axis {
	return []Axis{AxisFull, AxisStrategy, AxisSurprise, AxisRootCause}
}

// Valid reports whether a is one of the declared Axis values.
func (a Axis) Valid() bool {
	for _, v := range Axes() {
		if v == a {
			return true
		}
	}
	return false
}

// MemoryCategory classifies a free-form Memory.
type MemoryCategory string

const (
	MemoryFact       MemoryCategory = "fact"
	MemoryPreference MemoryCategory = "preference"
	MemoryContext    MemoryCategory = "context"
	MemoryWorkflow   MemoryCategory = "workflow"
	MemoryGoal       MemoryCategory = "goal"
)

// MemoryCategories lists every valid MemoryCategory value.
func MemoryCategories() []MemoryCategory {
	return []MemoryCategory{MemoryFact, MemoryPreference, MemoryContext, MemoryWorkflow, MemoryGoal}
}

// Valid reports whether c is one of the declared MemoryCategory values.
func (c MemoryCategory) Valid() bool {
	for _, v := range MemoryCategories() {
		if v == c {
			return true
		}
	}
	return false
}

// CodeUnitType classifies a CodeUnit.
type CodeUnitType string

const (
	UnitFunction CodeUnitType = "function"
	UnitClass    CodeUnitType = "class"
	UnitMethod   CodeUnitType = "method"
)

// CodeUnitTypes lists every valid CodeUnitType value.
func CodeUnitTypes() []CodeUnitType {
	return []CodeUnitType{UnitFunction, UnitClass, UnitMethod}
}

// Valid reports whether t is one of the declared CodeUnitType values.
func (t CodeUnitType) Valid() bool {
	for _, v := range CodeUnitTypes() {
		if v == t {
			return true
		}
	}
	return false
}

// SearchMode selects how a Searcher query is executed.
type SearchMode string

const (
	ModeSemantic SearchMode = "semantic"
	ModeKeyword  SearchMode = "keyword"
	ModeHybrid   SearchMode = "hybrid"
)

// SearchModes lists every valid SearchMode value.
func SearchModes() []SearchMode {
	return []SearchMode{ModeSemantic, ModeKeyword, ModeHybrid}
}

// Valid reports whether m is one of the declared SearchMode values.
func (m SearchMode) Valid() bool {
	for _, v := range SearchModes() {
		if v == m {
			return true
		}
	}
	return false
}

// SourceKind is a requestable context-assembly source.
type SourceKind string

const (
	SourceMemories    SourceKind = "memories"
	SourceCode        SourceKind = "code"
	SourceExperiences SourceKind = "experiences"
	SourceValues      SourceKind = "values"
	SourceCommits     SourceKind = "commits"
)

// SourceKinds lists every valid SourceKind value.
func SourceKinds() []SourceKind {
	return []SourceKind{SourceMemories, SourceCode, SourceExperiences, SourceValues, SourceCommits}
}

// Valid reports whether k is one of the declared SourceKind values.
func (k SourceKind) Valid() bool {
	for _, v := range SourceKinds() {
		if v == k {
			return true
		}
	}
	return false
}
