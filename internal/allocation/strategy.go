package allocation

import (
	"github.com/lumenfin/loanledger/internal/loan"
)

// TimingBucket classifies an installment's due date against the as-of date.
type TimingBucket string

const (
	TimingPastDue   TimingBucket = "PAST_DUE"
	TimingDue       TimingBucket = "DUE"
	TimingInAdvance TimingBucket = "IN_ADVANCE"
)

// Tier is one step of the tiered strategy: a timing bucket paired with the
// component it settles.
type Tier struct {
	Timing    TimingBucket
	Component loan.Component
}

// FutureRule decides where a remainder goes once every tier is exhausted.
type FutureRule string

const (
	// FutureNextInstallment prepays the immediately following installment's
	// principal.
	FutureNextInstallment FutureRule = "NEXT_INSTALLMENT"
	// FutureReamortize spreads the remainder pro-rata over the principal of
	// all not-yet-due installments.
	FutureReamortize FutureRule = "REAMORTIZE"
)

// StrategyKind selects the allocation family.
type StrategyKind string

const (
	KindPerPeriod StrategyKind = "PER_PERIOD"
	KindTiered    StrategyKind = "TIERED"
)

// Strategy is a closed variant over the two allocation families. Only the
// fields for the selected kind are consulted.
type Strategy struct {
	Kind           StrategyKind
	ComponentOrder []loan.Component
	Tiers          []Tier
	FutureRule     FutureRule
}

// DefaultPerPeriod returns the default per-period strategy with the
// penalty-fee-interest-principal priority order.
func DefaultPerPeriod() Strategy {
	return Strategy{
		Kind: KindPerPeriod,
		ComponentOrder: []loan.Component{
			loan.ComponentPenalty,
			loan.ComponentFee,
			loan.ComponentInterest,
			loan.ComponentPrincipal,
		},
	}
}

// PerPeriod returns a per-period strategy with a custom component order.
func PerPeriod(order ...loan.Component) Strategy {
	return Strategy{Kind: KindPerPeriod, ComponentOrder: order}
}

// Tiered returns an advanced allocation strategy from an ordered tier list.
func Tiered(rule FutureRule, tiers ...Tier) Strategy {
	return Strategy{Kind: KindTiered, Tiers: tiers, FutureRule: rule}
}

// DefaultAdvancedTiers is the stock advanced allocation order: past due
// before due before in advance, penalties first within each bucket.
func DefaultAdvancedTiers() []Tier {
	buckets := []TimingBucket{TimingPastDue, TimingDue, TimingInAdvance}
	order := []loan.Component{
		loan.ComponentPenalty,
		loan.ComponentFee,
		loan.ComponentInterest,
		loan.ComponentPrincipal,
	}
	tiers := make([]Tier, 0, len(buckets)*len(order))
	for _, b := range buckets {
		for _, c := range order {
			tiers = append(tiers, Tier{Timing: b, Component: c})
		}
	}
	return tiers
}
