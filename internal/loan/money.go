package loan

import (
	"github.com/shopspring/decimal"
)

// Component enumerates the monetary components of an installment.
type Component string

const (
	ComponentPrincipal Component = "PRINCIPAL"
	ComponentInterest  Component = "INTEREST"
	ComponentFee       Component = "FEE"
	ComponentPenalty   Component = "PENALTY"
)

// Components lists all components in schedule order.
var Components = []Component{ComponentPrincipal, ComponentInterest, ComponentFee, ComponentPenalty}

// Amounts holds one decimal per component.
type Amounts struct {
	Principal decimal.Decimal
	Interest  decimal.Decimal
	Fee       decimal.Decimal
	Penalty   decimal.Decimal
}

// Get returns the amount for a component.
func (a Amounts) Get(c Component) decimal.Decimal {
	switch c {
	case ComponentPrincipal:
		return a.Principal
	case ComponentInterest:
		return a.Interest
	case ComponentFee:
		return a.Fee
	case ComponentPenalty:
		return a.Penalty
	}
	return decimal.Zero
}

// Set replaces the amount for a component.
func (a *Amounts) Set(c Component, v decimal.Decimal) {
	switch c {
	case ComponentPrincipal:
		a.Principal = v
	case ComponentInterest:
		a.Interest = v
	case ComponentFee:
		a.Fee = v
	case ComponentPenalty:
		a.Penalty = v
	}
}

// Add increases the amount for a component.
func (a *Amounts) Add(c Component, v decimal.Decimal) {
	a.Set(c, a.Get(c).Add(v))
}

// Sub decreases the amount for a component.
func (a *Amounts) Sub(c Component, v decimal.Decimal) {
	a.Set(c, a.Get(c).Sub(v))
}

// Plus returns the component-wise sum of two Amounts.
func (a Amounts) Plus(b Amounts) Amounts {
	return Amounts{
		Principal: a.Principal.Add(b.Principal),
		Interest:  a.Interest.Add(b.Interest),
		Fee:       a.Fee.Add(b.Fee),
		Penalty:   a.Penalty.Add(b.Penalty),
	}
}

// Total sums all components.
func (a Amounts) Total() decimal.Decimal {
	return a.Principal.Add(a.Interest).Add(a.Fee).Add(a.Penalty)
}

// IsZero reports whether every component is zero.
func (a Amounts) IsZero() bool {
	return a.Total().IsZero()
}
