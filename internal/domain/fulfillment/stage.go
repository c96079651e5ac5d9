package fulfillment

import "slices"

// Stage is the position of an order run in the fulfillment pipeline.
type Stage string

const (
	StageInitial             Stage = "INITIAL"
	StageExtracting          Stage = "EXTRACTING"
	StageCheckingInventory   Stage = "CHECKING_INVENTORY"
	StageCalculatingShipping Stage = "CALCULATING_SHIPPING"
	StageAwaitingApproval    Stage = "AWAITING_APPROVAL"
	StageShipping            Stage = "SHIPPING"
	StageComplete            Stage = "COMPLETE"
	StageError               Stage = "ERROR"
)

// transitions lists the stages reachable from each stage through normal
// progression. Reset is not listed: it is allowed from every stage.
var transitions = map[Stage][]Stage{
	StageInitial:             {StageExtracting},
	StageExtracting:          {StageCheckingInventory, StageError},
	StageCheckingInventory:   {StageCalculatingShipping, StageError},
	StageCalculatingShipping: {StageAwaitingApproval, StageShipping, StageError},
	StageAwaitingApproval:    {StageShipping, StageInitial},
	StageShipping:            {StageComplete, StageError},
}

func (s Stage) String() string {
	return string(s)
}

// CanTransitionTo reports whether next directly follows s.
func (s Stage) CanTransitionTo(next Stage) bool {
	return slices.Contains(transitions[s], next)
}

// Terminal reports whether the run has finished, successfully or not.
func (s Stage) Terminal() bool {
	return s == StageComplete || s == StageError
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	switch s {
	case StageInitial, StageExtracting, StageCheckingInventory, StageCalculatingShipping,
		StageAwaitingApproval, StageShipping, StageComplete, StageError:
		return true
	}
	return false
}
