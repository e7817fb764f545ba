package candidates

import "github.com/contractlens/conflictengine/internal/clause"

// crossFunctionAllowed is the explicit allow-list for cross-function
// pairs (spec.md §4.5): same function is always allowed; cross-function
// is permitted only for this pair.
var crossFunctionAllowed = map[[2]clause.Function]bool{
	{clause.FuncIndemnityLiability, clause.FuncConfidentiality}: true,
	{clause.FuncConfidentiality, clause.FuncIndemnityLiability}: true,
}

// crossFunctionBlocked is the explicit block-list from spec.md §4.5.
// DEFINITIONS is blocked against everything except itself, handled
// separately in compatible.
var crossFunctionBlocked = map[[2]clause.Function]bool{
	{clause.FuncPayment, clause.FuncAmendments}:          true,
	{clause.FuncAmendments, clause.FuncPayment}:          true,
	{clause.FuncPayment, clause.FuncExecutionSignatures}: true,
	{clause.FuncExecutionSignatures, clause.FuncPayment}: true,
	{clause.FuncPayment, clause.FuncNotices}:             true,
	{clause.FuncNotices, clause.FuncPayment}:              true,
	{clause.FuncAmendments, clause.FuncNotices}:           true,
	{clause.FuncNotices, clause.FuncAmendments}:           true,
}

// compatible implements the Tier compatibility gate (spec.md §4.5): same
// function always allowed; DEFINITIONS may only pair with DEFINITIONS;
// the explicit allow-list permits specific cross-function pairs; every
// other cross-function pair, on the block-list or not, is blocked.
func compatible(a, b clause.Function) bool {
	if a == b {
		return true
	}
	if a == clause.FuncDefinitions || b == clause.FuncDefinitions {
		return false
	}
	if crossFunctionAllowed[[2]clause.Function{a, b}] {
		return true
	}
	if crossFunctionBlocked[[2]clause.Function{a, b}] {
		return false
	}
	return false
}
