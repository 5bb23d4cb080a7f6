// Package statemachine implements the card state machine (C2): a pure,
// synchronous, statically-defined transition table. Grounded on
// original_source/src/state_machine/transitions.rs's build_transitions(),
// translated from a Vec<TransitionDef> into a Go map keyed by (from,
// trigger), the way the teacher keys its own lookup tables in
// infrastructure/state (a plain map literal built once at package init).
package statemachine

import "github.com/cardforge/cardforge/domain/card"

// transitionDef is one entry of the static transition table.
type transitionDef struct {
	to      card.State
	guard   card.Guard // empty means unguarded
	actions []card.Action
}

type transitionKey struct {
	from    card.State
	trigger card.Trigger
}

// table is the static, total transition map: every (from, trigger) pair the
// machine accepts. Built once at package init and never mutated.
var table = buildTransitions()

func buildTransitions() map[transitionKey]transitionDef {
	t := make(map[transitionKey]transitionDef)
	add := func(from card.State, trig card.Trigger, to card.State, guard card.Guard, actions ...card.Action) {
		t[transitionKey{from, trig}] = transitionDef{to: to, guard: guard, actions: actions}
	}

	// Development phase.
	add(card.StateDraft, card.TriggerStartPlanning, card.StatePlanning, "")
	add(card.StatePlanning, card.TriggerApprovePlan, card.StateCoding,
		card.GuardHasAcceptanceCriteria, card.ActionCreateGitWorktree, card.ActionStartLoop)
	add(card.StatePlanning, card.TriggerRejectPlan, card.StateDraft, "")
	add(card.StateCoding, card.TriggerLoopComplete, card.StateCodeReview,
		card.GuardHasGeneratedCode, card.ActionPauseLoop, card.ActionCreatePullRequest)
	add(card.StateCoding, card.TriggerErrorDetected, card.StateErrorFixing,
		card.GuardUnderRetryLimit, card.ActionCollectErrorContext)
	add(card.StateCodeReview, card.TriggerApproveReview, card.StateTesting,
		card.GuardHasPullRequest)
	add(card.StateCodeReview, card.TriggerRejectReview, card.StateCoding,
		"", card.ActionStartLoop)
	add(card.StateTesting, card.TriggerTestsPassed, card.StateBuildQueue, "")
	add(card.StateTesting, card.TriggerTestsFailed, card.StateErrorFixing,
		card.GuardUnderRetryLimit, card.ActionCollectErrorContext)

	// Build phase.
	add(card.StateBuildQueue, card.TriggerBuildStarted, card.StateBuilding,
		"", card.ActionMonitorBuild)
	add(card.StateBuilding, card.TriggerBuildSucceeded, card.StateBuildSuccess,
		"", card.ActionRecordMetrics)
	add(card.StateBuilding, card.TriggerBuildFailed, card.StateBuildFailed,
		"", card.ActionCollectErrorContext)
	add(card.StateBuildSuccess, card.TriggerDeployStarted, card.StateDeployQueue, "")
	add(card.StateBuildFailed, card.TriggerErrorDetected, card.StateErrorFixing,
		card.GuardUnderRetryLimit, card.ActionRestartLoopWithError)
	add(card.StateBuildFailed, card.TriggerMaxRetriesExceeded, card.StateFailed,
		"", card.ActionNotifyUser)

	// Deploy phase.
	add(card.StateDeployQueue, card.TriggerDeployStarted, card.StateDeploying,
		"", card.ActionMonitorArgoCD)
	add(card.StateDeploying, card.TriggerDeploySynced, card.StateVerifying,
		card.GuardSyncCompleted, card.ActionRunHealthChecks)
	add(card.StateDeploying, card.TriggerDeployFailed, card.StateErrorFixing,
		card.GuardUnderRetryLimit, card.ActionCollectErrorContext)
	add(card.StateVerifying, card.TriggerVerifyPassed, card.StateCompleted,
		card.GuardHealthCheckPassed, card.ActionNotifyUser, card.ActionRecordMetrics)
	add(card.StateVerifying, card.TriggerVerifyFailed, card.StateErrorFixing,
		card.GuardUnderRetryLimit, card.ActionCollectErrorContext)

	// Error fixing.
	add(card.StateErrorFixing, card.TriggerFixApplied, card.StateCoding,
		"", card.ActionRestartLoopWithError)
	add(card.StateErrorFixing, card.TriggerMaxRetriesExceeded, card.StateFailed,
		"", card.ActionNotifyUser)

	// Archive.
	add(card.StateCompleted, card.TriggerArchive, card.StateArchived, "")
	add(card.StateFailed, card.TriggerArchive, card.StateArchived, "")

	return t
}
