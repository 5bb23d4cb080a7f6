package statemachine

import "github.com/cardforge/cardforge/domain/card"

// evalGuard evaluates a single named guard against a card view. An empty
// guard always holds. Guards are pure predicates over the card's current
// snapshot — they never touch the state machine's own table or mutate
// anything, per spec.md §4.2.
func evalGuard(g card.Guard, c *card.WithFlags) bool {
	switch g {
	case "":
		return true
	case card.GuardHasAcceptanceCriteria:
		return c.HasAcceptanceCriteria
	case card.GuardHasPlan:
		return c.HasPlan
	case card.GuardHasGeneratedCode:
		return c.HasGeneratedCode
	case card.GuardHasPullRequest:
		return c.HasPullRequest
	case card.GuardTestsExist:
		return c.TestsExist
	case card.GuardBuildSucceeded:
		return c.BuildSucceeded
	case card.GuardSyncCompleted:
		return c.SyncCompleted
	case card.GuardHealthCheckPassed:
		return c.HealthCheckPassed
	case card.GuardUnderRetryLimit:
		return c.UnderRetryLimit()
	default:
		return false
	}
}
