package ai

import "context"

// Generator produces a context-grounded answer for a customer question. An
// empty answer or an error means the generator could not answer; callers
// surface the escalation affordance instead of retrying.
type Generator interface {
	Answer(ctx context.Context, question string) (string, error)
}
