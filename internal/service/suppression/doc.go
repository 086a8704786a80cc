// Package suppression decides whether a candidate notification may be sent.
//
// This is the single source of truth for suppression: both campaign tracks
// (push onboarding and email drip) and the send-time re-check in the email
// dispatcher run through Evaluate. Subscriber-level suppression state flows
// in from delivery-provider webhooks via the Service.
//
// The evaluator is pure: it takes typed inputs and returns a Decision,
// performing no I/O and mutating nothing. The service layer depends only on
// the Repository interfaces defined in repository.go; it never imports
// net/http or database/sql directly.
package suppression
