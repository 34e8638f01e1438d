// Package usage enforces message quotas.
//
// # Connection limits
//
// Service manages one UsageLimit per connection: a message limit per
// period of 30, 90 or 365 days, with an optional overage mode that keeps
// answering past the limit and flags the excess. Changing the period of a
// limit that has already counted messages resets the counter, so Update
// requires explicit confirmation in that case:
//
//	_, err := svc.Update(ctx, connID, usage.Settings{Limit: 500, PeriodDays: 90}, false)
//	if errors.Is(err, usage.ErrConfirmationRequired) {
//	    // ask the owner, then retry with confirm=true
//	}
//
// Every allowed Record appends a history row; History, DeleteHistory and
// ClearHistory manage that log.
//
// # Demo counters
//
// Demos carry a hard limit. DemoUsage increments a demo's used count at
// most once per request id, and DemoCounter adapts it to the
// conversation controller.
package usage
