// Package conversation runs the chat widget's conversation state machine.
//
// # Overview
//
// One Controller serves all three widget environments. What differs
// between them is injected through Options:
//
//   - ModeDashboard: inline widget in the owner's dashboard, persisted, no host page
//   - ModePreview: iframe preview, never persisted
//   - ModeProduction: public embed, persisted, authenticated with a public identity
//
// Demos add a UsageCounter and a rotating set of apology replies.
//
// # Lifecycle
//
//	c := conversation.New(opts)
//	c.Restore(ctx)        // load snapshot, post WIDGET_READY, arm popup
//	c.Open()              // welcome choreography on an empty history
//	c.Submit(ctx, "Hi")   // user message now, bot reply later
//	c.Shutdown()
//
// # Welcome choreography
//
// Opening a chat with no history and a configured greeting shows the
// typing indicator after 400ms, then appends the greeting (id "welcome")
// 1500ms later. Closing first cancels both steps.
//
// # Exchanges
//
// At most one exchange is in flight. Submit appends the visitor message
// synchronously, sets the typing flag and returns; the reply is appended
// no sooner than 800ms after submission. A failed exchange appends one
// apology instead. Either way typing is cleared in the same critical
// section that appends, so a conversation is never left typing.
//
// # Observing state
//
// State returns a copy. Subscribe streams copies after every mutation and
// is what the SSE endpoint and the preview TUI render from.
//
// # Time
//
// All delays go through Clock. Tests use FakeClock and Advance.
package conversation
