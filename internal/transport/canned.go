// ABOUTME: Canned bot replies used when the backend returns nothing or fails
// ABOUTME: Demos rotate through a short list; production uses one fixed apology

package transport

import "sync"

// FallbackReply is used when the backend answers without a reply field.
const FallbackReply = "Sorry, I couldn't process your request. Please try again."

// ApologyReply is appended when an exchange fails outside of demos.
const ApologyReply = "Sorry, I'm having trouble connecting right now. Please try again in a moment."

// DemoResponses is the rotation used for failed demo exchanges.
var DemoResponses = []string{
	"Thanks for your message! I'm having a little trouble reaching the assistant. Could you try again?",
	"Sorry, something went wrong on my end. Please send that once more.",
	"I didn't quite catch that because of a connection hiccup. Mind asking again?",
}

// Apologies hands out canned responses in round-robin order.
type Apologies struct {
	mu        sync.Mutex
	responses []string
	next      int
}

// NewApologies creates a rotation. With no responses it always returns ApologyReply.
func NewApologies(responses ...string) *Apologies {
	return &Apologies{responses: responses}
}

// Next returns the next response in the rotation.
func (a *Apologies) Next() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.responses) == 0 {
		return ApologyReply
	}
	r := a.responses[a.next%len(a.responses)]
	a.next++
	return r
}
