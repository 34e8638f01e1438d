// Package agent answers widget messages with a prompt-configured agent.
//
// Service.Ask loads the agent from the store, builds the chat messages
//
//	system:    agent.SystemPrompt (plus the widget greeting, if any)
//	...        previous turns
//	user:      the new message
//
// and hands them to a Completer. OpenAICompleter talks to any
// OpenAI-compatible POST {base}/chat/completions endpoint. EchoCompleter
// is used when no provider is configured, so the widget can be exercised
// end to end in development.
//
// Errors wrap ErrAgentNotFound or ErrProviderUnavailable.
package agent
