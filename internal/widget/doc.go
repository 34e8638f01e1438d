// Package widget defines the data model shared by every chat widget environment.
//
// # Overview
//
// A widget is rendered from a Config: display settings, copy, behaviour flags
// and the agent that answers it. The same Config drives the dashboard inline
// preview, the iframe preview, and the production embed.
//
// A conversation is an append-only list of Message values. The synthetic
// greeting always carries the id "welcome" (WelcomeID), sits at index 0, and is
// never sent to the backend as history.
//
// Snapshot is the persisted form of a conversation, valid for SnapshotTTL.
//
// Demo wraps a Config with a usage limit. Once UsedCount reaches UsageLimit
// the conversation is read-only.
//
// # Validation
//
// Configs are validated against an embedded JSON schema (see schema.go)
// before they are stored:
//
//	if err := widget.Validate(cfg); err != nil {
//	    return err // wraps widget.ErrInvalidConfig
//	}
package widget
