// Package chat defines the operator chat transport contract (spec §4.7):
// a long-lived session that delivers addressed-to-bot messages to the
// command parser and posts replies back to their origin. Two concrete
// transports exist (wstransport, lptransport); the daemon commits to one at
// startup, per spec §6.
package chat

import "context"

// IncomingMessage is a single chat message addressed to the bot, after
// transport-specific framing has been stripped.
type IncomingMessage struct {
	// Text is everything after the bot mention.
	Text string

	// Reply posts text back to wherever this message came from.
	Reply func(text string)
}

// LivenessPinger is notified whenever the transport observes any activity
// (message or heartbeat), feeding the supervisor's lastChatEvent timestamp
// (spec §4.9).
type LivenessPinger interface {
	Ping()
}

// Transport is the contract both wstransport and lptransport implement.
// Run blocks until ctx is canceled or the connection is unrecoverably lost,
// delivering messages to handle as they arrive.
type Transport interface {
	Run(ctx context.Context, handle func(IncomingMessage), pinger LivenessPinger) error
}
