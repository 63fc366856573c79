package mail

import "time"

// EmailMessage is an immutable snapshot of a message handed to the engine.
// The caller owns it; the engine never mutates or retains it past a request.
type EmailMessage struct {
	ID         string
	Subject    string
	Sender     string
	Body       string // raw text, may contain HTML
	ReceivedAt time.Time

	// IsThreaded marks the message as part of a conversation. Thread holds
	// the prior messages in order, most recent last. The snapshot itself is
	// always the newest message and is not repeated in Thread.
	IsThreaded bool
	Thread     []EmailMessage
}

// RecentThread returns up to n of the most recent prior messages,
// preserving order (oldest of the window first).
func (m EmailMessage) RecentThread(n int) []EmailMessage {
	if n <= 0 || len(m.Thread) == 0 {
		return nil
	}
	if len(m.Thread) <= n {
		return m.Thread
	}
	return m.Thread[len(m.Thread)-n:]
}
