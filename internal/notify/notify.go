// Package notify publishes graph mutation events to interested
// subscribers after the owning transaction commits.
//
// Publishing is best effort: a failed or absent broker never fails the
// mutation that triggered it.
package notify

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/nats-io/nats.go"
)

// NATS publishes event payloads as JSON to a NATS subject per event.
type NATS struct {
	conn *nats.Conn
}

// Connect dials the NATS server. The connection reconnects forever on
// drops so a broker restart does not wedge the publisher.
func Connect(url string) (*NATS, error) {
	conn, err := nats.Connect(url,
		nats.Name("opal"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, err
	}
	return &NATS{conn: conn}, nil
}

// Publish marshals the payload and fires it at the subject. Failures are
// logged and swallowed.
func (n *NATS) Publish(subject string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("notify: marshal %s: %v", subject, err)
		return
	}
	if err := n.conn.Publish(subject, data); err != nil {
		log.Printf("notify: publish %s: %v", subject, err)
	}
}

// Close drains and closes the connection.
func (n *NATS) Close() {
	if n.conn != nil {
		n.conn.Close()
	}
}

// Message is one captured publication.
type Message struct {
	Subject string
	Payload any
}

// Memory records publications in memory. Used by tests.
type Memory struct {
	mu       sync.Mutex
	messages []Message
}

// Publish records the message.
func (m *Memory) Publish(subject string, payload any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, Message{Subject: subject, Payload: payload})
}

// Messages returns a copy of everything published so far.
func (m *Memory) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.messages))
	copy(out, m.messages)
	return out
}
