// Package chat keeps the text messages exchanged during a session.
package chat

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Author string

const (
	Self Author = "self"
	Peer Author = "peer"
)

type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Sender    Author    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}

// Log is append-only.
type Log struct {
	mu   sync.RWMutex
	msgs []Message
}

func NewLog() *Log {
	return &Log{}
}

// Append records text and returns the stored message. Blank text is rejected.
func (l *Log) Append(text string, from Author) (Message, bool) {
	if strings.TrimSpace(text) == "" {
		return Message{}, false
	}
	msg := Message{
		ID:        uuid.NewString(),
		Text:      text,
		Sender:    from,
		Timestamp: time.Now(),
	}
	l.mu.Lock()
	l.msgs = append(l.msgs, msg)
	l.mu.Unlock()
	return msg, true
}

func (l *Log) Messages() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Message(nil), l.msgs...)
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.msgs)
}
