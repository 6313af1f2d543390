// Package archive keeps a copy of every raw inbound message so that it can
// be inspected or replayed later.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"
)

// Message is one archived inbound message.
type Message struct {
	ID             string         `json:"id"`
	ReceivedAt     time.Time      `json:"received_at"`
	Source         string         `json:"source"`
	Text           string         `json:"text"`
	Parsed         map[string]any `json:"parsed,omitempty"`
	TransactionIDs []string       `json:"transaction_ids,omitempty"`
}

// Archiver stores messages and returns their URI.
type Archiver interface {
	Archive(ctx context.Context, m Message) (string, error)
}

// ObjectName returns messages/YYYY/MM/DD/<id>.json using the UTC receive date.
func ObjectName(m Message) string {
	t := m.ReceivedAt.UTC()
	return path.Join("messages", t.Format("2006"), t.Format("01"), t.Format("02"), m.ID+".json")
}

// ParseURI splits gs://bucket/object into its parts.
func ParseURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// Decode parses an archived message.
func Decode(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("archive.Decode: %w", err)
	}
	return &m, nil
}

// Nop discards messages.
type Nop struct{}

func (Nop) Archive(context.Context, Message) (string, error) { return "", nil }

// Memory keeps messages in process. It is used by tests and local runs.
type Memory struct {
	mu      sync.Mutex
	Objects map[string][]byte
}

// Archive implements Archiver.
func (a *Memory) Archive(_ context.Context, m Message) (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("Memory.Archive: %w", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Objects == nil {
		a.Objects = make(map[string][]byte)
	}
	name := ObjectName(m)
	a.Objects[name] = data
	return "mem://" + name, nil
}

// Fetch returns a message stored under uri.
func (a *Memory) Fetch(_ context.Context, uri string) (*Message, error) {
	a.mu.Lock()
	data, ok := a.Objects[strings.TrimPrefix(uri, "mem://")]
	a.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("Memory.Fetch: %s not found", uri)
	}
	return Decode(data)
}
