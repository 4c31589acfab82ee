package coordinator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisMirror is the optional cross-node pending-record mirror: it writes
// {chat_id, tool_name, deadline} metadata keyed by request_id with a TTL
// matching the request's deadline, so any node in a multi-instance
// deployment (or an operator dashboard) can observe in-flight requests even
// though the respond_callback closure itself only ever lives on the node
// that registered it.
type RedisMirror struct {
	client *redis.Client
	prefix string
}

// NewRedisMirror builds a RedisMirror over an existing client. prefix
// namespaces keys (e.g. by environment) to avoid collisions with other uses
// of the same Redis instance.
func NewRedisMirror(client *redis.Client, prefix string) *RedisMirror {
	if prefix == "" {
		prefix = "flowlane:coordinator:pending:"
	}
	return &RedisMirror{client: client, prefix: prefix}
}

type mirrorEntry struct {
	ChatID   string    `json:"chat_id"`
	ToolName string    `json:"tool_name,omitempty"`
	Deadline time.Time `json:"deadline"`
}

func (m *RedisMirror) Put(ctx context.Context, requestID, chatID, toolName string, ttl time.Duration) error {
	entry := mirrorEntry{ChatID: chatID, ToolName: toolName, Deadline: time.Now().Add(ttl)}
	b, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return m.client.Set(ctx, m.prefix+requestID, b, ttl).Err()
}

func (m *RedisMirror) Delete(ctx context.Context, requestID string) error {
	return m.client.Del(ctx, m.prefix+requestID).Err()
}

var _ RemoteMirror = (*RedisMirror)(nil)
