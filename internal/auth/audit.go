package auth

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	AuditRegister = "register"
	AuditVerify   = "verify"
	AuditLogin    = "login"
	AuditLogout   = "logout"
)

type AuditEvent struct {
	ID        string    `json:"id"`
	EventType string    `json:"eventType"`
	Outcome   string    `json:"outcome"`
	Email     string    `json:"email,omitempty"`
	UserID    string    `json:"userId,omitempty"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"userAgent"`
	RequestID string    `json:"requestId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type Auditor interface {
	Log(ctx context.Context, e AuditEvent) error
}

// AuditLogger appends auth events as JSON to Redis lists: one global list and
// one per email, each capped at MaxLen entries.
type AuditLogger struct {
	Redis  *redis.Client
	MaxLen int64
}

func (a *AuditLogger) Log(ctx context.Context, e AuditEvent) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	keys := []string{"audit:auth"}
	if e.Email != "" {
		keys = append(keys, "audit:auth:"+e.Email)
	}

	pipe := a.Redis.Pipeline()
	for _, key := range keys {
		pipe.RPush(ctx, key, data)
		if a.MaxLen > 0 {
			pipe.LTrim(ctx, key, -a.MaxLen, -1)
		}
	}
	_, err = pipe.Exec(ctx)
	return err
}
