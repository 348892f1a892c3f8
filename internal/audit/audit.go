package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"watertap/internal/auth"
)

// Resource types recorded in the audit log.
const (
	ResourceAlert      = "alert"
	ResourceExclusion  = "telemetry_exclusion"
	ResourceAISettings = "ai_settings"
	ResourceTelemetry  = "telemetry"
)

// Entry represents an audit log entry.
type Entry struct {
	ID            string
	Actor         string
	Role          string
	Action        string
	ResourceType  string
	ResourceID    string
	Metadata      json.RawMessage
	PayloadDigest string
	IP            string
	UserAgent     string
	CreatedAt     time.Time
}

// Logger writes audit entries.
type Logger interface {
	Log(ctx context.Context, entry Entry) error
}

// NewID generates a random audit id.
func NewID() string {
	return "audit-" + uuid.NewString()
}

// DigestJSON computes a SHA256 hex digest for metadata payloads.
func DigestJSON(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FromRequest builds an entry for an operator action, taking identity from the
// auth context and client details from the request.
func FromRequest(r *http.Request, action, resourceType, resourceID string, metadata any) Entry {
	entry := Entry{
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
	if metadata != nil {
		if raw, err := json.Marshal(metadata); err == nil {
			entry.Metadata = raw
		}
	}
	if r == nil {
		return entry
	}
	ctx := r.Context()
	entry.Actor = auth.SubjectFromContext(ctx)
	entry.Role = string(auth.RoleFromContext(ctx))
	entry.IP = ClientIP(r)
	entry.UserAgent = r.UserAgent()
	return entry
}

// ZapLogger writes audit entries to a structured log. It is used when no
// database is configured.
type ZapLogger struct {
	logger *zap.Logger
}

// NewZapLogger constructs a log-backed audit logger.
func NewZapLogger(logger *zap.Logger) *ZapLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapLogger{logger: logger.Named("audit")}
}

// Log writes the entry as one log line.
func (l *ZapLogger) Log(_ context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = NewID()
	}
	l.logger.Info("audit",
		zap.String("id", entry.ID),
		zap.String("actor", entry.Actor),
		zap.String("role", entry.Role),
		zap.String("action", entry.Action),
		zap.String("resource_type", entry.ResourceType),
		zap.String("resource_id", entry.ResourceID),
		zap.ByteString("metadata", entry.Metadata),
		zap.String("ip", entry.IP),
	)
	return nil
}
