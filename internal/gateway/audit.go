package gateway

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"peerbridge/internal/metrics"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type AuditRecord struct {
	Timestamp      time.Time `json:"timestamp"`
	RequestID      string    `json:"requestId"`
	BuyerPeerID    *string   `json:"buyerPeerId"`
	Model          *string   `json:"model"`
	MessagePreview string    `json:"messagePreview"`
	StatusCode     int       `json:"statusCode"`
	DurationMs     int64     `json:"durationMs"`
	ResponseBytes  int       `json:"responseBytes"`
}

// MarshalLogObject lets the operator log carry the same fields as the
// audit line
func (r *AuditRecord) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("request_id", r.RequestID)
	if r.BuyerPeerID != nil {
		enc.AddString("buyer_peer_id", *r.BuyerPeerID)
	}
	if r.Model != nil {
		enc.AddString("model", *r.Model)
	}
	enc.AddInt("status_code", r.StatusCode)
	enc.AddInt64("duration_ms", r.DurationMs)
	enc.AddInt("response_bytes", r.ResponseBytes)
	return nil
}

// AuditLog appends one JSON line per request. Writes are best effort, a
// failure is logged and never reaches the caller.
type AuditLog struct {
	path    string
	enabled bool
	log     *zap.SugaredLogger
	now     func() time.Time
}

func NewAuditLog(path string, enabled bool, log *zap.SugaredLogger) *AuditLog {
	return &AuditLog{path: path, enabled: enabled, log: log, now: time.Now}
}

func (a *AuditLog) Enabled() bool {
	return a != nil && a.enabled
}

func (a *AuditLog) Append(rec AuditRecord) {
	if !a.Enabled() {
		return
	}
	rec.Timestamp = a.now().UTC()
	line, err := json.Marshal(rec)
	if err != nil {
		a.fail(rec.RequestID, err)
		return
	}
	if err := a.write(append(line, '\n')); err != nil {
		a.fail(rec.RequestID, err)
	}
}

func (a *AuditLog) write(line []byte) error {
	if dir := filepath.Dir(a.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(a.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	// One write per record keeps concurrent appends from interleaving
	_, werr := f.Write(line)
	cerr := f.Close()
	if werr != nil {
		return werr
	}
	return cerr
}

func (a *AuditLog) fail(requestID string, err error) {
	metrics.ErrorCount.WithLabelValues("audit_log").Inc()
	a.log.Errorw("Failed to write request log", "request_id", requestID, "path", a.path, "error", err)
}
