package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// EventSigner produces tamper-evidence signatures over the immutable
// fields of an audit event.
type EventSigner struct {
	secretKey []byte
}

func NewEventSigner(secretKey string) *EventSigner {
	return &EventSigner{
		secretKey: []byte(secretKey),
	}
}

func (s *EventSigner) Sign(eventID string, createdAt time.Time, userID, action string, success bool) string {
	result := "failure"
	if success {
		result = "success"
	}
	payload := eventID + createdAt.Format(time.RFC3339Nano) + userID + action + result
	h := hmac.New(sha256.New, s.secretKey)
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

func (s *EventSigner) Verify(eventID string, createdAt time.Time, userID, action string, success bool, signature string) bool {
	expected := s.Sign(eventID, createdAt, userID, action, success)
	return hmac.Equal([]byte(expected), []byte(signature))
}
