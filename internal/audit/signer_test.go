package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSignAndVerify(t *testing.T) {
	signer := NewEventSigner("test-secret")
	createdAt := time.Date(2025, 6, 1, 12, 0, 0, 123456789, time.UTC)

	sig := signer.Sign("evt-1", createdAt, "user-1", "login", true)
	assert.Len(t, sig, 64)
	assert.True(t, signer.Verify("evt-1", createdAt, "user-1", "login", true, sig))
}

func TestSignIsDeterministic(t *testing.T) {
	signer := NewEventSigner("test-secret")
	createdAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	first := signer.Sign("evt-1", createdAt, "user-1", "login", true)
	second := signer.Sign("evt-1", createdAt, "user-1", "login", true)
	assert.Equal(t, first, second)
}

func TestVerifyRejectsTamperedFields(t *testing.T) {
	signer := NewEventSigner("test-secret")
	createdAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	sig := signer.Sign("evt-1", createdAt, "user-1", "login", true)

	assert.False(t, signer.Verify("evt-2", createdAt, "user-1", "login", true, sig))
	assert.False(t, signer.Verify("evt-1", createdAt.Add(time.Second), "user-1", "login", true, sig))
	assert.False(t, signer.Verify("evt-1", createdAt, "user-2", "login", true, sig))
	assert.False(t, signer.Verify("evt-1", createdAt, "user-1", "logout", true, sig))
	assert.False(t, signer.Verify("evt-1", createdAt, "user-1", "login", false, sig))
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	createdAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	sig := NewEventSigner("key-a").Sign("evt-1", createdAt, "user-1", "login", true)

	assert.False(t, NewEventSigner("key-b").Verify("evt-1", createdAt, "user-1", "login", true, sig))
}
