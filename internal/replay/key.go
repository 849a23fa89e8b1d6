// ABOUTME: Idempotency key extraction, replay key construction, and fingerprinting.
// ABOUTME: Keys are sanitized and bounded so they are safe as cache and log keys.

package replay

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/2389/realtime-gateway/internal/envelope"
)

// MaxIdempotencyKeyLength bounds sanitized idempotency keys.
const MaxIdempotencyKeyLength = 128

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9_.:-]`)

// SanitizeKey replaces every character outside [A-Za-z0-9_.:-] with '_' and
// truncates the result to MaxIdempotencyKeyLength.
func SanitizeKey(raw string) string {
	s := unsafeKeyChars.ReplaceAllString(raw, "_")
	if len(s) > MaxIdempotencyKeyLength {
		s = s[:MaxIdempotencyKeyLength]
	}
	return s
}

// ExtractIdempotencyKey returns the sanitized idempotency token for env.
// Lookup order: payload.idempotencyKey, payload.meta.idempotencyKey,
// payload.input.idempotencyKey, runId, id.
func ExtractIdempotencyKey(env *envelope.Envelope) string {
	payload := env.PayloadMap()

	candidates := []string{
		stringField(payload, "idempotencyKey"),
		stringField(objectField(payload, "meta"), "idempotencyKey"),
		stringField(objectField(payload, "input"), "idempotencyKey"),
		env.RunIDString(),
	}
	for _, c := range candidates {
		if strings.TrimSpace(c) != "" {
			return SanitizeKey(c)
		}
	}
	return SanitizeKey(env.ID)
}

// BuildReplayKey returns "{sessionId}:{runId-or-id}:{intent-or-unknown}:{idempotencyKey}".
func BuildReplayKey(env *envelope.Envelope) string {
	runOrID := env.RunIDString()
	if runOrID == "" {
		runOrID = env.ID
	}
	intent := env.Intent()
	if intent == "" {
		intent = "unknown"
	}
	return fmt.Sprintf("%s:%s:%s:%s", env.SessionID, runOrID, intent, ExtractIdempotencyKey(env))
}

// BuildFingerprint returns the hex SHA-256 of the stable serialization of
// {sessionId, userId, runId, intent, input}.
func BuildFingerprint(env *envelope.Envelope) string {
	canonical := map[string]any{
		"sessionId": env.SessionID,
		"userId":    nullableString(env.UserIDString()),
		"runId":     nullableString(env.RunIDString()),
		"intent":    nullableString(env.Intent()),
		"input":     env.Input(),
	}
	sum := sha256.Sum256([]byte(StableJSON(canonical)))
	return hex.EncodeToString(sum[:])
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func objectField(m map[string]any, field string) map[string]any {
	if m == nil {
		return nil
	}
	obj, _ := m[field].(map[string]any)
	return obj
}

func stringField(m map[string]any, field string) string {
	if m == nil {
		return ""
	}
	s, _ := m[field].(string)
	return s
}
