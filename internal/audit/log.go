// Package audit emits structured audit records for credential and account
// operations. Records go to the shared JSON log stream, tagged so they can be
// filtered out downstream.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"inkwell.org/internal/auth"
	"inkwell.org/internal/obs"
)

type requestIDKey struct{}

// WithRequestID attaches the request identifier used to correlate audit
// records with access logs.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext returns the request id if one was attached.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// Event writes one audit record, enriched with the request id and the
// authenticated principal when the context carries them.
func Event(ctx context.Context, name string, fields map[string]any) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("audit: event name is required")
	}
	record := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"type":  "audit",
		"event": name,
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		record["request_id"] = rid
	}
	if claims, ok := auth.ClaimsFromContext(ctx); ok {
		record["account_id"] = claims.Subject
	}
	fieldCopy := make(map[string]any, len(fields))
	for k, v := range fields {
		fieldCopy[k] = v
	}
	record["fields"] = fieldCopy

	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}
