// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SP User Service Contributors

package errutil_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sp-platform/user-service/pkg/errutil"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogError_WithOopsError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	err := oops.Code("ACCOUNT_EMAIL_TAKEN").
		With("account_id", "01J0000000000000000000000").
		Errorf("email already registered")

	errutil.LogError(logger, "signup failed", err)

	entry := decode(t, &buf)
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "signup failed", entry["msg"])
	assert.Equal(t, "ACCOUNT_EMAIL_TAKEN", entry["code"])
	require.Contains(t, entry, "context")
	assert.Equal(t, "01J0000000000000000000000", entry["context"].(map[string]any)["account_id"])
}

func TestLogError_WithStandardError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	errutil.LogError(logger, "operation failed", errors.New("standard error"))

	entry := decode(t, &buf)
	assert.Equal(t, "ERROR", entry["level"])
	assert.Contains(t, entry["error"], "standard error")
	assert.NotContains(t, entry, "code")
}

func TestLogErrorContext_UsesContextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	errutil.LogErrorContext(context.Background(), logger, "sweep failed", oops.Code("SESSION_SWEEP_FAILED").Errorf("boom"))

	entry := decode(t, &buf)
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "SESSION_SWEEP_FAILED", entry["code"])
}

func TestLogWarn(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	errutil.LogWarn(context.Background(), logger, "best-effort cleanup failed", errors.New("timeout"))

	entry := decode(t, &buf)
	assert.Equal(t, "WARN", entry["level"])
	assert.Contains(t, entry["error"], "timeout")
}

func TestAttrs_OopsWithoutCodeOmitsCode(t *testing.T) {
	attrs := errutil.Attrs(oops.With("k", "v").Errorf("no code"))
	assert.NotContains(t, attrs, "code")
	assert.Contains(t, attrs, "context")
}
