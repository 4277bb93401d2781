// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SP User Service Contributors

package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sp-platform/user-service/internal/config"
)

func TestRun_WritesSchema(t *testing.T) {
	out := filepath.Join(t.TempDir(), "schemas", "config.schema.json")
	require.NoError(t, run(out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(data, &schema))
	assert.Equal(t, config.SchemaID, schema["$id"])
}
