// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SP User Service Contributors

//go:build integration

// Package integration runs the HTTP API end to end against PostgreSQL.
package integration

import (
	"testing"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
)

func TestIntegration(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "User Service Integration Suite")
}
