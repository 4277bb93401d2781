// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SP User Service Contributors

package auth

import (
	"context"
	"runtime"
	"time"

	"github.com/samber/oops"
	"golang.org/x/sync/semaphore"
)

// HashPool bounds the number of concurrent KDF computations.
// Callers queue for a slot and give up when their context ends.
type HashPool struct {
	hasher  PasswordHasher
	sem     *semaphore.Weighted
	workers int
}

// NewHashPool wraps hasher with a pool of the given size.
// A size <= 0 uses runtime.NumCPU().
func NewHashPool(hasher PasswordHasher, workers int) *HashPool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &HashPool{
		hasher:  hasher,
		sem:     semaphore.NewWeighted(int64(workers)),
		workers: workers,
	}
}

// Workers returns the pool size.
func (p *HashPool) Workers() int {
	return p.workers
}

// Hash hashes password once a slot is free.
func (p *HashPool) Hash(ctx context.Context, password string) (string, error) {
	if err := p.acquire(ctx); err != nil {
		return "", err
	}
	defer p.sem.Release(1)

	defer observeHash(OpHash, time.Now())
	return p.hasher.Hash(password) //nolint:wrapcheck // hasher errors already carry oops codes
}

// Verify checks password against hash once a slot is free.
func (p *HashPool) Verify(ctx context.Context, password, hash string) (bool, error) {
	if err := p.acquire(ctx); err != nil {
		return false, err
	}
	defer p.sem.Release(1)

	defer observeHash(OpVerify, time.Now())
	return p.hasher.Verify(password, hash) //nolint:wrapcheck // hasher errors already carry oops codes
}

// NeedsUpgrade delegates to the wrapped hasher; it does no KDF work.
func (p *HashPool) NeedsUpgrade(hash string) bool {
	return p.hasher.NeedsUpgrade(hash)
}

func (p *HashPool) acquire(ctx context.Context) error {
	start := time.Now()
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return oops.Code("AUTH_HASH_POOL_WAIT").
			With("workers", p.workers).
			Wrap(err)
	}
	HashPoolWait.Observe(time.Since(start).Seconds())
	return nil
}
