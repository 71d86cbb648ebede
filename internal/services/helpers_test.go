package services

import (
	"context"
	"errors"
	"time"

	"github.com/novylist/backend/internal/config"
)

// failingStore simulates an unreachable key-value store. Every governance
// check must fail open when it is in use.
type failingStore struct{}

var errStoreDown = errors.New("store unreachable")

func (failingStore) Get(context.Context, string) (string, error) { return "", errStoreDown }
func (failingStore) Set(context.Context, string, string, time.Duration) error {
	return errStoreDown
}
func (failingStore) IncrBy(context.Context, string, int64) (int64, error) { return 0, errStoreDown }
func (failingStore) IncrByFloat(context.Context, string, float64) (float64, error) {
	return 0, errStoreDown
}
func (failingStore) Expire(context.Context, string, time.Duration) error { return errStoreDown }
func (failingStore) TTL(context.Context, string) (time.Duration, error)  { return 0, errStoreDown }
func (failingStore) Delete(context.Context, string) error                { return errStoreDown }
func (failingStore) LPush(context.Context, string, string) error         { return errStoreDown }
func (failingStore) LTrim(context.Context, string, int64, int64) error   { return errStoreDown }
func (failingStore) LRange(context.Context, string, int64, int64) ([]string, error) {
	return nil, errStoreDown
}

func testGovConfig() *config.GovernanceConfig {
	cfg := config.DefaultGovernanceConfig()
	return &cfg
}
