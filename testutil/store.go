package testutil

import (
	"context"
	"sync"

	"github.com/c360/formflow/store"
	"github.com/c360/formflow/submission"
)

// FaultyStore wraps a Store and fails selected operations on demand
type FaultyStore struct {
	store.Store

	mu      sync.Mutex
	pingErr error
	saveErr error
	getErr  error
	saves   int
}

// NewFaultyStore wraps inner
func NewFaultyStore(inner store.Store) *FaultyStore {
	return &FaultyStore{Store: inner}
}

// FailPing makes Ping return err; nil restores it
func (f *FaultyStore) FailPing(err error) {
	f.mu.Lock()
	f.pingErr = err
	f.mu.Unlock()
}

// FailSave makes Create and Save return err; nil restores them
func (f *FaultyStore) FailSave(err error) {
	f.mu.Lock()
	f.saveErr = err
	f.mu.Unlock()
}

// FailGet makes Get return err; nil restores it
func (f *FaultyStore) FailGet(err error) {
	f.mu.Lock()
	f.getErr = err
	f.mu.Unlock()
}

// Saves counts successful Create and Save calls
func (f *FaultyStore) Saves() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves
}

func (f *FaultyStore) injected(err *error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *err
}

// Ping implements store.Store
func (f *FaultyStore) Ping(ctx context.Context) error {
	if err := f.injected(&f.pingErr); err != nil {
		return err
	}
	return f.Store.Ping(ctx)
}

// Get implements store.Store
func (f *FaultyStore) Get(ctx context.Context, id string) (*submission.Submission, error) {
	if err := f.injected(&f.getErr); err != nil {
		return nil, err
	}
	return f.Store.Get(ctx, id)
}

// Create implements store.Store
func (f *FaultyStore) Create(ctx context.Context, sub *submission.Submission) error {
	if err := f.injected(&f.saveErr); err != nil {
		return err
	}
	if err := f.Store.Create(ctx, sub); err != nil {
		return err
	}
	f.count()
	return nil
}

// Save implements store.Store
func (f *FaultyStore) Save(ctx context.Context, sub *submission.Submission) error {
	if err := f.injected(&f.saveErr); err != nil {
		return err
	}
	if err := f.Store.Save(ctx, sub); err != nil {
		return err
	}
	f.count()
	return nil
}

func (f *FaultyStore) count() {
	f.mu.Lock()
	f.saves++
	f.mu.Unlock()
}
