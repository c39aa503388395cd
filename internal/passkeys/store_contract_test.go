package passkeys

import (
	"context"
	"fmt"
	"sync"

	"github.com/stretchr/testify/suite"

	"idmask/pkg/platform/sentinel"
)

// storeContractSuite exercises the Store contract against any backend.
type storeContractSuite struct {
	suite.Suite
	ctx   context.Context
	store Store
}

func (s *storeContractSuite) TestInsertGet() {
	entry := Entry{Key: "cred-1", Value: "pk-abc"}
	s.Require().NoError(s.store.Insert(s.ctx, entry))

	got, err := s.store.Get(s.ctx, "cred-1")
	s.Require().NoError(err)
	s.Equal(entry, got)
}

func (s *storeContractSuite) TestGetMissing() {
	_, err := s.store.Get(s.ctx, "missing")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *storeContractSuite) TestInsertExistingKeyConflicts() {
	s.Require().NoError(s.store.Insert(s.ctx, Entry{Key: "cred-1", Value: "first"}))

	err := s.store.Insert(s.ctx, Entry{Key: "cred-1", Value: "second"})
	s.ErrorIs(err, sentinel.ErrConflict)

	got, err := s.store.Get(s.ctx, "cred-1")
	s.Require().NoError(err)
	s.Equal("first", got.Value)
}

func (s *storeContractSuite) TestConcurrentInsertsOfSameKey() {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.store.Insert(s.ctx, Entry{Key: "race", Value: fmt.Sprintf("v%d", i)}); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	s.Equal(1, accepted)
}
