package sessionstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/stretchr/testify/suite"

	"idmask/pkg/platform/sentinel"
)

type testSession struct {
	ID    string `json:"id"`
	Value int    `json:"value"`
}

// storeContractSuite exercises the Store contract against any backend.
type storeContractSuite struct {
	suite.Suite
	ctx      context.Context
	newStore func(maxSize int) Store[testSession]
}

func (s *storeContractSuite) TestPutGet() {
	store := s.newStore(10)

	s.Require().NoError(store.Put(s.ctx, "a", testSession{ID: "a", Value: 1}))
	got, err := store.Get(s.ctx, "a")
	s.Require().NoError(err)
	s.Equal(testSession{ID: "a", Value: 1}, got)

	_, err = store.Get(s.ctx, "missing")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *storeContractSuite) TestDelete() {
	store := s.newStore(10)
	s.Require().NoError(store.Put(s.ctx, "a", testSession{ID: "a"}))
	s.Require().NoError(store.Delete(s.ctx, "a"))
	s.Require().NoError(store.Delete(s.ctx, "never-existed"))

	_, err := store.Get(s.ctx, "a")
	s.ErrorIs(err, sentinel.ErrNotFound)
	n, err := store.Len(s.ctx)
	s.Require().NoError(err)
	s.Equal(0, n)
}

func (s *storeContractSuite) TestSweepEvictsOldestBeyondBound() {
	const maxSize, extra = 50, 7
	store := s.newStore(maxSize)

	for i := range maxSize + extra {
		key := fmt.Sprintf("k%03d", i)
		s.Require().NoError(store.Put(s.ctx, key, testSession{ID: key, Value: i}))
	}

	evicted, err := store.Sweep(s.ctx)
	s.Require().NoError(err)
	s.Equal(extra, evicted)

	n, err := store.Len(s.ctx)
	s.Require().NoError(err)
	s.Equal(maxSize, n)

	for i := range extra {
		_, err := store.Get(s.ctx, fmt.Sprintf("k%03d", i))
		s.ErrorIs(err, sentinel.ErrNotFound, "entry %d should be evicted", i)
	}
	for i := extra; i < maxSize+extra; i++ {
		got, err := store.Get(s.ctx, fmt.Sprintf("k%03d", i))
		s.Require().NoError(err, "entry %d should survive", i)
		s.Equal(i, got.Value)
	}

	evicted, err = store.Sweep(s.ctx)
	s.Require().NoError(err)
	s.Zero(evicted)
}

func (s *storeContractSuite) TestOverwriteKeepsInsertionPosition() {
	store := s.newStore(2)

	s.Require().NoError(store.Put(s.ctx, "first", testSession{Value: 1}))
	s.Require().NoError(store.Put(s.ctx, "second", testSession{Value: 2}))
	s.Require().NoError(store.Put(s.ctx, "third", testSession{Value: 3}))
	s.Require().NoError(store.Put(s.ctx, "first", testSession{Value: 10}))

	n, err := store.Len(s.ctx)
	s.Require().NoError(err)
	s.Equal(3, n)

	evicted, err := store.Sweep(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, evicted)

	_, err = store.Get(s.ctx, "first")
	s.ErrorIs(err, sentinel.ErrNotFound, "FIFO eviction ignores recent writes")
	got, err := store.Get(s.ctx, "third")
	s.Require().NoError(err)
	s.Equal(3, got.Value)
}

func (s *storeContractSuite) TestConcurrentAccess() {
	store := s.newStore(100)
	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				key := fmt.Sprintf("w%d-%d", w, i)
				_ = store.Put(s.ctx, key, testSession{ID: key})
				_, _ = store.Get(s.ctx, key)
				if i%10 == 0 {
					_, _ = store.Sweep(s.ctx)
				}
			}
		}()
	}
	wg.Wait()

	_, err := store.Sweep(s.ctx)
	s.Require().NoError(err)
	n, err := store.Len(s.ctx)
	s.Require().NoError(err)
	s.LessOrEqual(n, 100)
}

func (s *storeContractSuite) TestOverwritesRacingSweepsLeaveNoStrays() {
	const maxSize = 20
	store := s.newStore(maxSize)
	keys := make([]string, 60)
	for i := range keys {
		keys[i] = fmt.Sprintf("r%02d", i)
	}

	var wg sync.WaitGroup
	for w := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for round := range 3 {
				for i, key := range keys {
					_ = store.Put(s.ctx, key, testSession{ID: key, Value: w*1000 + round})
					if i%7 == 0 {
						_, _ = store.Sweep(s.ctx)
					}
				}
			}
		}()
	}
	wg.Wait()

	_, err := store.Sweep(s.ctx)
	s.Require().NoError(err)

	n, err := store.Len(s.ctx)
	s.Require().NoError(err)
	live := 0
	for _, key := range keys {
		if _, err := store.Get(s.ctx, key); err == nil {
			live++
		}
	}
	s.Equal(n, live, "every readable entry is tracked for eviction")
	s.LessOrEqual(live, maxSize)
}
