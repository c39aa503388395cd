package sessionstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"
)

type InMemoryStoreSuite struct {
	storeContractSuite
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.newStore = func(maxSize int) Store[testSession] {
		return NewInMemoryStore[testSession](NamespaceIdentity, maxSize)
	}
}

func (s *InMemoryStoreSuite) TestNamespacesAreIndependent() {
	identity := NewInMemoryStore[testSession](NamespaceIdentity, 10)
	ownership := NewInMemoryStore[testSession](NamespaceOwnership, 10)

	s.Require().NoError(identity.Put(s.ctx, "1234567", testSession{ID: "identity"}))

	_, err := ownership.Get(s.ctx, "1234567")
	s.Error(err)
}

func (s *InMemoryStoreSuite) TestDefaultMaxSize() {
	store := NewInMemoryStore[testSession](NamespaceOwnership, 0)
	s.Equal(DefaultMaxSize, store.maxSize)
}
