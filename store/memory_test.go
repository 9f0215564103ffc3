package store

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, &StoreSuite{newStore: func() backend { return NewMemory() }})
}
