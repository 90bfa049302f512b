package repository_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/mtlprog/docflow/internal/repository"
)

type MemoryStoreTestSuite struct {
	storeSuite
}

func (s *MemoryStoreTestSuite) SetupTest() {
	s.store = repository.NewMemoryStore()
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreTestSuite))
}

func TestFormatAndParseNumber(t *testing.T) {
	assert.Equal(t, "DOC-000042", repository.FormatNumber(42))
	assert.Equal(t, "DOC-1234567", repository.FormatNumber(1234567))
	assert.Equal(t, int64(42), repository.ParseNumber("DOC-000042"))
	assert.Equal(t, int64(0), repository.ParseNumber("legacy-7"))
	assert.Equal(t, int64(0), repository.ParseNumber(""))
}
