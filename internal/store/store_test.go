package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/sessiongate-go/pkg/util/serr"
)

type StoreSuite struct {
	suite.Suite

	store *BoltStore
	ctx   context.Context
}

func (s *StoreSuite) SetupTest() {
	path := filepath.Join(s.T().TempDir(), "sessions.db")
	st, err := Open(path)
	s.Require().NoError(err)
	s.store = st
	s.ctx = context.Background()
}

func (s *StoreSuite) TearDownTest() {
	s.NoError(s.store.Close())
}

func (s *StoreSuite) TestLoadEmpty() {
	records, err := s.store.Load(s.ctx)
	s.NoError(err)
	s.Empty(records)
}

func (s *StoreSuite) TestPutAndLoad() {
	inserted, err := s.store.Put(s.ctx, SessionRecord{Session: "alpha"})
	s.NoError(err)
	s.True(inserted)

	inserted, err = s.store.Put(s.ctx, SessionRecord{Session: "beta", Ready: true})
	s.NoError(err)
	s.True(inserted)

	records, err := s.store.Load(s.ctx)
	s.NoError(err)
	s.Equal([]SessionRecord{
		{Session: "alpha"},
		{Session: "beta", Ready: true},
	}, records)
}

func (s *StoreSuite) TestPutDuplicateKeepsOriginal() {
	inserted, err := s.store.Put(s.ctx, SessionRecord{Session: "alpha", Ready: true})
	s.NoError(err)
	s.True(inserted)

	inserted, err = s.store.Put(s.ctx, SessionRecord{Session: "alpha", Ready: false})
	s.NoError(err)
	s.False(inserted)

	records, err := s.store.Load(s.ctx)
	s.NoError(err)
	s.Len(records, 1)
	s.True(records[0].Ready)
}

func (s *StoreSuite) TestSetReady() {
	_, err := s.store.Put(s.ctx, SessionRecord{Session: "alpha"})
	s.NoError(err)

	found, err := s.store.SetReady(s.ctx, "alpha", true)
	s.NoError(err)
	s.True(found)

	records, err := s.store.Load(s.ctx)
	s.NoError(err)
	s.True(records[0].Ready)

	found, err = s.store.SetReady(s.ctx, "missing", true)
	s.NoError(err)
	s.False(found)
}

func (s *StoreSuite) TestDelete() {
	_, err := s.store.Put(s.ctx, SessionRecord{Session: "alpha"})
	s.NoError(err)
	_, err = s.store.Put(s.ctx, SessionRecord{Session: "beta"})
	s.NoError(err)

	found, err := s.store.Delete(s.ctx, "alpha")
	s.NoError(err)
	s.True(found)

	found, err = s.store.Delete(s.ctx, "alpha")
	s.NoError(err)
	s.False(found)

	records, err := s.store.Load(s.ctx)
	s.NoError(err)
	s.Equal([]SessionRecord{{Session: "beta"}}, records)
}

func (s *StoreSuite) TestSaveReplacesAll() {
	_, err := s.store.Put(s.ctx, SessionRecord{Session: "old"})
	s.NoError(err)

	err = s.store.Save(s.ctx, []SessionRecord{
		{Session: "one", Ready: true},
		{Session: "two"},
	})
	s.NoError(err)

	records, err := s.store.Load(s.ctx)
	s.NoError(err)
	s.Equal([]SessionRecord{
		{Session: "one", Ready: true},
		{Session: "two"},
	}, records)
}

func (s *StoreSuite) TestOrderSurvivesReopen() {
	for _, id := range []string{"zulu", "alpha", "mike"} {
		_, err := s.store.Put(s.ctx, SessionRecord{Session: id})
		s.NoError(err)
	}
	path := s.store.Path()
	s.NoError(s.store.Close())

	st, err := Open(path)
	s.Require().NoError(err)
	s.store = st

	records, err := s.store.Load(s.ctx)
	s.NoError(err)
	s.Equal([]SessionRecord{
		{Session: "zulu"},
		{Session: "alpha"},
		{Session: "mike"},
	}, records)
}

func (s *StoreSuite) TestOpenCorruptFile() {
	path := filepath.Join(s.T().TempDir(), "garbage.db")
	s.Require().NoError(os.WriteFile(path, []byte("not a database"), 0o600))

	_, err := Open(path)
	s.Error(err)
	s.True(errors.Is(err, serr.ErrStoreCorrupt))
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func TestIndexOf(t *testing.T) {
	records := []SessionRecord{
		{Session: "alpha"},
		{Session: "beta"},
	}
	if got := IndexOf(records, "beta"); got != 1 {
		t.Fatalf("IndexOf(beta) = %d, want 1", got)
	}
	if got := IndexOf(records, "missing"); got != -1 {
		t.Fatalf("IndexOf(missing) = %d, want -1", got)
	}
	if got := IndexOf(nil, "alpha"); got != -1 {
		t.Fatalf("IndexOf on nil = %d, want -1", got)
	}
}
