//go:build integration

package audit_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	"medihub/internal/audit"
	"medihub/pkg/domain"
	"medihub/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	ledger   *audit.Ledger
	store    *audit.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = audit.NewPostgresStore(s.postgres.DB)
	s.ledger = audit.NewLedger(s.store)
}

func (s *PostgresStoreSuite) TearDownSuite() {
	if s.postgres != nil {
		_ = s.postgres.DB.Close()
		_ = s.postgres.Container.Terminate(context.Background())
	}
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "audit_ledger")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) TestAppend_ChainSurvivesConcurrency() {
	ctx := context.Background()
	patient := domain.NewPatientID()

	const writers = 20
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < writers; i++ {
		g.Go(func() error {
			_, err := s.ledger.Append(gctx, domain.NewUserID(), patient, audit.ActionRecordView, "")
			return err
		})
	}
	s.Require().NoError(g.Wait())

	entries, err := s.ledger.List(ctx, writers, 0)
	s.Require().NoError(err)
	s.Require().Len(entries, writers)

	prev := ""
	for _, e := range entries {
		s.Equal(prev, e.PrevHash)
		prev = e.CurrHash
	}

	broken, err := s.ledger.Verify(ctx)
	s.Require().NoError(err)
	s.Zero(broken)
}

func (s *PostgresStoreSuite) TestTailHash_EmptyLedger() {
	tail, err := s.store.TailHash(context.Background())
	s.Require().NoError(err)
	s.Equal("", tail)
}

func (s *PostgresStoreSuite) TestListByPatient() {
	ctx := context.Background()
	actor := domain.NewUserID()
	mine := domain.NewPatientID()
	other := domain.NewPatientID()

	_, err := s.ledger.Append(ctx, actor, mine, audit.ActionRecordCreate, "")
	s.Require().NoError(err)
	_, err = s.ledger.Append(ctx, actor, other, audit.ActionRecordCreate, "")
	s.Require().NoError(err)

	entries, err := s.ledger.ListByPatient(ctx, mine)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(mine, entries[0].Patient)

	count, err := s.ledger.Count(ctx)
	s.Require().NoError(err)
	s.Equal(int64(2), count)
}
