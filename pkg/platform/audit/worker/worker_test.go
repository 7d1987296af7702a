package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/suite"
)

type published struct {
	key   string
	value string
}

type fakeProducer struct {
	sent []published
	err  error
}

func (f *fakeProducer) Publish(_ context.Context, key, value []byte) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{key: string(key), value: string(value)})
	return nil
}

type WorkerSuite struct {
	suite.Suite
	mock     sqlmock.Sqlmock
	producer *fakeProducer
	worker   *Worker
}

func TestWorkerSuite(t *testing.T) {
	suite.Run(t, new(WorkerSuite))
}

func (s *WorkerSuite) SetupTest() {
	db, mock, err := sqlmock.New()
	s.Require().NoError(err)
	s.mock = mock
	s.producer = &fakeProducer{}
	s.worker = NewWorker(db, s.producer, WithBatchSize(2))
}

func (s *WorkerSuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
}

func (s *WorkerSuite) TestRelaysBatchAndMarksPublished() {
	s.mock.ExpectBegin()
	s.mock.ExpectQuery("FOR UPDATE SKIP LOCKED").
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "aggregate_id", "payload"}).
			AddRow("11111111-1111-4111-8111-111111111111", "actor-a", []byte(`{"n":1}`)).
			AddRow("22222222-2222-4222-8222-222222222222", "actor-b", []byte(`{"n":2}`)))
	s.mock.ExpectExec("UPDATE outbox SET published_at").
		WithArgs(sqlmock.AnyArg(), pq.Array([]string{
			"11111111-1111-4111-8111-111111111111",
			"22222222-2222-4222-8222-222222222222",
		})).
		WillReturnResult(sqlmock.NewResult(0, 2))
	s.mock.ExpectCommit()

	n, err := s.worker.RelayOnce(context.Background())
	s.Require().NoError(err)
	s.Equal(2, n)
	s.Equal([]published{
		{key: "actor-a", value: `{"n":1}`},
		{key: "actor-b", value: `{"n":2}`},
	}, s.producer.sent)
}

func (s *WorkerSuite) TestEmptyOutboxIsANoop() {
	s.mock.ExpectBegin()
	s.mock.ExpectQuery("FOR UPDATE SKIP LOCKED").
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "aggregate_id", "payload"}))
	s.mock.ExpectRollback()

	n, err := s.worker.RelayOnce(context.Background())
	s.Require().NoError(err)
	s.Zero(n)
	s.Empty(s.producer.sent)
}

func (s *WorkerSuite) TestPublishFailureLeavesRowsUnpublished() {
	s.producer.err = errors.New("broker unreachable")

	s.mock.ExpectBegin()
	s.mock.ExpectQuery("FOR UPDATE SKIP LOCKED").
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "aggregate_id", "payload"}).
			AddRow("11111111-1111-4111-8111-111111111111", "actor-a", []byte(`{}`)))
	s.mock.ExpectRollback()

	_, err := s.worker.RelayOnce(context.Background())
	s.Require().Error(err)
	s.Contains(err.Error(), "broker unreachable")
}
