package pg

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock
}

func TestRevokeUpserts(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectExec("insert into revoked_tokens").
		WithArgs("jti-1", time.Hour).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.Revoke(context.Background(), "jti-1", time.Hour); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRevokeSkipsEmptyJTI(t *testing.T) {
	s, mock := newTestStore(t)
	if err := s.Revoke(context.Background(), "", time.Hour); err != nil {
		t.Fatalf("empty jti: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("no statements expected: %v", err)
	}
}

func TestIsRevoked(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectQuery("select exists").
		WithArgs("jti-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	revoked, err := s.IsRevoked(context.Background(), "jti-1")
	if err != nil {
		t.Fatalf("is revoked: %v", err)
	}
	if !revoked {
		t.Fatal("want revoked")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRecordCountsInsideTransaction(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("insert into rate_events").
		WithArgs("user:alice").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("select count").
		WithArgs("user:alice", time.Minute).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))
	mock.ExpectCommit()

	count, err := s.Record(context.Background(), "user:alice", time.Minute)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if count != 7 {
		t.Fatalf("count=%d, want 7", count)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestEnsureSchemaIdempotentDDL(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectExec("create table if not exists revoked_tokens").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create index if not exists revoked_tokens_expires_at_idx").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create table if not exists rate_events").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create index if not exists rate_events_key_occurred_at_idx").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPruneDeletesExpired(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectExec("delete from revoked_tokens").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("delete from rate_events").
		WithArgs(time.Minute).
		WillReturnResult(sqlmock.NewResult(0, 12))

	if err := s.Prune(context.Background(), time.Minute); err != nil {
		t.Fatalf("prune: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
