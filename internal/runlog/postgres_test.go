package runlog

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func setupMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &PostgresStore{db: db}, mock
}

func prepareStmt(t *testing.T, db *sql.DB, query string) *sql.Stmt {
	t.Helper()
	stmt, err := db.Prepare(query)
	if err != nil {
		t.Fatalf("failed to prepare statement: %v", err)
	}
	return stmt
}

func TestAppendRejectsOutOfOrderSeq(t *testing.T) {
	store, mock := setupMockStore(t)
	store.stmtHighestSeq = prepareStmt(t, store.db, `SELECT COALESCE\(MAX\(seq\), 0\) FROM run_events WHERE tenant_id = \$1 AND chat_id = \$2`)

	mock.ExpectQuery("SELECT COALESCE").WithArgs("t1", "c1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(5))

	err := store.Append(context.Background(), Event{TenantID: "t1", ChatID: "c1", Seq: 5})
	if err != ErrSeqOutOfOrder {
		t.Fatalf("Append() error = %v, want ErrSeqOutOfOrder", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAppendAcceptsNextSeq(t *testing.T) {
	store, mock := setupMockStore(t)
	store.stmtHighestSeq = prepareStmt(t, store.db, `SELECT COALESCE\(MAX\(seq\), 0\) FROM run_events WHERE tenant_id = \$1 AND chat_id = \$2`)
	store.stmtAppend = prepareStmt(t, store.db, `INSERT INTO run_events .*`)

	mock.ExpectQuery("SELECT COALESCE").WithArgs("t1", "c1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(5))
	mock.ExpectExec("INSERT INTO run_events").
		WithArgs("t1", "c1", uint64(6), "chat.message", []byte(`{}`), false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.Append(context.Background(), Event{
		TenantID: "t1", ChatID: "c1", Seq: 6, Type: "chat.message", Data: []byte(`{}`),
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUsageSummaryForNotFound(t *testing.T) {
	store, mock := setupMockStore(t)
	store.stmtUsageSummaryFor = prepareStmt(t, store.db, `SELECT prompt_tokens, completion_tokens, cost_micros, finalized_at
		FROM usage_summaries WHERE tenant_id = \$1 AND chat_id = \$2`)

	mock.ExpectQuery("SELECT prompt_tokens").WithArgs("t1", "c1").
		WillReturnError(sql.ErrNoRows)

	_, err := store.UsageSummaryFor(context.Background(), "t1", "c1")
	if err != ErrNotFound {
		t.Fatalf("UsageSummaryFor() error = %v, want ErrNotFound", err)
	}
}

func TestLoadStateNotFound(t *testing.T) {
	store, mock := setupMockStore(t)
	store.stmtLoadState = prepareStmt(t, store.db, `SELECT blob, updated_at FROM conversation_states WHERE tenant_id = \$1 AND chat_id = \$2`)

	mock.ExpectQuery("SELECT blob").WithArgs("t1", "c1").
		WillReturnError(sql.ErrNoRows)

	_, err := store.LoadState(context.Background(), "t1", "c1")
	if err != ErrNotFound {
		t.Fatalf("LoadState() error = %v, want ErrNotFound", err)
	}
}

func TestSaveStateDefaultsUpdatedAt(t *testing.T) {
	store, mock := setupMockStore(t)
	store.stmtSaveState = prepareStmt(t, store.db, `INSERT INTO conversation_states .*`)

	mock.ExpectExec("INSERT INTO conversation_states").
		WithArgs("t1", "c1", []byte(`{"foo":1}`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.SaveState(context.Background(), ConversationState{
		TenantID: "t1", ChatID: "c1", Blob: []byte(`{"foo":1}`),
	})
	if err != nil {
		t.Fatalf("SaveState() error = %v", err)
	}
}
