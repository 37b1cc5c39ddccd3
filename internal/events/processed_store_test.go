package events

import (
	"context"
	"testing"

	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestProcessedStore_DetectsRedelivery(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := newProcessedStoreWithExec(mock)

	mock.ExpectQuery("SELECT 1 FROM processed_messages").WithArgs("twilio", "SM1").WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(1))
	processed, err := store.AlreadyProcessed(context.Background(), "twilio", "SM1")
	if err != nil || !processed {
		t.Fatalf("expected existing row, got processed=%v err=%v", processed, err)
	}

	mock.ExpectQuery("SELECT 1 FROM processed_messages").WithArgs("twilio", "SM2").WillReturnError(pgx.ErrNoRows)
	processed, err = store.AlreadyProcessed(context.Background(), "twilio", "SM2")
	if err != nil || processed {
		t.Fatalf("expected missing row, got processed=%v err=%v", processed, err)
	}

	mock.ExpectExec("INSERT INTO processed_messages").WithArgs("telnyx", "msg-3").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	first, err := store.MarkProcessed(context.Background(), "telnyx", "msg-3")
	if err != nil || !first {
		t.Fatalf("expected first mark to insert, got %v %v", first, err)
	}

	mock.ExpectExec("INSERT INTO processed_messages").WithArgs("telnyx", "msg-3").WillReturnResult(pgxmock.NewResult("INSERT", 0))
	again, err := store.MarkProcessed(context.Background(), "telnyx", "msg-3")
	if err != nil || again {
		t.Fatalf("expected redelivery to be reported, got %v %v", again, err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
