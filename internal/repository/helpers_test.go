package repository

import (
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

var clearanceRowColumns = []string{"id", "student_id", "status", "fulfillment_status", "registrar_status", "document_type", "documents", "purposes", "reason", "payment_method", "payment_amount", "payment_receipt", "receipt_url", "receipt_key", "reference_number", "payment_verified", "payment_details", "pickup_date", "created_at", "updated_at"}

func clearanceRows(id, studentID, status string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(clearanceRowColumns).
		AddRow(id, studentID, status, "Pending", "Pending", "Registrar Documents", "{TOR,Diploma}", "{Employment}", nil, "gcash", 50.0, nil, nil, nil, "1234567", true, nil, nil, now, now)
}

var documentRowColumns = []string{"id", "student_id", "document_type", "purpose", "status", "clearance_request_id", "reference_number", "pickup_date", "rejection_reason", "completed_at", "created_at", "updated_at"}

func documentRows(id, status string, clearanceID interface{}) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(documentRowColumns).
		AddRow(id, "stu-1", "TOR, Diploma", "Employment", status, clearanceID, nil, nil, nil, nil, now, now)
}
