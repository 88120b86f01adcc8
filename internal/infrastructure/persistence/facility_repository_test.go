package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lendcore/backend/internal/domain/credit"
	"github.com/lendcore/backend/internal/domain/shared"
	"github.com/lendcore/backend/internal/infrastructure/event"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var eventColumns = []string{
	"seq", "aggregate_id", "aggregate_type", "version",
	"event_type", "payload", "occurred_at", "created_at",
}

// newMockGorm creates a gorm connection over a mocked SQL connection with
// the same error translation the real connection uses
func newMockGorm(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	require.NoError(t, err)

	return gormDB, mock, mockDB
}

func newMockFacilityRepository(t *testing.T) (*GormCreditFacilityRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	gormDB, mock, mockDB := newMockGorm(t)
	store := NewEventStore(gormDB, event.NewCreditSerializer())
	return NewGormCreditFacilityRepository(gormDB, store), mock, mockDB
}

func testObligationAccountIDs() credit.ObligationAccountIDs {
	return credit.ObligationAccountIDs{
		NotYetDueAccountID: uuid.New(),
		DueAccountID:       uuid.New(),
		OverdueAccountID:   uuid.New(),
		DefaultedAccountID: uuid.New(),
	}
}

func testFacilityAccountIDs() credit.FacilityAccountIDs {
	return credit.FacilityAccountIDs{
		FacilityAccountID:           uuid.New(),
		CollateralAccountID:         uuid.New(),
		FeeIncomeAccountID:          uuid.New(),
		InterestIncomeAccountID:     uuid.New(),
		PaymentHoldingAccountID:     uuid.New(),
		DisbursedReceivableAccounts: testObligationAccountIDs(),
		InterestReceivableAccounts:  testObligationAccountIDs(),
	}
}

func testTerms() credit.FacilityTerms {
	overdue := credit.ObligationDuration{Days: 14}
	liquidation := credit.ObligationDuration{Days: 60}
	return credit.FacilityTerms{
		AnnualRate:           decimal.NewFromFloat(0.12),
		DayCountBasis:        credit.DefaultDayCountBasis,
		Duration:             credit.FacilityDuration{Months: 3},
		AccrualInterval:      credit.IntervalEndOfDay,
		AccrualCycleInterval: credit.IntervalEndOfMonth,
		OneTimeFeeRate:       decimal.NewFromFloat(0.01),
		OverdueDuration:      &overdue,
		LiquidationDuration:  &liquidation,
		InitialCVL:           decimal.NewFromInt(140),
		MarginCallCVL:        decimal.NewFromInt(125),
		LiquidationCVL:       decimal.NewFromInt(105),
	}
}

func newTestFacility(t *testing.T) *credit.CreditFacility {
	t.Helper()
	facility, err := credit.NewCreditFacility(credit.NewCreditFacilityParams{
		CustomerID:        uuid.New(),
		CollateralID:      uuid.New(),
		ApprovalProcessID: uuid.New(),
		Amount:            decimal.NewFromInt(100000),
		Terms:             testTerms(),
		AccountIDs:        testFacilityAccountIDs(),
	})
	require.NoError(t, err)
	return facility
}

// eventRowsFor serializes an aggregate's staged events into event store
// rows the way Save would persist them
func eventRowsFor(t *testing.T, root shared.AggregateRoot, aggregateType string) *sqlmock.Rows {
	t.Helper()
	serializer := event.NewCreditSerializer()
	rows := sqlmock.NewRows(eventColumns)
	for i, ev := range root.GetNewEvents() {
		payload, err := serializer.Serialize(ev)
		require.NoError(t, err)
		rows.AddRow(int64(i+1), ev.AggregateID(), aggregateType, i+1,
			ev.EventType(), payload, ev.OccurredAt(), time.Now())
	}
	return rows
}

func TestGormCreditFacilityRepository_FindByID(t *testing.T) {
	t.Run("hydrates facility from its event stream", func(t *testing.T) {
		repo, mock, mockDB := newMockFacilityRepository(t)
		defer mockDB.Close()

		original := newTestFacility(t)
		rows := eventRowsFor(t, original, "CreditFacility")

		mock.ExpectQuery(`SELECT \* FROM "credit_events" WHERE aggregate_id = \$1 ORDER BY version ASC`).
			WithArgs(original.ID).
			WillReturnRows(rows)

		facility, err := repo.FindByID(context.Background(), original.ID)

		require.NoError(t, err)
		assert.Equal(t, original.ID, facility.ID)
		assert.Equal(t, original.CustomerID, facility.CustomerID)
		assert.True(t, original.Amount.Equal(facility.Amount))
		assert.Equal(t, credit.FacilityStatusPendingCollateralization, facility.Status())
		assert.Equal(t, 1, facility.GetVersion())
		assert.Empty(t, facility.GetNewEvents())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns ErrNotFound for missing stream", func(t *testing.T) {
		repo, mock, mockDB := newMockFacilityRepository(t)
		defer mockDB.Close()

		id := uuid.New()
		mock.ExpectQuery(`SELECT \* FROM "credit_events" WHERE aggregate_id = \$1 ORDER BY version ASC`).
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows(eventColumns))

		_, err := repo.FindByID(context.Background(), id)

		assert.ErrorIs(t, err, shared.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormCreditFacilityRepository_Save(t *testing.T) {
	t.Run("appends staged events and rewrites the head", func(t *testing.T) {
		repo, mock, mockDB := newMockFacilityRepository(t)
		defer mockDB.Close()

		facility := newTestFacility(t)
		require.Len(t, facility.GetNewEvents(), 1)

		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO "credit_events"`).
			WillReturnRows(sqlmock.NewRows([]string{"created_at", "seq"}).AddRow(time.Now(), int64(1)))
		mock.ExpectExec(`INSERT INTO "credit_facility_heads"`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := repo.Save(context.Background(), facility)

		require.NoError(t, err)
		assert.Empty(t, facility.GetNewEvents())
		assert.Equal(t, 1, facility.GetVersion())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("maps a stream version collision to ErrConcurrencyConflict", func(t *testing.T) {
		repo, mock, mockDB := newMockFacilityRepository(t)
		defer mockDB.Close()

		facility := newTestFacility(t)

		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO "credit_events"`).
			WillReturnError(&pgconn.PgError{Code: "23505"})
		mock.ExpectRollback()

		err := repo.Save(context.Background(), facility)

		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
		// staged events survive the failed save for a retry
		assert.Len(t, facility.GetNewEvents(), 1)
		assert.Equal(t, 0, facility.GetVersion())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("is a no-op without staged events", func(t *testing.T) {
		repo, mock, mockDB := newMockFacilityRepository(t)
		defer mockDB.Close()

		facility := newTestFacility(t)
		facility.ClearNewEvents()

		err := repo.Save(context.Background(), facility)

		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormCreditFacilityRepository_FindActiveIDs(t *testing.T) {
	repo, mock, mockDB := newMockFacilityRepository(t)
	defer mockDB.Close()

	activeID := uuid.New()
	maturedID := uuid.New()
	mock.ExpectQuery(`SELECT "id" FROM "credit_facility_heads" WHERE activated_at IS NOT NULL AND status <> \$1 ORDER BY created_at ASC`).
		WithArgs("CLOSED").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(activeID).AddRow(maturedID))

	ids, err := repo.FindActiveIDs(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{activeID, maturedID}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormCreditFacilityRepository_FindMaturedCandidateIDs(t *testing.T) {
	repo, mock, mockDB := newMockFacilityRepository(t)
	defer mockDB.Close()

	asOf := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	matureID := uuid.New()
	mock.ExpectQuery(`SELECT "id" FROM "credit_facility_heads" WHERE status = \$1 AND matures_at <= \$2 ORDER BY matures_at ASC`).
		WithArgs("ACTIVE", asOf).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(matureID))

	ids, err := repo.FindMaturedCandidateIDs(context.Background(), asOf)

	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{matureID}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormCreditFacilityRepository_FindAll(t *testing.T) {
	repo, mock, mockDB := newMockFacilityRepository(t)
	defer mockDB.Close()

	original := newTestFacility(t)
	customerID := original.CustomerID
	rows := eventRowsFor(t, original, "CreditFacility")

	mock.ExpectQuery(`SELECT count\(\*\) FROM "credit_facility_heads" WHERE customer_id = \$1`).
		WithArgs(customerID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(1)))
	mock.ExpectQuery(`SELECT "id" FROM "credit_facility_heads" WHERE customer_id = \$1 ORDER BY created_at DESC LIMIT \$2`).
		WithArgs(customerID, 20).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(original.ID))
	mock.ExpectQuery(`SELECT \* FROM "credit_events" WHERE aggregate_id IN \(\$1\) ORDER BY aggregate_id ASC, version ASC`).
		WithArgs(original.ID).
		WillReturnRows(rows)

	page, err := repo.FindAll(context.Background(), credit.CreditFacilityFilter{
		CustomerID: &customerID,
	})

	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, original.ID, page.Items[0].ID)
	assert.Equal(t, customerID, page.Items[0].CustomerID)
	assert.Equal(t, int64(1), page.Total)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.PageSize)
	assert.Equal(t, 1, page.TotalPages)
	assert.NoError(t, mock.ExpectationsWereMet())
}
