package credit

import (
	"context"
	"time"

	"github.com/lendcore/backend/internal/domain/shared"
	"github.com/lendcore/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// CreditFacilityFilter defines filtering options for facility queries
type CreditFacilityFilter struct {
	shared.Filter
	CustomerID *uuid.UUID      // Filter by customer
	Status     *FacilityStatus // Filter by derived status projection
}

// CreditFacilityRepository defines the interface for credit facility persistence.
// Facilities are stored as append-only event streams; Save appends the
// aggregate's new events under an optimistic concurrency check on Version.
type CreditFacilityRepository interface {
	// FindByID hydrates a facility from its event history
	FindByID(ctx context.Context, id uuid.UUID) (*CreditFacility, error)

	// FindAll finds facilities matching the filter, one page at a time
	FindAll(ctx context.Context, filter CreditFacilityFilter) (*shared.Paginated[*CreditFacility], error)

	// FindActiveIDs lists ids of facilities that are activated but not closed
	FindActiveIDs(ctx context.Context) ([]uuid.UUID, error)

	// FindMaturedCandidateIDs lists ids of active facilities whose maturity
	// date is on or before the given day
	FindMaturedCandidateIDs(ctx context.Context, asOf time.Time) ([]uuid.UUID, error)

	// Save appends the facility's new events, failing with
	// shared.ErrConcurrencyConflict on a version mismatch
	Save(ctx context.Context, facility *CreditFacility) error
}

// InterestAccrualCycleRepository defines the interface for accrual cycle persistence
type InterestAccrualCycleRepository interface {
	// FindByID hydrates a cycle from its event history
	FindByID(ctx context.Context, id uuid.UUID) (*InterestAccrualCycle, error)

	// FindByFacility hydrates all cycles belonging to a facility, oldest first
	FindByFacility(ctx context.Context, facilityID uuid.UUID) ([]*InterestAccrualCycle, error)

	// FindDueForAccrual lists ids of uncompleted cycles whose next accrual
	// period ends on or before the given day
	FindDueForAccrual(ctx context.Context, asOf time.Time) ([]uuid.UUID, error)

	// Save appends the cycle's new events with optimistic concurrency
	Save(ctx context.Context, cycle *InterestAccrualCycle) error
}

// ObligationRepository defines the interface for obligation persistence
type ObligationRepository interface {
	// FindByID hydrates an obligation from its event history
	FindByID(ctx context.Context, id uuid.UUID) (*Obligation, error)

	// FindByFacility hydrates all obligations of a facility
	FindByFacility(ctx context.Context, facilityID uuid.UUID) ([]*Obligation, error)

	// FindDueForTransition lists ids of non-terminal obligations whose next
	// transition date is on or before the given day
	FindDueForTransition(ctx context.Context, asOf time.Time) ([]uuid.UUID, error)

	// Save appends the obligation's new events with optimistic concurrency
	Save(ctx context.Context, obligation *Obligation) error
}

// Ledger is the port to the external double-entry ledger. Implementations
// must be idempotent per transaction id: replaying an instruction with a
// previously executed TxID is a no-op.
type Ledger interface {
	// ExecuteActivation books the facility activation and structuring fee
	ExecuteActivation(ctx context.Context, activation FacilityActivation) error

	// ExecuteReallocation moves an outstanding balance between receivable
	// accounts on an obligation status transition
	ExecuteReallocation(ctx context.Context, reallocation LedgerReallocation) error

	// ExecutePaymentAllocation settles part of an obligation from the
	// payment holding account
	ExecutePaymentAllocation(ctx context.Context, allocation PaymentAllocation) error

	// PostInterest books accrued interest against the receivable account
	PostInterest(ctx context.Context, posting InterestPosting) error

	// RevertInterest reverses a previously booked interest transaction
	RevertInterest(ctx context.Context, reversal InterestReversal) error

	// ExecuteCompletion releases remaining collateral and closes the
	// facility accounts
	ExecuteCompletion(ctx context.Context, completion FacilityCompletion) error
}

// PriceOracle provides the current unit price of the collateral asset
type PriceOracle interface {
	CollateralPrice(ctx context.Context) (valueobject.Money, error)
}

// CollateralBalances provides the collateral quantity currently pledged
// against a facility
type CollateralBalances interface {
	CollateralBalance(ctx context.Context, collateralID uuid.UUID) (valueobject.Quantity, error)
}
