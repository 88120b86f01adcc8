package credit

import (
	"context"
	"errors"
	"time"

	"github.com/lendcore/backend/internal/domain/credit"
	"github.com/lendcore/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// FacilityService provides application-level credit facility operations
type FacilityService struct {
	facilityRepo   credit.CreditFacilityRepository
	cycleRepo      credit.InterestAccrualCycleRepository
	obligationRepo credit.ObligationRepository
	ledger         credit.Ledger
	prices         credit.PriceOracle
	collateral     credit.CollateralBalances
	upgradeBuffer  decimal.Decimal
	logger         *zap.Logger
}

// FacilityServiceOption is a functional option for configuring FacilityService
type FacilityServiceOption func(*FacilityService)

// WithUpgradeBuffer sets the CVL buffer a distressed facility must clear on
// top of the margin call threshold before its state upgrades
func WithUpgradeBuffer(buffer decimal.Decimal) FacilityServiceOption {
	return func(s *FacilityService) {
		s.upgradeBuffer = buffer
	}
}

// DefaultUpgradeBufferCVL is the default anti-flapping buffer, in CVL points
var DefaultUpgradeBufferCVL = decimal.NewFromInt(5)

// NewFacilityService creates a new FacilityService
func NewFacilityService(
	facilityRepo credit.CreditFacilityRepository,
	cycleRepo credit.InterestAccrualCycleRepository,
	obligationRepo credit.ObligationRepository,
	ledger credit.Ledger,
	prices credit.PriceOracle,
	collateral credit.CollateralBalances,
	logger *zap.Logger,
	opts ...FacilityServiceOption,
) *FacilityService {
	s := &FacilityService{
		facilityRepo:   facilityRepo,
		cycleRepo:      cycleRepo,
		obligationRepo: obligationRepo,
		ledger:         ledger,
		prices:         prices,
		collateral:     collateral,
		upgradeBuffer:  DefaultUpgradeBufferCVL,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateFacilityRequest carries the inputs for opening a new facility
type CreateFacilityRequest struct {
	CustomerID        uuid.UUID                 `json:"customer_id"`
	CollateralID      uuid.UUID                 `json:"collateral_id"`
	ApprovalProcessID uuid.UUID                 `json:"approval_process_id"`
	Amount            decimal.Decimal           `json:"amount"`
	Terms             credit.FacilityTerms      `json:"terms"`
	AccountIDs        credit.FacilityAccountIDs `json:"account_ids"`
}

// FacilityResponse represents a credit facility in API responses
type FacilityResponse struct {
	ID                     uuid.UUID       `json:"id"`
	CustomerID             uuid.UUID       `json:"customer_id"`
	Amount                 decimal.Decimal `json:"amount"`
	Status                 string          `json:"status"`
	CollateralizationState string          `json:"collateralization_state"`
	ActivatedAt            *time.Time      `json:"activated_at,omitempty"`
	MaturesAt              *time.Time      `json:"matures_at,omitempty"`
	CreatedAt              time.Time       `json:"created_at"`
	Version                int             `json:"version"`
}

func toFacilityResponse(f *credit.CreditFacility) *FacilityResponse {
	return &FacilityResponse{
		ID:                     f.ID,
		CustomerID:             f.CustomerID,
		Amount:                 f.Amount,
		Status:                 f.Status().String(),
		CollateralizationState: f.CollateralizationState().String(),
		ActivatedAt:            f.ActivatedAt,
		MaturesAt:              f.MaturesAt,
		CreatedAt:              f.CreatedAt,
		Version:                f.GetVersion(),
	}
}

// CreateFacility opens a new credit facility in its pending phase
func (s *FacilityService) CreateFacility(ctx context.Context, req CreateFacilityRequest) (*FacilityResponse, error) {
	facility, err := credit.NewCreditFacility(credit.NewCreditFacilityParams{
		CustomerID:        req.CustomerID,
		CollateralID:      req.CollateralID,
		ApprovalProcessID: req.ApprovalProcessID,
		Amount:            req.Amount,
		Terms:             req.Terms,
		AccountIDs:        req.AccountIDs,
	})
	if err != nil {
		return nil, err
	}

	if err := s.facilityRepo.Save(ctx, facility); err != nil {
		return nil, err
	}

	s.logger.Info("Credit facility created",
		zap.String("facility_id", facility.ID.String()),
		zap.String("customer_id", req.CustomerID.String()),
		zap.String("amount", req.Amount.String()),
	)
	return toFacilityResponse(facility), nil
}

// GetFacility gets a facility by id
func (s *FacilityService) GetFacility(ctx context.Context, facilityID uuid.UUID) (*FacilityResponse, error) {
	facility, err := s.facilityRepo.FindByID(ctx, facilityID)
	if err != nil {
		return nil, err
	}
	return toFacilityResponse(facility), nil
}

// ListFacilities lists facilities with filtering, one page at a time
func (s *FacilityService) ListFacilities(ctx context.Context, filter credit.CreditFacilityFilter) (*shared.Paginated[FacilityResponse], error) {
	page, err := s.facilityRepo.FindAll(ctx, filter)
	if err != nil {
		return nil, err
	}
	responses := make([]FacilityResponse, len(page.Items))
	for i, f := range page.Items {
		responses[i] = *toFacilityResponse(f)
	}
	result := shared.NewPaginated(responses, page.Total, page.Page, page.PageSize)
	return &result, nil
}

// ConcludeApproval records the outcome of the facility's approval process
func (s *FacilityService) ConcludeApproval(ctx context.Context, facilityID uuid.UUID, approved bool) error {
	facility, err := s.facilityRepo.FindByID(ctx, facilityID)
	if err != nil {
		return err
	}

	if res := facility.ConcludeApprovalProcess(approved); !res.WasExecuted() {
		return nil
	}
	if err := s.facilityRepo.Save(ctx, facility); err != nil {
		return err
	}

	s.logger.Info("Approval process concluded",
		zap.String("facility_id", facilityID.String()),
		zap.Bool("approved", approved),
	)
	return nil
}

// ActivateFacility activates an approved facility, books the activation on
// the ledger and opens the first interest accrual cycle
func (s *FacilityService) ActivateFacility(ctx context.Context, facilityID uuid.UUID, now time.Time) (*FacilityResponse, error) {
	facility, err := s.facilityRepo.FindByID(ctx, facilityID)
	if err != nil {
		return nil, err
	}

	price, err := s.prices.CollateralPrice(ctx)
	if err != nil {
		return nil, err
	}
	balance, err := s.collateral.CollateralBalance(ctx, facility.CollateralID)
	if err != nil {
		return nil, err
	}

	res, err := facility.Activate(now, price, balance)
	if err != nil {
		return nil, err
	}
	if !res.WasExecuted() {
		return toFacilityResponse(facility), nil
	}

	if err := s.ledger.ExecuteActivation(ctx, res.Value.Activation); err != nil {
		return nil, err
	}
	if err := s.saveFacilityWithCycles(ctx, facility); err != nil {
		return nil, err
	}

	s.logger.Info("Credit facility activated",
		zap.String("facility_id", facilityID.String()),
		zap.Time("matures_at", *facility.MaturesAt),
		zap.String("structuring_fee", res.Value.Activation.StructuringFee.String()),
	)
	return toFacilityResponse(facility), nil
}

// InitiateDisbursal disburses part of the facility amount, creating a
// disbursal obligation due at facility maturity
func (s *FacilityService) InitiateDisbursal(ctx context.Context, facilityID uuid.UUID, amount decimal.Decimal, now time.Time) (uuid.UUID, error) {
	facility, err := s.facilityRepo.FindByID(ctx, facilityID)
	if err != nil {
		return uuid.Nil, err
	}

	params, err := facility.InitiateDisbursal(amount, now)
	if err != nil {
		return uuid.Nil, err
	}
	obligation, err := credit.NewObligation(*params)
	if err != nil {
		return uuid.Nil, err
	}
	if err := s.obligationRepo.Save(ctx, obligation); err != nil {
		return uuid.Nil, err
	}

	s.logger.Info("Disbursal initiated",
		zap.String("facility_id", facilityID.String()),
		zap.String("obligation_id", obligation.ID.String()),
		zap.String("amount", amount.String()),
	)
	return obligation.ID, nil
}

// UpdateCollateralization refreshes the facility's CVL and collateralization
// state from the current collateral price and balance. Returns true when
// anything changed.
func (s *FacilityService) UpdateCollateralization(ctx context.Context, facilityID uuid.UUID) (bool, error) {
	facility, err := s.facilityRepo.FindByID(ctx, facilityID)
	if err != nil {
		return false, err
	}

	price, err := s.prices.CollateralPrice(ctx)
	if err != nil {
		return false, err
	}
	balance, err := s.collateral.CollateralBalance(ctx, facility.CollateralID)
	if err != nil {
		return false, err
	}

	if !facility.UpdateCollateralization(price, s.upgradeBuffer, balance) {
		return false, nil
	}
	if err := s.facilityRepo.Save(ctx, facility); err != nil {
		return false, err
	}

	s.logger.Debug("Collateralization updated",
		zap.String("facility_id", facilityID.String()),
		zap.String("state", facility.CollateralizationState().String()),
	)
	return true, nil
}

// RefreshCollateralizations sweeps every active facility through a
// collateralization update
func (s *FacilityService) RefreshCollateralizations(ctx context.Context) error {
	ids, err := s.facilityRepo.FindActiveIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := s.UpdateCollateralization(ctx, id); err != nil {
			s.logger.Error("Collateralization update failed",
				zap.String("facility_id", id.String()),
				zap.Error(err),
			)
		}
	}
	return nil
}

// MatureFacility records that a facility passed its maturity date
func (s *FacilityService) MatureFacility(ctx context.Context, facilityID uuid.UUID) error {
	facility, err := s.facilityRepo.FindByID(ctx, facilityID)
	if err != nil {
		return err
	}

	if res := facility.Mature(); !res.WasExecuted() {
		return nil
	}
	if err := s.facilityRepo.Save(ctx, facility); err != nil {
		return err
	}

	s.logger.Info("Credit facility matured", zap.String("facility_id", facilityID.String()))
	return nil
}

// ProcessMaturities sweeps active facilities whose maturity date has passed
func (s *FacilityService) ProcessMaturities(ctx context.Context, now time.Time) error {
	ids, err := s.facilityRepo.FindMaturedCandidateIDs(ctx, now)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := s.MatureFacility(ctx, id); err != nil {
			s.logger.Error("Facility maturity processing failed",
				zap.String("facility_id", id.String()),
				zap.Error(err),
			)
		}
	}
	return nil
}

// CompleteFacility closes out a facility whose obligations are all settled,
// releasing the remaining collateral
func (s *FacilityService) CompleteFacility(ctx context.Context, facilityID uuid.UUID, now time.Time) (*FacilityResponse, error) {
	facility, err := s.facilityRepo.FindByID(ctx, facilityID)
	if err != nil {
		return nil, err
	}

	balances, err := s.facilityBalances(ctx, facilityID)
	if err != nil {
		return nil, err
	}
	collateralBalance, err := s.collateral.CollateralBalance(ctx, facility.CollateralID)
	if err != nil {
		return nil, err
	}

	res, err := facility.Complete(balances, collateralBalance, now)
	if err != nil {
		return nil, err
	}
	if !res.WasExecuted() {
		return toFacilityResponse(facility), nil
	}

	if err := s.ledger.ExecuteCompletion(ctx, *res.Value); err != nil {
		return nil, err
	}
	if err := s.facilityRepo.Save(ctx, facility); err != nil {
		return nil, err
	}

	s.logger.Info("Credit facility completed", zap.String("facility_id", facilityID.String()))
	return toFacilityResponse(facility), nil
}

// FacilityBalancesResponse is the bucketed balance view of a facility
type FacilityBalancesResponse struct {
	TotalInitialDisbursed decimal.Decimal `json:"total_initial_disbursed"`
	TotalInitialInterest  decimal.Decimal `json:"total_initial_interest"`
	TotalOutstanding      decimal.Decimal `json:"total_outstanding"`
	DisbursedDue          decimal.Decimal `json:"disbursed_due"`
	DisbursedOverdue      decimal.Decimal `json:"disbursed_overdue"`
	DisbursedDefaulted    decimal.Decimal `json:"disbursed_defaulted"`
	InterestDue           decimal.Decimal `json:"interest_due"`
	InterestOverdue       decimal.Decimal `json:"interest_overdue"`
	InterestDefaulted     decimal.Decimal `json:"interest_defaulted"`
}

// GetFacilityBalances rolls the facility's obligations up into bucketed totals
func (s *FacilityService) GetFacilityBalances(ctx context.Context, facilityID uuid.UUID) (*FacilityBalancesResponse, error) {
	balances, err := s.facilityBalances(ctx, facilityID)
	if err != nil {
		return nil, err
	}
	return &FacilityBalancesResponse{
		TotalInitialDisbursed: balances.TotalInitialDisbursed(),
		TotalInitialInterest:  balances.TotalInitialInterest(),
		TotalOutstanding:      balances.TotalOutstanding(),
		DisbursedDue:          balances.DisbursedOutstanding(credit.ObligationStatusDue),
		DisbursedOverdue:      balances.DisbursedOutstanding(credit.ObligationStatusOverdue),
		DisbursedDefaulted:    balances.DisbursedOutstanding(credit.ObligationStatusDefaulted),
		InterestDue:           balances.InterestOutstanding(credit.ObligationStatusDue),
		InterestOverdue:       balances.InterestOutstanding(credit.ObligationStatusOverdue),
		InterestDefaulted:     balances.InterestOutstanding(credit.ObligationStatusDefaulted),
	}, nil
}

func (s *FacilityService) facilityBalances(ctx context.Context, facilityID uuid.UUID) (*credit.ObligationAggregator, error) {
	obligations, err := s.obligationRepo.FindByFacility(ctx, facilityID)
	if err != nil {
		return nil, err
	}
	summaries := make([]credit.ObligationSummary, len(obligations))
	for i, o := range obligations {
		summaries[i] = o.Summary()
	}
	return credit.NewObligationAggregator(summaries), nil
}

// saveFacilityWithCycles persists the facility's new events plus any cycles
// staged during the operation
func (s *FacilityService) saveFacilityWithCycles(ctx context.Context, facility *credit.CreditFacility) error {
	if err := s.facilityRepo.Save(ctx, facility); err != nil {
		return err
	}
	for _, cycle := range facility.StagedCycles() {
		if err := s.cycleRepo.Save(ctx, cycle); err != nil {
			return err
		}
	}
	facility.ClearStagedCycles()
	return nil
}

// withConflictRetry retries fn on optimistic concurrency conflicts
func withConflictRetry(ctx context.Context, attempts int, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil || !errors.Is(err, shared.ErrConcurrencyConflict) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return err
}
