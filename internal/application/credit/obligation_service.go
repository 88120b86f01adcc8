package credit

import (
	"context"
	"time"

	"github.com/lendcore/backend/internal/domain/credit"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ObligationService advances obligation calendar states and exposes
// obligation read views
type ObligationService struct {
	obligationRepo credit.ObligationRepository
	ledger         credit.Ledger
	logger         *zap.Logger
}

// NewObligationService creates a new ObligationService
func NewObligationService(
	obligationRepo credit.ObligationRepository,
	ledger credit.Ledger,
	logger *zap.Logger,
) *ObligationService {
	return &ObligationService{
		obligationRepo: obligationRepo,
		ledger:         ledger,
		logger:         logger,
	}
}

// ObligationResponse represents an obligation in API responses
type ObligationResponse struct {
	ID             uuid.UUID       `json:"id"`
	FacilityID     uuid.UUID       `json:"facility_id"`
	ObligationType string          `json:"obligation_type"`
	Status         string          `json:"status"`
	InitialAmount  decimal.Decimal `json:"initial_amount"`
	Outstanding    decimal.Decimal `json:"outstanding"`
	EffectiveDate  time.Time       `json:"effective_date"`
	DueDate        time.Time       `json:"due_date"`
	OverdueDate    *time.Time      `json:"overdue_date,omitempty"`
	DefaultedDate  *time.Time      `json:"defaulted_date,omitempty"`
}

func toObligationResponse(o *credit.Obligation) *ObligationResponse {
	return &ObligationResponse{
		ID:             o.ID,
		FacilityID:     o.FacilityID,
		ObligationType: o.ObligationType.String(),
		Status:         o.Status().String(),
		InitialAmount:  o.InitialAmount,
		Outstanding:    o.Outstanding(),
		EffectiveDate:  o.EffectiveDate,
		DueDate:        o.DueDate,
		OverdueDate:    o.OverdueDate,
		DefaultedDate:  o.DefaultedDate,
	}
}

// GetObligation gets an obligation by id
func (s *ObligationService) GetObligation(ctx context.Context, id uuid.UUID) (*ObligationResponse, error) {
	obligation, err := s.obligationRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return toObligationResponse(obligation), nil
}

// ListFacilityObligations lists all obligations of a facility
func (s *ObligationService) ListFacilityObligations(ctx context.Context, facilityID uuid.UUID) ([]ObligationResponse, error) {
	obligations, err := s.obligationRepo.FindByFacility(ctx, facilityID)
	if err != nil {
		return nil, err
	}
	responses := make([]ObligationResponse, len(obligations))
	for i, o := range obligations {
		responses[i] = *toObligationResponse(o)
	}
	return responses, nil
}

// TransitionObligation catches an obligation's calendar state up to the given
// day, booking one ledger reallocation per step. Returns the number of steps
// taken.
func (s *ObligationService) TransitionObligation(ctx context.Context, id uuid.UUID, now time.Time) (int, error) {
	obligation, err := s.obligationRepo.FindByID(ctx, id)
	if err != nil {
		return 0, err
	}

	steps := 0
	for {
		res := obligation.Transition(now)
		if !res.WasExecuted() {
			break
		}
		if err := s.ledger.ExecuteReallocation(ctx, res.Value.Reallocation); err != nil {
			return steps, err
		}
		steps++
		s.logger.Info("Obligation transitioned",
			zap.String("obligation_id", id.String()),
			zap.String("new_status", res.Value.NewStatus.String()),
			zap.String("reallocated", res.Value.Reallocation.Amount.String()),
		)
	}
	if steps == 0 {
		return 0, nil
	}

	if err := s.obligationRepo.Save(ctx, obligation); err != nil {
		return steps, err
	}
	return steps, nil
}

// ProcessTransitions sweeps every obligation whose next transition date has
// passed
func (s *ObligationService) ProcessTransitions(ctx context.Context, now time.Time) error {
	ids, err := s.obligationRepo.FindDueForTransition(ctx, now)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := s.TransitionObligation(ctx, id, now); err != nil {
			s.logger.Error("Obligation transition failed",
				zap.String("obligation_id", id.String()),
				zap.Error(err),
			)
		}
	}
	return nil
}
