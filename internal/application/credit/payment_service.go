package credit

import (
	"context"
	"time"

	"github.com/lendcore/backend/internal/domain/credit"
	"github.com/lendcore/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const paymentRetryAttempts = 3

// PaymentService records customer payments and settles them against the
// facility's outstanding obligations
type PaymentService struct {
	facilityRepo   credit.CreditFacilityRepository
	obligationRepo credit.ObligationRepository
	ledger         credit.Ledger
	allocator      *credit.PaymentAllocator
	logger         *zap.Logger
}

// NewPaymentService creates a new PaymentService
func NewPaymentService(
	facilityRepo credit.CreditFacilityRepository,
	obligationRepo credit.ObligationRepository,
	ledger credit.Ledger,
	logger *zap.Logger,
) *PaymentService {
	return &PaymentService{
		facilityRepo:   facilityRepo,
		obligationRepo: obligationRepo,
		ledger:         ledger,
		allocator:      credit.NewPaymentAllocator(),
		logger:         logger,
	}
}

// RecordPaymentRequest carries the inputs for settling a payment
type RecordPaymentRequest struct {
	FacilityID    uuid.UUID       `json:"facility_id"`
	PaymentID     uuid.UUID       `json:"payment_id"`
	Amount        decimal.Decimal `json:"amount"`
	EffectiveDate time.Time       `json:"effective_date"`
}

// PaymentResponse reports how a recorded payment was split
type PaymentResponse struct {
	PaymentID      uuid.UUID                     `json:"payment_id"`
	FacilityID     uuid.UUID                     `json:"facility_id"`
	Amount         decimal.Decimal               `json:"amount"`
	InterestTotal  decimal.Decimal               `json:"interest_total"`
	DisbursalTotal decimal.Decimal               `json:"disbursal_total"`
	Remaining      decimal.Decimal               `json:"remaining"`
	Allocations    []credit.ObligationAllocation `json:"allocations"`
}

// RecordPayment allocates a payment across the facility's obligations in
// canonical order, books each allocation on the ledger and persists the
// touched obligations. Safe to retry: allocations are idempotent per payment
// id. Retries the whole settlement on concurrent obligation updates.
func (s *PaymentService) RecordPayment(ctx context.Context, req RecordPaymentRequest) (*PaymentResponse, error) {
	if !req.Amount.IsPositive() {
		return nil, shared.NewDomainError("INVALID_PAYMENT_AMOUNT", "Payment amount must be positive")
	}

	facility, err := s.facilityRepo.FindByID(ctx, req.FacilityID)
	if err != nil {
		return nil, err
	}

	var response *PaymentResponse
	err = withConflictRetry(ctx, paymentRetryAttempts, func() error {
		var settleErr error
		response, settleErr = s.settle(ctx, facility, req)
		return settleErr
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Payment recorded",
		zap.String("facility_id", req.FacilityID.String()),
		zap.String("payment_id", req.PaymentID.String()),
		zap.String("amount", req.Amount.String()),
		zap.String("interest_total", response.InterestTotal.String()),
		zap.String("disbursal_total", response.DisbursalTotal.String()),
	)
	return response, nil
}

func (s *PaymentService) settle(ctx context.Context, facility *credit.CreditFacility, req RecordPaymentRequest) (*PaymentResponse, error) {
	obligations, err := s.obligationRepo.FindByFacility(ctx, req.FacilityID)
	if err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]*credit.Obligation, len(obligations))
	summaries := make([]credit.ObligationSummary, 0, len(obligations))
	for _, o := range obligations {
		byID[o.ID] = o
		summaries = append(summaries, o.Summary())
	}

	plan, err := s.allocator.Allocate(req.Amount, summaries)
	if err != nil {
		return nil, err
	}

	details := credit.PaymentAllocationDetails{
		PaymentID:               req.PaymentID,
		PaymentHoldingAccountID: facility.AccountIDs.PaymentHoldingAccountID,
		EffectiveDate:           req.EffectiveDate,
	}
	for _, instruction := range plan.Allocations {
		obligation := byID[instruction.ObligationID]
		res := obligation.AllocatePayment(instruction.Amount, details)
		if !res.WasExecuted() {
			continue
		}
		if err := s.ledger.ExecutePaymentAllocation(ctx, *res.Value); err != nil {
			return nil, err
		}
		if err := s.obligationRepo.Save(ctx, obligation); err != nil {
			return nil, err
		}
	}

	return &PaymentResponse{
		PaymentID:      req.PaymentID,
		FacilityID:     req.FacilityID,
		Amount:         req.Amount,
		InterestTotal:  plan.InterestTotal,
		DisbursalTotal: plan.DisbursalTotal,
		Remaining:      plan.Remaining,
		Allocations:    plan.Allocations,
	}, nil
}
