package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lendcore/backend/internal/domain/shared"
	"github.com/lendcore/backend/internal/domain/shared/valueobject"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrPriceUnavailable is returned when no fresh collateral price is
// published. Collateralization checks must not run on a stale or missing
// price.
var ErrPriceUnavailable = shared.NewDomainError("PRICE_UNAVAILABLE", "No fresh collateral price is available")

// pricePayload is the wire format the price feed publishes
type pricePayload struct {
	Price     decimal.Decimal `json:"price"`
	Currency  string          `json:"currency"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// RedisPriceOracle implements credit.PriceOracle against a Redis key the
// collateral price feed publishes under. Entries carry a TTL, so a feed
// outage surfaces as ErrPriceUnavailable instead of a silently aging
// price.
type RedisPriceOracle struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	logger *zap.Logger
}

// RedisPriceOracleOption is a functional option for configuring the oracle
type RedisPriceOracleOption func(*RedisPriceOracle)

// WithOracleLogger sets the logger for the oracle
func WithOracleLogger(logger *zap.Logger) RedisPriceOracleOption {
	return func(o *RedisPriceOracle) {
		o.logger = logger
	}
}

// NewRedisPriceOracle creates an oracle reading from the given key with
// the given freshness bound.
// The caller retains ownership of the client and is responsible for
// closing it.
func NewRedisPriceOracle(client *redis.Client, key string, ttl time.Duration, opts ...RedisPriceOracleOption) *RedisPriceOracle {
	oracle := &RedisPriceOracle{
		client: client,
		key:    key,
		ttl:    ttl,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(oracle)
	}
	return oracle
}

// CollateralPrice returns the current unit price of the collateral asset
func (o *RedisPriceOracle) CollateralPrice(ctx context.Context) (valueobject.Money, error) {
	data, err := o.client.Get(ctx, o.key).Bytes()
	if err == redis.Nil {
		o.logger.Warn("Collateral price missing or expired", zap.String("key", o.key))
		return valueobject.Money{}, ErrPriceUnavailable
	}
	if err != nil {
		return valueobject.Money{}, fmt.Errorf("failed to read collateral price: %w", err)
	}

	var payload pricePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		// Drop the corrupted entry so the feed's next publish starts clean
		_ = o.client.Del(ctx, o.key)
		return valueobject.Money{}, fmt.Errorf("failed to unmarshal collateral price: %w", err)
	}
	if payload.Price.LessThanOrEqual(decimal.Zero) {
		return valueobject.Money{}, ErrPriceUnavailable
	}

	o.logger.Debug("Collateral price read",
		zap.String("price", payload.Price.String()),
		zap.Time("updated_at", payload.UpdatedAt),
	)
	return valueobject.NewMoneyUSD(payload.Price), nil
}

// PublishPrice writes a new collateral price under the feed key with the
// oracle's freshness bound as TTL
func (o *RedisPriceOracle) PublishPrice(ctx context.Context, price valueobject.Money) error {
	payload := pricePayload{
		Price:     price.Amount(),
		Currency:  string(price.Currency()),
		UpdatedAt: time.Now(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal collateral price: %w", err)
	}
	if err := o.client.Set(ctx, o.key, data, o.ttl).Err(); err != nil {
		return fmt.Errorf("failed to publish collateral price: %w", err)
	}
	return nil
}
