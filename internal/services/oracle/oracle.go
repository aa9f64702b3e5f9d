package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"eventpass/internal/status"
	"eventpass/monitoring"
	"eventpass/utils"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// Service converts a fiat event price into the minimum required amount of
// ledger base units, using an external exchange-rate source. Rates are
// cached in redis for the configured refresh window. Every failure mode is
// closed: a missing, stale, non-positive or malformed rate is an error,
// never a defaulted value.
type Service struct {
	hc            *http.Client
	redis         *redis.Client
	cb            *utils.CircuitBreaker
	baseURL       string
	assetID       string
	unitsPerToken decimal.Decimal
	refresh       time.Duration
}

func New(baseURL, assetID string, unitsPerToken int64, refresh time.Duration, redisClient *redis.Client) *Service {
	return &Service{
		hc:            &http.Client{Timeout: 10 * time.Second},
		redis:         redisClient,
		cb:            utils.NewCircuitBreaker("price-oracle"),
		baseURL:       baseURL,
		assetID:       assetID,
		unitsPerToken: decimal.NewFromInt(unitsPerToken),
		refresh:       refresh,
	}
}

// MinimumRequiredAmount computes ceil(priceMinor/100 / rate * unitsPerToken)
// for the given currency.
func (s *Service) MinimumRequiredAmount(ctx context.Context, priceMinorUnits int, currency string) (int64, error) {
	if priceMinorUnits <= 0 {
		return 0, fmt.Errorf("%w: non-positive price", status.ErrValidation)
	}
	if currency == "" {
		return 0, fmt.Errorf("%w: missing currency", status.ErrValidation)
	}
	currency = strings.ToLower(currency)

	rate, err := s.rate(ctx, currency)
	if err != nil {
		return 0, err
	}

	priceFiat := decimal.NewFromInt(int64(priceMinorUnits)).Div(decimal.NewFromInt(100))
	minUnits := priceFiat.Div(rate).Mul(s.unitsPerToken).Ceil()
	return minUnits.IntPart(), nil
}

func (s *Service) cacheKey(currency string) string {
	return fmt.Sprintf("oracle:rate:%s:%s", s.assetID, currency)
}

// rate returns the cached token rate for the currency, fetching from the
// upstream source on a cache miss.
func (s *Service) rate(ctx context.Context, currency string) (decimal.Decimal, error) {
	if s.redis != nil {
		cached, err := s.redis.Get(ctx, s.cacheKey(currency)).Result()
		if err == nil {
			rate, perr := decimal.NewFromString(cached)
			if perr == nil && rate.IsPositive() {
				monitoring.TrackOracleLookup("cache")
				return rate, nil
			}
		}
	}

	result, err := s.cb.Execute(ctx, func() (any, error) {
		return s.fetchRate(ctx, currency)
	})
	if err != nil {
		monitoring.TrackOracleLookup("error")
		return decimal.Zero, err
	}
	rate := result.(decimal.Decimal)
	monitoring.TrackOracleLookup("upstream")

	if s.redis != nil {
		s.redis.Set(ctx, s.cacheKey(currency), rate.String(), s.refresh)
	}

	return rate, nil
}

// fetchRate calls the CoinGecko-compatible simple-price endpoint.
func (s *Service) fetchRate(ctx context.Context, currency string) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=%s",
		s.baseURL, url.QueryEscape(s.assetID), url.QueryEscape(currency))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetchRate: http.NewRequestWithContext: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.hc.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: fetchRate: %v", status.ErrExternalService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		rbody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return decimal.Zero, fmt.Errorf("%w: fetchRate: status %d, body %s", status.ErrExternalService, resp.StatusCode, rbody)
	}

	var reply map[string]map[string]decimal.Decimal
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&reply); err != nil {
		return decimal.Zero, fmt.Errorf("%w: fetchRate: json.Decode: %v", status.ErrExternalService, err)
	}

	rate, ok := reply[s.assetID][currency]
	if !ok || !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: fetchRate: invalid rate for %s/%s", status.ErrExternalService, s.assetID, currency)
	}

	return rate, nil
}
