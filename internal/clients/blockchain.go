// Package clients provides the external collaborator ports the platform's
// task implementations depend on: blockchain RPC, AI summarization, and
// social-media posting. Each is a narrow interface handed to internal/tasks
// once, through tasks.Configure.
package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"
)

// Funding fee tiers in microSTX, left for the caller to choose explicitly
// rather than guessed by the platform (spec §9 open question: "what
// microSTX fee should funding requests carry?").
const (
	FundingFeeLowMicroSTX  = 200
	FundingFeeHighMicroSTX = 400
)

// TreasuryBalance is the wallet/treasury snapshot polled by the
// treasury_eod task.
type TreasuryBalance struct {
	Address       string
	BalanceMicroSTX int64
	AsOf          time.Time
}

// FundingRequest asks the treasury to move funds to a recipient, signed as a
// JWT assertion carrying the amount and fee claims.
type FundingRequest struct {
	Recipient     string
	AmountMicroSTX int64
	FeeMicroSTX   int64
}

// BlockchainClient is the port clients.blockchain.go exposes to
// internal/tasks for wallet/treasury reads and funding-request submission.
type BlockchainClient interface {
	// TreasuryBalance fetches the current treasury balance.
	TreasuryBalance(ctx context.Context, address string) (TreasuryBalance, error)

	// SubmitFundingRequest signs a funding request as a JWT assertion and
	// returns the signed token; nothing is broadcast.
	SubmitFundingRequest(ctx context.Context, req FundingRequest) (txID string, err error)
}

// rpcBlockchainClient is the production BlockchainClient, rate-limited the
// way the teacher's EODHDConfig.RateLimit bounds outbound API calls.
type rpcBlockchainClient struct {
	endpoint   string
	signingKey []byte
	limiter    *rate.Limiter
	timeout    time.Duration
	httpClient *http.Client
}

// NewBlockchainClient builds a rate-limited RPC-backed BlockchainClient.
// ratePerSecond bounds outbound requests; signingKey authenticates funding
// request assertions via HS256.
func NewBlockchainClient(endpoint string, ratePerSecond int, signingKey string, timeout time.Duration) BlockchainClient {
	if ratePerSecond <= 0 {
		ratePerSecond = 5
	}
	return &rpcBlockchainClient{
		endpoint:   endpoint,
		signingKey: []byte(signingKey),
		limiter:    rate.NewLimiter(rate.Limit(ratePerSecond), ratePerSecond),
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// balanceResponse mirrors the subset of a Stacks address-balances endpoint
// response the treasury poller cares about; the wire protocol beyond this
// shape is out of scope (spec.md Non-goals: no blockchain protocol
// handling).
type balanceResponse struct {
	STX struct {
		Balance string `json:"balance"`
	} `json:"stx"`
}

func (c *rpcBlockchainClient) TreasuryBalance(ctx context.Context, address string) (TreasuryBalance, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return TreasuryBalance{}, fmt.Errorf("clients: rate limiter: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/extended/v1/address/%s/balances", c.endpoint, address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return TreasuryBalance{}, fmt.Errorf("clients: build balance request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return TreasuryBalance{}, fmt.Errorf("clients: balance request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return TreasuryBalance{}, fmt.Errorf("clients: balance request for %s: status %d", address, resp.StatusCode)
	}

	var body balanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return TreasuryBalance{}, fmt.Errorf("clients: decode balance response: %w", err)
	}

	balance, err := strconv.ParseInt(body.STX.Balance, 10, 64)
	if err != nil {
		return TreasuryBalance{}, fmt.Errorf("clients: parse balance %q: %w", body.STX.Balance, err)
	}

	return TreasuryBalance{Address: address, BalanceMicroSTX: balance, AsOf: time.Now()}, nil
}

func (c *rpcBlockchainClient) SubmitFundingRequest(ctx context.Context, req FundingRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("clients: rate limiter: %w", err)
	}
	if len(c.signingKey) == 0 {
		return "", fmt.Errorf("clients: funding signing key not configured")
	}

	claims := jwt.MapClaims{
		"recipient":     req.Recipient,
		"amount":        req.AmountMicroSTX,
		"fee_microstx":  req.FeeMicroSTX,
		"iat":           time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.signingKey)
	if err != nil {
		return "", fmt.Errorf("clients: sign funding request: %w", err)
	}

	// Broadcasting the signed assertion is the out-of-scope RPC seam; the
	// signed token stands in as the submission payload.
	return signed, nil
}
