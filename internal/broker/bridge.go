// Package broker implements the account executor (C5): symbol-suffix
// fallback, order-type/threshold selection, take-profit splitting, and the
// HTTP transport to the broker bridge. Grounded on
// original_source/src/trading/executor.py and the teacher's exec/client.go
// HTTP-client shape.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// ErrCode is a closed set of broker bridge error codes, surfaced from
// spec.md §6.
type ErrCode string

const (
	ErrServerNotFound         ErrCode = "E_SRV_NOT_FOUND"
	ErrAuth                   ErrCode = "E_AUTH"
	ErrResourceSlots          ErrCode = "E_RESOURCE_SLOTS"
	ErrNoSymbols              ErrCode = "E_NO_SYMBOLS"
	ErrOTPRequired            ErrCode = "ERR_OTP_REQUIRED"
	ErrPasswordChangeRequired ErrCode = "E_PASSWORD_CHANGE_REQUIRED"
	ErrTradingAccountDisabled ErrCode = "E_TRADING_ACCOUNT_DISABLED"
)

// BridgeError wraps a non-2xx bridge response with its error code.
type BridgeError struct {
	Code    ErrCode
	Message string
}

func (e *BridgeError) Error() string {
	return fmt.Sprintf("bridge error %s: %s", e.Code, e.Message)
}

// BridgeClient is the REST/RPC client to the broker bridge: account
// provisioning (deploy + poll), account info, order placement, position
// modify/close, deal history.
type BridgeClient struct {
	httpClient      *http.Client
	baseURL         string
	apiKey          string
	deployPollEvery time.Duration
	deployMaxPolls  int
}

// NewBridgeClient builds a BridgeClient.
func NewBridgeClient(baseURL, apiKey string, deployPollEvery time.Duration, deployMaxPolls int) *BridgeClient {
	return &BridgeClient{
		httpClient:      &http.Client{Timeout: 30 * time.Second},
		baseURL:         baseURL,
		apiKey:          apiKey,
		deployPollEvery: deployPollEvery,
		deployMaxPolls:  deployMaxPolls,
	}
}

type deployResponse struct {
	AccountID string `json:"account_id"`
	State     string `json:"state"`
}

// DeployAccount provisions a broker account on the bridge and polls until
// it reports "DEPLOYED" (or deployMaxPolls is exhausted), mirroring the
// original TradeExecutor.connect()'s deploy + wait_connected sequence.
func (c *BridgeClient) DeployAccount(ctx context.Context, login, password, server string, platform string) (string, error) {
	req := map[string]string{"login": login, "password": password, "server": server, "platform": platform}
	var resp deployResponse
	if err := c.do(ctx, http.MethodPost, "/accounts/deploy", req, &resp); err != nil {
		return "", err
	}

	for i := 0; i < c.deployMaxPolls; i++ {
		var status deployResponse
		if err := c.do(ctx, http.MethodGet, "/accounts/"+resp.AccountID+"/status", nil, &status); err != nil {
			return "", err
		}
		if status.State == "DEPLOYED" {
			return resp.AccountID, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.deployPollEvery):
		}
	}

	return "", fmt.Errorf("account %s did not reach DEPLOYED after %d polls", resp.AccountID, c.deployMaxPolls)
}

// AccountInfoJSON mirrors the bridge's get_account_info RPC response.
type AccountInfoJSON struct {
	Balance   decimal.Decimal `json:"balance"`
	Equity    decimal.Decimal `json:"equity"`
	Margin    decimal.Decimal `json:"margin"`
	Positions []PositionJSON  `json:"positions"`
}

// PositionJSON mirrors one open position as the bridge reports it.
type PositionJSON struct {
	ID         string          `json:"id"`
	Symbol     string          `json:"symbol"`
	Type       string          `json:"type"` // "POSITION_TYPE_BUY" / "POSITION_TYPE_SELL"
	Volume     decimal.Decimal `json:"volume"`
	OpenPrice  decimal.Decimal `json:"openPrice"`
	StopLoss   decimal.Decimal `json:"stopLoss"`
	TakeProfit decimal.Decimal `json:"takeProfit"`
}

// GetAccountInfo fetches live balance/equity/margin/positions.
func (c *BridgeClient) GetAccountInfo(ctx context.Context, accountID string) (AccountInfoJSON, error) {
	var resp AccountInfoJSON
	err := c.do(ctx, http.MethodGet, "/accounts/"+accountID+"/info", nil, &resp)
	return resp, err
}

// CreateOrderRequest is the bridge's order-placement payload.
type CreateOrderRequest struct {
	Symbol     string          `json:"symbol"`
	ActionType string          `json:"actionType"` // ORDER_TYPE_BUY / SELL / BUY_LIMIT / ... / STOP
	Volume     decimal.Decimal `json:"volume"`
	OpenPrice  decimal.Decimal `json:"openPrice,omitempty"`
	StopLoss   decimal.Decimal `json:"stopLoss"`
	TakeProfit decimal.Decimal `json:"takeProfit"`
	Comment    string          `json:"comment"`
}

// CreateOrderResponse carries the resulting order/position identifiers.
type CreateOrderResponse struct {
	OrderID    string `json:"orderId"`
	PositionID string `json:"positionId"`
}

// CreateOrder places one order on accountID.
func (c *BridgeClient) CreateOrder(ctx context.Context, accountID string, req CreateOrderRequest) (CreateOrderResponse, error) {
	var resp CreateOrderResponse
	err := c.do(ctx, http.MethodPost, "/accounts/"+accountID+"/orders", req, &resp)
	return resp, err
}

// SymbolPriceJSON mirrors the bridge's get_symbol_price RPC response.
type SymbolPriceJSON struct {
	Bid decimal.Decimal `json:"bid"`
	Ask decimal.Decimal `json:"ask"`
}

// GetSymbolPrice fetches the live bid/ask for symbol on accountID. The
// bridge returns E_NO_SYMBOLS when the account's broker doesn't list the
// symbol, which the executor's symbol-suffix probe uses to fall back to
// the next candidate.
func (c *BridgeClient) GetSymbolPrice(ctx context.Context, accountID, symbol string) (SymbolPriceJSON, error) {
	var resp SymbolPriceJSON
	err := c.do(ctx, http.MethodGet, "/accounts/"+accountID+"/symbols/"+symbol+"/price", nil, &resp)
	return resp, err
}

// ModifyPosition updates SL/TP on an open position.
func (c *BridgeClient) ModifyPosition(ctx context.Context, accountID, positionID string, sl, tp decimal.Decimal) error {
	req := map[string]decimal.Decimal{"stopLoss": sl, "takeProfit": tp}
	return c.do(ctx, http.MethodPost, "/accounts/"+accountID+"/positions/"+positionID+"/modify", req, nil)
}

// ClosePosition closes an open position entirely.
func (c *BridgeClient) ClosePosition(ctx context.Context, accountID, positionID string) error {
	return c.do(ctx, http.MethodPost, "/accounts/"+accountID+"/positions/"+positionID+"/close", nil, nil)
}

// DealJSON mirrors one deal entry from the bridge's deal history.
type DealJSON struct {
	PositionID string          `json:"positionId"`
	EntryType  string          `json:"entryType"` // DEAL_ENTRY_IN / DEAL_ENTRY_OUT
	Price      decimal.Decimal `json:"price"`
	Profit     decimal.Decimal `json:"profit"`
	Time       time.Time       `json:"time"`
}

// DealsByPosition fetches every deal (partial fills included) for positionID.
func (c *BridgeClient) DealsByPosition(ctx context.Context, accountID, positionID string) ([]DealJSON, error) {
	var resp []DealJSON
	err := c.do(ctx, http.MethodGet, "/accounts/"+accountID+"/positions/"+positionID+"/deals", nil, &resp)
	return resp, err
}

func (c *BridgeClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal bridge request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build bridge request: %w", err)
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("bridge request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read bridge response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var bridgeErr struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(respBody, &bridgeErr)
		return &BridgeError{Code: ErrCode(bridgeErr.Code), Message: bridgeErr.Message}
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal bridge response: %w", err)
	}
	return nil
}
