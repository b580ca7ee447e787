package bybit

import (
	"context"
	"encoding/json"
	"fmt"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
	"github.com/shopspring/decimal"
)

// Position is an open exchange position relevant to stop management
type Position struct {
	Symbol        string
	Side          string
	Size          decimal.Decimal
	EntryPrice    decimal.Decimal
	MarkPrice     decimal.Decimal
	StopLoss      decimal.Decimal
	UnrealisedPnl decimal.Decimal
	PositionIdx   int
}

// SetStopLoss sets the stop loss price on an open position.
// In one-way position mode positionIdx is always 0.
func (c *Client) SetStopLoss(ctx context.Context, symbol string, positionIdx int, stopLoss decimal.Decimal) error {
	params := map[string]interface{}{
		"category":    c.category,
		"symbol":      symbol,
		"positionIdx": positionIdx,
		"stopLoss":    stopLoss.String(),
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).SetPositionTradingStop(ctx)
	if err != nil {
		return fmt.Errorf("failed to set stop loss: %w", err)
	}

	if result.RetCode != 0 {
		return &APIError{Code: result.RetCode, Message: result.RetMsg}
	}

	return nil
}

// GetPositions returns open positions, optionally filtered by symbol
func (c *Client) GetPositions(ctx context.Context, symbol string) ([]Position, error) {
	params := map[string]interface{}{
		"category": c.category,
	}
	if symbol != "" {
		params["symbol"] = symbol
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetPositionList(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}

	positions, err := c.parsePositionsResponse(result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse positions response: %w", err)
	}

	return positions, nil
}

// parsePositionsResponse parses the positions API response
func (c *Client) parsePositionsResponse(response interface{}) ([]Position, error) {
	serverResp, ok := response.(*bybit_api.ServerResponse)
	if !ok {
		return nil, fmt.Errorf("invalid response type")
	}

	if serverResp.RetCode != 0 {
		return nil, &APIError{Code: serverResp.RetCode, Message: serverResp.RetMsg}
	}

	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	var positionResult struct {
		List []struct {
			Symbol        string `json:"symbol"`
			Side          string `json:"side"`
			Size          string `json:"size"`
			EntryPrice    string `json:"entryPrice"`
			MarkPrice     string `json:"markPrice"`
			StopLoss      string `json:"stopLoss"`
			UnrealisedPnl string `json:"unrealisedPnl"`
			PositionIdx   int    `json:"positionIdx"`
		} `json:"list"`
	}

	if err := json.Unmarshal(resultBytes, &positionResult); err != nil {
		return nil, fmt.Errorf("failed to unmarshal position result: %w", err)
	}

	var positions []Position
	for _, item := range positionResult.List {
		size := parseDecimal(item.Size)
		if size.IsZero() {
			continue // No open position for this entry
		}

		positions = append(positions, Position{
			Symbol:        item.Symbol,
			Side:          item.Side,
			Size:          size,
			EntryPrice:    parseDecimal(item.EntryPrice),
			MarkPrice:     parseDecimal(item.MarkPrice),
			StopLoss:      parseDecimal(item.StopLoss),
			UnrealisedPnl: parseDecimal(item.UnrealisedPnl),
			PositionIdx:   item.PositionIdx,
		})
	}

	return positions, nil
}

// parseDecimal parses a Bybit string field, returning zero for empty or
// malformed values.
func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
