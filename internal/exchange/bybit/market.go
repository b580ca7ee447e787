package bybit

import (
	"context"
	"encoding/json"
	"fmt"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
	"github.com/shopspring/decimal"
)

// LatestPrice gets the latest traded price for a symbol
func (c *Client) LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	params := map[string]interface{}{
		"category": c.category,
		"symbol":   symbol,
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetMarketTickers(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get latest price: %w", err)
	}

	price, err := c.parseLatestPriceResponse(result)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse price response: %w", err)
	}

	return price, nil
}

// parseLatestPriceResponse parses the ticker response to extract the last price
func (c *Client) parseLatestPriceResponse(response interface{}) (decimal.Decimal, error) {
	serverResp, ok := response.(*bybit_api.ServerResponse)
	if !ok {
		return decimal.Zero, fmt.Errorf("invalid response type")
	}

	if serverResp.RetCode != 0 {
		return decimal.Zero, &APIError{Code: serverResp.RetCode, Message: serverResp.RetMsg}
	}

	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to marshal result: %w", err)
	}

	var tickerResult struct {
		Category string `json:"category"`
		List     []struct {
			Symbol    string `json:"symbol"`
			LastPrice string `json:"lastPrice"`
		} `json:"list"`
	}

	if err := json.Unmarshal(resultBytes, &tickerResult); err != nil {
		return decimal.Zero, fmt.Errorf("failed to unmarshal ticker result: %w", err)
	}

	if len(tickerResult.List) == 0 {
		return decimal.Zero, fmt.Errorf("no ticker data returned")
	}

	price, err := decimal.NewFromString(tickerResult.List[0].LastPrice)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid last price %q: %w", tickerResult.List[0].LastPrice, err)
	}

	return price, nil
}
