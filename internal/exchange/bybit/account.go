package bybit

import (
	"context"
	"encoding/json"
	"fmt"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
	"github.com/shopspring/decimal"
)

// TradableBalance returns the balance available for trading a specific coin
// on the unified account.
func (c *Client) TradableBalance(ctx context.Context, coin string) (decimal.Decimal, error) {
	params := map[string]interface{}{
		"accountType": "UNIFIED",
		"coin":        coin,
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetAccountWallet(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get account balance: %w", err)
	}

	balance, err := c.parseWalletBalanceResponse(result, coin)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse account balance response: %w", err)
	}

	return balance, nil
}

// parseWalletBalanceResponse extracts the tradable balance for a coin from the
// wallet balance API response
func (c *Client) parseWalletBalanceResponse(response interface{}, coin string) (decimal.Decimal, error) {
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

	var walletResult struct {
		List []struct {
			Coin []struct {
				Coin             string `json:"coin"`
				WalletBalance    string `json:"walletBalance"`
				AvailableToTrade string `json:"availableToWithdraw"`
			} `json:"coin"`
		} `json:"list"`
	}

	if err := json.Unmarshal(resultBytes, &walletResult); err != nil {
		return decimal.Zero, fmt.Errorf("failed to unmarshal wallet result: %w", err)
	}

	for _, account := range walletResult.List {
		for _, balance := range account.Coin {
			if balance.Coin == coin {
				if avail := parseDecimal(balance.AvailableToTrade); avail.Sign() > 0 {
					return avail, nil
				}
				return parseDecimal(balance.WalletBalance), nil
			}
		}
	}

	return decimal.Zero, fmt.Errorf("coin %s not found in account", coin)
}
