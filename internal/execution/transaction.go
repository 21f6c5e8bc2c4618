package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"tradecore/internal/logger"
	"tradecore/internal/model"
)

// TransactionConfig configures a TransactionExecutor.
type TransactionConfig struct {
	BaseURL         string            `mapstructure:"base_url"`         // e.g. https://platform.example.com/api
	Token           string            `mapstructure:"token"`            // bearer token
	FundingCurrency string            `mapstructure:"funding_currency"` // currency orders are paid from, e.g. "USD"
	Wallets         map[string]string `mapstructure:"wallets"`          // currency -> wallet ID
	Timeout         time.Duration     `mapstructure:"timeout"`
}

// TransactionExecutor places market orders by creating a transaction between
// the funding wallet and the asset wallet. The executed amount and exchange
// rate are read from the response.
type TransactionExecutor struct {
	cfg    TransactionConfig
	client *http.Client
	log    *zap.Logger
}

// NewTransactionExecutor validates cfg and returns an executor.
func NewTransactionExecutor(cfg TransactionConfig, log *zap.Logger) (*TransactionExecutor, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("transaction executor: base URL is required")
	}
	if cfg.FundingCurrency == "" {
		cfg.FundingCurrency = "USD"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	wallets := make(map[string]string, len(cfg.Wallets))
	for cur, id := range cfg.Wallets {
		wallets[strings.ToUpper(cur)] = id
	}
	cfg.Wallets = wallets
	cfg.FundingCurrency = strings.ToUpper(cfg.FundingCurrency)
	if _, ok := cfg.Wallets[cfg.FundingCurrency]; !ok {
		return nil, errors.Errorf("transaction executor: no wallet for funding currency %s", cfg.FundingCurrency)
	}
	return &TransactionExecutor{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    logger.OrNop(log),
	}, nil
}

// Buy moves funding currency into the asset wallet, requesting qty units of asset.
func (t *TransactionExecutor) Buy(ctx context.Context, asset string, qty float64) (model.Execution, error) {
	src, dst, err := t.wallets(asset, true)
	if err != nil {
		return model.Execution{}, err
	}
	body, err := t.createTransaction(ctx, map[string]any{
		"sourceWalletId":     src,
		"destWalletId":       dst,
		"amountToDestWallet": jsonAmount(qty),
	})
	if err != nil {
		return model.Execution{}, err
	}
	return parseExecution(body, "amountToDestWallet")
}

// Sell moves qty units of asset into the funding wallet.
func (t *TransactionExecutor) Sell(ctx context.Context, asset string, qty float64) (model.Execution, error) {
	src, dst, err := t.wallets(asset, false)
	if err != nil {
		return model.Execution{}, err
	}
	body, err := t.createTransaction(ctx, map[string]any{
		"sourceWalletId":         src,
		"destWalletId":           dst,
		"amountFromSourceWallet": jsonAmount(qty),
	})
	if err != nil {
		return model.Execution{}, err
	}
	return parseExecution(body, "amountFromSourceWallet")
}

func (t *TransactionExecutor) wallets(asset string, buy bool) (src, dst string, err error) {
	asset = strings.ToUpper(asset)
	if asset == t.cfg.FundingCurrency {
		return "", "", errors.Errorf("cannot trade %s against itself", asset)
	}
	assetWallet, ok := t.cfg.Wallets[asset]
	if !ok {
		return "", "", errors.Errorf("no wallet found for currency %s", asset)
	}
	funding := t.cfg.Wallets[t.cfg.FundingCurrency]
	if buy {
		return funding, assetWallet, nil
	}
	return assetWallet, funding, nil
}

func (t *TransactionExecutor) createTransaction(ctx context.Context, payload map[string]any) ([]byte, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "encode transaction")
	}
	url := strings.TrimRight(t.cfg.BaseURL, "/") + "/transaction"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, errors.Wrap(err, "build transaction request")
	}
	req.Header.Set("Content-Type", "application/json")
	if t.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+t.cfg.Token)
	}

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "post transaction")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read transaction response")
	}
	if resp.StatusCode/100 != 2 {
		return nil, errors.Errorf("transaction rejected: HTTP %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	t.log.Info("transaction created",
		zap.String("source", payload["sourceWalletId"].(string)),
		zap.String("dest", payload["destWalletId"].(string)),
		zap.Duration("latency", time.Since(start)),
	)
	return body, nil
}

// parseExecution reads data[0].attributes.{amountField, exchangeRate}.
// Both numbers and numeric strings are accepted.
func parseExecution(body []byte, amountField string) (model.Execution, error) {
	if !gjson.ValidBytes(body) {
		return model.Execution{}, errors.New("transaction response is not valid JSON")
	}
	attrs := gjson.GetBytes(body, "data.0.attributes")
	if !attrs.Exists() {
		return model.Execution{}, errors.New("transaction response missing data[0].attributes")
	}
	amount, err := decimalField(attrs, amountField)
	if err != nil {
		return model.Execution{}, err
	}
	price, err := decimalField(attrs, "exchangeRate")
	if err != nil {
		return model.Execution{}, err
	}
	return model.Execution{Amount: amount, Price: price}, nil
}

func decimalField(obj gjson.Result, field string) (float64, error) {
	v := obj.Get(field)
	if !v.Exists() {
		return 0, errors.Errorf("transaction response missing %s", field)
	}
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return 0, errors.Wrapf(err, "transaction response field %s", field)
	}
	f, _ := d.Float64()
	return f, nil
}

// jsonAmount renders qty as a JSON number without float noise.
func jsonAmount(qty float64) json.Number {
	return json.Number(decimal.NewFromFloat(qty).Round(amountPlaces).String())
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
