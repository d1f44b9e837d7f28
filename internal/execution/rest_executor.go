package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"options-dashboard-sync/internal/model"
	"options-dashboard-sync/internal/service"
)

const (
	RequestIDHeader = "X-Request-Id"

	defaultTimeout = 10 * time.Second
	maxErrorBody   = 4 << 10
)

// ErrRejected 服务端返回非 200
var ErrRejected = errors.New("request rejected")

// RESTConfig REST 执行器配置
type RESTConfig struct {
	BaseURL string        // 例如 http://localhost:3000/api
	Timeout time.Duration // 单次请求超时，0 使用默认值
}

// RESTExecutor 通过 HTTP 发送本地意图
type RESTExecutor struct {
	cfg    *RESTConfig
	base   *url.URL
	client *http.Client
	logger *zap.Logger
}

// NewRESTExecutor 初始化 REST 执行器
func NewRESTExecutor(cfg *RESTConfig, logger *zap.Logger) (*RESTExecutor, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid rest url %q: %w", cfg.BaseURL, err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = service.Logger
	}
	return &RESTExecutor{
		cfg:    cfg,
		base:   base,
		client: &http.Client{Timeout: timeout},
		logger: logger.With(zap.String("executor", "REST")),
	}, nil
}

func (e *RESTExecutor) SetReplayMode(ctx context.Context, mode model.ReplayMode) error {
	return e.do(ctx, http.MethodPost, "/ticker/replay_info", nil, mode)
}

func (e *RESTExecutor) ReloadTicker(ctx context.Context, ticker string) error {
	return e.do(ctx, http.MethodGet, "/ticker/reload", tickerQuery(ticker), nil)
}

type priceLevelsRequest struct {
	Symbol    string `json:"symbol"`
	NewLevels string `json:"new_levels"`
}

func (e *RESTExecutor) UpdatePriceLevels(ctx context.Context, ticker string, levels []float64) error {
	body := priceLevelsRequest{Symbol: ticker, NewLevels: FormatPriceLevels(levels)}
	return e.do(ctx, http.MethodPost, "/ticker/update_price_levels", nil, body)
}

func (e *RESTExecutor) ResetPriceLevels(ctx context.Context, ticker string) error {
	return e.do(ctx, http.MethodGet, "/ticker/reset_levels", tickerQuery(ticker), nil)
}

func (e *RESTExecutor) AddTicker(ctx context.Context, ticker string) error {
	return e.do(ctx, http.MethodPut, "/ticker/add", tickerQuery(ticker), nil)
}

func (e *RESTExecutor) RemoveTicker(ctx context.Context, ticker string) error {
	return e.do(ctx, http.MethodDelete, "/ticker/remove", tickerQuery(ticker), nil)
}

func (e *RESTExecutor) SetFavorite(ctx context.Context, ticker string, favorite bool) error {
	method := http.MethodDelete
	if favorite {
		method = http.MethodPut
	}
	return e.do(ctx, method, "/favorite/"+url.PathEscape(ticker), nil, nil)
}

// FormatPriceLevels 升序、两位小数、以 ", " 分隔
func FormatPriceLevels(levels []float64) string {
	sorted := slices.Clone(levels)
	slices.Sort(sorted)
	parts := make([]string, 0, len(sorted))
	for _, p := range sorted {
		parts = append(parts, decimal.NewFromFloat(p).StringFixed(2))
	}
	return strings.Join(parts, ", ")
}

func tickerQuery(ticker string) url.Values {
	return url.Values{"ticker": []string{ticker}}
}

func (e *RESTExecutor) do(ctx context.Context, method, path string, query url.Values, body any) error {
	u := e.base.JoinPath(path)
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	requestID := uuid.NewString()
	req.Header.Set(RequestIDHeader, requestID)

	log := e.logger.With(zap.String("method", method), zap.String("path", path), zap.String("request_id", requestID))
	log.Debug("Sending request")

	resp, err := e.client.Do(req)
	if err != nil {
		log.Warn("Request failed", zap.Error(err))
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		log.Warn("Request rejected", zap.Int("status", resp.StatusCode), zap.ByteString("body", msg))
		return fmt.Errorf("%w: %s %s: %d %s", ErrRejected, method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	log.Info("Request accepted")
	return nil
}
