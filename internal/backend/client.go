// Package backend は図書館管理REST APIのクライアントを提供する。
// 全ての呼び出しは共有のClientを通り、Bearerトークンの付与と
// エラーレスポンスの一括処理（通知・メトリクス・ログ）を受ける。
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/libraryfront/internal/metrics"
	"github.com/hitoshi/libraryfront/internal/notice"
)

const (
	// DefaultTimeout はリクエストのタイムアウト。
	DefaultTimeout = 10 * time.Second
	// maxResponseBytes はレスポンスボディの最大読み取りサイズ。
	maxResponseBytes = 10 << 20
	// HeaderRequestID はバックエンドに伝搬するリクエストIDのヘッダー名。
	HeaderRequestID = "X-Request-ID"
)

// TokenSource は送信直前に現在のトークンを返す。
// トークンが無い場合は空文字を返す。
type TokenSource interface {
	Token(ctx context.Context) string
}

// RequestOption はリクエスト単位の設定。
type RequestOption func(*requestOptions)

type requestOptions struct {
	anonymous bool
	token     string
}

// Anonymous はトークンを付けずに送信する。
// ログインなど未認証で呼ぶエンドポイントで、古いトークンの401を
// セッション切れと誤判定しないために使う。
func Anonymous() RequestOption {
	return func(o *requestOptions) { o.anonymous = true }
}

// WithToken はTokenSourceの代わりに指定トークンを付けて送信する。
func WithToken(token string) RequestOption {
	return func(o *requestOptions) { o.token = token }
}

// Response はForwardの結果。
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Client はバックエンドAPIの共有クライアント。起動時に1回だけ生成する。
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenSource
	notifier   notice.Notifier
	metrics    metrics.MetricsCollector
	logger     *slog.Logger
	newID      func() string
}

// NewClient は新しいClientを生成する。
// httpClientがnilの場合はDefaultTimeoutのクライアントを使用する。
func NewClient(baseURL string, httpClient *http.Client, tokens TokenSource, notifier notice.Notifier, collector metrics.MetricsCollector, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		notifier:   notifier,
		metrics:    collector,
		logger:     logger,
		newID:      uuid.NewString,
	}
}

// Get はGETリクエストを送信し、レスポンスをoutにデコードする。
func (c *Client) Get(ctx context.Context, path string, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodGet, path, nil, out, opts...)
}

// Post はPOSTリクエストを送信する。
func (c *Client) Post(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPost, path, body, out, opts...)
}

// Put はPUTリクエストを送信する。
func (c *Client) Put(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPut, path, body, out, opts...)
}

// Delete はDELETEリクエストを送信する。
func (c *Client) Delete(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodDelete, path, body, out, opts...)
}

// Do はJSONリクエストを送信し、2xxのレスポンスをoutにデコードする。
// bodyとoutはnil可。失敗時は通知を積んでから*Errorまたは*SessionExpiredErrorを返す。
func (c *Client) Do(ctx context.Context, method, path string, body, out any, opts ...RequestOption) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return c.fail(ctx, &Error{Kind: KindUnexpected, Method: method, Path: path, Err: fmt.Errorf("failed to encode request: %w", err)})
		}
		reader = bytes.NewReader(encoded)
	}

	resp, err := c.roundTrip(ctx, method, path, "", reader, "application/json", opts)
	if err != nil {
		return err
	}

	if out == nil || len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return c.fail(ctx, &Error{Kind: KindUnexpected, Method: method, Path: path, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)})
	}
	return nil
}

// Forward はリクエストをそのまま転送し、2xxのレスポンスを加工せずに返す。
// カタログのように中身を解釈しないエンドポイントで使う。
func (c *Client) Forward(ctx context.Context, method, path, rawQuery string, body io.Reader, contentType string, opts ...RequestOption) (*Response, error) {
	return c.roundTrip(ctx, method, path, rawQuery, body, contentType, opts)
}

// roundTrip はリクエストを送信し、エラーレスポンスを分類する。
func (c *Client) roundTrip(ctx context.Context, method, path, rawQuery string, body io.Reader, contentType string, opts []RequestOption) (*Response, error) {
	var o requestOptions
	for _, opt := range opts {
		opt(&o)
	}

	reqURL := c.baseURL + path
	if rawQuery != "" {
		reqURL += "?" + rawQuery
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, c.fail(ctx, &Error{Kind: KindUnexpected, Method: method, Path: path, Err: fmt.Errorf("failed to create request: %w", err)})
	}
	if contentType == "" {
		contentType = "application/json"
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderRequestID, c.newID())

	token := o.token
	if token == "" && !o.anonymous && c.tokens != nil {
		token = c.tokens.Token(ctx)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordBackendRequest(method, 0, time.Since(start))
		return nil, c.fail(ctx, &Error{Kind: KindTransport, Method: method, Path: path, Err: err})
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	c.metrics.RecordBackendRequest(method, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, c.fail(ctx, &Error{Kind: KindTransport, Method: method, Path: path, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)})
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return &Response{
			StatusCode:  resp.StatusCode,
			ContentType: resp.Header.Get("Content-Type"),
			Body:        data,
		}, nil
	}

	if resp.StatusCode == http.StatusUnauthorized && token != "" {
		return nil, c.fail(ctx, &SessionExpiredError{Method: method, Path: path})
	}

	msg, fields := parseErrorBody(data)
	return nil, c.fail(ctx, &Error{
		Kind:       ClassifyStatus(resp.StatusCode),
		Method:     method,
		Path:       path,
		StatusCode: resp.StatusCode,
		Message:    msg,
		Fields:     fields,
	})
}

// fail はエラーに応じた通知を積み、ログを出してからエラーをそのまま返す。
// 呼び出し元がキャンセルした場合は通知しない。
func (c *Client) fail(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) {
		c.logger.Debug("backend request canceled", slog.String("error", err.Error()))
		return err
	}

	c.log(err)

	if c.notifier != nil {
		for _, n := range noticesFor(err) {
			c.notifier.Notify(ctx, n)
		}
	}
	return err
}

func (c *Client) log(err error) {
	if IsSessionExpired(err) {
		c.logger.Info("backend rejected token", slog.String("error", err.Error()))
		return
	}
	e, ok := AsError(err)
	if !ok {
		c.logger.Error("backend request failed", slog.String("error", err.Error()))
		return
	}

	attrs := []any{
		slog.String("method", e.Method),
		slog.String("path", e.Path),
		slog.String("kind", e.Kind.String()),
		slog.Int("http_status", e.StatusCode),
	}
	if e.Err != nil {
		attrs = append(attrs, slog.String("error", e.Err.Error()))
	}

	switch e.Kind {
	case KindServer, KindTransport, KindUnexpected:
		c.logger.Error("backend request failed", attrs...)
	default:
		c.logger.Info("backend request rejected", attrs...)
	}
}
