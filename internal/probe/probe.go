// Package probe 提供 xguardctl 的探测操作。
//
// 每种探测实现 Probe 接口：一次探测动作加上它自己的失败分类链。
// Run 把探测交给 xattempt.Runner 监督执行，重试预算与退避参数
// 由调用方的 Runner 决定，探测只负责"怎么探"和"哪些失败值得重试"。
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/omeyang/xguard/pkg/resilience/xattempt"
)

// ErrNilProbe 表示传入了 nil 探测。
var ErrNilProbe = errors.New("probe: nil probe")

// defaultHTTPTimeout 单次 HTTP 探测的默认超时。
const defaultHTTPTimeout = 10 * time.Second

// maxDrainBytes 响应体排空上限，防止恶意超大响应拖垮探测进程。
const maxDrainBytes = 1 << 20

// Probe 是一次可重试的探测操作。
type Probe interface {
	// Name 返回探测的人类可读名称，用于日志与 CLI 输出。
	Name() string

	// Attempt 执行一次探测，失败时返回可分类的错误。
	Attempt(ctx context.Context) error

	// Handlers 返回该探测的失败分类链。
	Handlers() []xattempt.Handler
}

// Run 在 runner 的监督下执行探测，直至成功或重试预算耗尽。
func Run(ctx context.Context, r *xattempt.Runner, p Probe) error {
	if p == nil {
		return ErrNilProbe
	}
	return r.Do(ctx, p.Attempt, p.Handlers()...)
}

// StatusError 表示 HTTP 探测收到的非 2xx 响应。
// 状态码即故障码，可直接被 xattempt.MatchCode 系列谓词分类。
type StatusError struct {
	StatusCode int
}

// 编译期断言：StatusError 可被故障码谓词分类。
var _ xattempt.Classifiable = (*StatusError)(nil)

func (e *StatusError) Error() string {
	return fmt.Sprintf("probe: unexpected status %d (%s)", e.StatusCode, http.StatusText(e.StatusCode))
}

// FaultCode 返回 HTTP 状态码。
func (e *StatusError) FaultCode() int {
	return e.StatusCode
}

// HTTPProbe 对目标 URL 做 GET 探测。
type HTTPProbe struct {
	url    string
	client *http.Client
}

// HTTPOption 配置 HTTPProbe。
type HTTPOption func(*HTTPProbe)

// WithHTTPClient 替换底层 HTTP 客户端。传入 nil 时保持默认值不变。
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(p *HTTPProbe) {
		if c != nil {
			p.client = c
		}
	}
}

// NewHTTPProbe 创建 HTTP 探测。
func NewHTTPProbe(url string, opts ...HTTPOption) *HTTPProbe {
	p := &HTTPProbe{
		url:    url,
		client: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name 实现 Probe。
func (p *HTTPProbe) Name() string {
	return "http " + p.url
}

// Attempt 发起一次 GET 请求。非 2xx 响应转换为 *StatusError，
// 响应体在上限内排空以便连接复用。
func (p *HTTPProbe) Attempt(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("probe: build request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // 探测只关心状态码

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &StatusError{StatusCode: resp.StatusCode}
	}
	return nil
}

// Handlers 返回 HTTP 探测的默认分类链：
// 429 与 5xx 属于服务端暂时性故障，退避后重试；
// 网络超时立即重试；其余失败（如 404）直接上抛。
func (p *HTTPProbe) Handlers() []xattempt.Handler {
	return []xattempt.Handler{
		xattempt.DelayedRetry(xattempt.MatchCodeFunc(isRetryableStatus)),
		xattempt.Retry(xattempt.MatchTimeout()),
	}
}

func isRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
