package source

import (
	"net"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/any-hub/bundle-hub/internal/config"
	"github.com/any-hub/bundle-hub/internal/logging"
)

// Shared HTTP transport tunings，复用长连接并集中配置超时。
var defaultTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   100,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ForceAttemptHTTP2:     true,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

// NewHTTPClient 返回带重试的共享 http.Client：429/5xx/网络错误按指数退避重试，
// 重试次数与首个退避时间来自全局配置。
func NewHTTPClient(cfg *config.Config, logger *logrus.Logger) *http.Client {
	timeout := 30 * time.Second
	retries := 3
	backoff := time.Second
	if cfg != nil {
		if cfg.Global.UpstreamTimeout.DurationValue() > 0 {
			timeout = cfg.Global.UpstreamTimeout.DurationValue()
		}
		retries = cfg.Global.MaxRetries
		if cfg.Global.InitialBackoff.DurationValue() > 0 {
			backoff = cfg.Global.InitialBackoff.DurationValue()
		}
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = &http.Client{
		Timeout:   timeout,
		Transport: defaultTransport.Clone(),
	}
	rc.RetryMax = retries
	rc.RetryWaitMin = backoff
	rc.RetryWaitMax = 30 * backoff
	if logger != nil {
		rc.Logger = logging.Leveled{Logger: logger, Action: "http_transfer"}
	} else {
		rc.Logger = nil
	}
	return rc.StandardClient()
}

// NewLimiter 根据 RequestsPerSecond 构造限速器，0 表示不限速。
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}
