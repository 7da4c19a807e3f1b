package server

import (
	"context"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/quotaward/quotaward/internal/errors"
	"github.com/quotaward/quotaward/internal/observability"
	servermw "github.com/quotaward/quotaward/internal/server/middleware"
)

// Headers forwarded upstream describing the admitted caller.
const (
	HeaderQuotaIdentity        = "X-Quota-Identity"
	HeaderQuotaTier            = "X-Quota-Tier"
	HeaderQuotaGlobalRemaining = "X-Quota-Global-Remaining"
)

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          200,
		MaxIdleConnsPerHost:   100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// NewProxy forwards admitted requests to target. The quota info attached by
// the quota middleware travels as X-Quota-* headers, next to the gateway's
// request id; client-supplied X-Quota-* values are dropped. A zero timeout means no per-request bound.
func NewProxy(target *url.URL, timeout time.Duration) http.Handler {
	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			pr.Out.Host = pr.In.Host

			pr.Out.Header.Del(HeaderQuotaIdentity)
			pr.Out.Header.Del(HeaderQuotaTier)
			pr.Out.Header.Del(HeaderQuotaGlobalRemaining)
			if id := servermw.GetRequestID(pr.In.Context()); id != "" {
				pr.Out.Header.Set(servermw.RequestIDHeader, id)
			}
			if info, ok := servermw.QuotaInfo(pr.In.Context()); ok {
				pr.Out.Header.Set(HeaderQuotaIdentity, info.Identity)
				pr.Out.Header.Set(HeaderQuotaTier, string(info.Tier))
				pr.Out.Header.Set(HeaderQuotaGlobalRemaining, strconv.Itoa(info.GlobalRemaining))
			}
		},
		Transport: newTransport(),
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			if observability.ServerLogger != nil {
				observability.ServerLogger.Warn("Upstream request failed",
					zap.String("path", r.URL.Path),
					zap.Error(err))
			}
			HandleError(w, r, apperrors.WrapExternalService(r.Context(), err, "upstream unavailable"))
		},
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if timeout > 0 {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			r = r.WithContext(ctx)
		}
		proxy.ServeHTTP(w, r)
	})
}
