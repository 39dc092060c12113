package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"

	"storeadmin/internal/logging"
)

// newPageProxy forwards back-office page requests to the frontend at target.
// Without a target every page is a 404.
func newPageProxy(target string, logger *slog.Logger) (http.Handler, error) {
	if target == "" {
		return http.NotFoundHandler(), nil
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid FRONTEND_URL %q", target)
	}

	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(u)
			pr.SetXForwarded()
		},
		ErrorLog: logging.StdLogger(logger),
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logging.Error(logger, "frontend proxy failed", err, "path", r.URL.Path)
			writeMessage(w, http.StatusBadGateway, "Frontend unavailable")
		},
	}
	return proxy, nil
}
