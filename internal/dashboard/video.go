package dashboard

import (
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"
)

// newVideoProxy streams /video_feed/{id} from the backend. FlushInterval -1
// flushes after every write so MJPEG frames are not buffered.
func newVideoProxy(base string, logger *slog.Logger) *httputil.ReverseProxy {
	target, err := url.Parse(base)
	if err != nil {
		logger.Error("invalid backend url for video proxy", "url", base, "error", err)
		target = &url.URL{Scheme: "http", Host: "invalid"}
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		ResponseHeaderTimeout: 10 * time.Second,
		MaxIdleConns:          4,
		IdleConnTimeout:       30 * time.Second,
	}

	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			// The dashboard's cache buster is not meaningful upstream.
			pr.Out.URL.RawQuery = ""
			pr.Out.Header.Del("Cookie")
		},
		Transport:     transport,
		FlushInterval: -1,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Warn("video feed unavailable", "path", r.URL.Path, "error", err)
			w.WriteHeader(http.StatusBadGateway)
		},
	}
}

func (s *Server) handleVideoFeed(w http.ResponseWriter, r *http.Request) {
	// Streams outlive the server's write timeout.
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})
	s.video.ServeHTTP(w, r)
}
