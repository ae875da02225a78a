// Package proxy implements the Proxy Forwarder (spec.md §4.7, C7): HTTP
// pass-through and WebSocket pass-through to the single configured
// upstream. The pooled http.Client/http.Transport shape is grounded on
// the teacher's provider connectors (e.g. services/gateway/provider/
// openai.go); gorilla/websocket supplies the WS dial and frame copy, a
// dependency several pack repos carry indirectly and this spec promotes
// to direct use (see DESIGN.md).
package proxy

import (
	"crypto/tls"
	"encoding/base64"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/zncgate/proxy/internal/apierror"
)

// hopHeaders are never copied in either direction: transport-scoped
// headers plus Host and Content-Length. The client's own access-token
// header is not in this list; ForwardHTTP deletes it separately (header
// hygiene contract, spec.md §4.7: the client-presented access token is
// never forwarded).
var hopHeaders = []string{
	"Connection", "Proxy-Connection", "Keep-Alive", "Transfer-Encoding",
	"Te", "Trailer", "Upgrade", "Host", "Content-Length",
}

// Config configures the Forwarder.
type Config struct {
	UpstreamBaseURL   string
	BasicUser         string
	BasicPass         string
	TLSVerify         bool
	Timeout           time.Duration
	AccessTokenHeader string
	DeviceIDHeader    string
}

// Forwarder is the Proxy Forwarder component (C7).
type Forwarder struct {
	cfg      Config
	base     *url.URL
	client   *http.Client
	wsDialer *websocket.Dialer
	log      zerolog.Logger
}

func New(cfg Config, log zerolog.Logger) (*Forwarder, error) {
	base, err := url.Parse(cfg.UpstreamBaseURL)
	if err != nil {
		return nil, err
	}

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
		TLSClientConfig:     tlsConfig(cfg.TLSVerify),
	}

	return &Forwarder{
		cfg:  cfg,
		base: base,
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
			// Follow redirects (spec.md §4.7): the default CheckRedirect
			// policy already does this; left explicit by omission.
		},
		wsDialer: &websocket.Dialer{
			TLSClientConfig:  tlsConfig(cfg.TLSVerify),
			HandshakeTimeout: 15 * time.Second,
		},
		log: log.With().Str("component", "proxy").Logger(),
	}, nil
}

// ForwardHTTP builds the upstream request from r, injects identity
// headers, executes it, and copies the response (headers, status, body)
// onto w. userID/tokenID are added for upstream logging; the client's own
// access token header is stripped, never forwarded.
func (f *Forwarder) ForwardHTTP(w http.ResponseWriter, r *http.Request, path, userID, tokenID string) {
	upstreamURL := f.joinURL(path, r.URL.RawQuery)

	outReq, err := http.NewRequestWithContext(r.Context(), r.Method, upstreamURL.String(), r.Body)
	if err != nil {
		writeUpstreamError(w, apierror.New(apierror.KindInternal, "failed to build upstream request"))
		return
	}
	copyHeaders(outReq.Header, r.Header)
	outReq.Header.Del(f.cfg.AccessTokenHeader)
	outReq.Host = f.base.Host
	// Content-Length is stripped as a hop header above; restore it from the
	// original request so the body isn't re-sent as chunked transfer-encoding
	// (some upstreams reject chunked request bodies).
	outReq.ContentLength = r.ContentLength
	if r.ContentLength >= 0 {
		outReq.Header.Set("Content-Length", strconv.FormatInt(r.ContentLength, 10))
	}

	clientIP, _, _ := net.SplitHostPort(r.RemoteAddr)
	if clientIP == "" {
		clientIP = r.RemoteAddr
	}
	outReq.Header.Set("X-Forwarded-For", clientIP)
	outReq.Header.Set("X-Forwarded-Proto", schemeOf(r))
	outReq.Header.Set("X-Forwarded-Host", r.Host)
	outReq.Header.Set("X-User-Id", userID)
	outReq.Header.Set("X-Token-Id", tokenID)

	if f.cfg.BasicUser != "" {
		outReq.SetBasicAuth(f.cfg.BasicUser, f.cfg.BasicPass)
	}

	resp, err := f.client.Do(outReq)
	if err != nil {
		writeUpstreamError(w, classifyTransportErr(err))
		return
	}
	defer resp.Body.Close()

	// CORS headers are set once, by the router's cors.Handler middleware
	// (internal/httpapi), not here — stamping a wildcard origin on top of
	// an already-reflected allowed origin would produce an invalid
	// "*" + credentials=true combination that browsers reject outright.
	copyHeaders(w.Header(), resp.Header)
	if resp.ContentLength >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(resp.ContentLength, 10))
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

// ForwardWebSocket upgrades the client connection, dials the upstream as a
// WS client, and runs two independent copy loops until either side closes.
// The caller must have already validated the token before invoking this
// (spec.md §4.7: accept the handshake only after token validation).
func (f *Forwarder) ForwardWebSocket(w http.ResponseWriter, r *http.Request, upgrader websocket.Upgrader, path, userID, tokenID string) error {
	upstreamURL := f.joinURL(path, r.URL.RawQuery)
	upstreamURL.Scheme = wsScheme(upstreamURL.Scheme)

	header := http.Header{}
	if f.cfg.BasicUser != "" {
		header.Set("Authorization", basicAuthHeader(f.cfg.BasicUser, f.cfg.BasicPass))
	}
	header.Set("X-User-Id", userID)
	header.Set("X-Token-Id", tokenID)

	upstreamConn, _, err := f.wsDialer.DialContext(r.Context(), upstreamURL.String(), header)
	if err != nil {
		return apierror.New(apierror.KindUpstreamTransport, "upstream websocket dial failed")
	}
	defer upstreamConn.Close()

	clientConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return apierror.New(apierror.KindInternal, "websocket upgrade failed")
	}
	defer clientConn.Close()

	errc := make(chan error, 2)
	go copyWS(clientConn, upstreamConn, errc)
	go copyWS(upstreamConn, clientConn, errc)
	<-errc
	return nil
}

func copyWS(dst, src *websocket.Conn, errc chan<- error) {
	for {
		mt, msg, err := src.ReadMessage()
		if err != nil {
			errc <- err
			return
		}
		if err := dst.WriteMessage(mt, msg); err != nil {
			errc <- err
			return
		}
	}
}

func (f *Forwarder) joinURL(path, rawQuery string) *url.URL {
	u := *f.base
	if path == "" {
		u.Path = f.base.Path
	} else {
		u.Path = strings.TrimRight(f.base.Path, "/") + "/" + strings.TrimLeft(path, "/")
	}
	u.RawQuery = rawQuery
	return &u
}

func copyHeaders(dst, src http.Header) {
	for k, vv := range src {
		if isHopHeader(k) {
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

func isHopHeader(name string) bool {
	for _, h := range hopHeaders {
		if strings.EqualFold(h, name) {
			return true
		}
	}
	return false
}

func schemeOf(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

func wsScheme(httpScheme string) string {
	if httpScheme == "https" {
		return "wss"
	}
	return "ws"
}

func classifyTransportErr(err error) *apierror.Error {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return apierror.New(apierror.KindUpstreamTimeout, "upstream request timed out")
	}
	return apierror.New(apierror.KindUpstreamTransport, "upstream transport error")
}

func writeUpstreamError(w http.ResponseWriter, err *apierror.Error) {
	status := http.StatusBadGateway
	switch err.Kind {
	case apierror.KindUpstreamTimeout:
		status = http.StatusGatewayTimeout
	case apierror.KindInternal:
		status = http.StatusInternalServerError
	}
	http.Error(w, err.Message, status)
}

func basicAuthHeader(user, pass string) string {
	return "Basic " + basicAuthEncode(user, pass)
}

func tlsConfig(verify bool) *tls.Config {
	return &tls.Config{InsecureSkipVerify: !verify}
}

func basicAuthEncode(user, pass string) string {
	return base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
}
