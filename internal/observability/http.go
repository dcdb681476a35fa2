package observability

import (
	"net"
	"net/http"
	"strings"
)

const (
	HeaderRequestID = "X-Request-Id"
	HeaderDeviceID  = "X-Device-Id"
	HeaderSessionID = "X-Session-Id"
)

// RequestMeta is the correlation data a client attaches to a request.
type RequestMeta struct {
	RequestID string
	DeviceID  string
	// SessionID names the caller's own live session so fanout can skip it.
	SessionID string
	ClientIP  string
}

// MetaFromRequest collects correlation headers and the client address.
func MetaFromRequest(r *http.Request) RequestMeta {
	return RequestMeta{
		RequestID: strings.TrimSpace(r.Header.Get(HeaderRequestID)),
		DeviceID:  strings.TrimSpace(r.Header.Get(HeaderDeviceID)),
		SessionID: strings.TrimSpace(r.Header.Get(HeaderSessionID)),
		ClientIP:  clientIP(r),
	}
}

// BrokerHeaders carries the request and trace ids onto published messages.
func (m RequestMeta) BrokerHeaders(traceID string) map[string]string {
	headers := make(map[string]string, 2)
	if m.RequestID != "" {
		headers["x-request-id"] = m.RequestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}

// first hop of X-Forwarded-For, else the socket peer
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
