package ip

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/robalyx/warden/internal/setup/config"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

type ipCtxKey struct{}

// UnknownIP is returned when no valid IP can be determined.
const UnknownIP = "unknown"

// FromContext retrieves the client IP from the context.
func FromContext(ctx context.Context) string {
	if ip, ok := ctx.Value(ipCtxKey{}).(string); ok {
		return ip
	}
	return UnknownIP
}

// WithIP stores a client IP in the context.
func WithIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ipCtxKey{}, ip)
}

// Middleware detects the client IP and stores it in the request context.
// Forwarding headers are only honoured when the direct peer is a trusted proxy.
type Middleware struct {
	trusted []netip.Prefix
	config  *config.IP
	logger  *zap.Logger
}

// New creates a new IP middleware. Invalid proxy entries are logged and ignored.
func New(cfg *config.IP, logger *zap.Logger) *Middleware {
	trusted := make([]netip.Prefix, 0, len(cfg.TrustedProxies))
	for _, entry := range cfg.TrustedProxies {
		prefix, err := parsePrefix(entry)
		if err != nil {
			logger.Error("Invalid trusted proxy", zap.String("proxy", entry), zap.Error(err))
			continue
		}
		trusted = append(trusted, prefix)
	}

	return &Middleware{
		trusted: trusted,
		config:  cfg,
		logger:  logger,
	}
}

// AsRESTMiddleware returns a bunrouter middleware handler for IP detection.
func (m *Middleware) AsRESTMiddleware(next bunrouter.HandlerFunc) bunrouter.HandlerFunc {
	return func(w http.ResponseWriter, req bunrouter.Request) error {
		ip := m.ClientIP(req.Request)
		if ip == UnknownIP {
			http.Error(w, "Invalid IP address", http.StatusForbidden)
			return nil
		}

		return next(w, req.WithContext(WithIP(req.Context(), ip)))
	}
}

// ClientIP resolves the address of the client that sent r.
func (m *Middleware) ClientIP(r *http.Request) string {
	remote, ok := remoteAddr(r.RemoteAddr)
	if !ok {
		m.logger.Debug("Failed to parse remote address", zap.String("addr", r.RemoteAddr))
		return UnknownIP
	}

	if m.config.EnableHeaderCheck && m.isTrustedProxy(remote) {
		if ip := m.fromHeaders(r.Header); ip != UnknownIP {
			return ip
		}
		m.logger.Debug("No valid IP found in headers", zap.String("proxy", remote.String()))
	}

	return remote.String()
}

func (m *Middleware) isTrustedProxy(addr netip.Addr) bool {
	for _, prefix := range m.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// fromHeaders checks the configured headers in order. Forwarded lists are
// read right to left so the entry closest to the server wins.
func (m *Middleware) fromHeaders(header http.Header) string {
	for _, name := range m.config.CustomHeaders {
		value := header.Get(name)
		if value == "" {
			continue
		}

		parts := strings.Split(value, ",")
		for i := len(parts) - 1; i >= 0; i-- {
			addr, err := netip.ParseAddr(strings.TrimSpace(parts[i]))
			if err == nil {
				return addr.Unmap().String()
			}
		}
	}
	return UnknownIP
}

func remoteAddr(hostport string) (netip.Addr, bool) {
	host, _, err := net.SplitHostPort(hostport)
	if err != nil {
		host = hostport
	}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}

	return addr.Unmap(), true
}

func parsePrefix(entry string) (netip.Prefix, error) {
	if strings.Contains(entry, "/") {
		return netip.ParsePrefix(entry)
	}

	addr, err := netip.ParseAddr(entry)
	if err != nil {
		return netip.Prefix{}, err
	}

	return netip.PrefixFrom(addr, addr.BitLen()), nil
}
