package ip_test

import (
	"net/http/httptest"
	"testing"

	"github.com/robalyx/warden/internal/rest/middleware/ip"
	"github.com/robalyx/warden/internal/setup/config"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestClientIP(t *testing.T) {
	t.Parallel()

	cfg := &config.IP{
		EnableHeaderCheck: true,
		TrustedProxies:    []string{"10.0.0.0/8", "192.168.1.5", "not-an-ip"},
		CustomHeaders:     []string{"X-Forwarded-For", "X-Real-IP"},
	}
	m := ip.New(cfg, zap.NewNop())

	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{"direct peer", "203.0.113.7:5555", nil, "203.0.113.7"},
		{"untrusted peer ignores headers", "203.0.113.7:5555", map[string]string{"X-Forwarded-For": "1.1.1.1"}, "203.0.113.7"},
		{"trusted proxy range", "10.1.2.3:80", map[string]string{"X-Forwarded-For": "8.8.8.8, 1.1.1.1"}, "1.1.1.1"},
		{"trusted single proxy", "192.168.1.5:80", map[string]string{"X-Real-IP": "9.9.9.9"}, "9.9.9.9"},
		{"trusted proxy without headers", "10.1.2.3:80", nil, "10.1.2.3"},
		{"garbage headers fall back", "10.1.2.3:80", map[string]string{"X-Forwarded-For": "nope"}, "10.1.2.3"},
		{"invalid remote", "garbage", nil, ip.UnknownIP},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			assert.Equal(t, tt.want, m.ClientIP(req))
		})
	}
}

func TestClientIPHeaderCheckDisabled(t *testing.T) {
	t.Parallel()

	m := ip.New(&config.IP{TrustedProxies: []string{"10.0.0.0/8"}, CustomHeaders: []string{"X-Forwarded-For"}}, zap.NewNop())

	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.1.2.3:80"
	req.Header.Set("X-Forwarded-For", "1.1.1.1")

	assert.Equal(t, "10.1.2.3", m.ClientIP(req))
}
