package security

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ClientIP resolves the caller address, trusting forwarding headers only
// when the direct peer is a trusted proxy.
type ClientIP struct {
	trustedProxies []*net.IPNet
}

// NewClientIP trusts loopback and private networks.
func NewClientIP() *ClientIP {
	return &ClientIP{
		trustedProxies: []*net.IPNet{
			mustParseCIDR("127.0.0.0/8"),
			mustParseCIDR("::1/128"),
			mustParseCIDR("10.0.0.0/8"),
			mustParseCIDR("172.16.0.0/12"),
			mustParseCIDR("192.168.0.0/16"),
		},
	}
}

func mustParseCIDR(cidr string) *net.IPNet {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		panic(fmt.Sprintf("failed to parse trusted proxy CIDR %s: %v", cidr, err))
	}
	return network
}

// AddTrustedProxy adds a trusted proxy network
func (c *ClientIP) AddTrustedProxy(cidr string) error {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return fmt.Errorf("invalid CIDR %s: %w", cidr, err)
	}
	c.trustedProxies = append(c.trustedProxies, network)
	return nil
}

// Extract returns the real client IP of r.
func (c *ClientIP) Extract(r *http.Request) string {
	directIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		directIP = r.RemoteAddr
	}

	parsed := net.ParseIP(directIP)
	if parsed == nil || !c.isTrustedProxy(parsed) {
		return directIP
	}

	// X-Forwarded-For can hold a chain; the first entry is the client
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if net.ParseIP(first) != nil {
			return first
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" && net.ParseIP(xri) != nil {
		return xri
	}
	return directIP
}

func (c *ClientIP) isTrustedProxy(ip net.IP) bool {
	for _, network := range c.trustedProxies {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
