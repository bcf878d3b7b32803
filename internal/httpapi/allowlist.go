package httpapi

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// clientIP extracts the remote IP without a port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

// parseCIDRorIP parses either a CIDR string or a single IP address.
func parseCIDRorIP(s string) (*net.IPNet, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("empty")
	}
	if strings.Contains(s, "/") {
		_, n, err := net.ParseCIDR(s)
		if err != nil {
			return nil, err
		}
		return n, nil
	}
	ip := net.ParseIP(s)
	if ip == nil {
		return nil, errors.New("invalid ip")
	}
	bits := 128
	if ip.To4() != nil {
		bits = 32
		ip = ip.To4()
	}
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}, nil
}

// ipAllowlist admits callers whose address falls in one of its networks.
// A "*" entry admits everyone.
type ipAllowlist struct {
	any  bool
	nets []*net.IPNet
}

func newIPAllowlist(entries []string) (*ipAllowlist, error) {
	a := &ipAllowlist{}
	if len(entries) == 0 {
		a.any = true
		return a, nil
	}
	for _, e := range entries {
		if strings.TrimSpace(e) == "*" {
			a.any = true
			continue
		}
		n, err := parseCIDRorIP(e)
		if err != nil {
			return nil, fmt.Errorf("allowed_ips entry %q: %w", e, err)
		}
		a.nets = append(a.nets, n)
	}
	return a, nil
}

func (a *ipAllowlist) allows(ipStr string) bool {
	if a.any {
		return true
	}
	ip := net.ParseIP(strings.TrimSpace(ipStr))
	if ip == nil {
		return false
	}
	for _, n := range a.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func (s *Server) withAllowlist(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !s.allow.allows(ip) {
			s.logger.Warn("request from disallowed address", "remote_ip", ip, "path", r.URL.Path)
			writeJSON(w, http.StatusForbidden, errorBody("access denied"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
