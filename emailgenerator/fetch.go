package emailgenerator

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"time"
)

const maxRedirects = 5

// ErrBlockedAddress is returned when a profile url resolves to an address that isn't on the public internet
var ErrBlockedAddress = errors.New("emailgenerator: profile url resolves to a non public address")

var blockedNets = mustParseCIDRs(
	"0.0.0.0/8",     // this network
	"100.64.0.0/10", // carrier grade nat
	"192.0.0.0/24",  // ietf protocol assignments
	"198.18.0.0/15", // benchmarking
	"64:ff9b::/96",  // nat64
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		nets = append(nets, n)
	}
	return nets
}

func isPublicIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsInterfaceLocalMulticast() || ip.IsMulticast() {
		return false
	}

	for _, n := range blockedNets {
		if n.Contains(ip) {
			return false
		}
	}

	return true
}

// publicOnly runs after name resolution, so it sees the address actually dialled for the
// first request and for every redirect
func publicOnly(network string, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}

	ip := net.ParseIP(host)
	if ip == nil || !isPublicIP(ip) {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, host)
	}

	return nil
}

// newFetchClient returns the client used for profile pages. It never uses a proxy and
// refuses to connect to loopback, private, link local or otherwise internal addresses.
func newFetchClient() *http.Client {
	dialer := &net.Dialer{
		Timeout: FetchTimeout,
		Control: publicOnly,
	}

	return &http.Client{
		Timeout: FetchTimeout,
		Transport: &http.Transport{
			Proxy:                 nil,
			DialContext:           dialer.DialContext,
			TLSHandshakeTimeout:   5 * time.Second,
			ResponseHeaderTimeout: FetchTimeout,
			MaxIdleConns:          10,
			IdleConnTimeout:       30 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return errors.New("emailgenerator: too many redirects")
			}
			if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
				return fmt.Errorf("emailgenerator: redirect to unsupported scheme %q", req.URL.Scheme)
			}
			return nil
		},
	}
}
