package risk

import "net"

// GeoResult is what the scorer needs to know about a client address.
type GeoResult struct {
	HighRiskCountry bool
	VPN             bool
}

// GeoChecker resolves an IP address against a reputation source. The check
// must be deterministic so risk scores are reproducible for a given input.
type GeoChecker interface {
	Check(ip string) GeoResult
}

// StaticGeoChecker resolves addresses against fixed CIDR reputation lists.
// A production deployment would load these from an IP-intelligence feed; the
// ranges below cover the documentation and test networks plus a small set of
// ranges commonly flagged by reputation providers.
type StaticGeoChecker struct {
	highRisk []*net.IPNet
	vpn      []*net.IPNet
}

func NewStaticGeoChecker() *StaticGeoChecker {
	return &StaticGeoChecker{
		highRisk: parseCIDRs([]string{
			"203.0.113.0/24", // TEST-NET-3, used as the high-risk stand-in
			"102.128.0.0/12",
			"41.58.0.0/16",
		}),
		vpn: parseCIDRs([]string{
			"198.51.100.0/24", // TEST-NET-2, used as the VPN stand-in
			"185.220.100.0/22",
			"104.244.72.0/21",
		}),
	}
}

func (c *StaticGeoChecker) Check(ip string) GeoResult {
	addr := net.ParseIP(ip)
	if addr == nil {
		return GeoResult{}
	}
	return GeoResult{
		HighRiskCountry: containsIP(c.highRisk, addr),
		VPN:             containsIP(c.vpn, addr),
	}
}

func parseCIDRs(cidrs []string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		if _, n, err := net.ParseCIDR(cidr); err == nil {
			nets = append(nets, n)
		}
	}
	return nets
}

func containsIP(nets []*net.IPNet, addr net.IP) bool {
	for _, n := range nets {
		if n.Contains(addr) {
			return true
		}
	}
	return false
}
