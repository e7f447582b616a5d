// Package privacy keeps client addresses out of request logs in identifiable form.
package privacy

import (
	"fmt"
	"net"
)

// AnonymizeIP masks an address down to its network: IPv4 keeps the /24
// ("192.168.1.47" -> "192.168.1.0") and IPv6 keeps the /48 prefix.
// Empty input yields "unknown" and unparseable input yields "invalid".
func AnonymizeIP(ip string) string {
	if ip == "" || ip == "unknown" {
		return "unknown"
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "invalid"
	}

	// IPv4-mapped IPv6 lands here too
	if v4 := parsed.To4(); v4 != nil {
		return fmt.Sprintf("%d.%d.%d.0", v4[0], v4[1], v4[2])
	}

	return fmt.Sprintf("%02x%02x:%02x%02x:%02x%02x::",
		parsed[0], parsed[1],
		parsed[2], parsed[3],
		parsed[4], parsed[5])
}
