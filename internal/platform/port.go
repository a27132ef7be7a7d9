package platform

import (
	"fmt"
	"net"
)

// FindAvailablePort scans upward from base looking for a TCP port this host
// will let us bind, returning the first hit. It terminates after maxScan
// attempts rather than looping forever on a host with no ports free.
func FindAvailablePort(base int, maxScan int) (int, error) {
	for port := base; port < base+maxScan; port++ {
		if portAvailable(port) {
			return port, nil
		}
	}
	return 0, fmt.Errorf("no available port found in range [%d, %d)", base, base+maxScan)
}

func portAvailable(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}
