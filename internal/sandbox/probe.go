package sandbox

import (
	"net"
	"strconv"
	"time"
)

const probeTimeout = 500 * time.Millisecond

// PortProbe reports whether something is listening on a local port.
type PortProbe func(port int) bool

// IsPortInUse dials 127.0.0.1:port and reports whether the connection succeeded.
// The answer can be stale by the time a container binds the port.
func IsPortInUse(port int) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), probeTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
