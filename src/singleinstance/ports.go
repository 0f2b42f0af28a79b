package singleinstance

import (
	"net"
	"os"
	"strconv"
)

const (
	defaultPortStart = 49500
	defaultPortEnd   = 49550

	envPortStart = "SINGLEINSTANCE_PORT_START"
	envPortEnd   = "SINGLEINSTANCE_PORT_END"
)

// PortRange is the inclusive loopback range scanned by clients. The resident
// binds only Start.
type PortRange struct {
	Start, End int
}

// Ports reads the range from the environment, falling back to the defaults
// for unset or invalid values, clamped to [1024, 65535].
func Ports() PortRange {
	r := PortRange{
		Start: envPort(envPortStart, defaultPortStart),
		End:   envPort(envPortEnd, defaultPortEnd),
	}
	r.Start = max(r.Start, 1024)
	r.End = min(r.End, 65535)
	if r.End < r.Start {
		r.Start, r.End = r.End, r.Start
	}
	return r
}

func (r PortRange) addr(port int) string {
	return net.JoinHostPort(residentHost, strconv.Itoa(port))
}

func envPort(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
