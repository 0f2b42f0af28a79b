package singleinstance

import (
	"bufio"
	"context"
	"net"
	"time"
)

const pingTimeout = 300 * time.Millisecond

// DetectResidentPort returns the port of the first resident in range that
// answers PING.
func DetectResidentPort(ctx context.Context) (int, bool) {
	port, _, ok := findResident(ctx, pingTimeout)
	return port, ok
}

// findResident scans the range in order. A ctx deadline replaces the default
// per-port timeout.
func findResident(ctx context.Context, timeout time.Duration) (int, string, bool) {
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 {
			timeout = d
		}
	}
	r := Ports()
	for port := r.Start; port <= r.End; port++ {
		if ctx.Err() != nil {
			return 0, "", false
		}
		addr := r.addr(port)
		if ping(addr, timeout) {
			return port, addr, true
		}
	}
	return 0, "", false
}

func ping(addr string, timeout time.Duration) bool {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return false
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))

	if _, err := conn.Write([]byte(pingRequest)); err != nil {
		return false
	}
	resp, err := bufio.NewReader(conn).ReadString('\n')
	return err == nil && resp == pongResponse
}
