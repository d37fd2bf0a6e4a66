package transport

import (
	"fmt"
	"net"
	"time"
)

// Dial connects the client side to its session socket. The daemon creates
// the socket before spawning the client, but the terminal emulator may
// race us past the accept deadline setup, so retry briefly within a
// bounded window instead of failing on the first refused connect.
func Dial(socketPath string, deadline time.Duration) (net.Conn, error) {
	limit := time.Now().Add(deadline)
	for {
		conn, err := net.DialTimeout("unix", socketPath, time.Second)
		if err == nil {
			return conn, nil
		}
		if time.Now().After(limit) {
			return nil, fmt.Errorf("failed to connect to daemon at %s: %w", socketPath, err)
		}
		time.Sleep(50 * time.Millisecond)
	}
}
