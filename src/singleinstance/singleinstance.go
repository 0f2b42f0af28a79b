// Package singleinstance lets a short-lived CLI invocation hand a capture to
// the resident instance over loopback TCP.
//
// Wire format, one request per connection:
//
//	PING\n                          -> PONG\n
//	CAPTURE <mode> <STDOUT|CLIPBOARD>\n -> SUCCESS\n<text> | DEFERRED\n | ERROR\n<message>
package singleinstance

import (
	"context"
	"errors"
)

// ErrDeferred is returned by the client when the resident handed the capture
// to an external OCR watcher.
var ErrDeferred = errors.New("capture handed off to external watcher")

// Server owns the TCP endpoint and answers capture requests.
type Server interface {
	// Start listens on the first port of the configured range.
	Start(ctx context.Context) error
	// Port returns the bound TCP port, or 0 if not started.
	Port() int
	// Next returns the next accepted connection as a Conn, or ctx error.
	Next(ctx context.Context) (Conn, error)
	Close() error
}

// Conn is one client connection.
type Conn interface {
	Request() Request
	// RespondSuccess sends success. For stdout mode, send text; for clipboard mode, send empty text.
	RespondSuccess(text string) error
	RespondDeferred() error
	RespondError(msg string) error
	Close() error
}

// Request is a single delegated capture.
type Request struct {
	Mode           string
	OutputToStdout bool
}

// Client delegates to a resident server.
type Client interface {
	// TryCapture scans the port range and delegates. Without a resident it
	// returns delegated=false, err=nil.
	TryCapture(ctx context.Context, req Request) (delegated bool, text string, err error)
}

func NewServer() Server { return newTcpServer() }

func NewClient() Client { return newTcpClient() }
