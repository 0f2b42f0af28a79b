package singleinstance

import (
	"fmt"
	"strings"
)

const (
	residentHost       = "127.0.0.1"
	pingRequest        = "PING\n"
	pongResponse       = "PONG\n"
	captureVerb        = "CAPTURE"
	outputStdout       = "STDOUT"
	outputClipboard    = "CLIPBOARD"
	statusSuccess      = "SUCCESS\n"
	statusDeferred     = "DEFERRED\n"
	statusError        = "ERROR\n"
	defaultRequestMode = "area"
)

func encodeRequest(req Request) string {
	mode := strings.TrimSpace(req.Mode)
	if mode == "" {
		mode = defaultRequestMode
	}
	out := outputClipboard
	if req.OutputToStdout {
		out = outputStdout
	}
	return fmt.Sprintf("%s %s %s\n", captureVerb, mode, out)
}

// parseRequest also accepts the bare STDOUT/CLIPBOARD lines older clients send.
func parseRequest(line string) (Request, error) {
	fields := strings.Fields(line)
	switch {
	case len(fields) == 1 && fields[0] == outputStdout:
		return Request{Mode: defaultRequestMode, OutputToStdout: true}, nil
	case len(fields) == 1 && fields[0] == outputClipboard:
		return Request{Mode: defaultRequestMode}, nil
	case len(fields) == 3 && fields[0] == captureVerb:
		switch fields[2] {
		case outputStdout:
			return Request{Mode: fields[1], OutputToStdout: true}, nil
		case outputClipboard:
			return Request{Mode: fields[1]}, nil
		}
	}
	return Request{}, fmt.Errorf("malformed request %q", strings.TrimSpace(line))
}
