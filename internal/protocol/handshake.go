package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrBadHandshake is returned for a handshake line that is not "<port-hex>:<token>".
var ErrBadHandshake = errors.New("protocol: malformed handshake")

// FormatHandshake renders the line a worker sends once it is listening.
func FormatHandshake(port uint16, token string) string {
	return strconv.FormatUint(uint64(port), 16) + ":" + token
}

// ParseHandshake splits a handshake line into the listening port and the token.
func ParseHandshake(line string) (uint16, string, error) {
	line = strings.TrimSpace(line)
	portHex, token, ok := strings.Cut(line, ":")
	if !ok || portHex == "" || token == "" {
		return 0, "", fmt.Errorf("%w: %q", ErrBadHandshake, line)
	}
	port, err := strconv.ParseUint(portHex, 16, 16)
	if err != nil {
		return 0, "", fmt.Errorf("%w: port %q: %v", ErrBadHandshake, portHex, err)
	}
	return uint16(port), token, nil
}
