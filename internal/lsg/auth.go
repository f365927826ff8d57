package lsg

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// ComputeAuthResponse answers a CRAM challenge. The gateway verifies
// sha256(challenge + "|" + key) and uses the trailing key fragment to locate
// the account.
func ComputeAuthResponse(challenge, apiKey string) string {
	sum := sha256.Sum256([]byte(challenge + "|" + apiKey))
	tail := apiKey
	if len(tail) > 5 {
		tail = tail[len(tail)-5:]
	}
	return hex.EncodeToString(sum[:]) + "-" + tail
}

// GatewayAddr derives the gateway host deterministically from the dataset
// id: lowercase, dots become hyphens.
func GatewayAddr(dataset, domain string, port int) string {
	host := strings.ToLower(strings.ReplaceAll(dataset, ".", "-"))
	return fmt.Sprintf("%s.%s:%d", host, domain, port)
}

// parseKV splits a handshake line of "key=value" pairs joined by "|".
func parseKV(line string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Split(strings.TrimRight(line, "\r\n"), "|") {
		if k, v, ok := strings.Cut(part, "="); ok {
			out[k] = v
		}
	}
	return out
}
