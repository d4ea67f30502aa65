package tools

import (
	"encoding/hex"
	"net"
	"strings"
)

// NormalizeMac returns the lowercase, colon-separated form of a 48-bit MAC
// address given with colons, hyphens, dots or no separator at all, e.g.
// "E8E07EA60C6F" or "e8-e0-7e-a6-0c-6f" both give "e8:e0:7e:a6:0c:6f".
// Anything else is returned trimmed and lowercased.
func NormalizeMac(in string) string {
	m := strings.ToLower(strings.TrimSpace(in))
	if hw, err := net.ParseMAC(m); err == nil && len(hw) == 6 {
		return hw.String()
	}
	if b, err := hex.DecodeString(m); err == nil && len(b) == 6 {
		return net.HardwareAddr(b).String()
	}
	return m
}
