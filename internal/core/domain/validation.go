package domain

import "regexp"

// Validation Helpers

// Canonical MAC syntax: colon, dash, or dotted-quad groups.
var macRegex = regexp.MustCompile(
	`^([0-9A-Fa-f]{2}[:-]){5}([0-9A-Fa-f]{2})$|^([0-9A-Fa-f]{4}\.){2}([0-9A-Fa-f]{4})$`,
)

// ZeroMAC is the all-zero address agents report before interface discovery.
const ZeroMAC = "00:00:00:00:00:00"

// IsValidMAC checks if the string is a syntactically valid MAC address.
func IsValidMAC(mac string) bool {
	return macRegex.MatchString(mac)
}
