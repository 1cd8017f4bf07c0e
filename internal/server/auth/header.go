package auth

import "strings"

// ExtractFromHeader returns the token from an "Authorization: Bearer <token>"
// value. The value must split into exactly two whitespace-separated parts
// and the first must be "bearer" in any case; anything else yields false.
func ExtractFromHeader(value string) (string, bool) {
	parts := strings.Fields(value)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}
