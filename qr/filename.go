package qr

import (
	"regexp"
	"strings"
)

// DefaultFilename is used when the user leaves the filename field blank.
const DefaultFilename = "qrcode.png"

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// SanitizeFilename normalizes a user-supplied file name: surrounding space is
// trimmed, every character outside [A-Za-z0-9._-] becomes '_', the result is
// lowercased, and ".png" is appended unless already present.
func SanitizeFilename(name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		n = DefaultFilename
	}
	n = strings.ToLower(unsafeFilenameChars.ReplaceAllString(n, "_"))
	if strings.HasSuffix(n, ".png") {
		return n
	}
	return n + ".png"
}
