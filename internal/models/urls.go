package models

import "strings"

var loginMarkers = []string{"login", "signin"}

// IsLoginURL reports whether a URL or redirect location points at a login
// page. The check is a case-insensitive substring match so query strings
// such as "?next=/Login" also count.
func IsLoginURL(location string) bool {
	lower := strings.ToLower(location)
	for _, marker := range loginMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
