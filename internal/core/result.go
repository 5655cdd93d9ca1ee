package core

// MaxResultLength is the number of characters kept from a status string.
const MaxResultLength = 100

const ellipsis = "..."

// TruncateResult bounds a status string to MaxResultLength characters plus an
// ellipsis marker.
func TruncateResult(s string) string {
	runes := []rune(s)
	if len(runes) <= MaxResultLength {
		return s
	}
	return string(runes[:MaxResultLength]) + ellipsis
}
