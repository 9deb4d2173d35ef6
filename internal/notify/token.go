package notify

const (
	minTokenLen = 32
	maxTokenLen = 200
)

// ValidToken reports whether token satisfies the push token format contract:
// 32 to 200 characters, hexadecimal only. Anything else is rejected before
// attempting delivery.
func ValidToken(token string) bool {
	if len(token) < minTokenLen || len(token) > maxTokenLen {
		return false
	}
	for i := 0; i < len(token); i++ {
		c := token[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
