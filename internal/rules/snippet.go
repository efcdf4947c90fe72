package rules

// MaxVersionLen bounds every version, vendor and user string the engine
// extracts.
const MaxVersionLen = 63

// Truncate cuts value to at most n bytes.
func Truncate(value string, n int) string {
	if n < 0 {
		n = 0
	}
	if len(value) <= n {
		return value
	}
	return value[:n]
}
