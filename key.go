package shield

import "strings"

// stackKeyBudget is the length, in bytes, of the fixed internal buffer
// a storage key is assembled in. Keys that don't fit fall back to
// strings.Builder. On both paths the returned string is a fresh heap
// allocation.
const stackKeyBudget = 128

// policySuffix returns the two-letter namespace suffix for a Policy.
func policySuffix(p Policy) string {
	switch p {
	case TokenBucket:
		return "tb"
	case LeakyBucket:
		return "lb"
	case FixedWindow:
		return "fw"
	case SlidingWindow:
		return "sw"
	default:
		return ""
	}
}

// buildKey maps (subject, policy) to the internal storage key
// "tp:<suffix>:<subject>". Distinct policies never collide on the same
// key, so one subject can carry independent state per policy.
//
// Keys that fit within stackKeyBudget bytes are assembled in a fixed
// stack buffer; longer keys fall back to a heap-allocated builder.
// Converting the stack buffer to the returned string still allocates.
func buildKey(subject string, p Policy) string {
	suffix := policySuffix(p)
	total := 3 + len(suffix) + 1 + len(subject) // "tp:" + suffix + ":" + subject

	if total <= stackKeyBudget {
		var buf [stackKeyBudget]byte
		n := copy(buf[:], "tp:")
		n += copy(buf[n:], suffix)
		n += copy(buf[n:], ":")
		n += copy(buf[n:], subject)
		return string(buf[:n])
	}

	var b strings.Builder
	b.Grow(total)
	b.WriteString("tp:")
	b.WriteString(suffix)
	b.WriteString(":")
	b.WriteString(subject)
	return b.String()
}
