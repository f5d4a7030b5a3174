package summary

// Truncate drops the oldest lines until the newline-joined text fits in
// budget bytes. The result is always a suffix of lines. A budget <= 0
// disables truncation.
func Truncate(lines []string, budget int) []string {
	if budget <= 0 {
		return lines
	}
	size := JoinedLen(lines)
	start := 0
	for start < len(lines) && size > budget {
		size -= len(lines[start])
		if start < len(lines)-1 {
			size-- // separator
		}
		start++
	}
	return lines[start:]
}

// JoinedLen is len(strings.Join(lines, "\n")) without building the string.
func JoinedLen(lines []string) int {
	if len(lines) == 0 {
		return 0
	}
	n := len(lines) - 1
	for _, l := range lines {
		n += len(l)
	}
	return n
}
