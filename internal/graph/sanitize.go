package graph

import "strings"

// SanitizeDatabaseName coerces an arbitrary string into a valid Neo4j
// database name: 3-63 characters, lowercase alphanumerics plus dots and
// dashes, starting and ending with an alphanumeric.
func SanitizeDatabaseName(name string) string {
	lowered := strings.ToLower(name)

	var b strings.Builder
	for _, r := range lowered {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	clean := b.String()

	if clean == "" || !isAlnum(rune(clean[0])) {
		clean = "db" + clean
	}

	if len(clean) > 63 {
		clean = clean[:63]
	}

	clean = strings.TrimRight(clean, ".-")

	if len(clean) < 3 {
		clean += "db"
	}

	return clean
}

func isAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}
