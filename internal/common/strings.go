package common

import "strings"

// Helper function to check if a string contains a substring (case-insensitive)
func ContainsInsensitive(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// FormatPairingCode reformats a raw pairing code into groups of four
// characters joined by dashes, e.g. "ABCD1234" becomes "ABCD-1234".
// Codes that already contain a separator are returned unchanged.
func FormatPairingCode(code string) string {

	code = strings.TrimSpace(code)

	if len(code) <= 4 || strings.Contains(code, "-") {
		return code
	}

	var groups []string
	for i := 0; i < len(code); i += 4 {
		end := min(i+4, len(code))
		groups = append(groups, code[i:end])
	}

	return strings.Join(groups, "-")
}
