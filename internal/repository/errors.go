// Package repository implements the relational stores behind the
// identity and relationship features.  Sentinel error values defined
// here and next to the repositories let handlers distinguish expected
// failure scenarios (duplicate email, missing request) from storage
// malfunctions without inspecting driver errors themselves.
package repository

import "strings"

// isDuplicate reports whether err is a MySQL unique-constraint
// violation (error 1062).  The driver does not expose a typed error
// for this, so the code is matched in the message.
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "1062")
}
