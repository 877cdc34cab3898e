package account

import (
	"fmt"
	"regexp"
)

const DefaultName = "default"

var nameRegexp = regexp.MustCompile(`^[a-z0-9+_-]{1,64}$`)

// ValidateName checks that name conforms to account naming rules. Account
// names double as directory names, so MSISDNs like "+33601020304" are
// allowed but path separators are not.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("invalid account name %q: must match ^[a-z0-9+_-]{1,64}$", name)
	}
	return nil
}
