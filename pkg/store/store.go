// Package store holds the relational repositories the distribution core
// reads from and the two single-row writes it performs.
package store

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/model"
)

var ErrNotFound = errors.New("store: record not found")

// ExcludedRolePredicate is the SQL condition that marks an agent as excluded
// from automatic assignment. userColumn is the users.id expression of the
// enclosing query and rolesParam the placeholder index bound to
// TextArray(excluded role names). Agent listings and the workload ranking
// both use it so the exclusion is decided in exactly one place.
func ExcludedRolePredicate(userColumn string, rolesParam int) string {
	return fmt.Sprintf(`EXISTS (
		SELECT 1 FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = %s AND r.name = ANY($%d::text[])
	)`, userColumn, rolesParam)
}

// Int8Array renders ids as a postgres array literal, e.g. {1,2,3}.
func Int8Array(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// TextArray renders values as a postgres array literal with every element
// quoted.
func TextArray(values []string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = `"` + replacer.Replace(v) + `"`
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// ActiveStatuses is the array literal of ticket statuses that count as
// workload.
func ActiveStatuses() string {
	values := make([]string, len(model.ActiveTicketStatuses))
	for i, status := range model.ActiveTicketStatuses {
		values[i] = string(status)
	}
	return TextArray(values)
}
