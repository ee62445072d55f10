// Package authz holds the static role to permission table of tenant staff.
package authz

import (
	"database/sql/driver"
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrForbidden   = errors.New("permission denied")
	ErrUnknownRole = errors.New("unknown role")
)

type Role uint8

const (
	RoleUnknown Role = iota
	RoleAdmin
	RoleSecretaire
	RoleComptable
	RoleProfesseur // reserved: no permission granted yet
	roleCount
)

var roleNames = [...]string{
	RoleUnknown:    "",
	RoleAdmin:      "admin",
	RoleSecretaire: "secretaire",
	RoleComptable:  "comptable",
	RoleProfesseur: "professeur",
}

var roleLabels = [...]string{
	RoleUnknown:    "",
	RoleAdmin:      "Administrateur",
	RoleSecretaire: "Secrétaire",
	RoleComptable:  "Comptable",
	RoleProfesseur: "Professeur",
}

// compile-time checks: every role has a name and a label
var (
	_ = [1]struct{}{}[len(roleNames)-int(roleCount)]
	_ = [1]struct{}{}[len(roleLabels)-int(roleCount)]
)

// Roles lists the assignable roles.
var Roles = []Role{RoleAdmin, RoleSecretaire, RoleComptable, RoleProfesseur}

func ParseRole(s string) (Role, error) {
	for r := RoleAdmin; r < roleCount; r++ {
		if roleNames[r] == s {
			return r, nil
		}
	}
	return RoleUnknown, errors.Wrapf(ErrUnknownRole, "%q", s)
}

func (r Role) String() string {
	if r >= roleCount {
		return fmt.Sprintf("Role(%d)", uint8(r))
	}
	return roleNames[r]
}

func (r Role) Label() string {
	if r >= roleCount {
		return ""
	}
	return roleLabels[r]
}

func (r Role) Valid() bool {
	return r > RoleUnknown && r < roleCount
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	role, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = role
	return nil
}

// UnmarshalParam lets echo bind roles from query and path params.
func (r *Role) UnmarshalParam(param string) error {
	return r.UnmarshalText([]byte(param))
}

func (r *Role) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		return r.UnmarshalText([]byte(v))
	case []byte:
		return r.UnmarshalText(v)
	case nil:
		*r = RoleUnknown
		return nil
	}
	return errors.Errorf("cannot scan %T into authz.Role", src)
}

func (r Role) Value() (driver.Value, error) {
	if !r.Valid() {
		return nil, errors.Wrapf(ErrUnknownRole, "%d", uint8(r))
	}
	return r.String(), nil
}
