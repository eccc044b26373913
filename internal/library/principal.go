package library

import "github.com/ariefcatur/go-school-library/internal/liberr"

type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER" // siswa
)

// Principal is the acting user, passed explicitly into every operation.
type Principal struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// System acts for background reconciliation (notifier).
var System = Principal{ID: "system", Role: RoleAdmin}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// authorize lets members act only on records they own; admins act on anything.
func (p Principal) authorize(op, id, ownerID string) error {
	if p.ID == "" {
		return liberr.Validation(op, id, "actor id")
	}
	if p.IsAdmin() || p.ID == ownerID {
		return nil
	}
	return liberr.Forbidden(op, id, p.ID)
}

func (p Principal) requireAdmin(op, id string) error {
	if !p.IsAdmin() {
		return liberr.Forbidden(op, id, p.ID)
	}
	return nil
}
