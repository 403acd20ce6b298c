// Package scope identifies what a statement or deduction is computed for: the
// whole operation, one lot or one pen.
package scope

import (
	"fmt"
	"strings"

	"boigordo/internal/core/apperror"
	"boigordo/internal/core/id"
)

// Type is the scope kind.
type Type string

const (
	TypeGlobal Type = "GLOBAL"
	TypeLot    Type = "LOT"
	TypePen    Type = "PEN"
)

// Scope is GLOBAL, LOT(id) or PEN(id).
type Scope struct {
	Type Type
	ID   *id.ID
}

// Global is the whole operation.
func Global() Scope { return Scope{Type: TypeGlobal} }

// Lot scopes to one lot.
func Lot(lotID id.ID) Scope { return Scope{Type: TypeLot, ID: &lotID} }

// Pen scopes to one pen.
func Pen(penID id.ID) Scope { return Scope{Type: TypePen, ID: &penID} }

// Parse reads "GLOBAL", "LOT:<uuid>" or "PEN:<uuid>". Empty means GLOBAL.
func Parse(s string) (Scope, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, string(TypeGlobal)) {
		return Global(), nil
	}
	kind, raw, ok := strings.Cut(s, ":")
	if !ok {
		return Scope{}, apperror.NewValidation("scope must be GLOBAL, LOT:<id> or PEN:<id>").WithDetail("scope", s)
	}
	parsed, err := id.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Scope{}, apperror.NewValidation("invalid scope id").WithDetail("scope", s).WithCause(err)
	}
	switch Type(strings.ToUpper(kind)) {
	case TypeLot:
		return Lot(parsed), nil
	case TypePen:
		return Pen(parsed), nil
	}
	return Scope{}, apperror.NewValidation("unknown scope type").WithDetail("scope", s)
}

// String formats the scope as Parse reads it.
func (s Scope) String() string {
	if s.Type == TypeGlobal || s.ID == nil {
		return string(TypeGlobal)
	}
	return fmt.Sprintf("%s:%s", s.Type, s.ID)
}

// Key is the scope id used in storage; empty for GLOBAL.
func (s Scope) Key() string {
	if s.ID == nil {
		return ""
	}
	return s.ID.String()
}

// IsGlobal reports whether s covers the whole operation.
func (s Scope) IsGlobal() bool { return s.Type == TypeGlobal }

// Is reports whether s is t scoped to target.
func (s Scope) Is(t Type, target id.ID) bool {
	return s.Type == t && s.ID != nil && *s.ID == target
}
