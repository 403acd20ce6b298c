package dto

import (
	"boigordo/internal/core/types"
	"boigordo/internal/domain/scope"
)

// StatementRequest selects one statement.
type StatementRequest struct {
	Month string `form:"month" binding:"required"`
	Scope string `form:"scope"`
}

// Parse validates month and scope.
func (r StatementRequest) Parse() (types.Month, scope.Scope, error) {
	m, err := types.ParseMonth(r.Month)
	if err != nil {
		return types.Month{}, scope.Scope{}, err
	}
	sc, err := scope.Parse(r.Scope)
	return m, sc, err
}

// PerpetualRequest selects a range of months.
type PerpetualRequest struct {
	From  string `form:"from" binding:"required"`
	To    string `form:"to" binding:"required"`
	Scope string `form:"scope"`
}

// Parse validates the range and scope.
func (r PerpetualRequest) Parse() (from, to types.Month, sc scope.Scope, err error) {
	if from, err = types.ParseMonth(r.From); err != nil {
		return
	}
	if to, err = types.ParseMonth(r.To); err != nil {
		return
	}
	sc, err = scope.Parse(r.Scope)
	return
}

// MonthRequest selects a month.
type MonthRequest struct {
	Month string `form:"month" binding:"required"`
}
