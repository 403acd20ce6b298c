package allocation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boigordo/internal/core/apperror"
	"boigordo/internal/core/id"
	"boigordo/internal/core/types"
)

type targets struct {
	lots map[id.ID]bool
	pens map[id.ID]bool
	err  error
}

func (t targets) LotExists(_ context.Context, lotID id.ID) (bool, error) { return t.lots[lotID], t.err }
func (t targets) PenExists(_ context.Context, penID id.ID) (bool, error) { return t.pens[penID], t.err }

func pct(s string) types.Percentage { return types.MustMoney(s) }

func ptr(v id.ID) *id.ID { return &v }

func TestValidate_SynthesizesDefault(t *testing.T) {
	lotID, penID := id.New(), id.New()
	v := NewValidator(targets{lots: map[id.ID]bool{lotID: true}, pens: map[id.ID]bool{penID: true}})
	ctx := context.Background()

	tests := []struct {
		name     string
		subject  Subject
		wantType TargetType
		wantID   *id.ID
	}{
		{"lot link wins", Subject{Amount: types.MustMoney("10"), LotID: &lotID, PenID: &penID}, TargetLot, &lotID},
		{"pen link", Subject{Amount: types.MustMoney("10"), PenID: &penID}, TargetPen, &penID},
		{"global", Subject{Amount: types.MustMoney("10")}, TargetGlobal, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			allocs, err := v.Validate(ctx, tt.subject, nil)
			require.NoError(t, err)
			require.Len(t, allocs, 1)
			assert.Equal(t, tt.wantType, allocs[0].TargetType)
			assert.Equal(t, tt.wantID, allocs[0].TargetID)
			assert.True(t, allocs[0].Synthesized)
			assert.Equal(t, "100", allocs[0].Percentage.String())
			assert.True(t, allocs[0].Amount.Equal(types.MustMoney("10")))
		})
	}
}

func TestValidate_SplitsAndAbsorbsRounding(t *testing.T) {
	a, b, c := id.New(), id.New(), id.New()
	v := NewValidator(targets{lots: map[id.ID]bool{a: true, b: true, c: true}})

	s := Subject{RecordID: id.New(), Amount: types.MustMoney("100.00")}
	allocs, err := v.Validate(context.Background(), s, []Candidate{
		{TargetType: TargetLot, TargetID: &a, Percentage: pct("33.33")},
		{TargetType: TargetLot, TargetID: &b, Percentage: pct("33.33")},
		{TargetType: TargetLot, TargetID: &c, Percentage: pct("33.34")},
	})
	require.NoError(t, err)
	require.Len(t, allocs, 3)
	assert.Equal(t, "33.33", allocs[0].Amount.String())
	assert.Equal(t, "33.34", allocs[2].Amount.String())
	assert.True(t, IsBalanced(allocs, s.Amount))
	for _, al := range allocs {
		assert.Equal(t, s.RecordID, al.RecordID)
		assert.False(t, al.Synthesized)
	}
}

func TestValidate_ToleratesEpsilon(t *testing.T) {
	a, b, c := id.New(), id.New(), id.New()
	v := NewValidator(targets{pens: map[id.ID]bool{a: true, b: true, c: true}})

	allocs, err := v.Validate(context.Background(), Subject{Amount: types.MustMoney("1000")}, []Candidate{
		{TargetType: TargetPen, TargetID: &a, Percentage: pct("33.33")},
		{TargetType: TargetPen, TargetID: &b, Percentage: pct("33.33")},
		{TargetType: TargetPen, TargetID: &c, Percentage: pct("33.33")},
	})
	require.NoError(t, err, "99.99 is within 0.01")
	assert.True(t, IsBalanced(allocs, types.MustMoney("1000")))
}

func TestValidate_Rejections(t *testing.T) {
	lotID := id.New()
	missing := id.New()
	v := NewValidator(targets{lots: map[id.ID]bool{lotID: true}})
	ctx := context.Background()
	amount := types.MustMoney("500")

	tests := []struct {
		name       string
		subject    Subject
		candidates []Candidate
		code       string
	}{
		{
			name:    "sum below 100",
			subject: Subject{Amount: amount},
			candidates: []Candidate{
				{TargetType: TargetLot, TargetID: &lotID, Percentage: pct("60")},
				{TargetType: TargetGlobal, Percentage: pct("39.98")},
			},
			code: apperror.CodePercentageMismatch,
		},
		{
			name:       "zero share",
			subject:    Subject{Amount: amount},
			candidates: []Candidate{{TargetType: TargetGlobal, Percentage: pct("0")}},
			code:       apperror.CodePercentageMismatch,
		},
		{
			name:       "share above 100",
			subject:    Subject{Amount: amount},
			candidates: []Candidate{{TargetType: TargetGlobal, Percentage: pct("100.5")}},
			code:       apperror.CodePercentageMismatch,
		},
		{
			name:       "unknown lot",
			subject:    Subject{Amount: amount},
			candidates: []Candidate{{TargetType: TargetLot, TargetID: &missing, Percentage: pct("100")}},
			code:       apperror.CodeInvalidTarget,
		},
		{
			name:       "global with id",
			subject:    Subject{Amount: amount},
			candidates: []Candidate{{TargetType: TargetGlobal, TargetID: &lotID, Percentage: pct("100")}},
			code:       apperror.CodeInvalidTarget,
		},
		{
			name:       "unknown type",
			subject:    Subject{Amount: amount},
			candidates: []Candidate{{TargetType: "FARM", Percentage: pct("100")}},
			code:       apperror.CodeInvalidTarget,
		},
		{
			name:    "acquisition without lot",
			subject: Subject{Amount: amount, Category: "animal_purchase", RequiresLot: true},
			code:    apperror.CodeMissingRequiredLink,
		},
		{
			name:    "direct link to unknown lot",
			subject: Subject{Amount: amount, LotID: ptr(missing)},
			code:    apperror.CodeInvalidTarget,
		},
		{
			name:    "non-positive amount",
			subject: Subject{Amount: types.Zero()},
			code:    apperror.CodeValidation,
		},
		{
			name:    "duplicate target",
			subject: Subject{Amount: amount},
			candidates: []Candidate{
				{TargetType: TargetLot, TargetID: &lotID, Percentage: pct("50")},
				{TargetType: TargetLot, TargetID: &lotID, Percentage: pct("50")},
			},
			code: apperror.CodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			allocs, err := v.Validate(ctx, tt.subject, tt.candidates)
			assert.Nil(t, allocs, "no partial acceptance")
			assert.True(t, apperror.HasCode(err, tt.code), "got %v", err)
		})
	}
}

func TestValidate_CheckerErrorPropagates(t *testing.T) {
	lotID := id.New()
	boom := errors.New("db down")
	v := NewValidator(targets{err: boom})
	_, err := v.Validate(context.Background(), Subject{Amount: types.MustMoney("1"), LotID: &lotID}, nil)
	assert.ErrorIs(t, err, boom)
}

func TestTargets(t *testing.T) {
	lotID, penID := id.New(), id.New()
	targets := Targets{
		Lots: func(_ context.Context, v id.ID) (bool, error) { return v == lotID, nil },
		Pens: func(_ context.Context, v id.ID) (bool, error) { return v == penID, nil },
	}
	ok, err := targets.LotExists(context.Background(), lotID)
	assert.NoError(t, err)
	assert.True(t, ok)
	ok, _ = targets.PenExists(context.Background(), lotID)
	assert.False(t, ok)
}
