package category

import (
	"time"

	"boigordo/internal/core/id"
)

// DefaultsEffectiveFrom is the start date of the seeded mapping versions.
var DefaultsEffectiveFrom = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// Category codes seeded on first start.
const (
	AnimalPurchase Code = "animal_purchase"
	Freight        Code = "freight"
	Commission     Code = "commission"
	AnimalHealth   Code = "animal_health"
	Feed           Code = "feed"
	Labor          Code = "labor"
	Energy         Code = "energy"
	Maintenance    Code = "maintenance"
	OtherCosts     Code = "other_costs"
	Administrative Code = "administrative"
	Interest       Code = "interest"
	Taxes          Code = "taxes"
	FreightOut     Code = "freight_out"
	CattleSale     Code = "cattle_sale"
	OtherIncome    Code = "other_income"
	Equipment      Code = "equipment"
	Facilities     Code = "facilities"
	Loan           Code = "loan"
	LoanPayment    Code = "loan_payment"
)

type seed struct {
	code      Code
	name      string
	bucket    CostBucket
	line      Line
	section   Section
	direction Direction
	lot       bool
}

var seeds = []seed{
	{AnimalPurchase, "Compra de animais", BucketAcquisition, LineCost, SectionOperating, DirectionOutflow, true},
	{Freight, "Frete", BucketFreight, LineCost, SectionOperating, DirectionOutflow, true},
	{Commission, "Comissão", BucketCommission, LineCost, SectionOperating, DirectionOutflow, true},
	{AnimalHealth, "Medicamentos e vacinas", BucketHealth, LineCost, SectionOperating, DirectionOutflow, false},
	{Feed, "Alimentação", BucketFeed, LineCost, SectionOperating, DirectionOutflow, false},
	{Labor, "Mão de obra", BucketOperational, LineCost, SectionOperating, DirectionOutflow, false},
	{Energy, "Energia e combustível", BucketOperational, LineCost, SectionOperating, DirectionOutflow, false},
	{Maintenance, "Manutenção", BucketOperational, LineCost, SectionOperating, DirectionOutflow, false},
	{OtherCosts, "Outras despesas", BucketOther, LineCost, SectionOperating, DirectionOutflow, false},
	{Administrative, "Despesas administrativas", BucketNone, LineExpense, SectionOperating, DirectionOutflow, false},
	{Interest, "Juros pagos", BucketNone, LineExpense, SectionFinancing, DirectionOutflow, false},
	{Taxes, "Impostos e taxas", BucketNone, LineSalesDeduction, SectionOperating, DirectionOutflow, false},
	{FreightOut, "Frete de venda", BucketNone, LineSalesDeduction, SectionOperating, DirectionOutflow, false},
	{CattleSale, "Vendas de gado", BucketNone, LineRevenue, SectionOperating, DirectionInflow, false},
	{OtherIncome, "Outras receitas", BucketNone, LineRevenue, SectionOperating, DirectionInflow, false},
	{Equipment, "Compra de equipamentos", BucketNone, LineNone, SectionInvesting, DirectionOutflow, false},
	{Facilities, "Melhorias em instalações", BucketNone, LineNone, SectionInvesting, DirectionOutflow, false},
	{Loan, "Empréstimos tomados", BucketNone, LineNone, SectionFinancing, DirectionInflow, false},
	{LoanPayment, "Pagamento de empréstimos", BucketNone, LineNone, SectionFinancing, DirectionOutflow, false},
}

// Defaults returns the initial mapping versions.
func Defaults() []Mapping {
	now := time.Now().UTC()
	out := make([]Mapping, 0, len(seeds))
	for _, s := range seeds {
		out = append(out, Mapping{
			ID:            id.New(),
			Category:      s.code,
			DisplayName:   s.name,
			Bucket:        s.bucket,
			Line:          s.line,
			Section:       s.section,
			Direction:     s.direction,
			RequiresLot:   s.lot,
			EffectiveFrom: DefaultsEffectiveFrom,
			CreatedAt:     now,
		})
	}
	return out
}

// MustDefaultTable builds a Table from Defaults. Panics on error; defaults carry no predicates.
func MustDefaultTable() *Table {
	t, err := NewTable(Defaults())
	if err != nil {
		panic(err)
	}
	return t
}
