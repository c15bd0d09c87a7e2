package audit

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/domain"
)

// CFOPs de venda interestadual a não contribuinte.
var finalConsumerCFOPs = map[string]bool{"6107": true, "6108": true}

// checkDIFAL confronta a alíquota interna da UF de destino com a interestadual
// aplicada. O DIFAL esperado é (interna + FCP − interestadual) sobre a base da
// UF de destino.
func (e *Engine) checkDIFAL(doc *domain.Document, item domain.LineItem, rule domain.RuleEntry) *finding {
	d := item.DIFAL
	f := newFinding(domain.CategoryDIFAL, item.Tax(domain.CategoryDIFAL))

	inter := d.InterstateRate
	if inter == 0 {
		inter = item.ICMS.Rate
	}
	base := d.Base
	if base == 0 {
		base = taxBase(item.ICMS, item)
	}
	f.v.DeclaredRate = inter
	f.v.DeclaredCode = item.CFOP

	if doc.Flow == domain.FlowOutbound && doc.FinalConsumer {
		f.v.ExpectedCode = "6108"
		if !finalConsumerCFOPs[item.CFOP] {
			f.diverge(fmt.Sprintf("CFOP %s não corresponde a venda interestadual a consumidor final (6107/6108)", orEmpty(item.CFOP)))
		}
	}
	if !d.Present {
		f.note("grupo ICMSUFDest ausente no item")
	} else if e.exceeds(d.DestinationRate, rule.InternalRate, e.rateTol) {
		f.diverge(fmt.Sprintf("alíquota interna da UF %s declarada %s%% difere da tabela %s%%",
			doc.DestinationState, pct(d.DestinationRate), pct(rule.InternalRate)))
	}

	// A alíquota esperada inclui o FCP, assim como o valor esperado.
	rate := dec(rule.InternalRate)
	declared := dec(d.DestinationValue)
	if rule.FCPRate > 0 {
		rate = rate.Add(dec(rule.FCPRate))
		declared = declared.Add(dec(d.FCPValue))
	}
	f.v.ExpectedRate = rate.InexactFloat64()
	gap := rate.Sub(dec(inter))
	expected := gap.Mul(dec(base)).Div(decimal.NewFromInt(100)).Round(2)
	if expected.IsNegative() {
		expected = decimal.Zero
	}
	f.v.ExpectedValue = expected.InexactFloat64()
	f.v.DeclaredValue = declared.InexactFloat64()

	if expected.Sub(declared).Abs().GreaterThan(e.difalTol) {
		f.diverge(fmt.Sprintf("DIFAL declarado %s difere do esperado %s", brl(f.v.DeclaredValue), brl(f.v.ExpectedValue)))
		if short := expected.Sub(declared).Round(2); short.IsPositive() {
			f.v.ComplementAmount = short.InexactFloat64()
		}
	}
	return f
}
