package audit

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/domain"
)

// Tolerâncias padrão. Alíquotas em pontos percentuais, valores em reais.
const (
	DefaultRateTolerance  = 0.1
	DefaultValueTolerance = 0.01
	DefaultDifalTolerance = 0.05
)

// DefaultSuspendedCodes são os CSTs de imposto suspenso ou retido
// anteriormente: não admitem alíquota nem valor destacado.
func DefaultSuspendedCodes() map[domain.Category][]string {
	return map[domain.Category][]string{
		domain.CategoryICMS:   {"60"},
		domain.CategoryIPI:    {"05", "55"},
		domain.CategoryPIS:    {"09"},
		domain.CategoryCOFINS: {"09"},
	}
}

// Option ajusta o Engine.
type Option func(*Engine)

// WithTolerances troca as tolerâncias de alíquota, de recálculo de valor e de
// DIFAL. Valores negativos mantêm o padrão.
func WithTolerances(rate, value, difal float64) Option {
	return func(e *Engine) {
		if rate >= 0 {
			e.rateTol = dec(rate)
		}
		if value >= 0 {
			e.valueTol = dec(value)
		}
		if difal >= 0 {
			e.difalTol = dec(difal)
		}
	}
}

// WithSuspendedCodes substitui os CSTs suspensos de uma categoria.
func WithSuspendedCodes(cat domain.Category, codes ...string) Option {
	return func(e *Engine) {
		set := make(map[string]bool, len(codes))
		for _, c := range codes {
			set[domain.CanonicalCode(c)] = true
		}
		e.suspended[cat] = set
	}
}

// WithLogger define o logger do motor.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}
