package audit

import "github.com/LuisEduardoPedra/sentinelaFiscal/internal/domain"

// finding acumula as divergências de uma categoria antes de virar Verdict.
type finding struct {
	v domain.Verdict
}

func newFinding(cat domain.Category, declared domain.TaxFields) *finding {
	return &finding{v: domain.Verdict{
		Category:      cat,
		DeclaredCode:  declared.Code,
		DeclaredRate:  declared.Rate,
		DeclaredValue: declared.Value,
	}}
}

func (f *finding) diverge(msg string) {
	f.v.Diagnosis = append(f.v.Diagnosis, msg)
}

func (f *finding) note(msg string) {
	f.v.Notes = append(f.v.Notes, msg)
}

// verdict fecha o resultado. Prioridade da ação: complemento antes de
// correção; o cadastro de código é tratado antes, em missing.
func (f *finding) verdict() domain.Verdict {
	v := f.v
	switch {
	case len(v.Diagnosis) == 0:
		v.Outcome = domain.OutcomeCorrect
		v.ComplementAmount = 0
		v.SuggestedAction = ActionNone
	case v.ComplementAmount > 0:
		v.Outcome = domain.OutcomeDivergent
		v.SuggestedAction = ActionSupplementary
	default:
		v.Outcome = domain.OutcomeDivergent
		v.ComplementAmount = 0
		v.SuggestedAction = ActionCorrective
	}
	return v
}
