// Package audit confronta cada item das notas com as tabelas de regras e
// emite um veredito por tributo.
package audit

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/core/rules"
	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/domain"
)

// Ações sugeridas. Cada veredito carrega exatamente uma.
const (
	ActionRegister      = "Cadastrar o código na tabela de regras"
	ActionSupplementary = "Emitir nota fiscal complementar"
	ActionCorrective    = "Emitir carta de correção ou retificar a escrituração"
	ActionNone          = "Nenhuma ação"
	ActionCancelled     = "Nenhuma ação (nota cancelada)"
)

// ItemResult são os vereditos de um item; Position indexa Document.Items.
type ItemResult struct {
	Position int
	Verdicts []domain.Verdict
}

// DocumentResult são os vereditos de todos os itens de uma nota.
type DocumentResult struct {
	Document *domain.Document
	Items    []ItemResult
}

// Engine é seguro para uso concorrente: só lê o catálogo.
type Engine struct {
	catalog   *rules.Catalog
	rateTol   decimal.Decimal
	valueTol  decimal.Decimal
	difalTol  decimal.Decimal
	suspended map[domain.Category]map[string]bool
	logger    *zap.Logger
}

// NewEngine cria o motor sobre um catálogo já carregado.
func NewEngine(catalog *rules.Catalog, opts ...Option) *Engine {
	e := &Engine{
		catalog:   catalog,
		rateTol:   dec(DefaultRateTolerance),
		valueTol:  dec(DefaultValueTolerance),
		difalTol:  dec(DefaultDifalTolerance),
		suspended: make(map[domain.Category]map[string]bool),
		logger:    zap.NewNop(),
	}
	for cat, codes := range DefaultSuspendedCodes() {
		WithSuspendedCodes(cat, codes...)(e)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AuditDocument audita todos os itens da nota, na ordem do XML.
func (e *Engine) AuditDocument(doc *domain.Document) DocumentResult {
	res := DocumentResult{Document: doc, Items: make([]ItemResult, 0, len(doc.Items))}
	for i, item := range doc.Items {
		res.Items = append(res.Items, ItemResult{Position: i, Verdicts: e.AuditItem(doc, item)})
	}
	return res
}

// Auditable lista as categorias que geram veredito para o item: a tabela
// precisa estar disponível e o DIFAL só se aplica a operação interestadual
// para consumidor final ou a item que traga o grupo ICMSUFDest.
func (e *Engine) Auditable(doc *domain.Document, item domain.LineItem) []domain.Category {
	var cats []domain.Category
	for _, cat := range domain.Categories {
		if !e.catalog.Available(cat) {
			continue
		}
		if cat == domain.CategoryDIFAL && !difalApplies(doc, item) {
			continue
		}
		cats = append(cats, cat)
	}
	return cats
}

func difalApplies(doc *domain.Document, item domain.LineItem) bool {
	if doc.Intrastate(item.CFOP) {
		return false
	}
	return doc.FinalConsumer || item.DIFAL.Present
}

// AuditItem devolve um veredito por categoria auditável.
func (e *Engine) AuditItem(doc *domain.Document, item domain.LineItem) []domain.Verdict {
	if doc == nil {
		doc = &domain.Document{}
	}
	cats := e.Auditable(doc, item)
	out := make([]domain.Verdict, 0, len(cats))
	for _, cat := range cats {
		out = append(out, e.auditCategory(doc, item, cat))
	}
	return out
}

func (e *Engine) auditCategory(doc *domain.Document, item domain.LineItem, cat domain.Category) domain.Verdict {
	declared := item.Tax(cat)

	// Nota cancelada não tem peso fiscal: nenhuma outra verificação roda.
	if doc.Status == domain.StatusCancelled {
		return domain.Verdict{
			Category:        cat,
			Outcome:         domain.OutcomeDocumentCancelled,
			Diagnosis:       []string{"nota cancelada"},
			DeclaredCode:    declared.Code,
			DeclaredRate:    declared.Rate,
			DeclaredValue:   declared.Value,
			SuggestedAction: ActionCancelled,
		}
	}

	key, label := ruleKey(doc, item, cat)
	rule, ok := e.catalog.Lookup(cat, key)
	if !ok {
		return e.missing(doc, item, cat, key, label)
	}

	var f *finding
	switch cat {
	case domain.CategoryICMS:
		f = e.checkICMS(doc, item, rule)
	case domain.CategoryIPI:
		f = e.checkIPI(item, rule)
	case domain.CategoryPIS, domain.CategoryCOFINS:
		f = e.checkPISCOFINS(doc, item, cat, rule)
	case domain.CategoryDIFAL:
		f = e.checkDIFAL(doc, item, rule)
	default:
		f = newFinding(cat, declared)
	}
	return f.verdict()
}

// ruleKey devolve a chave de busca na tabela: NCM, ou UF de destino no DIFAL.
func ruleKey(doc *domain.Document, item domain.LineItem, cat domain.Category) (string, string) {
	if cat == domain.CategoryDIFAL {
		return doc.DestinationState, "UF"
	}
	return domain.CanonicalNCM(item.NCM), "NCM"
}

func (e *Engine) missing(doc *domain.Document, item domain.LineItem, cat domain.Category, key, label string) domain.Verdict {
	declared := item.Tax(cat)
	v := domain.Verdict{
		Category:        cat,
		Outcome:         domain.OutcomeRuleMissing,
		DeclaredCode:    declared.Code,
		DeclaredRate:    declared.Rate,
		DeclaredValue:   declared.Value,
		SuggestedAction: ActionRegister,
	}
	if key == "" {
		v.Diagnosis = []string{fmt.Sprintf("%s ausente no item", label)}
		return v
	}
	v.Diagnosis = []string{fmt.Sprintf("%s %s não cadastrado na tabela de %s", label, key, cat)}
	if hint := e.catalog.ClosestKey(cat, key); hint != "" {
		v.Notes = []string{fmt.Sprintf("%s mais próximo cadastrado: %s", label, hint)}
	}
	e.logger.Debug("regra ausente",
		zap.String("categoria", string(cat)),
		zap.String("chave", key),
		zap.String("chave_nfe", doc.AccessKey),
		zap.Int("item", item.Index))
	return v
}

func (e *Engine) checkICMS(doc *domain.Document, item domain.LineItem, rule domain.RuleEntry) *finding {
	d := item.ICMS
	f := newFinding(domain.CategoryICMS, d)
	if !d.Present {
		f.note("grupo ICMS ausente no item")
	}

	expCode, expRate := rule.IntrastateCode, rule.IntrastateRate
	if !doc.Intrastate(item.CFOP) {
		expCode, expRate = rule.InterstateCode, rule.InterstateRate
	}
	e.compareCode(f, d.Code, expCode)
	e.compareRate(f, domain.CategoryICMS, d, expRate, taxBase(d, item))
	return f
}

func (e *Engine) checkIPI(item domain.LineItem, rule domain.RuleEntry) *finding {
	d := item.IPI
	f := newFinding(domain.CategoryIPI, d)
	if !d.Present && rule.ExpectedRate > 0 {
		f.note("grupo IPI ausente no item")
	}
	if rule.ExpectedRate > 20 {
		f.note(fmt.Sprintf("alíquota de IPI acima de 20%% (%s%%): revisar enquadramento na TIPI", pct(rule.ExpectedRate)))
	}
	e.compareRate(f, domain.CategoryIPI, d, rule.ExpectedRate, taxBase(d, item))
	return f
}

// checkPISCOFINS escolhe o CST pela direção da nota, não pela UF. A tabela não
// traz alíquota, então só o CST e o recálculo do valor são conferidos.
func (e *Engine) checkPISCOFINS(doc *domain.Document, item domain.LineItem, cat domain.Category, rule domain.RuleEntry) *finding {
	d := item.Tax(cat)
	f := newFinding(cat, d)

	expCode := rule.InboundCode
	if doc.Flow == domain.FlowOutbound {
		expCode = rule.OutboundCode
	}
	e.compareCode(f, d.Code, expCode)
	if e.checkSuspended(f, cat, d) {
		return f
	}
	f.v.ExpectedRate = d.Rate
	f.v.ExpectedValue = money(d.Base, d.Rate).InexactFloat64()
	e.recompute(f, d)
	return f
}

func (e *Engine) compareCode(f *finding, declared, expected string) {
	f.v.ExpectedCode = expected
	if expected == "" {
		f.note("CST esperado não informado na tabela")
		return
	}
	if declared != expected {
		f.diverge(fmt.Sprintf("CST declarado %s difere do esperado %s", orEmpty(declared), expected))
	}
}

// compareRate confere alíquota, recalcula o valor destacado e apura o
// complemento quando a alíquota declarada fica abaixo da esperada.
func (e *Engine) compareRate(f *finding, cat domain.Category, d domain.TaxFields, expRate, base float64) {
	if e.checkSuspended(f, cat, d) {
		return
	}
	f.v.ExpectedRate = expRate
	f.v.ExpectedValue = money(base, expRate).InexactFloat64()
	if e.exceeds(d.Rate, expRate, e.rateTol) {
		f.diverge(fmt.Sprintf("alíquota declarada %s%% difere da esperada %s%%", pct(d.Rate), pct(expRate)))
	}
	e.recompute(f, d)
	f.v.ComplementAmount = e.complement(expRate, d.Rate, base)
}

// checkSuspended trata os CSTs de imposto suspenso: alíquota e valor esperados
// são zero e qualquer valor destacado é divergência.
func (e *Engine) checkSuspended(f *finding, cat domain.Category, d domain.TaxFields) bool {
	if !e.suspended[cat][d.Code] {
		return false
	}
	f.v.ExpectedRate = 0
	f.v.ExpectedValue = 0
	if e.exceeds(d.Value, 0, e.valueTol) {
		f.diverge(fmt.Sprintf("CST %s (suspenso) não pode destacar imposto: valor declarado %s", d.Code, brl(d.Value)))
	}
	return true
}

// recompute confere o valor destacado contra base × alíquota declaradas.
func (e *Engine) recompute(f *finding, d domain.TaxFields) {
	if !d.Present || d.Base == 0 {
		return
	}
	calc := money(d.Base, d.Rate)
	if calc.Sub(dec(d.Value)).Abs().GreaterThan(e.valueTol) {
		f.diverge(fmt.Sprintf("valor declarado %s não confere com base × alíquota (%s)", brl(d.Value), brl(calc.InexactFloat64())))
	}
}

// complement devolve (esperada − declarada)/100 × base, arredondado em
// centavos, só quando a diferença passa da tolerância.
func (e *Engine) complement(expRate, declRate, base float64) float64 {
	gap := dec(expRate).Sub(dec(declRate))
	if !gap.GreaterThan(e.rateTol) || base <= 0 {
		return 0
	}
	v := gap.Mul(dec(base)).Div(decimal.NewFromInt(100)).Round(2)
	if v.IsNegative() {
		return 0
	}
	return v.InexactFloat64()
}

// exceeds diz se |a − b| passa da tolerância. O limite é inclusivo.
func (e *Engine) exceeds(a, b float64, tol decimal.Decimal) bool {
	return dec(a).Sub(dec(b)).Abs().GreaterThan(tol)
}

// taxBase usa a base declarada e, sem ela, o valor do produto.
func taxBase(d domain.TaxFields, item domain.LineItem) float64 {
	if d.Base > 0 {
		return d.Base
	}
	return item.ProductValue
}

// dec converte para decimal; NaN e infinito valem zero, então nenhum valor
// declarado derruba a auditoria.
func dec(v float64) decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}

func money(base, rate float64) decimal.Decimal {
	return dec(base).Mul(dec(rate)).Div(decimal.NewFromInt(100)).Round(2)
}

func pct(v float64) string {
	return dec(v).StringFixed(2)
}

func brl(v float64) string {
	return "R$ " + dec(v).StringFixed(2)
}

func orEmpty(s string) string {
	if s == "" {
		return "(vazio)"
	}
	return s
}
