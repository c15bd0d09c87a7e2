// Package rules carrega as tabelas de regras fiscais e monta o catálogo
// consultado pelo motor de auditoria.
package rules

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/schollz/closestmatch"
	"go.uber.org/zap"

	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/core/tabular"
	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/domain"
)

// notTaxed é o marcador da TIPI para produto não tributado.
const notTaxed = "NT"

var validUFs = map[string]bool{
	"AC": true, "AL": true, "AM": true, "AP": true, "BA": true, "CE": true, "DF": true,
	"ES": true, "GO": true, "MA": true, "MG": true, "MS": true, "MT": true, "PA": true,
	"PB": true, "PE": true, "PI": true, "PR": true, "RJ": true, "RN": true, "RO": true,
	"RR": true, "RS": true, "SC": true, "SE": true, "SP": true, "TO": true,
}

// Duplicate registra uma chave que apareceu em mais de uma linha. A última
// linha prevalece.
type Duplicate struct {
	Key  string `json:"chave"`
	Rows []int  `json:"linhas"`
}

// RuleTable é uma tabela normalizada. Depois de carregada é somente leitura.
type RuleTable struct {
	Kind       TableKind
	Source     string
	State      domain.TableState
	Reason     string
	Entries    map[string]domain.RuleEntry
	Duplicates []Duplicate
	Skipped    int

	matchOnce sync.Once
	matcher   *closestmatch.ClosestMatch
}

// Input é o conteúdo bruto de uma tabela.
type Input struct {
	Kind     TableKind
	Filename string
	Reader   io.Reader
}

// Loader converte planilhas em RuleTable seguindo os esquemas declarados.
type Loader struct {
	schemas map[TableKind]Schema
	logger  *zap.Logger
}

// NewLoader cria um Loader. schemas nil usa DefaultSchemas.
func NewLoader(schemas map[TableKind]Schema, logger *zap.Logger) *Loader {
	if schemas == nil {
		schemas = DefaultSchemas()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{schemas: schemas, logger: logger}
}

// Load carrega as tabelas informadas e monta o catálogo. Tabelas ausentes ou
// ilegíveis ficam indisponíveis, sem erro.
func (l *Loader) Load(inputs []Input) *Catalog {
	byKind := make(map[TableKind]*RuleTable)
	for _, in := range inputs {
		byKind[in.Kind] = l.LoadTable(in.Kind, in.Reader, in.Filename)
	}
	var tables []*RuleTable
	for _, kind := range TableKinds {
		t, ok := byKind[kind]
		if !ok {
			t = &RuleTable{Kind: kind, State: domain.TableUnavailable, Reason: "tabela não enviada"}
		}
		tables = append(tables, t)
	}
	return NewCatalog(tables...)
}

// LoadTable lê e normaliza uma tabela. Nunca falha: problemas de leitura ou
// de leiaute são devolvidos no estado da tabela.
func (l *Loader) LoadTable(kind TableKind, r io.Reader, filename string) *RuleTable {
	t := &RuleTable{Kind: kind, Source: filename, Entries: make(map[string]domain.RuleEntry)}
	log := l.logger.With(zap.String("tabela", string(kind)), zap.String("arquivo", filename))

	schema, ok := l.schemas[kind]
	if !ok {
		t.State, t.Reason = domain.TableUnavailable, "tabela desconhecida"
		return t
	}
	if r == nil {
		t.State, t.Reason = domain.TableUnavailable, "tabela não enviada"
		return t
	}

	rows, err := tabular.Read(r, filename)
	if err != nil {
		log.Warn("tabela de regras ilegível", zap.Error(err))
		t.State, t.Reason = domain.TableUnavailable, err.Error()
		return t
	}
	if w, need := tabular.Width(rows), schema.RequiredWidth(); w < need {
		log.Warn("tabela com colunas insuficientes", zap.Int("colunas", w), zap.Int("necessarias", need))
		t.State = domain.TableInsufficientSchema
		t.Reason = fmt.Sprintf("a tabela tem %d colunas, o leiaute exige %d", w, need)
		return t
	}

	seen := make(map[string][]int)
	for i, row := range rows {
		line := i + 1
		entry, ok := parseRow(schema, row)
		if !ok {
			t.Skipped++
			continue
		}
		entry.Row = line
		seen[entry.Key] = append(seen[entry.Key], line)
		t.Entries[entry.Key] = entry
	}

	for key, lines := range seen {
		if len(lines) > 1 {
			t.Duplicates = append(t.Duplicates, Duplicate{Key: key, Rows: lines})
		}
	}
	sort.Slice(t.Duplicates, func(i, j int) bool { return t.Duplicates[i].Key < t.Duplicates[j].Key })
	for _, d := range t.Duplicates {
		log.Warn("chave duplicada na tabela de regras, prevalece a última linha", zap.String("chave", d.Key), zap.Ints("linhas", d.Rows))
	}

	if len(t.Entries) == 0 {
		t.State, t.Reason = domain.TableUnavailable, "nenhuma linha válida"
		return t
	}
	t.State = domain.TableAvailable
	log.Info("tabela de regras carregada", zap.Int("regras", len(t.Entries)), zap.Int("ignoradas", t.Skipped))
	return t
}

// parseRow normaliza uma linha. Linhas sem chave válida (cabeçalhos, totais)
// ou com alíquota ilegível são descartadas.
func parseRow(s Schema, row []string) (domain.RuleEntry, bool) {
	var e domain.RuleEntry
	cell := func(field string) string {
		return tabular.Cell(row, s.Index(field))
	}

	if s.has(FieldUF) {
		uf := strings.ToUpper(cell(FieldUF))
		if !validUFs[uf] {
			return e, false
		}
		e.Key = uf
	} else {
		raw := keyCell(cell(FieldNCM))
		if domain.Digits(raw) == "" {
			return e, false
		}
		e.Key = domain.CanonicalNCM(raw)
	}

	var err error
	switch s.Kind {
	case TableICMS:
		e.IntrastateCode = domain.CanonicalCode(cell(FieldIntrastateCode))
		e.InterstateCode = domain.CanonicalCode(cell(FieldInterstateCode))
		if e.IntrastateRate, err = parseRate(cell(FieldIntrastateRate)); err != nil {
			return e, false
		}
		if e.InterstateRate, err = parseRate(cell(FieldInterstateRate)); err != nil {
			return e, false
		}
	case TableIPI:
		// Exceções da TIPI (coluna EX) têm alíquota própria e não substituem a
		// linha base do NCM.
		if s.own(FieldEX) && cell(FieldEX) != "" {
			return e, false
		}
		if e.ExpectedRate, err = parseRate(cell(FieldIPIRate)); err != nil {
			return e, false
		}
	case TablePISCOFINS:
		e.InboundCode = domain.CanonicalCode(cell(FieldInboundCode))
		e.OutboundCode = domain.CanonicalCode(cell(FieldOutboundCode))
	case TableDIFAL:
		if e.InternalRate, err = parseRate(cell(FieldInternalRate)); err != nil {
			return e, false
		}
		if e.FCPRate, err = parseRate(cell(FieldFCP)); err != nil {
			return e, false
		}
	}
	return e, true
}

// keyCell desfaz o ".0" que o Excel acrescenta quando o NCM foi gravado como
// número.
func keyCell(v string) string {
	if strings.Count(v, ".") == 1 && strings.HasSuffix(v, ".0") {
		return strings.TrimSuffix(v, ".0")
	}
	return v
}

func parseRate(v string) (float64, error) {
	if strings.EqualFold(strings.TrimSpace(v), notTaxed) {
		return 0, nil
	}
	return tabular.ParseNumber(v)
}

// closest devolve a chave cadastrada mais parecida com key. O closestmatch
// filtra os candidatos e o desempate é feito pelo maior prefixo comum (capítulo,
// posição, subposição do NCM) e depois pela ordem lexical, para que a sugestão
// não varie entre execuções.
func (t *RuleTable) closest(key string) string {
	t.matchOnce.Do(func() {
		if len(t.Entries) == 0 {
			return
		}
		keys := make([]string, 0, len(t.Entries))
		for k := range t.Entries {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		t.matcher = closestmatch.New(keys, []int{2, 3, 4})
	})
	if t.matcher == nil {
		return ""
	}

	best, bestPrefix := "", -1
	for _, cand := range t.matcher.ClosestN(key, len(t.Entries)) {
		p := commonPrefix(key, cand)
		if p > bestPrefix || (p == bestPrefix && cand < best) {
			best, bestPrefix = cand, p
		}
	}
	return best
}

func commonPrefix(a, b string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}
