// Package report agrupa os vereditos por tributo e por fluxo e entrega as
// tabelas prontas para os exportadores.
package report

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/core/audit"
	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/core/rules"
	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/domain"
)

// Situação consolidada de uma linha.
const (
	LineApproved   = "Aprovado"
	LineReview     = "Revisão Fiscal Necessária"
	LineCancelled  = "Cancelada"
	LineNotAudited = "Não auditado"
	LineBadValue   = "Erro: Valor Negativo"
)

const dateLayout = "2006-01-02"

// Row junta nota, item e veredito em uma linha da aba do tributo.
type Row struct {
	Flow             domain.Flow `json:"fluxo"`
	AccessKey        string      `json:"chave_nfe"`
	Number           string      `json:"num_nota"`
	IssueDate        string      `json:"data_emissao"`
	IssuerState      string      `json:"uf_emitente"`
	DestinationState string      `json:"uf_destinatario"`
	Status           string      `json:"status_nota"`
	Item             int         `json:"item"`
	ProductCode      string      `json:"cod_produto"`
	Description      string      `json:"descricao"`
	NCM              string      `json:"ncm"`
	CFOP             string      `json:"cfop"`
	ProductValue     float64     `json:"valor_produto"`
	DeclaredBase     float64     `json:"base_declarada"`
	Hash             string      `json:"hash,omitempty"`
	domain.Verdict
}

// DocumentRow é uma nota como foi lida.
type DocumentRow struct {
	AccessKey        string `json:"chave_nfe"`
	Number           string `json:"num_nota"`
	Series           string `json:"serie"`
	IssueDate        string `json:"data_emissao"`
	IssuerState      string `json:"uf_emitente"`
	DestinationState string `json:"uf_destinatario"`
	IssuerID         string `json:"cnpj_emitente"`
	RecipientID      string `json:"doc_destinatario"`
	FinalConsumer    bool   `json:"consumidor_final"`
	Status           string `json:"status"`
	StatusText       string `json:"status_texto"`
	SourceName       string `json:"arquivo"`
	ItemCount        int    `json:"qtd_itens"`
	Consolidated     string `json:"situacao_consolidada"`
}

// ItemRow é um item como foi lido, com a situação consolidada da linha.
type ItemRow struct {
	AccessKey    string  `json:"chave_nfe"`
	Number       string  `json:"num_nota"`
	Item         int     `json:"item"`
	ProductCode  string  `json:"cod_produto"`
	Description  string  `json:"descricao"`
	NCM          string  `json:"ncm"`
	CFOP         string  `json:"cfop"`
	ProductValue float64 `json:"valor_produto"`
	ICMSCode     string  `json:"cst_icms"`
	ICMSRate     float64 `json:"aliq_icms"`
	ICMSValue    float64 `json:"valor_icms"`
	IPICode      string  `json:"cst_ipi"`
	IPIRate      float64 `json:"aliq_ipi"`
	IPIValue     float64 `json:"valor_ipi"`
	PISCode      string  `json:"cst_pis"`
	PISValue     float64 `json:"valor_pis"`
	COFINSCode   string  `json:"cst_cofins"`
	COFINSValue  float64 `json:"valor_cofins"`
	DifalValue   float64 `json:"valor_difal"`
	Consolidated string  `json:"situacao_consolidada"`
}

// CategoryIssue descreve uma categoria que não pôde ser auditada.
type CategoryIssue struct {
	Category domain.Category   `json:"categoria"`
	State    domain.TableState `json:"estado"`
	Reason   string            `json:"motivo"`
}

// DuplicateIssue é uma chave repetida em uma tabela de regras.
type DuplicateIssue struct {
	Table string `json:"tabela"`
	Key   string `json:"chave"`
	Rows  []int  `json:"linhas"`
}

// Summary traz os totais da execução.
type Summary struct {
	Documents   map[domain.Flow]int                        `json:"notas"`
	Outcomes    map[domain.Category]map[domain.Outcome]int `json:"resultados"`
	Complements map[domain.Category]float64                `json:"complementos"`
	Total       float64                                    `json:"complemento_total"`
	Lines       map[string]int                             `json:"linhas"`
	Failures    int                                        `json:"falhas"`
}

// Report é o resultado agregado de uma execução.
type Report struct {
	RunID       string                                    `json:"id_execucao"`
	GeneratedAt time.Time                                 `json:"gerado_em"`
	Categories  map[domain.Category]map[domain.Flow][]Row `json:"categorias"`
	Documents   map[domain.Flow][]DocumentRow             `json:"notas"`
	Items       map[domain.Flow][]ItemRow                 `json:"itens"`
	Failures    []domain.ParseFailure                     `json:"falhas"`
	Unavailable []CategoryIssue                           `json:"categorias_indisponiveis"`
	Duplicates  []DuplicateIssue                          `json:"duplicidades"`
	Summary     Summary                                   `json:"resumo"`
}

// Build monta o relatório. Só lê as entradas.
func Build(docs []*domain.Document, results []audit.DocumentResult, failures []domain.ParseFailure, catalog *rules.Catalog) *Report {
	rep := &Report{
		Categories: make(map[domain.Category]map[domain.Flow][]Row),
		Documents:  make(map[domain.Flow][]DocumentRow),
		Items:      make(map[domain.Flow][]ItemRow),
		Summary: Summary{
			Documents:   make(map[domain.Flow]int),
			Outcomes:    make(map[domain.Category]map[domain.Outcome]int),
			Complements: make(map[domain.Category]float64),
			Lines:       make(map[string]int),
			Failures:    len(failures),
		},
	}

	byDoc := make(map[*domain.Document]audit.DocumentResult, len(results))
	for _, r := range results {
		byDoc[r.Document] = r
	}

	totals := make(map[domain.Category]decimal.Decimal)
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		rep.Summary.Documents[doc.Flow]++
		verdicts := make([][]domain.Verdict, len(doc.Items))
		for _, it := range byDoc[doc].Items {
			if it.Position >= 0 && it.Position < len(verdicts) {
				verdicts[it.Position] = it.Verdicts
			}
		}

		docState := LineApproved
		if len(doc.Items) == 0 {
			docState = LineNotAudited
		}
		for i, item := range doc.Items {
			line := consolidate(doc, item, verdicts[i])
			rep.Summary.Lines[line]++
			docState = worse(docState, line)
			rep.Items[doc.Flow] = append(rep.Items[doc.Flow], itemRow(doc, item, line))

			for _, v := range verdicts[i] {
				if rep.Categories[v.Category] == nil {
					rep.Categories[v.Category] = make(map[domain.Flow][]Row)
				}
				rep.Categories[v.Category][doc.Flow] = append(rep.Categories[v.Category][doc.Flow], row(doc, item, v))
				if rep.Summary.Outcomes[v.Category] == nil {
					rep.Summary.Outcomes[v.Category] = make(map[domain.Outcome]int)
				}
				rep.Summary.Outcomes[v.Category][v.Outcome]++
				totals[v.Category] = totals[v.Category].Add(decimal.NewFromFloat(v.ComplementAmount))
			}
		}
		rep.Documents[doc.Flow] = append(rep.Documents[doc.Flow], documentRow(doc, docState))
	}

	grand := decimal.Zero
	for cat, t := range totals {
		rep.Summary.Complements[cat] = t.Round(2).InexactFloat64()
		grand = grand.Add(t)
	}
	rep.Summary.Total = grand.Round(2).InexactFloat64()

	rep.Failures = append(rep.Failures, failures...)
	for _, u := range catalog.Unavailable() {
		rep.Unavailable = append(rep.Unavailable, CategoryIssue{Category: u.Category, State: u.State, Reason: u.Reason})
	}
	for _, t := range catalog.Tables() {
		for _, d := range t.Duplicates {
			rep.Duplicates = append(rep.Duplicates, DuplicateIssue{Table: string(t.Kind), Key: d.Key, Rows: d.Rows})
		}
	}

	rep.sort()
	return rep
}

// consolidate resume os vereditos de uma linha. Item com valor de produto
// zerado ou negativo é erro de dados, seja qual for o veredito.
func consolidate(doc *domain.Document, item domain.LineItem, verdicts []domain.Verdict) string {
	if doc.Status == domain.StatusCancelled {
		return LineCancelled
	}
	if item.ProductValue <= 0 {
		return LineBadValue
	}
	if len(verdicts) == 0 {
		return LineNotAudited
	}
	for _, v := range verdicts {
		if v.Outcome != domain.OutcomeCorrect {
			return LineReview
		}
	}
	return LineApproved
}

var severity = map[string]int{LineApproved: 0, LineNotAudited: 1, LineCancelled: 2, LineReview: 3, LineBadValue: 4}

func worse(a, b string) string {
	if severity[b] > severity[a] {
		return b
	}
	return a
}

func row(doc *domain.Document, item domain.LineItem, v domain.Verdict) Row {
	// O hash identifica o veredito entre execuções; só falha com valor não
	// finito, que a leitura já descarta.
	hash, _ := v.Fingerprint()
	return Row{
		Flow:             doc.Flow,
		AccessKey:        doc.AccessKey,
		Number:           doc.Number,
		IssueDate:        formatDate(doc.IssueDate),
		IssuerState:      doc.IssuerState,
		DestinationState: doc.DestinationState,
		Status:           doc.Status.String(),
		Item:             item.Index,
		ProductCode:      item.ProductCode,
		Description:      item.Description,
		NCM:              item.NCM,
		CFOP:             item.CFOP,
		ProductValue:     item.ProductValue,
		DeclaredBase:     item.Tax(v.Category).Base,
		Hash:             hash,
		Verdict:          v,
	}
}

func documentRow(doc *domain.Document, consolidated string) DocumentRow {
	return DocumentRow{
		AccessKey:        doc.AccessKey,
		Number:           doc.Number,
		Series:           doc.Series,
		IssueDate:        formatDate(doc.IssueDate),
		IssuerState:      doc.IssuerState,
		DestinationState: doc.DestinationState,
		IssuerID:         doc.IssuerID,
		RecipientID:      doc.RecipientID,
		FinalConsumer:    doc.FinalConsumer,
		Status:           doc.Status.String(),
		StatusText:       doc.StatusText,
		SourceName:       doc.SourceName,
		ItemCount:        len(doc.Items),
		Consolidated:     consolidated,
	}
}

func itemRow(doc *domain.Document, item domain.LineItem, consolidated string) ItemRow {
	return ItemRow{
		AccessKey:    doc.AccessKey,
		Number:       doc.Number,
		Item:         item.Index,
		ProductCode:  item.ProductCode,
		Description:  item.Description,
		NCM:          item.NCM,
		CFOP:         item.CFOP,
		ProductValue: item.ProductValue,
		ICMSCode:     item.ICMS.Code,
		ICMSRate:     item.ICMS.Rate,
		ICMSValue:    item.ICMS.Value,
		IPICode:      item.IPI.Code,
		IPIRate:      item.IPI.Rate,
		IPIValue:     item.IPI.Value,
		PISCode:      item.PIS.Code,
		PISValue:     item.PIS.Value,
		COFINSCode:   item.COFINS.Code,
		COFINSValue:  item.COFINS.Value,
		DifalValue:   item.DIFAL.DestinationValue,
		Consolidated: consolidated,
	}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

// sort deixa a saída determinística: chave de acesso e depois item, dentro de
// cada fluxo.
func (r *Report) sort() {
	for _, flows := range r.Categories {
		for _, rows := range flows {
			sort.SliceStable(rows, func(i, j int) bool {
				if rows[i].AccessKey != rows[j].AccessKey {
					return rows[i].AccessKey < rows[j].AccessKey
				}
				return rows[i].Item < rows[j].Item
			})
		}
	}
	for _, rows := range r.Documents {
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].AccessKey < rows[j].AccessKey })
	}
	for _, rows := range r.Items {
		sort.SliceStable(rows, func(i, j int) bool {
			if rows[i].AccessKey != rows[j].AccessKey {
				return rows[i].AccessKey < rows[j].AccessKey
			}
			return rows[i].Item < rows[j].Item
		})
	}
	sort.SliceStable(r.Failures, func(i, j int) bool {
		if r.Failures[i].Flow != r.Failures[j].Flow {
			return r.Failures[i].Flow < r.Failures[j].Flow
		}
		return r.Failures[i].Source < r.Failures[j].Source
	})
	sort.SliceStable(r.Duplicates, func(i, j int) bool {
		if r.Duplicates[i].Table != r.Duplicates[j].Table {
			return r.Duplicates[i].Table < r.Duplicates[j].Table
		}
		return r.Duplicates[i].Key < r.Duplicates[j].Key
	})
}
