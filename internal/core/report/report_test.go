package report

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/core/audit"
	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/core/rules"
	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/domain"
)

const (
	keyA = "35240112345678000199550010000012341000012345"
	keyB = "35240112345678000199550010000012351000012346"
	keyC = "35240112345678000199550010000012361000012347"
)

func catalog(t *testing.T) *rules.Catalog {
	t.Helper()
	loader := rules.NewLoader(nil, nil)
	return loader.Load([]rules.Input{
		{Kind: rules.TableICMS, Filename: "icms.csv", Reader: strings.NewReader("22030000;00;18;00;12\n22030000;00;18;00;12\n")},
	})
}

func item(index int, rate float64) domain.LineItem {
	return domain.LineItem{
		Index:        index,
		NCM:          "22030000",
		CFOP:         "5102",
		ProductValue: 1000,
		ICMS:         domain.TaxFields{Code: "00", Rate: rate, Base: 1000, Value: 10 * rate, Present: true},
	}
}

func build(t *testing.T, docs []*domain.Document, failures []domain.ParseFailure) *Report {
	t.Helper()
	cat := catalog(t)
	engine := audit.NewEngine(cat)
	var results []audit.DocumentResult
	for _, d := range docs {
		results = append(results, engine.AuditDocument(d))
	}
	return Build(docs, results, failures, cat)
}

func TestBuild(t *testing.T) {
	cancelled := &domain.Document{AccessKey: keyC, Flow: domain.FlowOutbound, IssuerState: "SP", DestinationState: "SP", Items: []domain.LineItem{item(1, 18)}}
	cancelled.ResolveStatus(domain.StatusCancelled, "Cancelada")
	docs := []*domain.Document{
		{AccessKey: keyB, Flow: domain.FlowOutbound, IssuerState: "SP", DestinationState: "SP", Items: []domain.LineItem{item(2, 12), item(1, 18)}},
		{AccessKey: keyA, Flow: domain.FlowOutbound, IssuerState: "SP", DestinationState: "SP", Items: []domain.LineItem{item(1, 18)}},
		cancelled,
		{AccessKey: keyA, Flow: domain.FlowInbound},
		nil,
	}
	failures := []domain.ParseFailure{
		{Source: "z.xml", Flow: domain.FlowOutbound, Reason: "x"},
		{Source: "a.xml", Flow: domain.FlowInbound, Reason: "y"},
	}

	rep := build(t, docs, failures)

	rows := rep.Categories[domain.CategoryICMS][domain.FlowOutbound]
	require.Len(t, rows, 4)
	assert.Equal(t, keyA, rows[0].AccessKey)
	assert.Equal(t, keyB, rows[1].AccessKey)
	assert.Equal(t, 1, rows[1].Item, "itens ordenados dentro da nota")
	assert.Equal(t, 2, rows[2].Item)
	assert.Equal(t, domain.OutcomeDivergent, rows[2].Outcome)
	assert.Equal(t, 60.0, rows[2].ComplementAmount)
	assert.Equal(t, domain.OutcomeDocumentCancelled, rows[3].Outcome)
	assert.Empty(t, rep.Categories[domain.CategoryICMS][domain.FlowInbound])

	assert.Equal(t, map[domain.Flow]int{domain.FlowOutbound: 3, domain.FlowInbound: 1}, rep.Summary.Documents)
	assert.Equal(t, 60.0, rep.Summary.Complements[domain.CategoryICMS])
	assert.Equal(t, 60.0, rep.Summary.Total)
	assert.Equal(t, 2, rep.Summary.Outcomes[domain.CategoryICMS][domain.OutcomeCorrect])
	assert.Equal(t, 2, rep.Summary.Failures)
	assert.Equal(t, map[string]int{LineApproved: 2, LineReview: 1, LineCancelled: 1}, rep.Summary.Lines)

	outDocs := rep.Documents[domain.FlowOutbound]
	require.Len(t, outDocs, 3)
	assert.Equal(t, LineApproved, outDocs[0].Consolidated)
	assert.Equal(t, LineReview, outDocs[1].Consolidated)
	assert.Equal(t, LineCancelled, outDocs[2].Consolidated)
	assert.Equal(t, LineNotAudited, rep.Documents[domain.FlowInbound][0].Consolidated, "nota sem itens")

	require.Len(t, rep.Failures, 2)
	assert.Equal(t, "a.xml", rep.Failures[0].Source)

	require.Len(t, rep.Duplicates, 1)
	assert.Equal(t, DuplicateIssue{Table: "icms", Key: "22030000", Rows: []int{1, 2}}, rep.Duplicates[0])
	assert.Len(t, rep.Unavailable, 4)
}

func TestBuildBadValueAndHash(t *testing.T) {
	negative := item(2, 18)
	negative.ProductValue = -1000
	doc := &domain.Document{AccessKey: keyA, Flow: domain.FlowOutbound, IssuerState: "SP", DestinationState: "SP", Items: []domain.LineItem{item(1, 18), negative}}

	rep := build(t, []*domain.Document{doc}, nil)

	assert.Equal(t, map[string]int{LineApproved: 1, LineBadValue: 1}, rep.Summary.Lines)
	assert.Equal(t, LineBadValue, rep.Documents[domain.FlowOutbound][0].Consolidated)
	assert.Equal(t, LineBadValue, rep.Items[domain.FlowOutbound][1].Consolidated)

	rows := rep.Categories[domain.CategoryICMS][domain.FlowOutbound]
	require.Len(t, rows, 2)
	want, err := rows[0].Verdict.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, want, rows[0].Hash)
	assert.Len(t, rows[0].Hash, 64)

	again := build(t, []*domain.Document{doc}, nil)
	assert.Equal(t, rows[0].Hash, again.Categories[domain.CategoryICMS][domain.FlowOutbound][0].Hash, "mesma entrada, mesmo hash")
}

func TestConsolidate(t *testing.T) {
	doc := &domain.Document{}
	it := item(1, 18)
	correct := []domain.Verdict{{Outcome: domain.OutcomeCorrect}}
	assert.Equal(t, LineNotAudited, consolidate(doc, it, nil))
	assert.Equal(t, LineApproved, consolidate(doc, it, correct))
	assert.Equal(t, LineReview, consolidate(doc, it, []domain.Verdict{{Outcome: domain.OutcomeCorrect}, {Outcome: domain.OutcomeRuleMissing}}))

	bad := it
	bad.ProductValue = -10
	assert.Equal(t, LineBadValue, consolidate(doc, bad, correct))
	bad.ProductValue = 0
	assert.Equal(t, LineBadValue, consolidate(doc, bad, nil))

	doc.ResolveStatus(domain.StatusCancelled, "")
	assert.Equal(t, LineCancelled, consolidate(doc, it, []domain.Verdict{{Outcome: domain.OutcomeDivergent}}))
	assert.Equal(t, LineCancelled, consolidate(doc, bad, correct), "cancelamento prevalece")

	assert.Equal(t, LineReview, worse(LineCancelled, LineReview))
	assert.Equal(t, LineBadValue, worse(LineReview, LineBadValue))
	assert.Equal(t, LineNotAudited, worse(LineNotAudited, LineApproved))
}

func TestTables(t *testing.T) {
	doc := &domain.Document{AccessKey: keyA, Number: "10", Flow: domain.FlowOutbound, IssuerState: "SP", DestinationState: "SP", Items: []domain.LineItem{item(1, 12)}}
	rep := build(t, []*domain.Document{doc}, []domain.ParseFailure{{Source: "e.xml", Flow: domain.FlowInbound, Reason: "documento não suportado"}})

	header, rows := rep.Table(domain.CategoryICMS)
	require.Len(t, rows, 1)
	assert.Len(t, rows[0], len(header))
	assert.Equal(t, "Saída", rows[0][0])
	assert.Equal(t, "12,00", rows[0][15])
	assert.Equal(t, "18,00", rows[0][16])
	assert.Equal(t, "60,00", rows[0][len(header)-1])
	assert.Equal(t, audit.ActionSupplementary, rows[0][len(header)-2])

	header, rows = rep.ItemTable(domain.FlowOutbound)
	require.Len(t, rows, 1)
	assert.Len(t, rows[0], len(header))
	assert.Equal(t, LineReview, rows[0][len(header)-1])

	_, rows = rep.FailureTable()
	require.Len(t, rows, 6, "uma falha, quatro categorias indisponíveis e uma duplicidade")
	assert.Equal(t, []string{"Nota ignorada (Entrada)", "e.xml", "documento não suportado"}, rows[0])
	assert.Equal(t, []string{"Chave duplicada", "icms 22030000", "linhas 1, 2"}, rows[5])
}
