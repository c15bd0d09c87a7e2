package report

import (
	"strconv"
	"strings"

	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/domain"
)

var flowLabels = map[domain.Flow]string{
	domain.FlowInbound:  "Entrada",
	domain.FlowOutbound: "Saída",
}

// FlowLabel é o nome do fluxo usado nas planilhas.
func FlowLabel(f domain.Flow) string {
	if l, ok := flowLabels[f]; ok {
		return l
	}
	return string(f)
}

var categoryHeader = []string{
	"Fluxo", "Chave NF-e", "Número", "Emissão", "UF Emitente", "UF Destino", "Situação da Nota",
	"Item", "Código", "Descrição", "NCM", "CFOP", "Valor Produto",
	"CST Declarado", "CST Esperado", "Alíquota Declarada", "Alíquota Esperada",
	"Base", "Valor Declarado", "Valor Esperado", "Resultado", "Diagnóstico",
	"Observações", "Ação Sugerida", "Complemento",
}

// Table devolve o cabeçalho e as linhas da aba de um tributo, entradas antes
// de saídas.
func (r *Report) Table(cat domain.Category) ([]string, [][]string) {
	var out [][]string
	for _, flow := range domain.Flows {
		for _, row := range r.Categories[cat][flow] {
			out = append(out, []string{
				FlowLabel(row.Flow), row.AccessKey, row.Number, row.IssueDate, row.IssuerState, row.DestinationState, row.Status,
				strconv.Itoa(row.Item), row.ProductCode, row.Description, row.NCM, row.CFOP, num(row.ProductValue),
				row.DeclaredCode, row.ExpectedCode, num(row.DeclaredRate), num(row.ExpectedRate),
				num(row.DeclaredBase), num(row.DeclaredValue), num(row.ExpectedValue), string(row.Outcome), strings.Join(row.Diagnosis, "; "),
				strings.Join(row.Notes, "; "), row.SuggestedAction, num(row.ComplementAmount),
			})
		}
	}
	return categoryHeader, out
}

var itemHeader = []string{
	"Chave NF-e", "Número", "Item", "Código", "Descrição", "NCM", "CFOP", "Valor Produto",
	"CST ICMS", "Alíq. ICMS", "Valor ICMS", "CST IPI", "Alíq. IPI", "Valor IPI",
	"CST PIS", "Valor PIS", "CST COFINS", "Valor COFINS", "Valor DIFAL", "Situação",
}

// ItemTable devolve os itens lidos de um fluxo.
func (r *Report) ItemTable(flow domain.Flow) ([]string, [][]string) {
	var out [][]string
	for _, it := range r.Items[flow] {
		out = append(out, []string{
			it.AccessKey, it.Number, strconv.Itoa(it.Item), it.ProductCode, it.Description, it.NCM, it.CFOP, num(it.ProductValue),
			it.ICMSCode, num(it.ICMSRate), num(it.ICMSValue), it.IPICode, num(it.IPIRate), num(it.IPIValue),
			it.PISCode, num(it.PISValue), it.COFINSCode, num(it.COFINSValue), num(it.DifalValue), it.Consolidated,
		})
	}
	return itemHeader, out
}

// FailureTable lista notas ignoradas, categorias indisponíveis e chaves
// duplicadas nas tabelas de regras.
func (r *Report) FailureTable() ([]string, [][]string) {
	header := []string{"Tipo", "Origem", "Detalhe"}
	var out [][]string
	for _, f := range r.Failures {
		out = append(out, []string{"Nota ignorada (" + FlowLabel(f.Flow) + ")", f.Source, f.Reason})
	}
	for _, u := range r.Unavailable {
		out = append(out, []string{"Tabela " + string(u.State), string(u.Category), u.Reason})
	}
	for _, d := range r.Duplicates {
		lines := make([]string, len(d.Rows))
		for i, n := range d.Rows {
			lines[i] = strconv.Itoa(n)
		}
		out = append(out, []string{"Chave duplicada", d.Table + " " + d.Key, "linhas " + strings.Join(lines, ", ")})
	}
	return header, out
}

// num usa vírgula decimal, como as planilhas da contabilidade.
func num(v float64) string {
	return strings.Replace(strconv.FormatFloat(v, 'f', 2, 64), ".", ",", 1)
}
