package parser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/domain"
)

const testKey = "35240112345678000199550010000012341000012345"

const nfeTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<nfeProc xmlns="http://www.portalfiscal.inf.br/nfe" versao="4.00">
  <NFe>
    <infNFe Id="NFe%s" versao="4.00">
      <ide><nNF>1234</nNF><serie>1</serie><dhEmi>2024-01-15T10:30:00-03:00</dhEmi><indFinal>%s</indFinal></ide>
      <emit><CNPJ>12345678000199</CNPJ><enderEmit><UF>SP</UF></enderEmit></emit>
      <dest><CNPJ>98765432000188</CNPJ><indIEDest>%s</indIEDest><enderDest><UF>%s</UF></enderDest></dest>
      %s
    </infNFe>
  </NFe>
  <protNFe><infProt><chNFe>%s</chNFe></infProt></protNFe>
</nfeProc>`

const itemICMS00 = `<det nItem="1">
  <prod><cProd>A1</cProd><xProd>Cerveja</xProd><NCM>2203.00.00</NCM><CFOP>5102</CFOP><vProd>1000.00</vProd></prod>
  <imposto>
    <ICMS><ICMS00><orig>0</orig><CST>00</CST><vBC>1000.00</vBC><pICMS>18.00</pICMS><vICMS>180.00</vICMS></ICMS00></ICMS>
    <IPI><cEnq>999</cEnq><IPITrib><CST>50</CST><vBC>1000.00</vBC><pIPI>6.50</pIPI><vIPI>65.00</vIPI></IPITrib></IPI>
    <PIS><PISAliq><CST>01</CST><vBC>1000.00</vBC><pPIS>1.65</pPIS><vPIS>16.50</vPIS></PISAliq></PIS>
    <COFINS><COFINSAliq><CST>1</CST><vBC>1000.00</vBC><pCOFINS>7.60</pCOFINS><vCOFINS>76.00</vCOFINS></COFINSAliq></COFINS>
  </imposto>
</det>`

func nfe(items string) []byte {
	return []byte(fmt.Sprintf(nfeTemplate, testKey, "0", "1", "SP", items, testKey))
}

func TestParseNFeProc(t *testing.T) {
	doc, err := Parse(nfe(itemICMS00), domain.FlowOutbound)
	require.NoError(t, err)

	assert.Equal(t, testKey, doc.AccessKey)
	assert.Equal(t, "1234", doc.Number)
	assert.Equal(t, "1", doc.Series)
	assert.Equal(t, "SP", doc.IssuerState)
	assert.Equal(t, "SP", doc.DestinationState)
	assert.Equal(t, "12345678000199", doc.IssuerID)
	assert.Equal(t, "98765432000188", doc.RecipientID)
	assert.Equal(t, 2024, doc.IssueDate.Year())
	assert.False(t, doc.FinalConsumer)
	assert.Equal(t, domain.FlowOutbound, doc.Flow)
	assert.Equal(t, domain.StatusUnknown, doc.Status)

	require.Len(t, doc.Items, 1)
	item := doc.Items[0]
	assert.Equal(t, 1, item.Index)
	assert.Equal(t, "22030000", item.NCM)
	assert.Equal(t, "5102", item.CFOP)
	assert.Equal(t, "0", item.Origin)
	assert.Equal(t, 1000.0, item.ProductValue)
	assert.Equal(t, domain.TaxFields{Code: "00", Rate: 18, Base: 1000, Value: 180, Present: true}, item.ICMS)
	assert.Equal(t, domain.TaxFields{Code: "50", Rate: 6.5, Base: 1000, Value: 65, Present: true}, item.IPI)
	assert.Equal(t, "01", item.PIS.Code)
	assert.Equal(t, "01", item.COFINS.Code, "CST com um dígito é completado")
	assert.Equal(t, 76.0, item.COFINS.Value)
	assert.False(t, item.DIFAL.Present)
}

func TestParseNamespacePrefix(t *testing.T) {
	raw := `<nfe:NFe xmlns:nfe="http://www.portalfiscal.inf.br/nfe">
  <nfe:infNFe Id="NFe` + testKey + `">
    <nfe:ide><nfe:nNF>77</nfe:nNF><nfe:dEmi>2010-05-01</nfe:dEmi></nfe:ide>
    <nfe:det nItem="3"><nfe:prod><nfe:NCM>1234</nfe:NCM><nfe:CFOP>6.102</nfe:CFOP></nfe:prod>
      <nfe:imposto><nfe:ICMS><nfe:ICMSSN102><nfe:CSOSN>102</nfe:CSOSN></nfe:ICMSSN102></nfe:ICMS></nfe:imposto>
    </nfe:det>
  </nfe:infNFe>
</nfe:NFe>`

	doc, err := Parse([]byte(raw), domain.FlowInbound)
	require.NoError(t, err)
	assert.Equal(t, testKey, doc.AccessKey, "sem protocolo a chave vem do Id")
	assert.Equal(t, "77", doc.Number)
	assert.Equal(t, 2010, doc.IssueDate.Year())
	require.Len(t, doc.Items, 1)
	assert.Equal(t, 3, doc.Items[0].Index)
	assert.Equal(t, "00001234", doc.Items[0].NCM)
	assert.Equal(t, "6102", doc.Items[0].CFOP)
	assert.Equal(t, "102", doc.Items[0].ICMS.Code)
	assert.True(t, doc.Items[0].ICMS.Present)
	assert.False(t, doc.Items[0].IPI.Present)
	assert.Equal(t, domain.TaxFields{}, doc.Items[0].PIS)
}

func TestParseLatin1(t *testing.T) {
	body := strings.Replace(string(nfe(itemICMS00)), `encoding="UTF-8"`, `encoding="ISO-8859-1"`, 1)
	body = strings.Replace(body, "Cerveja", "Pão de Açúcar", 1)
	raw, err := charmap.ISO8859_1.NewEncoder().String(body)
	require.NoError(t, err)

	doc, err := Parse([]byte(raw), domain.FlowInbound)
	require.NoError(t, err)
	assert.Equal(t, "Pão de Açúcar", doc.Items[0].Description)
}

func TestParseDifalAndFinalConsumer(t *testing.T) {
	item := strings.Replace(itemICMS00, "</imposto>", `<ICMSUFDest><vBCUFDest>1000.00</vBCUFDest><pFCPUFDest>2.00</pFCPUFDest>
<pICMSUFDest>19.00</pICMSUFDest><pICMSInter>7.00</pICMSInter><vFCPUFDest>20.00</vFCPUFDest>
<vICMSUFDest>120.00</vICMSUFDest><vICMSUFRemet>0.00</vICMSUFRemet></ICMSUFDest></imposto>`, 1)
	raw := fmt.Sprintf(nfeTemplate, testKey, "1", "9", "RJ", item, testKey)

	doc, err := Parse([]byte(raw), domain.FlowOutbound)
	require.NoError(t, err)
	assert.True(t, doc.FinalConsumer)
	assert.Equal(t, "RJ", doc.DestinationState)
	assert.Equal(t, domain.DifalFields{
		Base: 1000, DestinationRate: 19, InterstateRate: 7, FCPRate: 2,
		FCPValue: 20, DestinationValue: 120, Present: true,
	}, doc.Items[0].DIFAL)
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		reason string
	}{
		{"vazio", "", "falha ao fazer parse"},
		{"não é XML", "isto não é xml", "falha ao fazer parse"},
		{"evento de cancelamento", `<procEventoNFe><evento/></procEventoNFe>`, "documento não suportado"},
		{"inutilização", `<procInutNFe/>`, "documento não suportado"},
		{"outra raiz", `<CTe/>`, "não é uma NF-e"},
		{"sem infNFe", `<NFe/>`, "bloco de identificação ausente"},
		{"sem nNF", `<NFe><infNFe Id="NFe` + testKey + `"><ide/></infNFe></NFe>`, "número da nota ausente"},
		{"chave curta", `<NFe><infNFe Id="NFe123"><ide><nNF>1</nNF></ide></infNFe></NFe>`, "chave de acesso inválida"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw), domain.FlowInbound)
			require.Error(t, err)
			var pe *domain.ParseError
			require.True(t, errors.As(err, &pe))
			assert.Contains(t, err.Error(), tt.reason)
		})
	}
}

func TestParseMissingTaxBlocks(t *testing.T) {
	item := `<det nItem="1"><prod><NCM>22030000</NCM></prod></det><det nItem="2"/>`
	doc, err := Parse(nfe(item), domain.FlowInbound)
	require.NoError(t, err)
	require.Len(t, doc.Items, 2)
	for _, it := range doc.Items {
		assert.False(t, it.ICMS.Present)
		assert.Zero(t, it.ICMS.Rate)
		assert.False(t, it.DIFAL.Present)
	}
	assert.Equal(t, "", doc.Items[1].NCM)
}

func TestParseNonFiniteAmounts(t *testing.T) {
	item := `<det nItem="1"><prod><NCM>22030000</NCM><vProd>Inf</vProd></prod>
<imposto><ICMS><ICMS00><CST>00</CST><vBC>-Inf</vBC><pICMS>NaN</pICMS><vICMS>+Infinity</vICMS></ICMS00></ICMS></imposto></det>`
	doc, err := Parse(nfe(item), domain.FlowOutbound)
	require.NoError(t, err)
	require.Len(t, doc.Items, 1)

	it := doc.Items[0]
	assert.Zero(t, it.ProductValue)
	assert.Equal(t, domain.TaxFields{Code: "00", Present: true}, it.ICMS, "grupo presente com valores zerados")
}

func TestParseBatch(t *testing.T) {
	docs := []RawDocument{
		{Name: "a.xml", Data: nfe(itemICMS00)},
		{Name: "evento.xml", Data: []byte(`<procEventoNFe/>`)},
		{Name: "b.xml", Data: nfe(itemICMS00)},
	}

	res, err := ParseBatch(context.Background(), docs, domain.FlowInbound, BatchOptions{Workers: 2})
	require.NoError(t, err)
	require.Len(t, res.Documents, 2)
	assert.Equal(t, "a.xml", res.Documents[0].SourceName)
	assert.Equal(t, "b.xml", res.Documents[1].SourceName)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "evento.xml", res.Failures[0].Source)
	assert.Equal(t, domain.FlowInbound, res.Failures[0].Flow)
	assert.Contains(t, res.Failures[0].Reason, "[evento.xml]")
}

func TestParseBatchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ParseBatch(ctx, []RawDocument{{Name: "a.xml", Data: nfe(itemICMS00)}}, domain.FlowInbound, BatchOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}
