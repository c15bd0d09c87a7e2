// Package parser converte o XML de uma NF-e em domain.Document.
package parser

import (
	"strconv"
	"time"

	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/domain"
)

// Raízes que não são notas fiscais e devem ser rejeitadas explicitamente.
var unsupportedRoots = map[string]string{
	"procEventoNFe": "evento da NF-e",
	"evento":        "evento da NF-e",
	"envEvento":     "envio de evento",
	"retEnvEvento":  "retorno de evento",
	"procInutNFe":   "inutilização de numeração",
	"inutNFe":       "inutilização de numeração",
	"retConsSitNFe": "consulta de situação",
}

// Parse lê uma NF-e (com ou sem protocolo de autorização). O status da nota
// fica Desconhecido até a conciliação com a planilha de situação.
func Parse(raw []byte, flow domain.Flow) (*domain.Document, error) {
	root, err := decodeTree(raw)
	if err != nil {
		return nil, domain.NewParseError("xml", "falha ao fazer parse do XML", err)
	}

	var nfe *node
	switch root.name() {
	case "nfeProc":
		nfe = root.child("NFe")
	case "NFe":
		nfe = root
	default:
		if kind, ok := unsupportedRoots[root.name()]; ok {
			return nil, domain.NewParseError(root.name(), "documento não suportado: "+kind, nil)
		}
		return nil, domain.NewParseError(root.name(), "XML inválido ou não é uma NF-e", nil)
	}

	inf := nfe.child("infNFe")
	if inf == nil {
		return nil, domain.NewParseError("infNFe", "bloco de identificação ausente", nil)
	}
	ide := inf.child("ide")
	number := ide.text("", "nNF")
	if number == "" {
		return nil, domain.NewParseError("ide/nNF", "número da nota ausente", nil)
	}

	key := domain.AccessKey(root.text("", "protNFe", "infProt", "chNFe"))
	if key == "" {
		key = domain.AccessKey(inf.attr("Id"))
	}
	if len(key) != domain.AccessKeyWidth {
		return nil, domain.NewParseError("chNFe", "chave de acesso inválida: "+key, nil)
	}

	dest := inf.child("dest")
	doc := &domain.Document{
		AccessKey:        key,
		Number:           number,
		Series:           ide.text("", "serie"),
		IssueDate:        issueDate(ide),
		IssuerState:      inf.text("", "emit", "enderEmit", "UF"),
		DestinationState: dest.text("", "enderDest", "UF"),
		IssuerID:         firstOf(inf.child("emit"), "CNPJ", "CPF"),
		RecipientID:      firstOf(dest, "CNPJ", "CPF", "idEstrangeiro"),
		FinalConsumer:    dest.text("", "CPF") != "" || (ide.text("0", "indFinal") == "1" && dest.text("", "indIEDest") == "9"),
		Flow:             flow,
	}

	for i, det := range inf.children("det") {
		doc.Items = append(doc.Items, parseItem(det, i+1))
	}
	return doc, nil
}

func parseItem(det *node, position int) domain.LineItem {
	index := position
	if n, err := strconv.Atoi(det.attr("nItem")); err == nil && n > 0 {
		index = n
	}
	prod := det.child("prod")
	imposto := det.child("imposto")

	icms := imposto.child("ICMS").group("ICMS")
	item := domain.LineItem{
		Index:        index,
		ProductCode:  prod.text("", "cProd"),
		Description:  prod.text("", "xProd"),
		NCM:          domain.CanonicalNCM(prod.text("", "NCM")),
		CFOP:         domain.Digits(prod.text("", "CFOP")),
		Origin:       icms.text("", "orig"),
		ProductValue: prod.amount("vProd"),
		ICMS:         taxGroup(icms, "ICMS"),
		IPI:          taxGroup(imposto.child("IPI").group("IPI"), "IPI"),
		PIS:          taxGroup(imposto.child("PIS").group("PIS"), "PIS"),
		COFINS:       taxGroup(imposto.child("COFINS").group("COFINS"), "COFINS"),
	}

	if uf := imposto.child("ICMSUFDest"); uf != nil {
		item.DIFAL = domain.DifalFields{
			Base:             uf.amount("vBCUFDest"),
			DestinationRate:  uf.amount("pICMSUFDest"),
			InterstateRate:   uf.amount("pICMSInter"),
			FCPRate:          uf.amount("pFCPUFDest"),
			FCPValue:         uf.amount("vFCPUFDest"),
			DestinationValue: uf.amount("vICMSUFDest"),
			OriginValue:      uf.amount("vICMSUFRemet"),
			Present:          true,
		}
	}
	return item
}

// taxGroup lê CST (ou CSOSN), base, alíquota e valor de um grupo de tributo.
// Os nomes seguem o leiaute: vBC, p<TRIBUTO>, v<TRIBUTO>.
func taxGroup(g *node, tax string) domain.TaxFields {
	if g == nil {
		return domain.TaxFields{}
	}
	code := g.text("", "CST")
	if code == "" {
		code = g.text("", "CSOSN")
	}
	return domain.TaxFields{
		Code:    domain.CanonicalCode(code),
		Rate:    g.amount("p" + tax),
		Base:    g.amount("vBC"),
		Value:   g.amount("v" + tax),
		Present: true,
	}
}

func issueDate(ide *node) time.Time {
	if v := ide.text("", "dhEmi"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t
		}
	}
	if v := ide.text("", "dEmi"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			return t
		}
	}
	return time.Time{}
}

func firstOf(n *node, names ...string) string {
	for _, name := range names {
		if v := n.text("", name); v != "" {
			return v
		}
	}
	return ""
}
