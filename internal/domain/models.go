// internal/domain/models.go
package domain

import "time"

// Flow indica a direção da nota do ponto de vista de quem audita.
type Flow string

const (
	FlowInbound  Flow = "entrada"
	FlowOutbound Flow = "saida"
)

// Flows lista as direções na ordem usada pelos relatórios.
var Flows = []Flow{FlowInbound, FlowOutbound}

// DocStatus é a situação da nota informada pela planilha de autenticidade.
type DocStatus int

const (
	StatusUnknown DocStatus = iota
	StatusAuthorized
	StatusCancelled
	StatusOther
)

func (s DocStatus) String() string {
	switch s {
	case StatusAuthorized:
		return "Autorizada"
	case StatusCancelled:
		return "Cancelada"
	case StatusOther:
		return "Outra"
	default:
		return "Desconhecida"
	}
}

func (s DocStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Category identifica o tributo auditado.
type Category string

const (
	CategoryICMS   Category = "ICMS"
	CategoryIPI    Category = "IPI"
	CategoryPIS    Category = "PIS"
	CategoryCOFINS Category = "COFINS"
	CategoryDIFAL  Category = "DIFAL"
)

// Categories lista as categorias na ordem usada pelos relatórios.
var Categories = []Category{CategoryICMS, CategoryIPI, CategoryPIS, CategoryCOFINS, CategoryDIFAL}

// Outcome é o resultado da auditoria de um item em uma categoria.
type Outcome string

const (
	OutcomeCorrect           Outcome = "Correto"
	OutcomeDivergent         Outcome = "Divergente"
	OutcomeRuleMissing       Outcome = "RegraAusente"
	OutcomeDocumentCancelled Outcome = "NotaCancelada"
)

// Document é uma NF-e já normalizada.
type Document struct {
	AccessKey        string     `json:"chave_nfe"`
	Number           string     `json:"num_nota"`
	Series           string     `json:"serie"`
	IssueDate        time.Time  `json:"data_emissao"`
	IssuerState      string     `json:"uf_emitente"`
	DestinationState string     `json:"uf_destinatario"`
	IssuerID         string     `json:"cnpj_emitente"`
	RecipientID      string     `json:"doc_destinatario"`
	FinalConsumer    bool       `json:"consumidor_final"`
	Flow             Flow       `json:"fluxo"`
	Status           DocStatus  `json:"status"`
	StatusText       string     `json:"status_texto"`
	SourceName       string     `json:"arquivo"`
	Items            []LineItem `json:"itens"`

	statusResolved bool
}

// ResolveStatus grava a situação da nota. Só a primeira chamada tem efeito.
func (d *Document) ResolveStatus(status DocStatus, text string) bool {
	if d.statusResolved {
		return false
	}
	d.Status = status
	d.StatusText = text
	d.statusResolved = true
	return true
}

// Intrastate diz se a operação ocorre dentro da mesma UF. Sem UF em um dos
// lados, o primeiro dígito do CFOP decide; sem isso, assume operação interna.
func (d *Document) Intrastate(cfop string) bool {
	if d.IssuerState != "" && d.DestinationState != "" {
		return d.IssuerState == d.DestinationState
	}
	if cfop != "" {
		switch cfop[0] {
		case '2', '6':
			return false
		}
	}
	return true
}

// TaxFields são os valores declarados de um tributo em um item.
type TaxFields struct {
	Code    string  `json:"cst"`
	Rate    float64 `json:"aliquota"`
	Base    float64 `json:"base"`
	Value   float64 `json:"valor"`
	Present bool    `json:"presente"`
}

// DifalFields espelha o grupo ICMSUFDest do item.
type DifalFields struct {
	Base             float64 `json:"base_uf_dest"`
	DestinationRate  float64 `json:"aliquota_uf_dest"`
	InterstateRate   float64 `json:"aliquota_interestadual"`
	FCPRate          float64 `json:"aliquota_fcp"`
	FCPValue         float64 `json:"valor_fcp"`
	DestinationValue float64 `json:"valor_uf_dest"`
	OriginValue      float64 `json:"valor_uf_remet"`
	Present          bool    `json:"presente"`
}

// LineItem é um item (det) da nota.
type LineItem struct {
	Index        int         `json:"item"`
	ProductCode  string      `json:"cod_produto"`
	Description  string      `json:"descricao"`
	NCM          string      `json:"ncm"`
	CFOP         string      `json:"cfop"`
	Origin       string      `json:"origem"`
	ProductValue float64     `json:"valor_produto"`
	ICMS         TaxFields   `json:"icms"`
	IPI          TaxFields   `json:"ipi"`
	PIS          TaxFields   `json:"pis"`
	COFINS       TaxFields   `json:"cofins"`
	DIFAL        DifalFields `json:"difal"`
}

// Tax devolve os campos declarados de uma categoria em formato uniforme. Para o
// DIFAL a alíquota é a interestadual aplicada e o valor é o destinado à UF de
// destino.
func (li LineItem) Tax(c Category) TaxFields {
	switch c {
	case CategoryICMS:
		return li.ICMS
	case CategoryIPI:
		return li.IPI
	case CategoryPIS:
		return li.PIS
	case CategoryCOFINS:
		return li.COFINS
	case CategoryDIFAL:
		return TaxFields{
			Rate:    li.DIFAL.InterstateRate,
			Base:    li.DIFAL.Base,
			Value:   li.DIFAL.DestinationValue,
			Present: li.DIFAL.Present,
		}
	}
	return TaxFields{}
}

// RuleEntry é uma linha normalizada de uma tabela de regras.
type RuleEntry struct {
	Key string `json:"chave"`
	Row int    `json:"linha"`

	// ICMS
	IntrastateCode string  `json:"cst_interno,omitempty"`
	IntrastateRate float64 `json:"aliquota_interna,omitempty"`
	InterstateCode string  `json:"cst_interestadual,omitempty"`
	InterstateRate float64 `json:"aliquota_interestadual,omitempty"`

	// IPI
	ExpectedRate float64 `json:"aliquota_ipi,omitempty"`

	// PIS/COFINS
	InboundCode  string `json:"cst_entrada,omitempty"`
	OutboundCode string `json:"cst_saida,omitempty"`

	// DIFAL, chaveado pela UF de destino
	InternalRate float64 `json:"aliquota_uf,omitempty"`
	FCPRate      float64 `json:"fcp,omitempty"`
}

// Verdict é o resultado da auditoria de um item em uma categoria.
type Verdict struct {
	Category         Category `json:"categoria"`
	Outcome          Outcome  `json:"resultado"`
	Diagnosis        []string `json:"diagnostico"`
	Notes            []string `json:"observacoes,omitempty"`
	DeclaredCode     string   `json:"cst_declarado"`
	ExpectedCode     string   `json:"cst_esperado"`
	DeclaredRate     float64  `json:"aliquota_declarada"`
	ExpectedRate     float64  `json:"aliquota_esperada"`
	DeclaredValue    float64  `json:"valor_declarado"`
	ExpectedValue    float64  `json:"valor_esperado"`
	SuggestedAction  string   `json:"acao_sugerida"`
	ComplementAmount float64  `json:"valor_complemento"`
}

// ParseFailure registra uma nota que não pôde ser lida.
type ParseFailure struct {
	Source string `json:"arquivo"`
	Flow   Flow   `json:"fluxo"`
	Reason string `json:"motivo"`
}
