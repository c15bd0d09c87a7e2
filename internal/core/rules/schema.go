package rules

import (
	"fmt"
	"io"
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/domain"
)

// TableKind identifica uma tabela de regras. PIS e COFINS compartilham a mesma
// tabela de CSTs.
type TableKind string

const (
	TableICMS      TableKind = "icms"
	TableIPI       TableKind = "ipi"
	TablePISCOFINS TableKind = "pis_cofins"
	TableDIFAL     TableKind = "difal"
)

// TableKinds lista as tabelas na ordem de carga.
var TableKinds = []TableKind{TableICMS, TableIPI, TablePISCOFINS, TableDIFAL}

// Categories devolve as categorias auditadas com esta tabela.
func (k TableKind) Categories() []domain.Category {
	switch k {
	case TableICMS:
		return []domain.Category{domain.CategoryICMS}
	case TableIPI:
		return []domain.Category{domain.CategoryIPI}
	case TablePISCOFINS:
		return []domain.Category{domain.CategoryPIS, domain.CategoryCOFINS}
	case TableDIFAL:
		return []domain.Category{domain.CategoryDIFAL}
	}
	return nil
}

// Campos reconhecidos nos esquemas.
const (
	FieldNCM            = "ncm"
	FieldUF             = "uf"
	FieldIntrastateCode = "cst_interno"
	FieldIntrastateRate = "aliquota_interna"
	FieldInterstateCode = "cst_interestadual"
	FieldInterstateRate = "aliquota_interestadual"
	FieldIPIRate        = "aliquota"
	FieldEX             = "ex"
	FieldInboundCode    = "cst_entrada"
	FieldOutboundCode   = "cst_saida"
	FieldInternalRate   = "aliquota_interna"
	FieldFCP            = "fcp"
)

// Column liga um campo a uma posição fixa da planilha (base zero).
type Column struct {
	Field    string
	Index    int
	Optional bool
}

// Schema é a lista ordenada de colunas de uma tabela.
type Schema struct {
	Kind    TableKind
	Columns []Column
}

// DefaultSchemas são os leiautes das planilhas de regras.
func DefaultSchemas() map[TableKind]Schema {
	return map[TableKind]Schema{
		TableICMS: {Kind: TableICMS, Columns: []Column{
			{Field: FieldNCM, Index: 0},
			{Field: FieldIntrastateCode, Index: 1},
			{Field: FieldIntrastateRate, Index: 2},
			{Field: FieldInterstateCode, Index: 3},
			{Field: FieldInterstateRate, Index: 4},
		}},
		// TIPI: NCM | EX | DESCRIÇÃO | ALÍQUOTA
		TableIPI: {Kind: TableIPI, Columns: []Column{
			{Field: FieldNCM, Index: 0},
			{Field: FieldEX, Index: 1, Optional: true},
			{Field: FieldIPIRate, Index: 3},
		}},
		TablePISCOFINS: {Kind: TablePISCOFINS, Columns: []Column{
			{Field: FieldNCM, Index: 0},
			{Field: FieldInboundCode, Index: 1},
			{Field: FieldOutboundCode, Index: 2},
		}},
		TableDIFAL: {Kind: TableDIFAL, Columns: []Column{
			{Field: FieldUF, Index: 0},
			{Field: FieldInternalRate, Index: 1},
			{Field: FieldFCP, Index: 2, Optional: true},
		}},
	}
}

// Index devolve a coluna do campo, ou -1.
func (s Schema) Index(field string) int {
	for _, c := range s.Columns {
		if c.Field == field {
			return c.Index
		}
	}
	return -1
}

// RequiredWidth é a quantidade mínima de colunas que a planilha precisa ter.
func (s Schema) RequiredWidth() int {
	w := 0
	for _, c := range s.Columns {
		if !c.Optional && c.Index+1 > w {
			w = c.Index + 1
		}
	}
	return w
}

func (s Schema) has(field string) bool {
	return s.Index(field) >= 0
}

// own informa se o campo tem coluna só dele. Um esquema customizado pode mover
// outro campo para a posição de um opcional, e aí o opcional deixa de valer.
func (s Schema) own(field string) bool {
	idx := s.Index(field)
	if idx < 0 {
		return false
	}
	for _, c := range s.Columns {
		if c.Field != field && c.Index == idx {
			return false
		}
	}
	return true
}

// LoadSchemas lê um TOML com sobreposições de colunas, por exemplo:
//
//	[icms]
//	ncm = 0
//	aliquota_interna = 5
//
// Campos não citados mantêm a posição padrão.
func LoadSchemas(r io.Reader) (map[TableKind]Schema, error) {
	var raw map[string]map[string]int
	if _, err := toml.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("erro ao ler esquema TOML: %w", err)
	}

	schemas := DefaultSchemas()
	kinds := make([]string, 0, len(raw))
	for k := range raw {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	for _, k := range kinds {
		kind := TableKind(k)
		schema, ok := schemas[kind]
		if !ok {
			return nil, fmt.Errorf("tabela desconhecida no esquema: %s", k)
		}
		for field, idx := range raw[k] {
			if idx < 0 {
				return nil, fmt.Errorf("coluna negativa para %s.%s", k, field)
			}
			found := false
			for i := range schema.Columns {
				if schema.Columns[i].Field == field {
					schema.Columns[i].Index = idx
					found = true
				}
			}
			if !found {
				return nil, fmt.Errorf("campo desconhecido para a tabela %s: %s", k, field)
			}
		}
		schemas[kind] = schema
	}
	return schemas, nil
}
