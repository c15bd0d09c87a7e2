// Package status concilia as notas com a planilha de situação (autorizada,
// cancelada) exportada do portal da SEFAZ ou do ERP.
package status

import (
	"fmt"
	"io"
	"strings"

	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/core/tabular"
	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/domain"
)

// Schema indica as colunas da planilha de situação.
type Schema struct {
	KeyColumn    int
	StatusColumn int
}

// DefaultSchema: chave na primeira coluna, situação na segunda.
var DefaultSchema = Schema{KeyColumn: 0, StatusColumn: 1}

// Table mapeia a chave de acesso (só dígitos) para o texto da situação.
type Table map[string]string

// Classify interpreta o texto da situação sem depender de acentos ou caixa.
// Cancelamento prevalece sobre autorização; termo negado ("não autorizada")
// não conta.
func Classify(text string) domain.DocStatus {
	norm := tabular.NormalizeText(text)
	if norm == "" {
		return domain.StatusUnknown
	}

	var cancelled, authorized, negated bool
	for _, word := range strings.Fields(norm) {
		switch {
		case word == "NAO":
			negated = true
			continue
		case strings.HasPrefix(word, "CANCEL"):
			cancelled = cancelled || !negated
		case strings.HasPrefix(word, "AUTORIZ"):
			authorized = authorized || !negated
		}
		negated = false
	}

	switch {
	case cancelled:
		return domain.StatusCancelled
	case authorized:
		return domain.StatusAuthorized
	default:
		return domain.StatusOther
	}
}

// Resolve grava a situação de cada documento encontrado na tabela e devolve
// quantos foram conciliados. As chaves da tabela são comparadas só pelos
// dígitos, como as das notas. Documentos já resolvidos não mudam.
func Resolve(table Table, docs []*domain.Document) int {
	if len(table) == 0 {
		return 0
	}
	index := make(map[string]string, len(table))
	for k, v := range table {
		if key := domain.AccessKey(k); key != "" {
			index[key] = v
		}
	}

	matched := 0
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		text, ok := index[domain.AccessKey(doc.AccessKey)]
		if !ok {
			continue
		}
		if doc.ResolveStatus(Classify(text), text) {
			matched++
		}
	}
	return matched
}

// LoadTable lê a planilha de situação. Linhas cuja chave não tem 44 dígitos
// (cabeçalhos, rodapés) são ignoradas.
func LoadTable(r io.Reader, filename string, schema Schema) (Table, error) {
	rows, err := tabular.Read(r, filename)
	if err != nil {
		return nil, fmt.Errorf("erro ao ler planilha de situação: %w", err)
	}
	if w := tabular.Width(rows); w <= schema.KeyColumn || w <= schema.StatusColumn {
		return nil, fmt.Errorf("planilha de situação com %d colunas, esperado ao menos %d", w, max(schema.KeyColumn, schema.StatusColumn)+1)
	}

	table := make(Table)
	for _, row := range rows {
		key := domain.AccessKey(tabular.Cell(row, schema.KeyColumn))
		if len(key) != domain.AccessKeyWidth {
			continue
		}
		table[key] = tabular.Cell(row, schema.StatusColumn)
	}
	return table, nil
}
