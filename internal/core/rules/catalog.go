package rules

import (
	"go.uber.org/multierr"

	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/domain"
)

// Catalog reúne as tabelas de uma execução. É montado uma vez e depois só
// lido, então pode ser compartilhado entre goroutines.
type Catalog struct {
	tables map[domain.Category]*RuleTable
	order  []*RuleTable
}

// NewCatalog indexa as tabelas por categoria. Uma categoria sem tabela fica
// indisponível.
func NewCatalog(tables ...*RuleTable) *Catalog {
	c := &Catalog{tables: make(map[domain.Category]*RuleTable)}
	for _, t := range tables {
		if t == nil {
			continue
		}
		c.order = append(c.order, t)
		for _, cat := range t.Kind.Categories() {
			c.tables[cat] = t
		}
	}
	return c
}

// Table devolve a tabela usada pela categoria, ou nil.
func (c *Catalog) Table(cat domain.Category) *RuleTable {
	if c == nil {
		return nil
	}
	return c.tables[cat]
}

// Tables devolve as tabelas na ordem em que foram registradas.
func (c *Catalog) Tables() []*RuleTable {
	if c == nil {
		return nil
	}
	return c.order
}

// Available diz se a categoria pode ser auditada.
func (c *Catalog) Available(cat domain.Category) bool {
	t := c.Table(cat)
	return t != nil && t.State == domain.TableAvailable
}

// AnyAvailable diz se ao menos uma categoria pode ser auditada.
func (c *Catalog) AnyAvailable() bool {
	for _, cat := range domain.Categories {
		if c.Available(cat) {
			return true
		}
	}
	return false
}

// Lookup busca a regra de uma chave já canônica.
func (c *Catalog) Lookup(cat domain.Category, key string) (domain.RuleEntry, bool) {
	if !c.Available(cat) {
		return domain.RuleEntry{}, false
	}
	e, ok := c.tables[cat].Entries[key]
	return e, ok
}

// ClosestKey sugere a chave cadastrada mais próxima de key, para orientar o
// cadastro de um NCM ausente.
func (c *Catalog) ClosestKey(cat domain.Category, key string) string {
	if !c.Available(cat) || key == "" {
		return ""
	}
	return c.tables[cat].closest(key)
}

// Unavailable lista um erro por categoria que não pode ser auditada.
func (c *Catalog) Unavailable() []*domain.RuleUnavailableError {
	var out []*domain.RuleUnavailableError
	for _, cat := range domain.Categories {
		t := c.Table(cat)
		switch {
		case t == nil:
			out = append(out, &domain.RuleUnavailableError{Category: cat, State: domain.TableUnavailable, Reason: "tabela não enviada"})
		case t.State != domain.TableAvailable:
			out = append(out, &domain.RuleUnavailableError{Category: cat, State: t.State, Reason: t.Reason})
		}
	}
	return out
}

// Err combina os problemas de carga em um único erro, ou nil.
func (c *Catalog) Err() error {
	var err error
	for _, e := range c.Unavailable() {
		err = multierr.Append(err, e)
	}
	return err
}
