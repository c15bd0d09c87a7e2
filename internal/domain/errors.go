package domain

import (
	"errors"
	"fmt"
)

// ParseError indica que um documento não pôde ser convertido em Document.
type ParseError struct {
	Source string
	Field  string
	Reason string
	Cause  error
}

func (e *ParseError) Error() string {
	msg := e.Reason
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Source != "" {
		msg = "[" + e.Source + "] " + msg
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// NewParseError cria um ParseError.
func NewParseError(field, reason string, cause error) *ParseError {
	return &ParseError{Field: field, Reason: reason, Cause: cause}
}

// TableState descreve se uma categoria pode ser auditada nesta execução.
type TableState string

const (
	TableAvailable          TableState = "disponivel"
	TableUnavailable        TableState = "indisponivel"
	TableInsufficientSchema TableState = "esquema_insuficiente"
)

// RuleUnavailableError indica que a tabela de uma categoria não pôde ser usada.
type RuleUnavailableError struct {
	Category Category
	State    TableState
	Reason   string
	Cause    error
}

func (e *RuleUnavailableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("tabela %s %s: %s (%v)", e.Category, e.State, e.Reason, e.Cause)
	}
	return fmt.Sprintf("tabela %s %s: %s", e.Category, e.State, e.Reason)
}

func (e *RuleUnavailableError) Unwrap() error {
	return e.Cause
}

// IsParseError diz se err carrega um ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
