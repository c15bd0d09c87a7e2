package domain

import "strings"

const (
	// NCMWidth é a largura canônica do código NCM.
	NCMWidth = 8
	// CodeWidth é a largura mínima de um CST.
	CodeWidth = 2
	// AccessKeyWidth é a largura da chave de acesso da NF-e.
	AccessKeyWidth = 44
)

// Digits mantém apenas os dígitos de s.
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// PadDigits limpa s para dígitos e completa com zeros à esquerda até width.
// Valores sem dígitos continuam vazios.
func PadDigits(s string, width int) string {
	d := Digits(s)
	if d == "" || len(d) >= width {
		return d
	}
	return strings.Repeat("0", width-len(d)) + d
}

// CanonicalNCM devolve o NCM só com dígitos e com 8 posições.
func CanonicalNCM(s string) string {
	return PadDigits(s, NCMWidth)
}

// CanonicalCode devolve o CST com pelo menos duas posições. CSOSN (3 dígitos)
// fica como está.
func CanonicalCode(s string) string {
	return PadDigits(s, CodeWidth)
}

// AccessKey limpa a chave de acesso para comparação.
func AccessKey(s string) string {
	return Digits(s)
}
