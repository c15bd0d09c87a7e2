package parser

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/ianaindex"
)

// node é um elemento XML com o namespace descartado. Toda busca é feita pelo
// nome local, então "nfe:det" e "det" com xmlns padrão são equivalentes.
type node struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Text    string     `xml:",chardata"`
	Nodes   []node     `xml:",any"`
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func decodeTree(raw []byte) (*node, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("conteúdo vazio")
	}
	dec := xml.NewDecoder(bytes.NewReader(raw))
	dec.CharsetReader = charsetReader
	var root node
	if err := dec.Decode(&root); err != nil {
		return nil, err
	}
	return &root, nil
}

// charsetReader aceita as codificações declaradas por emissores antigos
// (ISO-8859-1, windows-1252).
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil {
		return nil, fmt.Errorf("codificação %q desconhecida: %w", label, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("codificação %q não suportada", label)
	}
	return enc.NewDecoder().Reader(input), nil
}

func (n *node) name() string {
	if n == nil {
		return ""
	}
	return n.XMLName.Local
}

func (n *node) child(name string) *node {
	if n == nil {
		return nil
	}
	for i := range n.Nodes {
		if n.Nodes[i].XMLName.Local == name {
			return &n.Nodes[i]
		}
	}
	return nil
}

func (n *node) children(name string) []*node {
	if n == nil {
		return nil
	}
	var out []*node
	for i := range n.Nodes {
		if n.Nodes[i].XMLName.Local == name {
			out = append(out, &n.Nodes[i])
		}
	}
	return out
}

// find desce pelo caminho; qualquer elo ausente devolve nil.
func (n *node) find(path ...string) *node {
	cur := n
	for _, p := range path {
		cur = cur.child(p)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// group devolve o primeiro filho cujo nome começa com prefix. Os grupos de
// tributo da NF-e variam pelo sufixo (ICMS00, ICMSSN102, PISAliq, IPITrib).
func (n *node) group(prefix string) *node {
	if n == nil {
		return nil
	}
	for i := range n.Nodes {
		if strings.HasPrefix(n.Nodes[i].XMLName.Local, prefix) {
			return &n.Nodes[i]
		}
	}
	return nil
}

func (n *node) attr(name string) string {
	if n == nil {
		return ""
	}
	for _, a := range n.Attrs {
		if a.Name.Local == name {
			return strings.TrimSpace(a.Value)
		}
	}
	return ""
}

// text é o único ponto de extração de texto: caminho ausente devolve def.
func (n *node) text(def string, path ...string) string {
	t := n.find(path...)
	if t == nil {
		return def
	}
	v := strings.TrimSpace(t.Text)
	if v == "" {
		return def
	}
	return v
}

// amount é o único ponto de extração numérica: ausente, inválido ou não finito
// (NaN, Inf) vale zero. A NF-e usa sempre ponto como separador decimal.
func (n *node) amount(path ...string) float64 {
	v := n.text("", path...)
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
