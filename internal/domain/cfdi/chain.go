package cfdi

import (
	"crypto"
	_ "crypto/sha1" // TFD 1.0
	_ "crypto/sha256"
	"fmt"
	"strings"
	"sync"

	"github.com/jhoicas/cfdi-validator/pkg/sat"
)

type stepKind int

const (
	stepRequired stepKind = iota
	stepOptional
	stepEach
	stepExtensions
)

// Step paso de una regla de cadena original.
type Step struct {
	kind   stepKind
	field  string
	path   []string
	except map[string]bool
}

// Required emite "|valor"; falla si el atributo está ausente.
func Required(field string) Step { return Step{kind: stepRequired, field: field} }

// Optional emite "|valor" solo si el atributo existe.
func Optional(field string) Step { return Step{kind: stepOptional, field: field} }

// Each aplica la regla de cada nodo alcanzado por la ruta de ranuras, en orden de documento.
func Each(path ...string) Step { return Step{kind: stepEach, path: path} }

// Extensions aplica la regla de cada complemento anidado, salvo los tipos indicados
// (que no aportan nada a la cadena).
func Extensions(except ...string) Step {
	skip := make(map[string]bool, len(except))
	for _, t := range except {
		skip[t] = true
	}
	return Step{kind: stepExtensions, except: skip}
}

// Rule transformación verificada de un tipo de nodo a su cadena original.
type Rule struct {
	Type  string
	Hash  crypto.Hash // algoritmo del sello cuando el nodo es raíz firmada
	Steps []Step
}

// ChainGenerator deriva la cadena original a partir de reglas registradas por tipo.
// Un nodo sin regla registrada es un error: nunca se adivina el orden de los campos.
type ChainGenerator struct {
	mu    sync.RWMutex
	rules map[string]Rule
}

// NewChainGenerator crea un generador sin reglas.
func NewChainGenerator() *ChainGenerator {
	return &ChainGenerator{rules: make(map[string]Rule)}
}

// Register agrega o reemplaza la regla de un tipo.
func (g *ChainGenerator) Register(rules ...Rule) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, r := range rules {
		g.rules[r.Type] = r
	}
}

// Supports indica si existe una regla para el tipo.
func (g *ChainGenerator) Supports(typ string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.rules[typ]
	return ok
}

// ChainOf devuelve la cadena original del nodo: "||campo1|campo2|...||".
func (g *ChainGenerator) ChainOf(n *Node) (string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var sb strings.Builder
	sb.WriteString("|")
	if err := g.write(&sb, n); err != nil {
		return "", err
	}
	sb.WriteString("||")
	return sb.String(), nil
}

// Digest calcula la cadena original y su hash con el algoritmo de la regla del nodo.
func (g *ChainGenerator) Digest(n *Node) (chain string, digest []byte, hash crypto.Hash, err error) {
	chain, err = g.ChainOf(n)
	if err != nil {
		return "", nil, 0, err
	}
	g.mu.RLock()
	hash = g.rules[n.desc.Type].Hash
	g.mu.RUnlock()
	if hash == 0 || !hash.Available() {
		return "", nil, 0, fmt.Errorf("cfdi: %s no define algoritmo de digestión", n.desc.Type)
	}
	h := hash.New()
	h.Write([]byte(chain))
	return chain, h.Sum(nil), hash, nil
}

func (g *ChainGenerator) write(sb *strings.Builder, n *Node) error {
	rule, ok := g.rules[n.desc.Type]
	if !ok {
		return &ChainError{Kind: UnsupportedNode, NodeType: n.desc.Type}
	}
	for _, step := range rule.Steps {
		switch step.kind {
		case stepRequired, stepOptional:
			v, present := n.attrs[step.field]
			if !present {
				if step.kind == stepRequired {
					return &ChainError{Kind: IncompleteChain, NodeType: n.desc.Type, Field: step.field}
				}
				continue
			}
			value, err := canonicalValue(n.desc, step.field, v)
			if err != nil {
				return &ChainError{Kind: MalformedField, NodeType: n.desc.Type, Field: step.field, Err: err}
			}
			sb.WriteString("|")
			sb.WriteString(value)
		case stepEach:
			for _, child := range n.Find(step.path...) {
				if err := g.write(sb, child); err != nil {
					return err
				}
			}
		case stepExtensions:
			for _, ext := range n.extensions {
				if step.except[ext.desc.Type] {
					continue
				}
				if err := g.write(sb, ext); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// canonicalValue normaliza espacios y, en fechas, exige el formato AAAA-MM-DDThh:mm:ss.
func canonicalValue(d *Descriptor, field, v string) (string, error) {
	value := NormalizeSpace(v)
	if spec, ok := d.Attribute(field); ok && spec.Kind == KindDateTime {
		t, err := sat.ParseDateTime(value)
		if err != nil {
			return "", err
		}
		return sat.FormatDateTime(t), nil
	}
	return value, nil
}

// NormalizeSpace colapsa secuencias de espacios en uno solo y recorta extremos
// (equivalente a normalize-space de XPath: solo espacio, tab, CR y LF).
func NormalizeSpace(s string) string {
	return strings.Join(strings.FieldsFunc(s, isXMLSpace), " ")
}

func isXMLSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\r' || r == '\n'
}
