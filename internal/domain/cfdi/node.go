package cfdi

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/cfdi-validator/pkg/sat"
)

// Node instancia de un Descriptor. Es inmutable: se obtiene únicamente de Builder.Build.
// Cada nodo pertenece a un solo padre (árbol sin ciclos ni nodos compartidos).
type Node struct {
	desc       *Descriptor
	attrs      map[string]string
	children   map[string][]*Node
	extensions []*Node
	raw        string
	owned      bool
}

// Descriptor devuelve el descriptor que gobierna el nodo.
func (n *Node) Descriptor() *Descriptor { return n.desc }

// Type devuelve la etiqueta de tipo del nodo.
func (n *Node) Type() string { return n.desc.Type }

// Attr devuelve el valor textual de un atributo por nombre canónico.
func (n *Node) Attr(name string) (string, bool) {
	v, ok := n.attrs[name]
	return v, ok
}

// Value devuelve el valor del atributo o "" si está ausente.
func (n *Node) Value(name string) string {
	return n.attrs[name]
}

// Decimal interpreta el atributo como decimal.
func (n *Node) Decimal(name string) (decimal.Decimal, error) {
	v, ok := n.attrs[name]
	if !ok {
		return decimal.Zero, fmt.Errorf("cfdi: %s: atributo %q ausente", n.desc.Type, name)
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("cfdi: %s: %q no es decimal: %w", n.desc.Type, name, err)
	}
	return d, nil
}

// DateTime interpreta el atributo como fecha en la zona fija del SAT.
func (n *Node) DateTime(name string) (time.Time, error) {
	v, ok := n.attrs[name]
	if !ok {
		return time.Time{}, fmt.Errorf("cfdi: %s: atributo %q ausente", n.desc.Type, name)
	}
	return sat.ParseDateTime(v)
}

// Child devuelve el hijo de una ranura One (nil si está vacía).
func (n *Node) Child(slot string) *Node {
	c := n.children[slot]
	if len(c) == 0 {
		return nil
	}
	return c[len(c)-1]
}

// Children devuelve una copia de los hijos de una ranura, en orden de documento.
func (n *Node) Children(slot string) []*Node {
	return append([]*Node(nil), n.children[slot]...)
}

// Extensions devuelve los complementos anidados en un nodo extensible, en orden de documento.
func (n *Node) Extensions() []*Node {
	return append([]*Node(nil), n.extensions...)
}

// Raw devuelve el XML interno conservado de un nodo opaco.
func (n *Node) Raw() string { return n.raw }

// Find recorre una ruta de ranuras y devuelve todos los nodos alcanzados.
//
//	root.Find("Conceptos", "Concepto")
func (n *Node) Find(path ...string) []*Node {
	current := []*Node{n}
	for _, slot := range path {
		var next []*Node
		for _, c := range current {
			next = append(next, c.children[slot]...)
		}
		current = next
	}
	return current
}

// FindExtension busca el primer complemento del tipo indicado bajo la ranura dada.
func (n *Node) FindExtension(slot, typ string) *Node {
	for _, holder := range n.children[slot] {
		for _, ext := range holder.extensions {
			if ext.desc.Type == typ {
				return ext
			}
		}
	}
	return nil
}

// Walk recorre el árbol en preorden: ranuras en orden declarado y después extensiones.
func (n *Node) Walk(fn func(*Node)) {
	fn(n)
	for _, spec := range n.desc.Children {
		for _, c := range n.children[spec.Name] {
			c.Walk(fn)
		}
	}
	for _, ext := range n.extensions {
		ext.Walk(fn)
	}
}

// Equal compara tipo, atributos e hijos (en orden) de dos árboles.
func (n *Node) Equal(o *Node) bool {
	if n == nil || o == nil {
		return n == o
	}
	if n.desc.Type != o.desc.Type || n.raw != o.raw || len(n.attrs) != len(o.attrs) {
		return false
	}
	for k, v := range n.attrs {
		if ov, ok := o.attrs[k]; !ok || ov != v {
			return false
		}
	}
	for _, spec := range n.desc.Children {
		a, b := n.children[spec.Name], o.children[spec.Name]
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if !a[i].Equal(b[i]) {
				return false
			}
		}
	}
	if len(n.extensions) != len(o.extensions) {
		return false
	}
	for i := range n.extensions {
		if !n.extensions[i].Equal(o.extensions[i]) {
			return false
		}
	}
	return true
}

// ── Builder ───────────────────────────────────────────────────────────────────

// Builder construye un Node. Acumula errores y los devuelve en Build; una vez
// construido el nodo el builder ya no puede reutilizarse.
type Builder struct {
	node    *Node
	errs    []error
	lenient bool
}

var errBuilderUsed = errors.New("cfdi: el builder ya construyó su nodo")

// NewBuilder crea un builder para el descriptor indicado.
func NewBuilder(desc *Descriptor) *Builder {
	return &Builder{node: &Node{
		desc:     desc,
		attrs:    make(map[string]string, len(desc.Attributes)),
		children: make(map[string][]*Node, len(desc.Children)),
	}}
}

// Lenient desactiva la revisión de forma canónica en Build. La usa el mapeo de
// documentos recibidos: ahí un valor mal formado es un diagnóstico de los
// validadores y no impide construir el árbol.
func (b *Builder) Lenient() *Builder {
	b.lenient = true
	return b
}

// Set asigna el valor textual canónico de un atributo. Build rechaza con
// InvalidValue los decimales, fechas y enteros que no estén en forma canónica.
func (b *Builder) Set(name, value string) *Builder {
	if b.node == nil {
		b.errs = append(b.errs, errBuilderUsed)
		return b
	}
	if _, ok := b.node.desc.Attribute(name); !ok {
		b.errs = append(b.errs, &MappingError{Kind: UnknownAttribute, Name: name, NodeType: b.node.desc.Type})
		return b
	}
	b.node.attrs[name] = value
	return b
}

// SetDecimal asigna un decimal conservando su escala.
func (b *Builder) SetDecimal(name string, d decimal.Decimal) *Builder {
	return b.Set(name, d.String())
}

// SetDecimalFixed asigna un decimal con el número de decimales indicado (ej. importes a 2).
func (b *Builder) SetDecimalFixed(name string, d decimal.Decimal, places int32) *Builder {
	return b.Set(name, d.StringFixed(places))
}

// SetDateTime asigna una fecha en la zona fija del SAT.
func (b *Builder) SetDateTime(name string, t time.Time) *Builder {
	return b.Set(name, sat.FormatDateTime(t))
}

// Append agrega un hijo a una ranura. En ranuras One reemplaza al anterior.
func (b *Builder) Append(slot string, child *Node) *Builder {
	if b.node == nil {
		b.errs = append(b.errs, errBuilderUsed)
		return b
	}
	spec, ok := b.node.desc.Slot(slot)
	if !ok {
		b.errs = append(b.errs, &MappingError{Kind: UnknownChildNode, Name: slot, NodeType: b.node.desc.Type})
		return b
	}
	if child != nil && child.desc.Type != spec.Type {
		b.errs = append(b.errs, &MappingError{Kind: InvalidChild, Name: child.desc.Type, NodeType: b.node.desc.Type})
		return b
	}
	if err := b.adopt(child); err != nil {
		b.errs = append(b.errs, err)
		return b
	}
	if spec.Cardinality == One {
		b.node.children[slot] = []*Node{child}
	} else {
		b.node.children[slot] = append(b.node.children[slot], child)
	}
	return b
}

// Extend agrega un complemento a un nodo extensible.
func (b *Builder) Extend(child *Node) *Builder {
	if b.node == nil {
		b.errs = append(b.errs, errBuilderUsed)
		return b
	}
	if !b.node.desc.Extensible {
		b.errs = append(b.errs, &MappingError{Kind: UnknownChildNode, Name: "extension", NodeType: b.node.desc.Type})
		return b
	}
	if err := b.adopt(child); err != nil {
		b.errs = append(b.errs, err)
		return b
	}
	b.node.extensions = append(b.node.extensions, child)
	return b
}

// SetRaw conserva XML sin mapear en un nodo opaco.
func (b *Builder) SetRaw(xml string) *Builder {
	if b.node == nil {
		b.errs = append(b.errs, errBuilderUsed)
		return b
	}
	if !b.node.desc.Opaque {
		b.errs = append(b.errs, fmt.Errorf("cfdi: %s no admite contenido opaco", b.node.desc.Type))
		return b
	}
	b.node.raw = xml
	return b
}

func (b *Builder) adopt(child *Node) error {
	if child == nil {
		return fmt.Errorf("cfdi: %s: hijo nil", b.node.desc.Type)
	}
	if child.owned {
		return &MappingError{Kind: InvalidChild, Name: child.desc.Type, NodeType: b.node.desc.Type}
	}
	child.owned = true
	return nil
}

// Build valida los atributos obligatorios y la forma canónica de sus valores y
// entrega el nodo inmutable.
func (b *Builder) Build() (*Node, error) {
	if b.node == nil {
		return nil, errBuilderUsed
	}
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}
	for _, spec := range b.node.desc.Attributes {
		if !spec.Required {
			continue
		}
		if _, ok := b.node.attrs[spec.Name]; !ok {
			return nil, &MappingError{Kind: MissingRequiredAttribute, Name: spec.Primary(), NodeType: b.node.desc.Type}
		}
	}
	if !b.lenient {
		for _, spec := range b.node.desc.Attributes {
			if v, ok := b.node.attrs[spec.Name]; ok && !canonical(spec.Kind, v) {
				return nil, &MappingError{Kind: InvalidValue, Name: spec.Primary(), NodeType: b.node.desc.Type, Value: v}
			}
		}
	}
	n := b.node
	b.node = nil
	return n, nil
}

var (
	decimalPattern = regexp.MustCompile(`^-?[0-9]+(\.[0-9]+)?$`)
	integerPattern = regexp.MustCompile(`^-?[0-9]+$`)
)

// canonical indica si v tiene la forma textual del tipo: decimales sin signo "+",
// exponente ni espacios; fechas AAAA-MM-DDThh:mm:ss sin fracción de segundo.
func canonical(kind Kind, v string) bool {
	switch kind {
	case KindDecimal:
		return decimalPattern.MatchString(v)
	case KindInteger:
		return integerPattern.MatchString(v)
	case KindDateTime:
		if len(v) != len(sat.DateTimeLayout) {
			return false
		}
		_, err := sat.ParseDateTime(v)
		return err == nil
	default:
		return true
	}
}
