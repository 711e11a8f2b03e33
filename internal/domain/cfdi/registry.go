package cfdi

import (
	"fmt"
	"sort"
	"sync"
)

// Issue hallazgo de una regla de negocio sobre un nodo.
type Issue struct {
	Code     string
	NodeType string
	Message  string
	Warning  bool // true = advertencia, no invalida el documento
}

// Validator regla de negocio asociada a un tipo de nodo.
type Validator func(n *Node) []Issue

type qname struct {
	namespace string
	local     string
}

// Registry catálogo de descriptores. Además de resolver tipos por etiqueta, indexa
// los descriptores direccionables (raíces de documento y complementos) por espacio
// de nombres y nombre local, que es como los encuentra el motor de mapeo.
type Registry struct {
	mu          sync.RWMutex
	types       map[string]*Descriptor
	addressable map[qname][]*Descriptor
	validators  map[string][]Validator
}

// NewRegistry crea un registro vacío.
func NewRegistry() *Registry {
	return &Registry{
		types:       make(map[string]*Descriptor),
		addressable: make(map[qname][]*Descriptor),
		validators:  make(map[string][]Validator),
	}
}

// RegisterDocument registra un descriptor raíz junto con todos los tipos que cuelgan de él.
func (r *Registry) RegisterDocument(root *Descriptor, nested ...*Descriptor) error {
	return r.register(root, nested)
}

// RegisterComplement registra un complemento (ej. implocal, timbre fiscal). El
// descriptor raíz del complemento queda disponible para los nodos extensibles.
func (r *Registry) RegisterComplement(root *Descriptor, nested ...*Descriptor) error {
	return r.register(root, nested)
}

func (r *Registry) register(root *Descriptor, nested []*Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := append([]*Descriptor{root}, nested...)
	for _, d := range all {
		if err := d.Validate(); err != nil {
			return err
		}
		if _, dup := r.types[d.Type]; dup {
			return fmt.Errorf("cfdi: tipo %q ya registrado", d.Type)
		}
	}
	for _, d := range all {
		r.types[d.Type] = d
	}
	key := qname{namespace: root.NamespaceURI, local: root.ElementName}
	r.addressable[key] = append(r.addressable[key], root)
	return nil
}

// Check verifica que toda ranura apunte a un tipo registrado con el mismo nombre de elemento.
func (r *Registry) Check() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.types))
	for t := range r.types {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		for _, c := range r.types[t].Children {
			target, ok := r.types[c.Type]
			if !ok {
				return fmt.Errorf("cfdi: %s.%s apunta a tipo no registrado %q", t, c.Name, c.Type)
			}
			if target.ElementName != c.Element {
				return fmt.Errorf("cfdi: %s.%s espera elemento %q pero %s es %q", t, c.Name, c.Element, c.Type, target.ElementName)
			}
		}
	}
	return nil
}

// Descriptor devuelve el descriptor de una etiqueta de tipo.
func (r *Registry) Descriptor(typ string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.types[typ]
	return d, ok
}

// Lookup resuelve un elemento direccionable por espacio de nombres y nombre local.
// Si hay varias versiones, attr se usa para leer el atributo de versión del elemento.
func (r *Registry) Lookup(namespace, local string, attr func(name string) (string, bool)) (*Descriptor, bool) {
	r.mu.RLock()
	candidates := r.addressable[qname{namespace: namespace, local: local}]
	r.mu.RUnlock()

	if len(candidates) == 1 && candidates[0].Version == "" {
		return candidates[0], true
	}
	for _, d := range candidates {
		if versionMatches(d, attr) {
			return d, true
		}
	}
	return nil, false
}

func versionMatches(d *Descriptor, attr func(string) (string, bool)) bool {
	if d.Version == "" {
		return true
	}
	for _, spec := range d.Attributes {
		if spec.Name != "Version" && spec.Name != "version" {
			continue
		}
		for _, alias := range spec.Aliases {
			if v, ok := attr(alias); ok {
				return v == d.Version
			}
		}
	}
	return false
}

// RegisterValidator asocia una regla de negocio a un tipo de nodo.
func (r *Registry) RegisterValidator(typ string, v Validator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validators[typ] = append(r.validators[typ], v)
}

// Validate aplica las reglas de negocio registradas a todo el árbol.
func (r *Registry) Validate(root *Node) []Issue {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var issues []Issue
	root.Walk(func(n *Node) {
		for _, v := range r.validators[n.desc.Type] {
			issues = append(issues, v(n)...)
		}
	})
	return issues
}

// Types devuelve las etiquetas registradas en orden alfabético.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.types))
	for t := range r.types {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
