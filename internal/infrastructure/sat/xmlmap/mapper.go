// Package xmlmap traduce entre árboles XML (beevik/etree) y nodos cfdi.Node,
// guiado únicamente por los descriptores del registro.
package xmlmap

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/beevik/etree"

	"github.com/jhoicas/cfdi-validator/internal/domain/cfdi"
)

// Mapper motor de mapeo bidireccional. Es seguro para uso concurrente.
type Mapper struct {
	registry *cfdi.Registry
}

// NewMapper crea el motor sobre un registro de descriptores.
func NewMapper(registry *cfdi.Registry) *Mapper {
	return &Mapper{registry: registry}
}

// Registry devuelve el registro de descriptores del motor.
func (m *Mapper) Registry() *cfdi.Registry { return m.registry }

// ── XML → nodo ───────────────────────────────────────────────────────────────

// FromElement construye el nodo del descriptor a partir de un elemento.
// Los atributos se buscan por alias (sensible a mayúsculas, gana el primero en el
// orden declarado); los atributos con prefijo y las declaraciones xmlns no se mapean.
// Los valores se conservan tal cual; los mal formados los reportan los validadores.
func (m *Mapper) FromElement(desc *cfdi.Descriptor, el *etree.Element) (*cfdi.Node, error) {
	b := cfdi.NewBuilder(desc).Lenient()

	for _, spec := range desc.Attributes {
		for _, alias := range spec.Aliases {
			if v, ok := plainAttr(el, alias); ok {
				b.Set(spec.Name, v)
				break
			}
		}
	}

	if desc.Opaque {
		raw, err := innerXML(el)
		if err != nil {
			return nil, &cfdi.SchemaError{Reason: "contenido de " + desc.QualifiedName(), Err: err}
		}
		return b.SetRaw(raw).Build()
	}

	for _, child := range el.ChildElements() {
		if spec, ok := desc.SlotForElement(child.Tag); ok {
			if target, ok := m.registry.Descriptor(spec.Type); ok && target.NamespaceURI == child.NamespaceURI() {
				node, err := m.FromElement(target, child)
				if err != nil {
					return nil, err
				}
				b.Append(spec.Name, node)
				continue
			}
		}
		if desc.Extensible {
			if target, ok := m.registry.Lookup(child.NamespaceURI(), child.Tag, attrLookup(child)); ok {
				node, err := m.FromElement(target, child)
				if err != nil {
					return nil, err
				}
				b.Extend(node)
				continue
			}
		}
		return nil, &cfdi.MappingError{Kind: cfdi.UnknownChildNode, Name: child.Tag, NodeType: desc.Type}
	}
	return b.Build()
}

// FromRoot resuelve el descriptor del elemento raíz por espacio de nombres, nombre
// local y versión, y lo mapea.
func (m *Mapper) FromRoot(el *etree.Element) (*cfdi.Node, error) {
	if el == nil {
		return nil, &cfdi.SchemaError{Reason: "documento sin elemento raíz"}
	}
	desc, ok := m.registry.Lookup(el.NamespaceURI(), el.Tag, attrLookup(el))
	if !ok {
		version, ok := plainAttr(el, "Version")
		if !ok {
			version, _ = plainAttr(el, "version")
		}
		return nil, &cfdi.SchemaError{Reason: fmt.Sprintf("elemento raíz %s:%s versión %q no reconocido", el.NamespaceURI(), el.Tag, version)}
	}
	return m.FromElement(desc, el)
}

func attrLookup(el *etree.Element) func(string) (string, bool) {
	return func(name string) (string, bool) { return plainAttr(el, name) }
}

// plainAttr busca un atributo sin prefijo; SelectAttr también aceptaría "xsi:name".
func plainAttr(el *etree.Element, key string) (string, bool) {
	for _, a := range el.Attr {
		if a.Space == "" && a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// innerXML serializa el contenido de un elemento (hijos y texto) sin la etiqueta
// propia. El texto que solo es sangría se descarta.
func innerXML(el *etree.Element) (string, error) {
	doc := etree.NewDocument()
	copyContent(doc.Element.AddChild, doc.CreateText, el)
	return doc.WriteToString()
}

func copyContent(addChild func(etree.Token), createText func(string) *etree.CharData, from *etree.Element) {
	for _, tok := range from.Child {
		switch t := tok.(type) {
		case *etree.Element:
			c := t.Copy()
			declareInherited(c, t)
			addChild(c)
		case *etree.CharData:
			if strings.TrimSpace(t.Data) != "" {
				createText(t.Data)
			}
		}
	}
}

// declareInherited declara en la copia los prefijos que el subárbol de src usa pero
// que vienen de sus ancestros; sin ellos el contenido copiado no es XML con
// espacios de nombres bien formado.
func declareInherited(dst, src *etree.Element) {
	used := map[string]bool{}
	collectPrefixes(src, used)
	for _, prefix := range slices.Sorted(maps.Keys(used)) {
		key, space := prefix, "xmlns"
		if prefix == "" {
			key, space = "xmlns", ""
		}
		if hasAttr(dst, space, key) {
			continue
		}
		uri, ok := lookupNamespace(src.Parent(), prefix)
		if !ok || (prefix == "" && uri == "") {
			continue
		}
		dst.CreateAttr(qualify(space, key), uri)
	}
}

func collectPrefixes(el *etree.Element, used map[string]bool) {
	if el.Space != "xml" {
		used[el.Space] = true
	}
	for _, a := range el.Attr {
		if a.Space != "" && a.Space != "xmlns" && a.Space != "xml" {
			used[a.Space] = true
		}
	}
	for _, c := range el.ChildElements() {
		collectPrefixes(c, used)
	}
}

// lookupNamespace resuelve prefix ("" = espacio por omisión) desde el elemento
// hacia la raíz.
func lookupNamespace(el *etree.Element, prefix string) (string, bool) {
	for ; el != nil; el = el.Parent() {
		for _, a := range el.Attr {
			if (prefix == "" && a.Space == "" && a.Key == "xmlns") ||
				(prefix != "" && a.Space == "xmlns" && a.Key == prefix) {
				return a.Value, true
			}
		}
	}
	return "", false
}

func hasAttr(el *etree.Element, space, key string) bool {
	for _, a := range el.Attr {
		if a.Space == space && a.Key == key {
			return true
		}
	}
	return false
}

func qualify(space, key string) string {
	if space == "" {
		return key
	}
	return space + ":" + key
}

// ── nodo → XML ───────────────────────────────────────────────────────────────

// ToElement crea el elemento de un nodo: atributos base primero, después cada
// atributo presente bajo su alias primario (en orden declarado) y al final los
// hijos en el orden declarado de las ranuras, seguidos de los complementos.
func (m *Mapper) ToElement(n *cfdi.Node) (*etree.Element, error) {
	return m.toElement(n, map[string]string{})
}

func (m *Mapper) toElement(n *cfdi.Node, scope map[string]string) (*etree.Element, error) {
	desc := n.Descriptor()
	el := etree.NewElement(desc.QualifiedName())

	inner := make(map[string]string, len(scope)+1)
	for k, v := range scope {
		inner[k] = v
	}
	for _, base := range desc.BaseAttributes {
		el.CreateAttr(base.Name, base.Value)
		if prefix, ok := strings.CutPrefix(base.Name, "xmlns:"); ok {
			inner[prefix] = base.Value
		}
	}
	if desc.NamespacePrefix != "" && inner[desc.NamespacePrefix] != desc.NamespaceURI {
		el.CreateAttr("xmlns:"+desc.NamespacePrefix, desc.NamespaceURI)
		inner[desc.NamespacePrefix] = desc.NamespaceURI
	}

	for _, spec := range desc.Attributes {
		if v, ok := n.Attr(spec.Name); ok {
			el.CreateAttr(spec.Primary(), v)
		}
	}

	if desc.Opaque {
		if err := appendRaw(el, n.Raw()); err != nil {
			return nil, err
		}
		return el, nil
	}

	for _, spec := range desc.Children {
		for _, child := range n.Children(spec.Name) {
			c, err := m.toElement(child, inner)
			if err != nil {
				return nil, err
			}
			el.AddChild(c)
		}
	}
	for _, ext := range n.Extensions() {
		c, err := m.toElement(ext, inner)
		if err != nil {
			return nil, err
		}
		el.AddChild(c)
	}
	return el, nil
}

func appendRaw(el *etree.Element, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	wrapper := etree.NewDocument()
	if err := wrapper.ReadFromString("<raw>" + raw + "</raw>"); err != nil {
		return fmt.Errorf("xmlmap: contenido opaco inválido: %w", err)
	}
	root := wrapper.Root()
	if root == nil {
		return errors.New("xmlmap: contenido opaco sin raíz")
	}
	copyContent(el.AddChild, el.CreateText, root)
	return nil
}
