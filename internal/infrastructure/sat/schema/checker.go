// Package schema revisa la estructura de un CFDI contra un conjunto de esquemas conocido
// antes de mapearlo. No sustituye a un validador XSD completo: verifica lo que el
// mapeo no puede reportar (espacios de nombres, ubicaciones de esquema, texto suelto).
package schema

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/beevik/etree"

	"github.com/jhoicas/cfdi-validator/internal/infrastructure/sat/xmlmap"
	"github.com/jhoicas/cfdi-validator/pkg/sat"
)

// Set espacios de nombres admitidos y la ubicación de su XSD. Una ubicación vacía
// admite cualquiera.
type Set map[string][]string

// DefaultSet CFDI 3.3 y 4.0 con timbre 1.0/1.1 e impuestos locales.
func DefaultSet() Set {
	return Set{
		sat.NamespaceCFDI33:   {sat.SchemaCFDI33},
		sat.NamespaceCFDI40:   {sat.SchemaCFDI40},
		sat.NamespaceTFD:      {sat.SchemaTFD10, sat.SchemaTFD11},
		sat.NamespaceImpLocal: {sat.SchemaImpLocal},
	}
}

// Namespaces espacios de nombres del conjunto en orden alfabético.
func (s Set) Namespaces() []string {
	out := make([]string, 0, len(s))
	for ns := range s {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

// Validator colaborador de validación de esquema.
type Validator interface {
	Validate(xml []byte, set Set) (bool, []string)
}

// Checker validador estructural sobre etree.
type Checker struct{}

// NewChecker crea el validador.
func NewChecker() *Checker { return &Checker{} }

// Validate devuelve si el documento es aceptable y la lista completa de problemas.
func (c *Checker) Validate(data []byte, set Set) (bool, []string) {
	doc, err := xmlmap.ParseDocument(data)
	if err != nil {
		return false, []string{err.Error()}
	}
	root := doc.Root()
	var errs []string
	if _, ok := set[root.NamespaceURI()]; !ok {
		return false, []string{fmt.Sprintf("espacio de nombres raíz %q no soportado", root.NamespaceURI())}
	}

	locations := map[string]string{}
	used := map[string]bool{}
	var walk func(el *etree.Element)
	walk = func(el *etree.Element) {
		ns := el.NamespaceURI()
		collectLocations(el, locations, &errs)
		if _, ok := set[ns]; !ok {
			errs = append(errs, fmt.Sprintf("<%s>: espacio de nombres %q fuera del conjunto de esquemas", el.FullTag(), ns))
			return
		}
		used[ns] = true
		for _, tok := range el.Child {
			if cd, ok := tok.(*etree.CharData); ok && strings.TrimSpace(cd.Data) != "" {
				errs = append(errs, fmt.Sprintf("<%s>: contenido de texto no permitido", el.FullTag()))
				break
			}
		}
		for _, child := range el.ChildElements() {
			// La Addenda es libre.
			if child.Tag == "Addenda" && child.NamespaceURI() == root.NamespaceURI() {
				continue
			}
			walk(child)
		}
	}
	walk(root)

	for _, ns := range set.Namespaces() {
		if !used[ns] {
			continue
		}
		loc, ok := locations[ns]
		if !ok {
			errs = append(errs, fmt.Sprintf("xsi:schemaLocation no declara %q", ns))
			continue
		}
		if allowed := set[ns]; len(allowed) > 0 && !slices.Contains(allowed, loc) {
			errs = append(errs, fmt.Sprintf("ubicación de esquema %q no corresponde a %q", loc, ns))
		}
	}
	return len(errs) == 0, errs
}

// collectLocations lee los pares "namespace ubicación" de xsi:schemaLocation.
func collectLocations(el *etree.Element, into map[string]string, errs *[]string) {
	for i := range el.Attr {
		a := &el.Attr[i]
		if a.Key != "schemaLocation" || a.NamespaceURI() != sat.NamespaceXSI {
			continue
		}
		fields := strings.Fields(a.Value)
		if len(fields)%2 != 0 {
			*errs = append(*errs, fmt.Sprintf("<%s>: xsi:schemaLocation con número impar de elementos", el.FullTag()))
		}
		for j := 0; j+1 < len(fields); j += 2 {
			into[fields[j]] = fields[j+1]
		}
	}
}

var _ Validator = (*Checker)(nil)
