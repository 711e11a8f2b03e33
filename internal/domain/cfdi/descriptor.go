// Package cfdi modela el Comprobante Fiscal Digital por Internet como un árbol de
// nodos genéricos, cada uno gobernado por un Descriptor declarativo (elemento,
// espacio de nombres, atributos con alias y ranuras de hijos).
//
// El motor de mapeo XML, el generador de cadena original y los validadores de
// negocio consumen los descriptores como datos; no existe un tipo Go por nodo.
package cfdi

import (
	"fmt"
)

// Cardinality cantidad de hijos admitida por una ranura.
type Cardinality int

const (
	// One: a lo sumo un hijo; una segunda aparición reemplaza a la primera.
	One Cardinality = iota
	// Many: lista ordenada en orden de documento.
	Many
)

func (c Cardinality) String() string {
	if c == Many {
		return "many"
	}
	return "one"
}

// Kind tipo de valor de un atributo. El valor siempre se guarda en su forma textual canónica.
type Kind int

const (
	KindString Kind = iota
	KindDecimal
	KindDateTime
	KindInteger
)

// AttributeSpec declara un atributo: nombre canónico, alias aceptados (el primero es
// el que se escribe al serializar) y obligatoriedad.
type AttributeSpec struct {
	Name     string
	Aliases  []string
	Required bool
	Kind     Kind
}

// Primary alias con el que se serializa el atributo.
func (a AttributeSpec) Primary() string {
	if len(a.Aliases) == 0 {
		return a.Name
	}
	return a.Aliases[0]
}

// Decimal devuelve una copia del atributo con tipo decimal.
func (a AttributeSpec) Decimal() AttributeSpec { a.Kind = KindDecimal; return a }

// DateTime devuelve una copia del atributo con tipo fecha (AAAA-MM-DDThh:mm:ss).
func (a AttributeSpec) DateTime() AttributeSpec { a.Kind = KindDateTime; return a }

// Integer devuelve una copia del atributo con tipo entero.
func (a AttributeSpec) Integer() AttributeSpec { a.Kind = KindInteger; return a }

// Req atributo obligatorio. primary es el nombre del atributo en el XML del SAT;
// alt es el alias alterno en inglés (se omite si coincide con primary).
func Req(name, primary, alt string) AttributeSpec {
	return AttributeSpec{Name: name, Aliases: aliases(primary, alt), Required: true}
}

// Opt atributo opcional.
func Opt(name, primary, alt string) AttributeSpec {
	return AttributeSpec{Name: name, Aliases: aliases(primary, alt)}
}

func aliases(primary, alt string) []string {
	if alt == "" || alt == primary {
		return []string{primary}
	}
	return []string{primary, alt}
}

// ChildSpec declara una ranura de hijos. Element es el nombre local del elemento
// hijo y Type la etiqueta del Descriptor que lo gobierna.
type ChildSpec struct {
	Name        string
	Element     string
	Type        string
	Cardinality Cardinality
}

// Child ranura de un solo hijo.
func Child(name, element, typ string) ChildSpec {
	return ChildSpec{Name: name, Element: element, Type: typ, Cardinality: One}
}

// Children ranura de lista ordenada.
func Children(name, element, typ string) ChildSpec {
	return ChildSpec{Name: name, Element: element, Type: typ, Cardinality: Many}
}

// BaseAttribute atributo fijo que se escribe antes que los demás (xmlns, xsi:schemaLocation).
type BaseAttribute struct {
	Name  string
	Value string
}

// Descriptor metadatos inmutables de un tipo de nodo.
type Descriptor struct {
	Type            string // etiqueta única, ej. "cfdi40:Comprobante"
	ElementName     string
	NamespacePrefix string
	NamespaceURI    string
	// Version identifica la variante cuando varios descriptores comparten elemento y
	// espacio de nombres (TFD 1.0 / 1.1). Se compara con el atributo canónico "version".
	Version        string
	BaseAttributes []BaseAttribute
	Attributes     []AttributeSpec
	Children       []ChildSpec
	// Extensible: los hijos que no coinciden con ninguna ranura se resuelven contra
	// los complementos registrados (Complemento, ComplementoConcepto).
	Extensible bool
	// Opaque: el contenido se conserva como XML sin mapear (Addenda).
	Opaque bool
}

// QualifiedName nombre con prefijo, ej. "cfdi:Comprobante".
func (d *Descriptor) QualifiedName() string {
	if d.NamespacePrefix == "" {
		return d.ElementName
	}
	return d.NamespacePrefix + ":" + d.ElementName
}

// Attribute busca la declaración de un atributo por nombre canónico.
func (d *Descriptor) Attribute(name string) (AttributeSpec, bool) {
	for _, a := range d.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return AttributeSpec{}, false
}

// Slot busca una ranura por nombre canónico.
func (d *Descriptor) Slot(name string) (ChildSpec, bool) {
	for _, c := range d.Children {
		if c.Name == name {
			return c, true
		}
	}
	return ChildSpec{}, false
}

// SlotForElement busca la ranura cuyo elemento tiene el nombre local indicado.
func (d *Descriptor) SlotForElement(local string) (ChildSpec, bool) {
	for _, c := range d.Children {
		if c.Element == local {
			return c, true
		}
	}
	return ChildSpec{}, false
}

// Validate comprueba las invariantes del descriptor: nombres canónicos únicos y
// conjuntos de alias disjuntos entre atributos.
func (d *Descriptor) Validate() error {
	if d.Type == "" || d.ElementName == "" {
		return fmt.Errorf("cfdi: descriptor sin tipo o elemento")
	}
	names := make(map[string]bool, len(d.Attributes)+len(d.Children))
	owner := make(map[string]string)
	for _, a := range d.Attributes {
		if names[a.Name] {
			return fmt.Errorf("cfdi: %s: nombre canónico duplicado %q", d.Type, a.Name)
		}
		names[a.Name] = true
		for _, alias := range a.Aliases {
			if prev, ok := owner[alias]; ok && prev != a.Name {
				return fmt.Errorf("cfdi: %s: alias %q compartido por %q y %q", d.Type, alias, prev, a.Name)
			}
			owner[alias] = a.Name
		}
	}
	elements := make(map[string]bool, len(d.Children))
	for _, c := range d.Children {
		if names[c.Name] {
			return fmt.Errorf("cfdi: %s: nombre canónico duplicado %q", d.Type, c.Name)
		}
		names[c.Name] = true
		if elements[c.Element] {
			return fmt.Errorf("cfdi: %s: elemento hijo %q declarado dos veces", d.Type, c.Element)
		}
		elements[c.Element] = true
	}
	return nil
}
