package xmlmap

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/beevik/etree"
	"github.com/ucarion/c14n"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"

	"github.com/jhoicas/cfdi-validator/internal/domain/cfdi"
)

// ParseDocument lee XML (UTF-8 o cualquier codificación declarada que x/text conozca).
// Un documento mal formado es un SchemaError.
func ParseDocument(data []byte) (*etree.Document, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = charsetReader
	doc.ReadSettings.Entity = map[string]string{}
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, &cfdi.SchemaError{Reason: "XML mal formado", Err: err}
	}
	if doc.Root() == nil {
		return nil, &cfdi.SchemaError{Reason: "documento sin elemento raíz"}
	}
	return doc, nil
}

// Canonicalize forma canónica C14N inclusiva del documento; base de la huella
// que identifica al documento en los reportes.
func Canonicalize(data []byte) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = charsetReader
	dec.Entity = map[string]string{}
	out, err := c14n.Canonicalize(dec)
	if err != nil {
		return nil, &cfdi.SchemaError{Reason: "no se pudo canonicalizar", Err: err}
	}
	return out, nil
}

func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(strings.TrimSpace(label))
	if err != nil {
		return nil, fmt.Errorf("xmlmap: codificación %q no soportada: %w", label, err)
	}
	if enc == unicode.UTF8 {
		return input, nil
	}
	return enc.NewDecoder().Reader(input), nil
}

// Decode parsea el documento y mapea su raíz.
func (m *Mapper) Decode(data []byte) (*cfdi.Node, error) {
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, err
	}
	return m.FromRoot(doc.Root())
}

// Encode serializa un nodo raíz como documento UTF-8 con sangría de dos espacios.
func (m *Mapper) Encode(n *cfdi.Node) ([]byte, error) {
	root, err := m.ToElement(n)
	if err != nil {
		return nil, err
	}
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	doc.SetRoot(root)
	doc.Indent(2)
	return doc.WriteToBytes()
}
