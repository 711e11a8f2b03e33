package credential

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/beevik/etree"

	"github.com/jhoicas/cfdi-validator/internal/domain/cfdi"
	"github.com/jhoicas/cfdi-validator/internal/infrastructure/sat/xmlmap"
)

// Sealer sella comprobantes con un CSD. También emite timbres TFD 1.1 firmados con la
// credencial, útil en ambientes de prueba donde no hay PAC.
type Sealer struct {
	cred   *Credential
	mapper *xmlmap.Mapper
	chains *cfdi.ChainGenerator
}

// NewSealer crea el servicio.
func NewSealer(cred *Credential, mapper *xmlmap.Mapper, chains *cfdi.ChainGenerator) *Sealer {
	return &Sealer{cred: cred, mapper: mapper, chains: chains}
}

// Seal asigna NoCertificado, Certificado y Sello al comprobante raíz del documento.
func (s *Sealer) Seal(doc *etree.Document) error {
	root := doc.Root()
	if root == nil {
		return fmt.Errorf("credential: documento sin raíz")
	}
	root.CreateAttr("NoCertificado", s.cred.Number())
	root.CreateAttr("Certificado", s.cred.CertificateBase64())
	// Sello no forma parte de la cadena; se reserva para que el mapeo lo encuentre.
	if root.SelectAttr("Sello") == nil {
		root.CreateAttr("Sello", "")
	}

	node, err := s.mapper.FromRoot(root)
	if err != nil {
		return err
	}
	_, digest, hash, err := s.chains.Digest(node)
	if err != nil {
		return err
	}
	sig, err := s.cred.Sign(hash, digest)
	if err != nil {
		return err
	}
	root.CreateAttr("Sello", base64.StdEncoding.EncodeToString(sig))
	return nil
}

// StampOptions datos del timbre.
type StampOptions struct {
	UUID          string
	FechaTimbrado time.Time
	RfcProvCertif string
	Leyenda       string
}

// Stamp agrega un TimbreFiscalDigital 1.1 en el Complemento del comprobante ya sellado.
func (s *Sealer) Stamp(doc *etree.Document, opts StampOptions) error {
	root := doc.Root()
	if root == nil {
		return fmt.Errorf("credential: documento sin raíz")
	}
	sello := root.SelectAttrValue("Sello", "")
	if sello == "" {
		return fmt.Errorf("credential: el comprobante no está sellado")
	}
	desc, ok := s.mapper.Registry().Descriptor(cfdi.TypeTFD11)
	if !ok {
		return fmt.Errorf("credential: %s no registrado", cfdi.TypeTFD11)
	}
	if opts.FechaTimbrado.IsZero() {
		opts.FechaTimbrado = time.Now()
	}
	if opts.RfcProvCertif == "" {
		opts.RfcProvCertif = s.cred.RFC()
	}

	fill := func(selloSAT string) *cfdi.Builder {
		b := cfdi.NewBuilder(desc).
			Set("Version", "1.1").
			Set("UUID", strings.ToUpper(opts.UUID)).
			SetDateTime("FechaTimbrado", opts.FechaTimbrado).
			Set("RfcProvCertif", opts.RfcProvCertif).
			Set("SelloCFD", sello).
			Set("NoCertificadoSAT", s.cred.Number()).
			Set("SelloSAT", selloSAT)
		if opts.Leyenda != "" {
			b.Set("Leyenda", opts.Leyenda)
		}
		return b
	}

	// SelloSAT no forma parte de la cadena del timbre.
	draft, err := fill("").Build()
	if err != nil {
		return err
	}
	_, digest, hash, err := s.chains.Digest(draft)
	if err != nil {
		return err
	}
	sig, err := s.cred.Sign(hash, digest)
	if err != nil {
		return err
	}
	tfd, err := fill(base64.StdEncoding.EncodeToString(sig)).Build()
	if err != nil {
		return err
	}
	el, err := s.mapper.ToElement(tfd)
	if err != nil {
		return err
	}
	complemento(root).AddChild(el)
	return nil
}

// complemento devuelve el nodo Complemento del comprobante, creándolo antes de la
// Addenda si no existe.
func complemento(root *etree.Element) *etree.Element {
	var addenda *etree.Element
	for _, child := range root.ChildElements() {
		switch child.Tag {
		case cfdi.SlotComplemento:
			return child
		case cfdi.SlotAddenda:
			addenda = child
		}
	}
	el := etree.NewElement(cfdi.SlotComplemento)
	el.Space = root.Space
	if addenda != nil {
		root.InsertChildAt(addenda.Index(), el)
	} else {
		root.AddChild(el)
	}
	return el
}
