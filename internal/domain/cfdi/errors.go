package cfdi

import (
	"errors"
	"fmt"
)

// MappingErrorKind tipo de falla al construir un nodo.
type MappingErrorKind int

const (
	MissingRequiredAttribute MappingErrorKind = iota + 1
	UnknownChildNode
	UnknownAttribute
	InvalidChild
	InvalidValue
)

func (k MappingErrorKind) String() string {
	switch k {
	case MissingRequiredAttribute:
		return "MISSING_REQUIRED_ATTRIBUTE"
	case UnknownChildNode:
		return "UNKNOWN_CHILD_NODE"
	case UnknownAttribute:
		return "UNKNOWN_ATTRIBUTE"
	case InvalidChild:
		return "INVALID_CHILD"
	case InvalidValue:
		return "INVALID_VALUE"
	default:
		return "MAPPING_ERROR"
	}
}

// MappingError falla al mapear o construir un nodo; siempre es fatal para el subárbol.
type MappingError struct {
	Kind     MappingErrorKind
	Name     string // atributo o elemento
	NodeType string // tipo del nodo padre
	Value    string // solo InvalidValue
}

func (e *MappingError) Error() string {
	switch e.Kind {
	case MissingRequiredAttribute:
		return fmt.Sprintf("cfdi: %s: falta el atributo obligatorio %q", e.NodeType, e.Name)
	case UnknownChildNode:
		return fmt.Sprintf("cfdi: %s: nodo hijo desconocido %q", e.NodeType, e.Name)
	case UnknownAttribute:
		return fmt.Sprintf("cfdi: %s: atributo no declarado %q", e.NodeType, e.Name)
	case InvalidValue:
		return fmt.Sprintf("cfdi: %s: %q=%q no está en forma canónica", e.NodeType, e.Name, e.Value)
	default:
		return fmt.Sprintf("cfdi: %s: hijo inválido %q", e.NodeType, e.Name)
	}
}

// SchemaError el documento no es XML bien formado o no corresponde a un esquema conocido.
type SchemaError struct {
	Reason string
	Err    error
}

func (e *SchemaError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cfdi: documento no conforme: %s: %v", e.Reason, e.Err)
	}
	return "cfdi: documento no conforme: " + e.Reason
}

func (e *SchemaError) Unwrap() error { return e.Err }

// ChainErrorKind tipo de falla al derivar la cadena original.
type ChainErrorKind int

const (
	IncompleteChain ChainErrorKind = iota + 1
	UnsupportedNode
	MalformedField
)

func (k ChainErrorKind) String() string {
	switch k {
	case IncompleteChain:
		return "INCOMPLETE_CHAIN"
	case UnsupportedNode:
		return "UNSUPPORTED_NODE"
	case MalformedField:
		return "MALFORMED_FIELD"
	default:
		return "CHAIN_ERROR"
	}
}

// ChainError falla al derivar la cadena original; solo invalida la verificación de sello.
type ChainError struct {
	Kind     ChainErrorKind
	NodeType string
	Field    string
	Err      error
}

func (e *ChainError) Error() string {
	switch e.Kind {
	case IncompleteChain:
		return fmt.Sprintf("cfdi: cadena original incompleta: %s requiere %q", e.NodeType, e.Field)
	case UnsupportedNode:
		return fmt.Sprintf("cfdi: no hay regla de cadena original verificada para %s", e.NodeType)
	default:
		return fmt.Sprintf("cfdi: %s: campo %q mal formado: %v", e.NodeType, e.Field, e.Err)
	}
}

func (e *ChainError) Unwrap() error { return e.Err }

// IsMappingError indica si err (o alguno que envuelva) es un MappingError del tipo indicado.
func IsMappingError(err error, kind MappingErrorKind) bool {
	var me *MappingError
	return errors.As(err, &me) && me.Kind == kind
}

// IsChainError indica si err (o alguno que envuelva) es un ChainError del tipo indicado.
func IsChainError(err error, kind ChainErrorKind) bool {
	var ce *ChainError
	return errors.As(err, &ce) && ce.Kind == kind
}
