package sat

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// RFCKind clasificación de un RFC (Registro Federal de Contribuyentes).
type RFCKind int

const (
	RFCGenericNational RFCKind = iota + 1 // XAXX010101000: público en general
	RFCGenericForeign                     // XEXX010101000: residente en el extranjero
	RFCNaturalPerson                      // persona física (13 caracteres)
	RFCLegalEntity                        // persona moral (12 caracteres)
)

func (k RFCKind) String() string {
	switch k {
	case RFCGenericNational:
		return "GENERICO_NACIONAL"
	case RFCGenericForeign:
		return "GENERICO_EXTRANJERO"
	case RFCNaturalPerson:
		return "PERSONA_FISICA"
	case RFCLegalEntity:
		return "PERSONA_MORAL"
	default:
		return "DESCONOCIDO"
	}
}

const (
	RFCGenericNationalValue = "XAXX010101000"
	RFCGenericForeignValue  = "XEXX010101000"
)

// ErrInvalidRFC se devuelve (envuelto) por ParseRFC cuando el valor no es un RFC.
var ErrInvalidRFC = errors.New("sat: RFC inválido")

// rfcPattern: 3 letras (moral) o 4 (física), fecha AAMMDD y homoclave de 3 caracteres.
var rfcPattern = regexp.MustCompile(`^[A-ZÑ&]{3,4}[0-9]{6}[A-Z0-9]{2}[A0-9]$`)

// diccionario del dígito verificador (Anexo 20, validación de RFC).
const rfcCheckDictionary = "0123456789ABCDEFGHIJKLMN&OPQRSTUVWXYZ Ñ"

// RFC valor ya validado y clasificado. El valor cero no es un RFC válido.
type RFC struct {
	value string
	kind  RFCKind
}

// ParseRFC normaliza a mayúsculas y valida estructura y fecha.
// El dígito verificador no se exige (ver ParseRFCStrict): el SAT ha emitido RFC
// cuyo dígito no coincide con el algoritmo publicado.
func ParseRFC(s string) (RFC, error) {
	return parseRFC(s, false)
}

// ParseRFCStrict igual que ParseRFC pero rechaza RFC con dígito verificador incorrecto.
// Los RFC genéricos quedan exentos.
func ParseRFCStrict(s string) (RFC, error) {
	return parseRFC(s, true)
}

func parseRFC(s string, strict bool) (RFC, error) {
	// cases.Caser no es seguro entre goroutines: uno por llamada.
	value := cases.Upper(language.Spanish).String(strings.TrimSpace(s))
	switch value {
	case RFCGenericNationalValue:
		return RFC{value: value, kind: RFCGenericNational}, nil
	case RFCGenericForeignValue:
		return RFC{value: value, kind: RFCGenericForeign}, nil
	}

	length := utf8.RuneCountInString(value)
	if length != 12 && length != 13 {
		return RFC{}, fmt.Errorf("%w: %q debe tener 12 o 13 caracteres", ErrInvalidRFC, s)
	}
	if !rfcPattern.MatchString(value) {
		return RFC{}, fmt.Errorf("%w: %q no cumple la estructura", ErrInvalidRFC, s)
	}
	runes := []rune(value)
	dateStart := length - 9
	if !validRFCDate(string(runes[dateStart : dateStart+6])) {
		return RFC{}, fmt.Errorf("%w: %q contiene una fecha inexistente", ErrInvalidRFC, s)
	}
	if strict {
		if expected := RFCCheckDigit(value); expected != runes[length-1] {
			return RFC{}, fmt.Errorf("%w: %q dígito verificador esperado %c", ErrInvalidRFC, s, expected)
		}
	}

	kind := RFCLegalEntity
	if length == 13 {
		kind = RFCNaturalPerson
	}
	return RFC{value: value, kind: kind}, nil
}

// MustParseRFC igual que ParseRFC pero hace panic; solo para constantes y tests.
func MustParseRFC(s string) RFC {
	r, err := ParseRFC(s)
	if err != nil {
		panic(err)
	}
	return r
}

// String devuelve el RFC normalizado.
func (r RFC) String() string { return r.value }

// Kind devuelve la clasificación del RFC.
func (r RFC) Kind() RFCKind { return r.kind }

// IsGeneric indica si es uno de los RFC genéricos del SAT.
func (r RFC) IsGeneric() bool {
	return r.kind == RFCGenericNational || r.kind == RFCGenericForeign
}

// CheckSumMatches indica si el dígito verificador coincide con el calculado.
func (r RFC) CheckSumMatches() bool {
	if r.value == "" {
		return false
	}
	runes := []rune(r.value)
	return RFCCheckDigit(r.value) == runes[len(runes)-1]
}

// RFCCheckDigit calcula el dígito verificador de un RFC de 12 o 13 caracteres.
// Los RFC de persona moral se completan con un espacio al inicio.
func RFCCheckDigit(rfc string) rune {
	runes := []rune(rfc)
	if len(runes) == 12 {
		runes = append([]rune{' '}, runes...)
	}
	if len(runes) != 13 {
		return 0
	}
	dict := []rune(rfcCheckDictionary)
	sum := 0
	for i, r := range runes[:12] {
		sum += indexOf(dict, r) * (13 - i)
	}
	switch digit := 11 - sum%11; digit {
	case 11:
		return '0'
	case 10:
		return 'A'
	default:
		return rune('0' + digit)
	}
}

func indexOf(dict []rune, r rune) int {
	for i, d := range dict {
		if d == r {
			return i
		}
	}
	return 0
}

// validRFCDate acepta AAMMDD si la fecha existe en 19AA o 20AA (29 de febrero).
func validRFCDate(yymmdd string) bool {
	for _, century := range []string{"19", "20"} {
		if _, err := time.Parse("20060102", century+yymmdd); err == nil {
			return true
		}
	}
	return false
}
