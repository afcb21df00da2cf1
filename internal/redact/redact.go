// Package redact classifica e mascara dados sensíveis antes que eles
// cheguem a qualquer destino de log ou canal de alerta.
package redact

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"
)

// Level define o grau de mascaramento aplicado a um valor
type Level int

const (
	None Level = iota
	Partial
	Full
)

// Placeholder substitui valores totalmente redigidos
const Placeholder = "[REDACTED]"

func (l Level) String() string {
	switch l {
	case Partial:
		return "partial"
	case Full:
		return "full"
	default:
		return "none"
	}
}

// fullFieldFragments são trechos de nomes de campo que nunca podem aparecer em claro
var fullFieldFragments = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"authorization",
	"cookie",
	"csrf",
	"apikey",
	"session",
	"cardnumber",
	"cvv",
	"cvc",
	"privatekey",
	"dsn",
}

// partialFields são nomes de campo de identidade, mascarados parcialmente
var partialFields = map[string]struct{}{
	"email":        {},
	"useremail":    {},
	"userid":       {},
	"ownerid":      {},
	"targetuserid": {},
	"recipientid":  {},
	"senderid":     {},
	"phone":        {},
	"phonenumber":  {},
}

// safeFields são identificadores de correlação gerados pelo próprio serviço
var safeFields = map[string]struct{}{
	"requestid":     {},
	"correlationid": {},
}

var (
	jwtPattern    = regexp.MustCompile(`^eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]*$`)
	bearerPattern = regexp.MustCompile(`(?i)^bearer\s+\S+$`)
	cardPattern   = regexp.MustCompile(`^(?:\d[ -]?){12,18}\d$`)
	emailPattern  = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	uuidPattern   = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	objectIDRegex = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)
)

// Classify decide o nível de redação a partir do nome do campo e do formato do valor.
// Prevalece o nível mais restritivo entre as duas análises.
func Classify(fieldName, value string) Level {
	level := classifyField(fieldName)
	if level == Full {
		return Full
	}
	if _, ok := safeFields[normalizeField(fieldName)]; ok {
		return None
	}
	if v := classifyValue(value); v > level {
		level = v
	}
	return level
}

func classifyField(fieldName string) Level {
	if fieldName == "" {
		return None
	}
	normalized := normalizeField(fieldName)
	for _, fragment := range fullFieldFragments {
		if strings.Contains(normalized, fragment) {
			return Full
		}
	}
	if _, ok := partialFields[normalized]; ok {
		return Partial
	}
	return None
}

// isCardNumber exige o formato de cartão e o dígito verificador Luhn, para não mascarar timestamps em ms
func isCardNumber(value string) bool {
	if !cardPattern.MatchString(value) {
		return false
	}

	sum := 0
	double := false
	for i := len(value) - 1; i >= 0; i-- {
		c := value[i]
		if c < '0' || c > '9' {
			continue
		}
		digit := int(c - '0')
		if double {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
		double = !double
	}
	return sum%10 == 0
}

func classifyValue(value string) Level {
	value = strings.TrimSpace(value)
	switch {
	case value == "":
		return None
	case jwtPattern.MatchString(value), bearerPattern.MatchString(value), isCardNumber(value):
		return Full
	case emailPattern.MatchString(value), uuidPattern.MatchString(value), objectIDRegex.MatchString(value):
		return Partial
	}
	return None
}

func normalizeField(fieldName string) string {
	replacer := strings.NewReplacer("_", "", "-", "", ".", "", " ", "")
	return strings.ToLower(replacer.Replace(fieldName))
}

// Mask aplica o nível informado a um valor textual
func Mask(value string, level Level) string {
	switch level {
	case Full:
		return Placeholder
	case Partial:
		if emailPattern.MatchString(value) {
			return MaskEmail(value)
		}
		return MaskID(value)
	default:
		return value
	}
}

// MaskEmail preserva o primeiro caractere e o domínio: j***@example.com
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return MaskID(email)
	}
	local, domain := email[:at], email[at+1:]
	if local == "" {
		return "***@" + domain
	}
	return local[:1] + "***@" + domain
}

// MaskID preserva os quatro primeiros caracteres de um identificador
func MaskID(id string) string {
	if len(id) <= 4 {
		return "***"
	}
	return id[:4] + "***"
}

// String redige um valor textual sem nome de campo associado
func String(value string) string {
	return Mask(value, Classify("", value))
}

// Field redige o valor de um campo nomeado; valores compostos são percorridos recursivamente
func Field(name string, value interface{}) interface{} {
	fieldLevel := classifyField(name)

	switch v := value.(type) {
	case nil:
		return nil
	case string:
		return Mask(v, Classify(name, v))
	case error:
		return Mask(v.Error(), Classify(name, v.Error()))
	}

	if fieldLevel == Full {
		return Placeholder
	}
	if fieldLevel == Partial && isScalar(value) {
		return MaskID(fmt.Sprint(value))
	}
	return Value(value)
}

// Value devolve uma cópia redigida de qualquer valor; a entrada nunca é alterada
func Value(value interface{}) interface{} {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		return String(v)
	case error:
		return String(v.Error())
	case time.Time, time.Duration:
		return v
	case map[string]interface{}:
		return Map(v)
	case map[string]string:
		out := make(map[string]interface{}, len(v))
		for key, item := range v {
			out[key] = Field(key, item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = Value(item)
		}
		return out
	case []string:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = String(item)
		}
		return out
	}

	return reflectValue(reflect.ValueOf(value))
}

// Map redige um mapa de campos (ex.: campos de log)
func Map(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}
	out := make(map[string]interface{}, len(fields))
	for key, value := range fields {
		out[key] = Field(key, value)
	}
	return out
}

func reflectValue(rv reflect.Value) interface{} {
	if !rv.IsValid() {
		return nil
	}

	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return Value(rv.Elem().Interface())

	case reflect.Struct:
		if t, ok := rv.Interface().(time.Time); ok {
			return t
		}
		out := make(map[string]interface{}, rv.NumField())
		rt := rv.Type()
		for i := 0; i < rv.NumField(); i++ {
			field := rt.Field(i)
			if !field.IsExported() {
				continue
			}
			name, skip := jsonFieldName(field)
			if skip {
				continue
			}
			out[name] = Field(name, rv.Field(i).Interface())
		}
		return out

	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return rv.Interface()
		}
		out := make(map[string]interface{}, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			key := iter.Key().String()
			out[key] = Field(key, iter.Value().Interface())
		}
		return out

	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return Placeholder
		}
		out := make([]interface{}, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = Value(rv.Index(i).Interface())
		}
		return out

	case reflect.String:
		return String(rv.String())
	}

	return rv.Interface()
}

func jsonFieldName(field reflect.StructField) (string, bool) {
	tag := field.Tag.Get("json")
	if tag == "-" {
		return "", true
	}
	if name, _, _ := strings.Cut(tag, ","); name != "" {
		return name, false
	}
	return field.Name, false
}

func isScalar(value interface{}) bool {
	switch reflect.ValueOf(value).Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
