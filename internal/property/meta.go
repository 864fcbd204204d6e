package property

import (
	"fmt"
	"strconv"
	"strings"
)

// TagName is the struct tag carrying attribute metadata
const TagName = "prop"

// DescriptionTagName carries the attribute description, which may contain commas
const DescriptionTagName = "propdesc"

// Meta is the declarative metadata of one attribute
type Meta struct {
	ID          string
	Name        string
	Description string
	Category    string
	Order       *int
	Type        string

	// Getter and Setter name the accessor methods for Describer entries.
	// A getter whose first parameter is a context.Context is lazy.
	Getter string
	Setter string

	Editable  bool
	Updatable bool
	Expensive bool
	Hidden    bool
	Group     bool

	ValueList      ValueListProvider
	CacheValidator CacheValidator
}

// Describer is implemented by types that declare attributes through a static
// metadata table instead of (or in addition to) struct tags.
type Describer interface {
	PropertyMeta() []Meta
}

// Ord returns a pointer to order, for use in Meta literals
func Ord(order int) *int {
	return &order
}

// parseTag parses a prop struct tag of the form
// "id=name,name=Display Name,order=3,category=Connection,type=string,editable,updatable".
// Unknown keys are reported in the returned warnings; parsing never fails.
func parseTag(tag string) (Meta, []string) {
	var meta Meta
	var warnings []string

	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		key, value, hasValue := strings.Cut(part, "=")
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "id":
			meta.ID = value
		case "name":
			meta.Name = value
		case "category":
			meta.Category = value
		case "type":
			meta.Type = value
		case "setter":
			meta.Setter = value
		case "order":
			n, err := strconv.Atoi(value)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("invalid order %q", value))
				continue
			}
			meta.Order = &n
		case "editable":
			meta.Editable = flagValue(hasValue, value)
		case "updatable":
			meta.Updatable = flagValue(hasValue, value)
		case "expensive":
			meta.Expensive = flagValue(hasValue, value)
		case "hidden":
			meta.Hidden = flagValue(hasValue, value)
		case "group":
			meta.Group = flagValue(hasValue, value)
		default:
			warnings = append(warnings, fmt.Sprintf("unknown tag key %q", key))
		}
	}

	return meta, warnings
}

func flagValue(hasValue bool, value string) bool {
	if !hasValue {
		return true
	}
	b, err := strconv.ParseBool(value)
	return err == nil && b
}

// displayName derives a human readable name from an identifier
func displayName(id string) string {
	if id == "" {
		return ""
	}

	var b strings.Builder
	runes := []rune(id)
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || r == '.':
			b.WriteRune(' ')
			continue
		case i == 0:
			b.WriteString(strings.ToUpper(string(r)))
			continue
		case r >= 'A' && r <= 'Z' && runes[i-1] >= 'a' && runes[i-1] <= 'z':
			b.WriteRune(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// attributeID derives an attribute id from a Go identifier: DriverVersion -> driverVersion
func attributeID(name string) string {
	if name == "" {
		return ""
	}
	runes := []rune(name)
	runes[0] = []rune(strings.ToLower(string(runes[0])))[0]
	return string(runes)
}
