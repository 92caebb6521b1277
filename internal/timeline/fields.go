package timeline

import (
	"fmt"
	"strings"

	"timewright/internal/store"
)

// Per-kind capability sets. Outcomes route through these instead of probing
// the record at runtime, so an unsupported field fails the same way on every
// backend.
var secretsKinds = map[store.Kind]bool{
	store.KindCharacter: true,
	store.KindLocation:  true,
	store.KindFaction:   true,
	store.KindWorld:     true,
	store.KindCampaign:  true,
}

var typeFieldsByKind = map[store.Kind][]string{
	store.KindCharacter: {"status", "location", "title", "affiliation"},
	store.KindLocation:  {"condition", "ruler", "population"},
	store.KindFaction:   {"leader", "disposition", "influence"},
	store.KindWorld:     {"era"},
	store.KindCampaign:  {"phase"},
	store.KindSession:   {"recap"},
}

// ApplyField routes a winning outcome value onto the entity. It mutates e in
// place and reports a descriptive error when the field cannot be applied to
// this entity kind.
func ApplyField(e *store.Entity, field, value string) error {
	switch field {
	case "name":
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("name must not be empty")
		}
		e.Name = value
		return nil
	case "description":
		e.Description = value
		return nil
	case "secrets":
		if !secretsKinds[e.Kind] {
			return fmt.Errorf("entity type does not support 'secrets'")
		}
		e.Secrets = value
		return nil
	default:
		if !kindHasTypeField(e.Kind, field) {
			return fmt.Errorf("'%s' is not valid for entity type %s", field, e.Kind)
		}
		if e.TypeFields == nil {
			e.TypeFields = map[string]string{}
		}
		e.TypeFields[field] = value
		return nil
	}
}

// FieldValue reads the entity's current value for a routed field. The second
// return is false when the kind does not carry the field at all.
func FieldValue(e store.Entity, field string) (string, bool) {
	switch field {
	case "name":
		return e.Name, true
	case "description":
		return e.Description, true
	case "secrets":
		if !secretsKinds[e.Kind] {
			return "", false
		}
		return e.Secrets, true
	default:
		if !kindHasTypeField(e.Kind, field) {
			return "", false
		}
		return e.TypeFields[field], true
	}
}

func kindHasTypeField(kind store.Kind, field string) bool {
	for _, known := range typeFieldsByKind[kind] {
		if known == field {
			return true
		}
	}
	return false
}
