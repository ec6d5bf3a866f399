package tables

import "github.com/JonMunkholm/credsync/internal/core"

func init() {
	registerEntities()
}

// EntityTypes are the organization kinds a provider can be affiliated with.
var EntityTypes = []string{"Hospital", "Clinic", "Medical Group", "Ambulatory Surgery Center", "Payer"}

func registerEntities() {
	core.Register(core.TableDefinition{
		Info: core.TableInfo{
			Key:          "entities",
			SourceSystem: "CSV - Entities",
			Table:        "cred.entities",
			UniqueKey:    []string{"entity_code"},
			Order:        20,
		},
		FieldSpecs: []core.FieldSpec{
			{Name: "entity_code", Type: core.FieldText, Required: true, Normalizer: NormalizeUpper},
			{Name: "entity_name", Type: core.FieldText, Required: true, AllowEmpty: true},
			{Name: "entity_type", Type: core.FieldEnum, EnumValues: EntityTypes},
			{Name: "tax_id", Type: core.FieldText},
			{Name: "npi", DBColumn: "group_npi", Type: core.FieldText, Normalizer: NormalizeNPI},
			{Name: "state", Type: core.FieldText, Normalizer: NormalizeUsState},
			{Name: "bed_count", Type: core.FieldInt},
			{Name: "is_active", Type: core.FieldBool},
		},
	})
}
