package tables

import "github.com/JonMunkholm/credsync/internal/core"

func init() {
	registerProviders()
}

func registerProviders() {
	core.Register(core.TableDefinition{
		Info: core.TableInfo{
			Key:          "providers",
			SourceSystem: "CSV - Providers",
			Table:        "cred.providers",
			UniqueKey:    []string{"npi"},
			Order:        10,
		},
		FieldSpecs: []core.FieldSpec{
			{Name: "npi", Type: core.FieldText, Required: true, Normalizer: NormalizeNPI},
			{Name: "first_name", Type: core.FieldText, Required: true, AllowEmpty: true},
			{Name: "last_name", Type: core.FieldText, Required: true, AllowEmpty: true},
			{Name: "middle_name", Type: core.FieldText},
			{Name: "degree", Type: core.FieldText, Normalizer: NormalizeUpper},
			{Name: "specialty", Type: core.FieldText},
			{Name: "taxonomy_code", Type: core.FieldText, Normalizer: NormalizeUpper},
			{Name: "email", Type: core.FieldText, Normalizer: NormalizeEmail},
			{Name: "phone", Type: core.FieldText},
			{Name: "primary_state", Type: core.FieldText, Normalizer: NormalizeUsState},
			{Name: "date_of_birth", Type: core.FieldDate},
			{Name: "is_active", Type: core.FieldBool},
		},
	})
}
