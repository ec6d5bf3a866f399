package tables

import "github.com/JonMunkholm/credsync/internal/core"

func init() {
	registerCredentials()
}

// CredentialTypes are the credential kinds tracked per provider.
var CredentialTypes = []string{"State License", "DEA", "CDS", "Board Certification", "Malpractice Insurance", "Hospital Privileges"}

// CredentialStatuses are the states a credential can be reported in.
var CredentialStatuses = []string{"Active", "Expired", "Pending", "Revoked", "Suspended"}

func registerCredentials() {
	core.Register(core.TableDefinition{
		Info: core.TableInfo{
			Key:          "credentials",
			SourceSystem: "CSV - Credentials",
			Table:        "cred.credentials",
			UniqueKey:    []string{"npi", "credential_type", "credential_number"},
			Order:        30,
		},
		FieldSpecs: []core.FieldSpec{
			{Name: "npi", Type: core.FieldText, Required: true, Normalizer: NormalizeNPI},
			{Name: "credential_type", Type: core.FieldEnum, Required: true, EnumValues: CredentialTypes},
			{Name: "credential_number", Type: core.FieldText, Required: true, Normalizer: NormalizeUpper},
			{Name: "issuing_state", Type: core.FieldText, Normalizer: NormalizeUsState},
			{Name: "issuing_body", Type: core.FieldText},
			{Name: "issue_date", Type: core.FieldDate},
			{Name: "expiration_date", Type: core.FieldDate},
			{Name: "status", DBColumn: "credential_status", Type: core.FieldEnum, EnumValues: CredentialStatuses},
			{Name: "is_active", Type: core.FieldBool},
		},
	})
}
