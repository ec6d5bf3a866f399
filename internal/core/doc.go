// Package core provides the refresh and validation pipeline logic.
//
// This package has no storage or transport dependencies. Stores are reached
// through the interfaces in store.go and are implemented by the database
// and memstore packages.
//
// # Architecture
//
//   - Dataset registry: each extract type is registered at init time with
//     [Register], naming its canonical table, natural key and field specs.
//   - [Ingestor]: reads an extract, types and deduplicates its rows, and
//     merges them into the canonical table inside one transaction. Every
//     load is recorded in the refresh log.
//   - [Validator]: invokes the Rule Engine once per run and reads back
//     summaries and unresolved failures.
//   - [Pipeline]: ingestion, then validation, then reporting, with an exit
//     code for schedulers.
//
// # Dataset Registry
//
//	core.Register(core.TableDefinition{
//	    Info: core.TableInfo{
//	        Key:       "providers",
//	        Table:     "cred.providers",
//	        UniqueKey: []string{"npi"},
//	    },
//	    FieldSpecs: []core.FieldSpec{
//	        {Name: "NPI", Required: true, Type: core.FieldText},
//	        {Name: "Date_Of_Birth", Type: core.FieldDate},
//	    },
//	})
//
// # Error Handling
//
// Failures are returned as [*Error] carrying an [ErrorKind]. [MapError]
// turns them into coded messages for the report API:
//
//   - PIPE001-PIPE005: pipeline failure kinds
//   - DB001-DB006: database errors
//   - EXT001-EXT005: extract errors
//   - RUN001-RUN003: validation run errors
package core
