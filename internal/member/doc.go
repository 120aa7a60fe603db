// Package member holds the federation member registry.
//
// A federation member is one data source the engine can dispatch work to:
// the local triple store, a remote SPARQL endpoint, or a REST-wrapped
// service described by a Descriptor. Members are registered under an id
// and a reference IRI (the IRI written in SERVICE <ref> blocks) and are
// reached through connections:
//
//   - QueryConnection accepts SPARQL text (remote endpoints)
//   - TripleConnection answers single triple patterns (local store)
//   - ServiceConnection answers one call of a described service
//   - AggregateConnection ranks a batch of values in one request
//
// Connections are scoped resources. Every caller that obtains one from
// Registry.Connect closes it on all exit paths; the registry itself never
// hands the same connection to two callers.
//
// Credentials in member configuration may be written as secret lookups
// (`${name}` or `${name:fallback}`) and are resolved through a Resolver.
package member
