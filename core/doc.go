// Package core contains the install handshake domain: the credential and
// callback types, the contracts for providers, sessions and credential
// storage, and the Service that builds install URLs, verifies callbacks,
// exchanges authorization codes and commits credentials. Provider, storage
// and transport adapters depend on this package; core depends on none of them.
package core
