// Package providers holds storefront platform implementations of
// core.Provider. Each subpackage owns its install URL template, callback
// signature scheme and token exchange client.
package providers
