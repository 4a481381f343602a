// Package cryptoprov provides the configuration of PKCS#11 tokens
// and a registry of providers keyed by manufacturer.
//
// A provider is loaded from a YAML or JSON token configuration that names
// the middleware library and selects the token by slot, serial number or
// label. Keys are addressed with PKCS#11 URIs, for example
//
//	pkcs11:manufacturer=Effective%20Security;id=signing;type=private
package cryptoprov
