// Package crypto11 drives PKCS#11 tokens through the cryptoki function table.
//
// PKCS11Lib owns the module lifecycle: the module is initialized once,
// tolerating a module already initialized in the process, and finalized once
// on Close. Session wraps an open session and drives the stateful protocol:
// login, object search, multi-part digest, sign and random generation.
// Every operation that starts a native operation finishes it, or the failure
// is returned to the caller. Sessions are not pooled and not safe for
// concurrent use.
//
// On top of the session protocol the package provides the token facade
// (slots, tokens, PIN management, certificates and keys), a crypto.Signer
// for RSA keys on the token, and Signer for document signing with the
// certificate chain of the key.
package crypto11
