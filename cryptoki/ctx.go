// Package cryptoki dispatches calls to the PKCS#11 function set of a loaded
// library and marshals their arguments according to the layout catalog.
//
// Every exported method resolves, marshals, invokes and unmarshals one
// native function. The memory passed to the library is owned by a
// native.Arena and released before the method returns.
package cryptoki

import (
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/cryptoki/ckabi"
	"github.com/effective-security/cryptoki/ckr"
	"github.com/effective-security/cryptoki/metricskey"
	"github.com/effective-security/cryptoki/native"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/cryptoki", "cryptoki")

// Names of the dispatched functions
const (
	FnInitialize        = "C_Initialize"
	FnFinalize          = "C_Finalize"
	FnGetInfo           = "C_GetInfo"
	FnGetSlotList       = "C_GetSlotList"
	FnGetSlotInfo       = "C_GetSlotInfo"
	FnGetTokenInfo      = "C_GetTokenInfo"
	FnOpenSession       = "C_OpenSession"
	FnCloseSession      = "C_CloseSession"
	FnCloseAllSessions  = "C_CloseAllSessions"
	FnGetSessionInfo    = "C_GetSessionInfo"
	FnLogin             = "C_Login"
	FnLogout            = "C_Logout"
	FnInitPIN           = "C_InitPIN"
	FnSetPIN            = "C_SetPIN"
	FnFindObjectsInit   = "C_FindObjectsInit"
	FnFindObjects       = "C_FindObjects"
	FnFindObjectsFinal  = "C_FindObjectsFinal"
	FnGetAttributeValue = "C_GetAttributeValue"
	FnGetObjectSize     = "C_GetObjectSize"
	FnDigestInit        = "C_DigestInit"
	FnDigest            = "C_Digest"
	FnDigestUpdate      = "C_DigestUpdate"
	FnDigestFinal       = "C_DigestFinal"
	FnSignInit          = "C_SignInit"
	FnSign              = "C_Sign"
	FnSeedRandom        = "C_SeedRandom"
	FnGenerateRandom    = "C_GenerateRandom"
)

// FunctionNames lists the functions bound by Bind
var FunctionNames = []string{
	FnInitialize,
	FnFinalize,
	FnGetInfo,
	FnGetSlotList,
	FnGetSlotInfo,
	FnGetTokenInfo,
	FnOpenSession,
	FnCloseSession,
	FnCloseAllSessions,
	FnGetSessionInfo,
	FnLogin,
	FnLogout,
	FnInitPIN,
	FnSetPIN,
	FnFindObjectsInit,
	FnFindObjects,
	FnFindObjectsFinal,
	FnGetAttributeValue,
	FnGetObjectSize,
	FnDigestInit,
	FnDigest,
	FnDigestUpdate,
	FnDigestFinal,
	FnSignInit,
	FnSign,
	FnSeedRandom,
	FnGenerateRandom,
}

// Ctx is the function table of a loaded library
// bound to the layout catalog of the platform.
type Ctx struct {
	lib     native.Library
	cat     *ckabi.Catalog
	fns     map[string]native.Proc
	missing map[string]error
}

// Bind resolves all functions of the library once.
// A missing function is not an error until it is called.
func Bind(lib native.Library, cat *ckabi.Catalog) *Ctx {
	c := &Ctx{
		lib:     lib,
		cat:     cat,
		fns:     make(map[string]native.Proc, len(FunctionNames)),
		missing: make(map[string]error),
	}
	for _, name := range FunctionNames {
		p, err := lib.Lookup(name)
		if err != nil {
			logger.KV(xlog.DEBUG, "library", lib.Name(), "func", name, "reason", "not_found")
			c.missing[name] = err
			continue
		}
		c.fns[name] = p
	}
	return c
}

// Open loads the library by name and binds it to the catalog of the platform
func Open(name string) (*Ctx, error) {
	cat, err := ckabi.ForPlatform()
	if err != nil {
		return nil, ckr.NewBindingError("Open", err)
	}
	lib, err := native.Open(name)
	if err != nil {
		return nil, ckr.NewBindingError("Open", err)
	}
	return Bind(lib, cat), nil
}

// Catalog returns the layout catalog of the context
func (c *Ctx) Catalog() *ckabi.Catalog {
	return c.cat
}

// Library returns the loaded library
func (c *Ctx) Library() native.Library {
	return c.lib
}

// Supported returns true if the library exports the function
func (c *Ctx) Supported(name string) bool {
	_, ok := c.fns[name]
	return ok
}

// Missing returns the names of functions the library does not export
func (c *Ctx) Missing() []string {
	list := make([]string, 0, len(c.missing))
	for n := range c.missing {
		list = append(list, n)
	}
	sort.Strings(list)
	return list
}

// Close unloads the library
func (c *Ctx) Close() error {
	return c.lib.Close()
}

// call invokes the function and maps its result
func (c *Ctx) call(name string, args ...uintptr) error {
	defer metricskey.PerfNativeCall.MeasureSince(time.Now(), name)

	p, ok := c.fns[name]
	if !ok {
		cause := c.missing[name]
		if cause == nil {
			cause = errors.Wrapf(ckr.ErrSymbolNotFound, "%s", name)
		}
		return ckr.NewBindingError(name, cause)
	}

	rv, err := native.Invoke(name, p, args...)
	if err != nil {
		return err
	}

	r := ckr.Map(rv)
	if r != ckr.OK {
		logger.KV(xlog.DEBUG, "func", name, "rv", r.Name())
		return ckr.NewProtocolError(name, r)
	}
	logger.KV(xlog.TRACE, "func", name)
	return nil
}

func boolArg(b bool) uintptr {
	if b {
		return 1
	}
	return 0
}
