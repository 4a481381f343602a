// Package softtoken provides an in-process PKCS#11 middleware for tests.
//
// Library implements native.Library. Its functions receive the same raw
// arguments as a shared library would and read or write the caller's
// memory according to the layout catalog it was created with, so either
// catalog can be exercised on any host.
package softtoken

import (
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/cryptoki/ckabi"
	"github.com/effective-security/cryptoki/ckr"
	"github.com/effective-security/cryptoki/native"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/cryptoki/internal", "softtoken")

type function func(args []uintptr) ckr.Result

// Library is a simulated PKCS#11 middleware
type Library struct {
	name    string
	cat     *ckabi.Catalog
	missing map[string]bool
	faults  map[string]bool

	lock        sync.Mutex
	initialized bool
	slots       []*Slot
	sessions    map[uint]*session
	nextSession uint
	nextObject  uint
	calls       map[string]int
	funcs       map[string]function
	closed      bool
}

// Option configures Library
type Option func(*Library)

// WithName sets the library name
func WithName(name string) Option {
	return func(l *Library) {
		l.name = name
	}
}

// WithMissing removes the functions from the library exports
func WithMissing(names ...string) Option {
	return func(l *Library) {
		for _, n := range names {
			l.missing[n] = true
		}
	}
}

// WithFault makes the functions panic when called
func WithFault(names ...string) Option {
	return func(l *Library) {
		for _, n := range names {
			l.faults[n] = true
		}
	}
}

// WithSlots replaces the default slots
func WithSlots(slots ...*Slot) Option {
	return func(l *Library) {
		l.slots = slots
	}
}

// New returns a library with the default slots,
// see DefaultSlots
func New(cat *ckabi.Catalog, opts ...Option) *Library {
	l := &Library{
		name:        "softtoken",
		cat:         cat,
		missing:     map[string]bool{},
		faults:      map[string]bool{},
		sessions:    map[uint]*session{},
		nextSession: 1,
		nextObject:  1,
		calls:       map[string]int{},
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.slots == nil {
		l.slots = DefaultSlots()
	}
	for i, s := range l.slots {
		s.ID = uint(i)
		if s.Token != nil {
			for _, o := range s.Token.objects {
				o.handle = l.nextObject
				l.nextObject++
			}
		}
	}

	l.funcs = map[string]function{
		"C_Initialize":        l.initialize,
		"C_Finalize":          l.finalize,
		"C_GetInfo":           l.getInfo,
		"C_GetSlotList":       l.getSlotList,
		"C_GetSlotInfo":       l.getSlotInfo,
		"C_GetTokenInfo":      l.getTokenInfo,
		"C_OpenSession":       l.openSession,
		"C_CloseSession":      l.closeSession,
		"C_CloseAllSessions":  l.closeAllSessions,
		"C_GetSessionInfo":    l.getSessionInfo,
		"C_Login":             l.login,
		"C_Logout":            l.logout,
		"C_InitPIN":           l.initPIN,
		"C_SetPIN":            l.setPIN,
		"C_FindObjectsInit":   l.findObjectsInit,
		"C_FindObjects":       l.findObjects,
		"C_FindObjectsFinal":  l.findObjectsFinal,
		"C_GetAttributeValue": l.getAttributeValue,
		"C_GetObjectSize":     l.getObjectSize,
		"C_DigestInit":        l.digestInit,
		"C_Digest":            l.digest,
		"C_DigestUpdate":      l.digestUpdate,
		"C_DigestFinal":       l.digestFinal,
		"C_SignInit":          l.signInit,
		"C_Sign":              l.sign,
		"C_SeedRandom":        l.seedRandom,
		"C_GenerateRandom":    l.generateRandom,
	}
	return l
}

// Name returns the library name
func (l *Library) Name() string {
	return l.name
}

// Lookup returns the exported function
func (l *Library) Lookup(name string) (native.Proc, error) {
	f, ok := l.funcs[name]
	if !ok || l.missing[name] {
		return nil, errors.Wrapf(ckr.ErrSymbolNotFound, "%s", name)
	}
	return native.ProcFunc(func(args ...uintptr) uintptr {
		l.lock.Lock()
		defer l.lock.Unlock()

		l.calls[name]++
		if l.faults[name] {
			panic("fault in " + name)
		}

		a := make([]uintptr, native.MaxArgs)
		copy(a, args)
		rv := f(a)
		if rv != ckr.OK {
			logger.KV(xlog.TRACE, "func", name, "rv", rv.Name())
		}
		return uintptr(rv)
	}), nil
}

// Close unloads the library
func (l *Library) Close() error {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.closed = true
	return nil
}

// Closed returns true if the library was unloaded
func (l *Library) Closed() bool {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.closed
}

// Initialized returns true between C_Initialize and C_Finalize
func (l *Library) Initialized() bool {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.initialized
}

// Calls returns the number of calls of the function
func (l *Library) Calls(name string) int {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.calls[name]
}

// ResetCalls clears the call counters
func (l *Library) ResetCalls() {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.calls = map[string]int{}
}

// CalledFunctions returns the names of called functions
func (l *Library) CalledFunctions() []string {
	l.lock.Lock()
	defer l.lock.Unlock()
	list := make([]string, 0, len(l.calls))
	for n := range l.calls {
		list = append(list, n)
	}
	sort.Strings(list)
	return list
}

// OpenSessions returns the number of open sessions
func (l *Library) OpenSessions() int {
	l.lock.Lock()
	defer l.lock.Unlock()
	return len(l.sessions)
}

// Slot returns the slot by ID
func (l *Library) Slot(id uint) *Slot {
	if int(id) >= len(l.slots) {
		return nil
	}
	return l.slots[id]
}

// AddObject adds an object to the token in the slot and returns its handle
//
// Values must be []byte, string, bool, or an integer stored as CK_ULONG.
func (l *Library) AddObject(slotID uint, attrs map[uint]any) uint {
	l.lock.Lock()
	defer l.lock.Unlock()

	t := l.slots[slotID].Token
	o := newObject(attrs)
	o.handle = l.nextObject
	l.nextObject++
	t.objects = append(t.objects, o)
	return o.handle
}

// Memory helpers over the caller's buffers

func (l *Library) ulong(addr uintptr) uint64 {
	return l.cat.ULong(native.Memory(addr, l.cat.ULongSize()))
}

func (l *Library) putULong(addr uintptr, v uint64) {
	l.cat.PutULong(native.Memory(addr, l.cat.ULongSize()), v)
}

func (l *Library) view(name string, addr uintptr) ckabi.View {
	v, err := l.cat.View(name, native.Memory(addr, l.cat.Sizeof(name)))
	if err != nil {
		logger.Panicf("struct=%s, err=[%+v]", name, err)
	}
	return v
}

// bytesAt returns a copy of the caller's buffer, nil for a null address
func bytesAt(addr uintptr, n uint64) []byte {
	if addr == 0 {
		return nil
	}
	b := make([]byte, int(n))
	copy(b, native.Memory(addr, int(n)))
	return b
}

// output implements the length convention of variable-length results:
// a null buffer only reports the length, a short buffer fails.
// Returns true if the value was written.
func (l *Library) output(out, outLen uintptr, value []byte) (bool, ckr.Result) {
	if outLen == 0 {
		return false, ckr.ArgumentsBad
	}
	if out == 0 {
		l.putULong(outLen, uint64(len(value)))
		return false, ckr.OK
	}
	if l.ulong(outLen) < uint64(len(value)) {
		l.putULong(outLen, uint64(len(value)))
		return false, ckr.BufferTooSmall
	}
	copy(native.Memory(out, len(value)), value)
	l.putULong(outLen, uint64(len(value)))
	return true, ckr.OK
}
