package crypto11

import (
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/cryptoki/ckr"
	"github.com/effective-security/cryptoki/cryptoki"
	"github.com/effective-security/cryptoki/cryptoprov"
	"github.com/effective-security/cryptoki/native"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/cryptoki", "crypto11")

// EnvLibraryName is the environment variable with the name of the middleware
const EnvLibraryName = "CRYPTOKI_NAME"

// SlotTokenInfo describes a slot with a token
type SlotTokenInfo struct {
	id           uint
	description  string
	label        string
	manufacturer string
	model        string
	serial       string
	flags        uint
}

// ID returns the slot ID
func (s *SlotTokenInfo) ID() uint {
	return s.id
}

// Label returns the token label
func (s *SlotTokenInfo) Label() string {
	return s.label
}

// Serial returns the token serial number
func (s *SlotTokenInfo) Serial() string {
	return s.serial
}

// PKCS11Lib is a loaded PKCS#11 module.
//
// The module is initialized once and finalized once, the lifecycle
// is guarded by the lock.
type PKCS11Lib struct {
	Ctx    *cryptoki.Ctx
	Config cryptoprov.TokenConfig
	// Slot is the selected slot, nil if no token is present
	Slot *SlotTokenInfo

	// findBatch is the batch size of object searches
	findBatch int

	lock        sync.Mutex
	initialized bool
	closed      bool
}

// AttrFindBatch is the configuration attribute with the batch size of object searches
const AttrFindBatch = "FindBatch"

// LibraryName returns the name of the middleware from the environment,
// or the default name
func LibraryName() string {
	name := os.Getenv(EnvLibraryName)
	return values.Select(name != "", name, native.DefaultLibraryName)
}

// Init loads the library specified by the configuration and selects the token
func Init(cfg cryptoprov.TokenConfig) (*PKCS11Lib, error) {
	name := LibraryName()
	if cfg != nil && cfg.Path() != "" {
		name = cfg.Path()
	}

	ctx, err := cryptoki.Open(name)
	if err != nil {
		return nil, errors.WithMessagef(err, "unable to load PKCS#11 module: %s", name)
	}

	lib, err := Configure(cfg, ctx)
	if err != nil {
		_ = ctx.Close()
		return nil, err
	}
	return lib, nil
}

// ConfigureFromFile loads the configuration file and initializes the library
func ConfigureFromFile(cfgfile string) (*PKCS11Lib, error) {
	cfg, err := cryptoprov.LoadTokenConfig(cfgfile)
	if err != nil {
		return nil, err
	}
	return Init(cfg)
}

// Configure initializes the module bound to ctx and selects the token.
// The configuration may be nil, then the first slot with a token is selected.
func Configure(cfg cryptoprov.TokenConfig, ctx *cryptoki.Ctx) (*PKCS11Lib, error) {
	lib := &PKCS11Lib{
		Ctx:       ctx,
		Config:    cfg,
		findBatch: DefaultFindBatch,
	}
	if cfg != nil {
		attrs, err := cryptoprov.ParseAttributes(cfg.Attributes())
		if err != nil {
			return nil, err
		}
		if v, ok := attrs[AttrFindBatch]; ok {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > MaxFindBatch {
				return nil, errors.Errorf("invalid %s attribute: %q", AttrFindBatch, v)
			}
			lib.findBatch = n
		}
	}
	if err := lib.Initialize(); err != nil {
		return nil, err
	}

	slot, err := lib.selectSlot()
	if err != nil {
		_ = lib.Finalize()
		return nil, err
	}
	lib.Slot = slot
	if slot != nil {
		logger.KV(xlog.DEBUG,
			"slot", slot.id,
			"label", slot.label,
			"serial", slot.serial,
			"manufacturer", slot.manufacturer)
	}
	return lib, nil
}

// Initialize initializes the module, if not initialized yet.
// The module initialized by another user in the process is accepted.
func (p11lib *PKCS11Lib) Initialize() error {
	p11lib.lock.Lock()
	defer p11lib.lock.Unlock()

	if p11lib.closed {
		return errors.New("module is closed")
	}
	if p11lib.initialized {
		return nil
	}
	err := p11lib.Ctx.Initialize()
	if ckr.Is(err, ckr.CryptokiAlreadyInitialized) {
		logger.KV(xlog.DEBUG, "reason", "already_initialized")
		err = nil
	}
	if err != nil {
		return errors.WithMessage(err, "failed to initialize module")
	}
	p11lib.initialized = true
	return nil
}

// Initialized returns true if the module is initialized
func (p11lib *PKCS11Lib) Initialized() bool {
	p11lib.lock.Lock()
	defer p11lib.lock.Unlock()
	return p11lib.initialized
}

// Finalize finalizes the module, if initialized
func (p11lib *PKCS11Lib) Finalize() error {
	p11lib.lock.Lock()
	defer p11lib.lock.Unlock()
	return p11lib.finalize()
}

func (p11lib *PKCS11Lib) finalize() error {
	if !p11lib.initialized {
		return nil
	}
	p11lib.initialized = false
	if err := p11lib.Ctx.Finalize(); err != nil {
		return errors.WithMessage(err, "failed to finalize module")
	}
	return nil
}

// Close finalizes the module and unloads the library.
// Subsequent calls are no-op.
func (p11lib *PKCS11Lib) Close() error {
	p11lib.lock.Lock()
	defer p11lib.lock.Unlock()

	if p11lib.closed {
		return nil
	}
	p11lib.closed = true

	err := p11lib.finalize()
	if cerr := p11lib.Ctx.Close(); cerr != nil && err == nil {
		err = errors.WithStack(cerr)
	}
	return err
}

// Manufacturer returns manufacturer of the configured token
func (p11lib *PKCS11Lib) Manufacturer() string {
	var m string
	if p11lib.Config != nil {
		m = p11lib.Config.Manufacturer()
	}
	if m == "" && p11lib.Slot != nil {
		m = p11lib.Slot.manufacturer
	}
	return m
}

// Model returns model of the configured token
func (p11lib *PKCS11Lib) Model() string {
	var m string
	if p11lib.Config != nil {
		m = p11lib.Config.Model()
	}
	if m == "" && p11lib.Slot != nil {
		m = p11lib.Slot.model
	}
	return m
}

// selectSlot returns the configured slot, or the token with matching serial
// or label, or the first slot with a token
func (p11lib *PKCS11Lib) selectSlot() (*SlotTokenInfo, error) {
	list, err := p11lib.TokensInfo()
	if err != nil {
		return nil, err
	}

	var slotID uint
	var bySlot bool
	var serial, label string
	if cfg := p11lib.Config; cfg != nil {
		slotID, bySlot = cfg.Slot()
		serial = cfg.TokenSerial()
		label = cfg.TokenLabel()
	}

	switch {
	case bySlot:
		for _, ti := range list {
			if ti.id == slotID {
				return ti, nil
			}
		}
		return nil, errors.Errorf("no token in slot %d", slotID)
	case serial != "" || label != "":
		for _, ti := range list {
			if (serial != "" && ti.serial == serial) ||
				(serial == "" && ti.label == label) {
				return ti, nil
			}
		}
		return nil, errors.Errorf("no slot with serial %q or label %q", serial, label)
	case len(list) > 0:
		return list[0], nil
	}
	logger.KV(xlog.DEBUG, "reason", "no_token")
	return nil, nil
}

// TokensInfo returns list of slots with a token
func (p11lib *PKCS11Lib) TokensInfo() ([]*SlotTokenInfo, error) {
	list := []*SlotTokenInfo{}
	slots, err := p11lib.Ctx.GetSlotList(true)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	logger.Tracef("slots=%d", len(slots))

	for _, slotID := range slots {
		si, err := p11lib.Ctx.GetSlotInfo(slotID)
		if err != nil {
			return nil, errors.WithMessagef(err, "GetSlotInfo: %d", slotID)
		}
		ti, err := p11lib.Ctx.GetTokenInfo(slotID)
		if err != nil {
			logger.Errorf(
				"reason=GetTokenInfo, slotID=%d, ManufacturerID=%q, SlotDescription=%q, err=[%+v]",
				slotID,
				trim(si.ManufacturerID),
				trim(si.SlotDescription),
				err,
			)
			continue
		}
		list = append(list, &SlotTokenInfo{
			id:           slotID,
			description:  trim(si.SlotDescription),
			label:        trim(ti.Label),
			manufacturer: trim(ti.ManufacturerID),
			model:        trim(ti.Model),
			serial:       trim(ti.SerialNumber),
			flags:        ti.Flags,
		})
	}
	return list, nil
}

// CurrentSlotID returns current slot ID
func (p11lib *PKCS11Lib) CurrentSlotID() uint {
	if p11lib.Slot == nil {
		return 0
	}
	return p11lib.Slot.id
}

// trim removes the blank padding of fixed-width text fields
func trim(s string) string {
	return strings.TrimRight(s, " \x00")
}
