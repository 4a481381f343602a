package cli

import (
	"io"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/cryptoki/crypto11"
	"github.com/effective-security/cryptoki/cryptoki"
	"github.com/effective-security/cryptoki/cryptoprov"
	"github.com/effective-security/cryptoki/internal/print"
	"github.com/effective-security/x/ctl"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/cryptoki", "cli")

// Cli provides CLI context to run commands
type Cli struct {
	Version ctl.VersionFlag `name:"version" help:"Print version information and quit" hidden:""`

	Library  string `short:"L" help:"PKCS#11 library name or path, by default $CRYPTOKI_NAME or cryptoki"`
	Cfg      string `help:"Location of token config file, overrides --library" type:"path"`
	Debug    bool   `short:"D" help:"Enable debug mode"`
	LogLevel string `short:"l" help:"Set the logging level (debug|info|warn|error)" default:"error"`

	// Stdin is the source to read from, typically set to os.Stdin
	stdin io.Reader
	// Output is the destination for all output from the command, typically set to os.Stdout
	output io.Writer
	// ErrOutput is the destinaton for errors.
	// If not set, errors will be written to os.StdError
	errOutput io.Writer

	module *cryptoki.Ctx
	lib    *crypto11.PKCS11Lib
}

// Reader is the source to read from, typically set to os.Stdin
func (c *Cli) Reader() io.Reader {
	if c.stdin != nil {
		return c.stdin
	}
	return os.Stdin
}

// WithReader allows to specify a custom reader
func (c *Cli) WithReader(reader io.Reader) *Cli {
	c.stdin = reader
	return c
}

// Writer returns a writer for control output
func (c *Cli) Writer() io.Writer {
	if c.output != nil {
		return c.output
	}
	return os.Stdout
}

// WithWriter allows to specify a custom writer
func (c *Cli) WithWriter(out io.Writer) *Cli {
	c.output = out
	return c
}

// ErrWriter returns a writer for control output
func (c *Cli) ErrWriter() io.Writer {
	if c.errOutput != nil {
		return c.errOutput
	}
	return os.Stderr
}

// WithErrWriter allows to specify a custom error writer
func (c *Cli) WithErrWriter(out io.Writer) *Cli {
	c.errOutput = out
	return c
}

// WithModule allows to specify the bound PKCS#11 module,
// instead of loading the library
func (c *Cli) WithModule(module *cryptoki.Ctx) *Cli {
	c.module = module
	return c
}

// AfterApply hook sets the log level
func (c *Cli) AfterApply(app *kong.Kong, vars kong.Vars) error {
	if c.Debug {
		xlog.SetGlobalLogLevel(xlog.DEBUG)
	} else {
		val := strings.TrimLeft(c.LogLevel, "=")
		l, err := xlog.ParseLevel(strings.ToUpper(val))
		if err != nil {
			return errors.WithStack(err)
		}
		xlog.SetGlobalLogLevel(l)
	}

	return nil
}

// WriteJSON prints response to out
func (c *Cli) WriteJSON(value any) {
	print.JSON(c.Writer(), value)
}

// P11 returns the initialized PKCS#11 module
func (c *Cli) P11() (*crypto11.PKCS11Lib, error) {
	if c.lib != nil {
		return c.lib, nil
	}

	var cfg cryptoprov.TokenConfig
	if c.Cfg != "" {
		var err error
		cfg, err = cryptoprov.LoadTokenConfig(c.Cfg)
		if err != nil {
			return nil, errors.WithMessagef(err, "unable to load config")
		}
	} else {
		cfg = cryptoprov.NewTokenConfig("", values.Select(c.Library != "", c.Library, crypto11.LibraryName()), "", "")
	}

	var err error
	if c.module != nil {
		c.lib, err = crypto11.Configure(cfg, c.module)
	} else {
		c.lib, err = crypto11.Init(cfg)
	}
	if err != nil {
		return nil, err
	}
	logger.KV(xlog.DEBUG, "library", cfg.Path(), "manufacturer", c.lib.Manufacturer())
	return c.lib, nil
}

// Close finalizes the PKCS#11 module, if it was initialized
func (c *Cli) Close() error {
	if c.lib == nil {
		return nil
	}
	err := c.lib.Close()
	c.lib = nil
	return err
}

// slot returns the module, if the slot has a token
func (c *Cli) slot(slotID uint) (*crypto11.PKCS11Lib, error) {
	lib, err := c.P11()
	if err != nil {
		return nil, err
	}
	list, err := lib.ListSlots(true)
	if err != nil {
		return nil, err
	}
	for _, id := range list {
		if id == slotID {
			return lib, nil
		}
	}
	return nil, errors.Errorf("unable to find a slot with ID %d", slotID)
}
