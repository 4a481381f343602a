package cli

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// LoginCmd prints true if the user PIN is accepted
type LoginCmd struct {
	Slot uint   `kong:"arg" required:"" help:"slot ID"`
	Pin  string `kong:"arg" required:"" help:"user PIN"`
}

// Run the command
func (a *LoginCmd) Run(ctx *Cli) error {
	lib, err := ctx.slot(a.Slot)
	if err != nil {
		return err
	}
	ok, err := lib.CheckPin(a.Slot, a.Pin)
	if err != nil {
		return err
	}
	fmt.Fprintln(ctx.Writer(), ok)
	return nil
}

// ChangePinCmd changes the user PIN
type ChangePinCmd struct {
	Slot   uint   `kong:"arg" required:"" help:"slot ID"`
	Pin    string `kong:"arg" required:"" help:"current user PIN"`
	NewPin string `kong:"arg" required:"" help:"new user PIN"`
}

// Run the command
func (a *ChangePinCmd) Run(ctx *Cli) error {
	lib, err := ctx.slot(a.Slot)
	if err != nil {
		return err
	}
	if err = lib.ChangePin(a.Slot, a.Pin, a.NewPin); err != nil {
		return errors.WithMessagef(err, "failed to change PIN")
	}
	return nil
}

// UnlockCmd resets the user PIN with the SO PIN
type UnlockCmd struct {
	Slot   uint   `kong:"arg" required:"" help:"slot ID"`
	SOPin  string `kong:"arg" required:"" help:"security officer PIN"`
	NewPin string `kong:"arg" required:"" help:"new user PIN"`
}

// Run the command
func (a *UnlockCmd) Run(ctx *Cli) error {
	lib, err := ctx.slot(a.Slot)
	if err != nil {
		return err
	}
	if err = lib.Unlock(a.Slot, a.SOPin, a.NewPin); err != nil {
		return errors.WithMessagef(err, "failed to unlock")
	}
	return nil
}
