package cli

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/cryptoki/internal/print"
)

// SlotsCmd prints slots
type SlotsCmd struct {
	All  bool `help:"include slots without a token"`
	Info bool `help:"print slot details"`
}

// Run the command
func (a *SlotsCmd) Run(ctx *Cli) error {
	lib, err := ctx.P11()
	if err != nil {
		return err
	}

	list, err := lib.ListSlots(!a.All)
	if err != nil {
		return errors.WithMessagef(err, "failed to list slots")
	}

	out := ctx.Writer()
	for _, id := range list {
		if !a.Info {
			fmt.Fprintln(out, id)
			continue
		}
		si, err := lib.SlotInfo(id)
		if err != nil {
			return err
		}
		print.SlotInfo(out, si)
	}
	return nil
}

// TokenCmd prints token information
type TokenCmd struct {
	Slot uint `kong:"arg" required:"" help:"slot ID"`
	JSON bool `help:"print in JSON format"`
}

// Run the command
func (a *TokenCmd) Run(ctx *Cli) error {
	lib, err := ctx.slot(a.Slot)
	if err != nil {
		return err
	}

	ti, err := lib.TokenInfo(a.Slot)
	if err != nil {
		return err
	}

	if a.JSON {
		ctx.WriteJSON(ti)
	} else {
		print.TokenInfo(ctx.Writer(), ti)
	}
	return nil
}

// IsLockedCmd prints true if the user PIN is locked
type IsLockedCmd struct {
	Slot uint `kong:"arg" required:"" help:"slot ID"`
}

// Run the command
func (a *IsLockedCmd) Run(ctx *Cli) error {
	lib, err := ctx.slot(a.Slot)
	if err != nil {
		return err
	}
	ti, err := lib.TokenInfo(a.Slot)
	if err != nil {
		return err
	}
	fmt.Fprintln(ctx.Writer(), ti.UserPinLocked())
	return nil
}

// IsSOLockedCmd prints true if the SO PIN is locked
type IsSOLockedCmd struct {
	Slot uint `kong:"arg" required:"" help:"slot ID"`
}

// Run the command
func (a *IsSOLockedCmd) Run(ctx *Cli) error {
	lib, err := ctx.slot(a.Slot)
	if err != nil {
		return err
	}
	ti, err := lib.TokenInfo(a.Slot)
	if err != nil {
		return err
	}
	fmt.Fprintln(ctx.Writer(), ti.SOPinLocked())
	return nil
}
