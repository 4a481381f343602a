package cli

import (
	"encoding/hex"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/cryptoki/cryptoprov"
	"github.com/effective-security/cryptoki/internal/print"
)

// KeysCmd prints keys, the user PIN is taken from --cfg
type KeysCmd struct {
	Token  string `help:"specifies slot token (optional)"`
	Serial string `help:"specifies slot serial (optional)"`
	Prefix string `help:"specifies key label prefix (optional)"`
}

// Run the command
func (a *KeysCmd) Run(ctx *Cli) error {
	var keyProv cryptoprov.KeyManager
	lib, err := ctx.P11()
	if err != nil {
		return err
	}
	keyProv = lib

	isDefaultSlot := a.Serial == "" && a.Token == ""
	tokens, err := keyProv.EnumTokens(isDefaultSlot)
	if err != nil {
		return errors.WithMessagef(err, "failed to list tokens")
	}

	out := ctx.Writer()
	for _, token := range tokens {
		if !isDefaultSlot && token.Serial != a.Serial && token.Label != a.Token {
			continue
		}
		print.Tokens(out, []cryptoprov.TokenInfo{token})

		keys, err := keyProv.EnumKeys(token.SlotID, a.Prefix)
		if err != nil {
			return errors.WithMessagef(err, "failed to list keys on slot %d", token.SlotID)
		}
		if len(keys) == 0 {
			fmt.Fprintln(out, "no keys found")
		}
		print.Keys(out, keys)
	}
	return nil
}

// KeyInfoCmd prints the key info, the user PIN is taken from --cfg
type KeyInfoCmd struct {
	ID     string `kong:"arg" required:"" help:"hex encoded key ID"`
	Slot   int    `help:"slot ID, the configured token if negative" default:"-1"`
	Public bool   `help:"print Public Key"`
}

// Run the command
func (a *KeyInfoCmd) Run(ctx *Cli) error {
	id, err := hex.DecodeString(a.ID)
	if err != nil {
		return errors.WithMessagef(err, "invalid key ID")
	}

	var keyProv cryptoprov.KeyManager
	lib, err := ctx.P11()
	if err != nil {
		return err
	}
	keyProv = lib

	slotID := keyProv.CurrentSlotID()
	if a.Slot >= 0 {
		slotID = uint(a.Slot)
	}

	key, err := keyProv.KeyInfo(slotID, string(id), a.Public)
	if err != nil {
		return errors.WithMessagef(err, "failed to get key on slot %d", slotID)
	}
	print.KeyInfo(ctx.Writer(), key)
	return nil
}
