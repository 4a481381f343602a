package cli

import (
	"github.com/cockroachdb/errors"
	"github.com/effective-security/cryptoki/certutil"
	"github.com/effective-security/cryptoki/crypto11"
	"github.com/effective-security/cryptoki/internal/print"
)

// CertsCmd prints certificates on the token
type CertsCmd struct {
	Slot    uint `kong:"arg" required:"" help:"slot ID"`
	PEM     bool `help:"print in PEM format"`
	Details bool `help:"print certificate details"`
}

// Run the command
func (a *CertsCmd) Run(ctx *Cli) error {
	lib, err := ctx.slot(a.Slot)
	if err != nil {
		return err
	}

	return lib.WithSession(a.Slot, false, func(s *crypto11.Session) error {
		certs, err := s.FindCertificates()
		if err != nil {
			return errors.WithMessagef(err, "failed to find certificates")
		}

		if a.PEM {
			err = certutil.EncodeToPEM(ctx.Writer(), true, certs...)
			if err != nil {
				return err
			}
		} else {
			print.Certificates(ctx.Writer(), certs, !a.Details)
		}
		return nil
	})
}
