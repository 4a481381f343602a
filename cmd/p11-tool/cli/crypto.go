package cli

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/cryptoki/certutil"
	"github.com/effective-security/cryptoki/crypto11"
)

const digestChunkSize = 4096

// SignCmd signs a file with a private key on the token
type SignCmd struct {
	Slot  uint   `kong:"arg" required:"" help:"slot ID"`
	Pin   string `kong:"arg" required:"" help:"user PIN"`
	In    string `kong:"arg" required:"" help:"file to sign, or - for stdin"`
	Out   string `help:"output file for the signature, base64 encoded signature is printed if not set"`
	ID    string `help:"hex encoded ID of the key"`
	Label string `help:"label of the key"`
	Alg   string `help:"signature algorithm" default:"SHA256withRSA"`
	Chain string `help:"output file for the certificate chain of the key"`
}

// Run the command
func (a *SignCmd) Run(ctx *Cli) error {
	mech, ok := crypto11.SignMechanisms[a.Alg]
	if !ok {
		return errors.Errorf("unsupported signature algorithm: %s, expected one of: %s", a.Alg, names(crypto11.SignMechanisms))
	}
	id, err := hex.DecodeString(a.ID)
	if err != nil {
		return errors.WithMessagef(err, "invalid key ID")
	}
	data, err := ctx.readInput(a.In)
	if err != nil {
		return err
	}

	lib, err := ctx.slot(a.Slot)
	if err != nil {
		return err
	}
	s, err := lib.Login(a.Slot, crypto11.UserUser, a.Pin)
	if err != nil {
		return err
	}
	defer s.Close()

	key, err := s.FindPrivateKey(id, a.Label)
	if err != nil {
		return err
	}

	if a.Chain != "" {
		signer, err := crypto11.NewSigner(s, id, a.Label)
		if err != nil {
			return err
		}
		pem, err := certutil.EncodeToPEMString(true, signer.Chain()...)
		if err != nil {
			return err
		}
		if err = os.WriteFile(a.Chain, []byte(pem+"\n"), 0o644); err != nil {
			return errors.WithStack(err)
		}
	}

	sig, err := lib.Sign(s, key, mech, data)
	if err != nil {
		return err
	}

	if a.Out != "" {
		return errors.WithStack(os.WriteFile(a.Out, sig, 0o644))
	}
	fmt.Fprintln(ctx.Writer(), base64.StdEncoding.EncodeToString(sig))
	return nil
}

// DigestCmd prints the digest of a file computed by the token
type DigestCmd struct {
	Slot uint   `kong:"arg" required:"" help:"slot ID"`
	In   string `kong:"arg" required:"" help:"file to digest, or - for stdin"`
	Alg  string `help:"digest algorithm" default:"SHA-256"`
}

// Run the command
func (a *DigestCmd) Run(ctx *Cli) error {
	mech, ok := crypto11.DigestMechanisms[a.Alg]
	if !ok {
		return errors.Errorf("unsupported digest algorithm: %s, expected one of: %s", a.Alg, names(crypto11.DigestMechanisms))
	}
	data, err := ctx.readInput(a.In)
	if err != nil {
		return err
	}

	lib, err := ctx.slot(a.Slot)
	if err != nil {
		return err
	}
	return lib.WithSession(a.Slot, false, func(s *crypto11.Session) error {
		var parts [][]byte
		for len(data) > digestChunkSize {
			parts = append(parts, data[:digestChunkSize])
			data = data[digestChunkSize:]
		}
		parts = append(parts, data)

		d, err := s.DigestParts(mech, parts...)
		if err != nil {
			return err
		}
		fmt.Fprintln(ctx.Writer(), hex.EncodeToString(d))
		return nil
	})
}

// RandomCmd prints random bytes generated by the token
type RandomCmd struct {
	Slot uint `kong:"arg" required:"" help:"slot ID"`
	Size int  `help:"number of bytes" default:"32"`
}

// Run the command
func (a *RandomCmd) Run(ctx *Cli) error {
	if a.Size <= 0 {
		return errors.Errorf("invalid size: %d", a.Size)
	}
	lib, err := ctx.slot(a.Slot)
	if err != nil {
		return err
	}
	return lib.WithSession(a.Slot, false, func(s *crypto11.Session) error {
		r, err := s.GenerateRandom(a.Size)
		if err != nil {
			return err
		}
		fmt.Fprintln(ctx.Writer(), hex.EncodeToString(r))
		return nil
	})
}

func (c *Cli) readInput(name string) ([]byte, error) {
	if name == "-" {
		b, err := io.ReadAll(c.Reader())
		return b, errors.WithStack(err)
	}
	b, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.WithMessagef(err, "unable to read input")
	}
	return b, nil
}

func names(m map[string]uint) string {
	list := make([]string, 0, len(m))
	for k := range m {
		list = append(list, k)
	}
	sort.Strings(list)
	return strings.Join(list, ", ")
}
