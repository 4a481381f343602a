package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/effective-security/cryptoki/cmd/p11-tool/cli"
	"github.com/effective-security/cryptoki/internal/version"
	"github.com/effective-security/x/ctl"
)

type app struct {
	cli.Cli

	Slots      cli.SlotsCmd      `cmd:"" help:"list slots"`
	Token      cli.TokenCmd      `cmd:"" help:"print token information"`
	IsLocked   cli.IsLockedCmd   `cmd:"" name:"is-locked" help:"print true if the user PIN is locked"`
	IsSOLocked cli.IsSOLockedCmd `cmd:"" name:"is-so-locked" help:"print true if the SO PIN is locked"`
	Login      cli.LoginCmd      `cmd:"" help:"print true if the user PIN is accepted"`
	ChangePin  cli.ChangePinCmd  `cmd:"" name:"change-pin" help:"change the user PIN"`
	Unlock     cli.UnlockCmd     `cmd:"" help:"reset the user PIN with the SO PIN"`
	Certs      cli.CertsCmd      `cmd:"" help:"list certificates"`
	Keys       cli.KeysCmd       `cmd:"" help:"list private keys"`
	KeyInfo    cli.KeyInfoCmd    `cmd:"" name:"key-info" help:"print key information"`
	Sign       cli.SignCmd       `cmd:"" help:"sign a file"`
	Digest     cli.DigestCmd     `cmd:"" help:"digest a file"`
	Random     cli.RandomCmd     `cmd:"" help:"generate random bytes"`
}

func main() {
	realMain(os.Args, os.Stdout, os.Stderr, os.Exit, nil)
}

func realMain(args []string, out io.Writer, errout io.Writer, exit func(int), setup func(*cli.Cli)) {
	cl := app{
		Cli: cli.Cli{},
	}
	cl.Cli.WithErrWriter(errout).
		WithWriter(out)
	if setup != nil {
		setup(&cl.Cli)
	}

	parser, err := kong.New(&cl,
		kong.Name("p11-tool"),
		kong.Description("CLI tool for PKCS#11 tokens"),
		kong.Writers(out, errout),
		kong.Exit(exit),
		ctl.BoolPtrMapper,
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version.Current().String(),
		})
	if err != nil {
		panic(err)
	}

	ctx, err := parser.Parse(args[1:])
	parser.FatalIfErrorf(err)

	if ctx != nil {
		if cl.Debug {
			// in DEBUG more print command line
			_, _ = fmt.Fprintf(ctx.Stdout, "#\n# %s\n#\n", strings.Join(args, " "))
		}
		err = ctx.Run(&cl.Cli)
		if cerr := cl.Cli.Close(); cerr != nil && err == nil {
			err = cerr
		}
		ctx.FatalIfErrorf(err)
	}
}
