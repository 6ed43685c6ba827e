package main

import (
	"github.com/alecthomas/kong"
)

// version is set by ldflags during build
var version = "dev"

type CLI struct {
	Version       kong.VersionFlag `short:"v" help:"Show version"`
	Serve         ServeCmd         `cmd:"" help:"Run the blackjack round server"`
	Shoe          ShoeCmd          `cmd:"" help:"Print the shoe a hash deals"`
	DecodeActions DecodeActionsCmd `cmd:"decode-actions" help:"Decode a round's action hash"`
	Commit        CommitCmd        `cmd:"" help:"Fold round values into a server seed"`
	Verify        VerifyCmd        `cmd:"" help:"Re-derive a round's commitment and shoe offline"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("blackjack"),
		kong.Description("Provably fair blackjack round engine"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version,
		},
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
