package main

import (
	"fmt"

	"github.com/alecthomas/kong"

	"github.com/subtensorlabs/taobooks/cli"
)

var (
	// Version contains the application version number. It's set via ldflags
	// when building.
	Version = ""

	// CommitSHA contains the SHA of the commit that this application was built
	// against. It's set via ldflags when building.
	CommitSHA = ""

	flags struct {
		Version kong.VersionFlag `help:"Show version information"`
		cli.Commands
	}
)

func main() {
	ctx := kong.Parse(&flags,
		kong.Vars{
			"version": buildVersion(),
		},
		kong.Name("taobooks"),
		kong.Description("A lot-based cost basis and tax tracker for Bittensor wallets."),
		kong.UsageOnError(),
		kong.Bind(&flags.Globals),
	)

	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}

func buildVersion() string {
	if Version == "" {
		Version = "dev"
	}
	if CommitSHA == "" {
		return Version
	}
	return fmt.Sprintf("%s (%s)", Version, CommitSHA)
}
