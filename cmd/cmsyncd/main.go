package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/nlebec/cmsync/internal/account"
	"github.com/nlebec/cmsync/internal/daemon"
	"go.uber.org/fx"
)

func main() {
	accountFlag := flag.String("account", account.DefaultName, "account name")
	flag.Parse()

	if err := account.ValidateName(*accountFlag); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{Account: *accountFlag}),
	)

	app.Run()
}
