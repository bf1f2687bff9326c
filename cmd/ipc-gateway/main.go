package main

import (
	"fmt"
	"os"

	address "github.com/filecoin-project/go-address"
	logging "github.com/ipfs/go-log/v2"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/consensus-shipyard/ipc-gateway/gateway"
	"github.com/consensus-shipyard/ipc-gateway/ipcaddr"
)

var log = logging.Logger("ipc-gateway")

func main() {
	app := &cli.App{
		Name:  "ipc-gateway",
		Usage: "inspect and compute IPC subnet addressing offline",
		Commands: []*cli.Command{
			subnetCmd,
			feeCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Errorf("%+v", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var subnetCmd = &cli.Command{
	Name:        "subnet",
	Description: "derive and inspect hierarchical subnet IDs",
	Subcommands: []*cli.Command{
		subnetNewCmd,
		subnetParentCmd,
		subnetCommonParentCmd,
	},
}

var subnetNewCmd = &cli.Command{
	Name:        "new",
	Description: "derive the subnet ID of a child actor under a parent subnet",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "parent", Required: true, Usage: "parent subnet ID, e.g. /root"},
		&cli.StringFlag{Name: "actor", Required: true, Usage: "the child subnet actor's address"},
	},
	Action: func(cctx *cli.Context) error {
		parent, err := ipcaddr.ParseSubnetID(cctx.String("parent"))
		if err != nil {
			return xerrors.Errorf("invalid parent subnet ID: %w", err)
		}
		actor, err := address.NewFromString(cctx.String("actor"))
		if err != nil {
			return xerrors.Errorf("invalid actor address: %w", err)
		}
		fmt.Println(ipcaddr.NewSubnetID(parent, actor).String())
		return nil
	},
}

var subnetParentCmd = &cli.Command{
	Name:        "parent",
	Description: "print a subnet ID's immediate parent",
	ArgsUsage:   "<subnet-id>",
	Action: func(cctx *cli.Context) error {
		if cctx.Args().Len() != 1 {
			return xerrors.New("expected exactly one subnet ID argument")
		}
		id, err := ipcaddr.ParseSubnetID(cctx.Args().First())
		if err != nil {
			return xerrors.Errorf("invalid subnet ID: %w", err)
		}
		parent, has := id.Parent()
		if !has {
			return xerrors.New("the root network has no parent")
		}
		fmt.Println(parent.String())
		return nil
	},
}

var subnetCommonParentCmd = &cli.Command{
	Name:        "common-parent",
	Description: "print the lowest common ancestor of two subnet IDs",
	ArgsUsage:   "<subnet-id-a> <subnet-id-b>",
	Action: func(cctx *cli.Context) error {
		if cctx.Args().Len() != 2 {
			return xerrors.New("expected exactly two subnet ID arguments")
		}
		a, err := ipcaddr.ParseSubnetID(cctx.Args().Get(0))
		if err != nil {
			return xerrors.Errorf("invalid subnet ID %q: %w", cctx.Args().Get(0), err)
		}
		b, err := ipcaddr.ParseSubnetID(cctx.Args().Get(1))
		if err != nil {
			return xerrors.Errorf("invalid subnet ID %q: %w", cctx.Args().Get(1), err)
		}
		fmt.Println(a.CommonParent(b).String())
		return nil
	},
}

var feeCmd = &cli.Command{
	Name:        "fee",
	Description: "print the fixed cross-message fee deducted by the gateway actor",
	Action: func(cctx *cli.Context) error {
		fmt.Println(gateway.CrossMsgFee.String())
		return nil
	},
}
