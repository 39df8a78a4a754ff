// Package cli builds the cobra command trees behind the three
// binaries: the network client, the server, and the local store CLI.
// The mains in cmd/ stay thin wrappers over these constructors.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/aiifabbf/kvs/internal/client"
	"github.com/aiifabbf/kvs/internal/config"
	"github.com/aiifabbf/kvs/internal/errdefs"
	"github.com/aiifabbf/kvs/internal/version"
)

// notFoundMessage is what the server sends for a remove of an absent
// key, and what both client paths print on stdout.
const notFoundMessage = "Key not found"

// addAddrFlag registers the --addr flag every client subcommand takes.
func addAddrFlag(flags *pflag.FlagSet, addr *string, def string) {
	flags.StringVar(addr, "addr", def, "server address as IP:PORT")
}

// NewClientCommand builds the kvs-client command tree. cfg supplies
// the default server address.
func NewClientCommand(cfg *config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "kvs-client",
		Short:         "Network client for the kvs key-value store",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newClientGetCommand(cfg),
		newClientSetCommand(cfg),
		newClientRemoveCommand(cfg),
	)
	return root
}

func newClientGetCommand(cfg *config.Config) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "get KEY",
		Short: "Get the string value of a given string key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, ok, err := client.New(addr).Get(args[0])
			if err != nil {
				return err
			}
			if !ok {
				// Absence is not a failure for get; the message still
				// goes to stdout and the exit code stays zero.
				fmt.Println(notFoundMessage)
				return nil
			}
			fmt.Println(value)
			return nil
		},
	}
	addAddrFlag(cmd.Flags(), &addr, cfg.ADDR)
	return cmd
}

func newClientSetCommand(cfg *config.Config) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Set the value of a string key to a string",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client.New(addr).Set(args[0], args[1])
		},
	}
	addAddrFlag(cmd.Flags(), &addr, cfg.ADDR)
	return cmd
}

func newClientRemoveCommand(cfg *config.Config) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "rm KEY",
		Short: "Remove a given key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := client.New(addr).Remove(args[0])
			if err != nil {
				if errdefs.IsRemote(err) && err.Error() == notFoundMessage {
					// Unlike get, a missing key here exits nonzero.
					fmt.Println(notFoundMessage)
					os.Exit(1)
				}
				return err
			}
			return nil
		},
	}
	addAddrFlag(cmd.Flags(), &addr, cfg.ADDR)
	return cmd
}
