package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aiifabbf/kvs/internal/config"
	"github.com/aiifabbf/kvs/internal/engine"
	"github.com/aiifabbf/kvs/internal/errdefs"
	"github.com/aiifabbf/kvs/internal/version"
)

// NewLocalCommand builds the kvs command: the same get/set/rm surface
// as the network client, run directly against the native engine in the
// configured data directory, no server involved.
func NewLocalCommand(cfg *config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "kvs",
		Short:         "Operate on a local kvs store",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "get KEY",
			Short: "Get the string value of a given string key",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := engine.OpenKV(cfg.DATA_DIR)
				if err != nil {
					return err
				}
				defer store.Close()
				value, ok, err := store.Get(args[0])
				if err != nil {
					return err
				}
				if !ok {
					fmt.Println(notFoundMessage)
					return nil
				}
				fmt.Println(value)
				return nil
			},
		},
		&cobra.Command{
			Use:   "set KEY VALUE",
			Short: "Set the value of a string key to a string",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := engine.OpenKV(cfg.DATA_DIR)
				if err != nil {
					return err
				}
				defer store.Close()
				return store.Set(args[0], args[1])
			},
		},
		&cobra.Command{
			Use:   "rm KEY",
			Short: "Remove a given key",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := engine.OpenKV(cfg.DATA_DIR)
				if err != nil {
					return err
				}
				defer store.Close()
				if err := store.Remove(args[0]); err != nil {
					if errdefs.IsNotFound(err) {
						store.Close()
						fmt.Println(notFoundMessage)
						os.Exit(1)
					}
					return err
				}
				return nil
			},
		},
	)
	return root
}
