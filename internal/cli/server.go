package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aiifabbf/kvs/internal/config"
	"github.com/aiifabbf/kvs/internal/engine"
	"github.com/aiifabbf/kvs/internal/server"
	"github.com/aiifabbf/kvs/internal/version"
)

// NewServerCommand builds the kvs-server command. cfg supplies the
// default address, engine name and data directory.
func NewServerCommand(cfg *config.Config) *cobra.Command {
	var addr string
	var engineName string
	cmd := &cobra.Command{
		Use:           "kvs-server",
		Short:         "Server for the kvs key-value store",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := engine.Open(engineName, cfg.DATA_DIR)
			if err != nil {
				return err
			}
			defer eng.Close()

			srv, err := server.Bind(addr, eng)
			if err != nil {
				return err
			}
			// The startup banner's destination and shape are part of
			// the CLI contract.
			fmt.Fprintf(os.Stderr, "kvs %s %s\n", version.Version, addr)
			return srv.Run()
		},
	}
	addAddrFlag(cmd.Flags(), &addr, cfg.ADDR)
	cmd.Flags().StringVar(&engineName, "engine", cfg.ENGINE, "storage engine, kvs or bolt")
	return cmd
}
