package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var remoteCmd = &cobra.Command{
	Use:     "remote",
	Short:   "Manage named althist servers",
	GroupID: "system",
	// Remote subcommands only touch the local remotes file.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
}

// updateRemotes loads the remotes file, applies fn and saves the result.
// Nothing is written when fn fails.
func updateRemotes(fn func(cfg *RemotesConfig) error) error {
	cfg, err := loadRemotesConfig()
	if err != nil {
		return err
	}
	if err := fn(&cfg); err != nil {
		return err
	}
	return saveRemotesConfig(cfg)
}

func lookupRemote(cfg RemotesConfig, name string) (Remote, error) {
	r, ok := cfg.Remotes[name]
	if !ok {
		return Remote{}, fmt.Errorf("remote %q not found (see 'althist remote list')", name)
	}
	return r, nil
}

var remoteAddCmd = &cobra.Command{
	Use:   "add <name> <url>",
	Short: "Add or update a named remote",
	Example: `  althist remote add prod https://history.example.com --token s3cret --use
  althist remote add local http://localhost:8080 --grpc localhost:9090 --nats nats://localhost:4222`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		r := Remote{URL: args[1]}
		r.GRPCAddr, _ = flags.GetString("grpc")
		r.Token, _ = flags.GetString("token")
		r.NATSURL, _ = flags.GetString("nats")
		r.Description, _ = flags.GetString("description")
		use, _ := flags.GetBool("use")

		err := updateRemotes(func(cfg *RemotesConfig) error {
			cfg.Remotes[args[0]] = r
			if use {
				cfg.Active = args[0]
			}
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "remote %q -> %s\n", args[0], r.URL)
		return nil
	},
}

var remoteRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a named remote",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		err := updateRemotes(func(cfg *RemotesConfig) error {
			if _, err := lookupRemote(*cfg, args[0]); err != nil {
				return err
			}
			delete(cfg.Remotes, args[0])
			if cfg.Active == args[0] {
				cfg.Active = ""
			}
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "remote %q removed\n", args[0])
		return nil
	},
}

var remoteUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Set the active remote",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		err := updateRemotes(func(cfg *RemotesConfig) error {
			if _, err := lookupRemote(*cfg, args[0]); err != nil {
				return err
			}
			cfg.Active = args[0]
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "now using %q\n", args[0])
		return nil
	},
}

var remoteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all remotes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRemotesConfig()
		if err != nil {
			return err
		}
		if len(cfg.Remotes) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no remotes configured")
			return nil
		}
		return writeRemoteTable(cmd.OutOrStdout(), cfg)
	},
}

// writeRemoteTable prints one row per remote sorted by name, with "*"
// before the active one.
func writeRemoteTable(out io.Writer, cfg RemotesConfig) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  NAME\tURL\tGRPC\tTOKEN\tDESCRIPTION")
	for _, name := range slices.Sorted(maps.Keys(cfg.Remotes)) {
		r := cfg.Remotes[name]
		mark := ' '
		if name == cfg.Active {
			mark = '*'
		}
		fmt.Fprintf(tw, "%c %s\t%s\t%s\t%s\t%s\n", mark, name, r.URL, r.GRPCAddr, maskToken(r.Token, "..."), r.Description)
	}
	return tw.Flush()
}

var remoteShowCmd = &cobra.Command{
	Use:   "show [<name>]",
	Short: "Show details for a remote (defaults to active)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRemotesConfig()
		if err != nil {
			return err
		}
		name := cfg.Active
		if len(args) == 1 {
			name = args[0]
		}
		if name == "" {
			return fmt.Errorf("no active remote; pass a name or run 'althist remote use <name>'")
		}
		r, err := lookupRemote(cfg, name)
		if err != nil {
			return err
		}

		if name == cfg.Active {
			name += " (active)"
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		for _, row := range [][2]string{
			{"name", name},
			{"url", r.URL},
			{"grpc_addr", r.GRPCAddr},
			{"token", maskToken(r.Token, "")},
			{"nats_url", r.NATSURL},
			{"description", r.Description},
		} {
			if row[1] != "" {
				fmt.Fprintf(tw, "%s:\t%s\n", row[0], row[1])
			}
		}
		return tw.Flush()
	},
}

// maskToken keeps the first 8 characters of a token. The rest becomes
// suffix, or one asterisk per hidden character when suffix is empty.
func maskToken(tok, suffix string) string {
	const keep = 8
	if len(tok) <= keep {
		return tok
	}
	if suffix == "" {
		suffix = strings.Repeat("*", len(tok)-keep)
	}
	return tok[:keep] + suffix
}

func init() {
	f := remoteAddCmd.Flags()
	f.String("grpc", "", "gRPC address for health checks")
	f.String("token", "", "admin token for /v1/admin routes")
	f.String("nats", "", "NATS URL used by watch")
	f.String("description", "", "free-form note shown by remote list")
	f.Bool("use", false, "make this the active remote")

	remoteCmd.AddCommand(remoteAddCmd, remoteRemoveCmd, remoteListCmd, remoteUseCmd, remoteShowCmd)
}
