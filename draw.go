package main

import (
	"fmt"
	"io"
	"math/rand/v2"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Seednode/secretsanta/exchange"
)

// rosterFile is the on-disk format read by the draw command.
type rosterFile struct {
	Participants []struct {
		Name      string   `yaml:"name"`
		Excluding []string `yaml:"excluding"`
	} `yaml:"participants"`
}

func loadRosterFile(r io.Reader) (*exchange.Roster, error) {
	var f rosterFile

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parsing roster: %w", err)
	}

	roster, err := exchange.NewRoster()
	if err != nil {
		return nil, err
	}
	for _, p := range f.Participants {
		if err := roster.Add(exchange.NewParticipant(p.Name, p.Excluding...)); err != nil {
			return nil, fmt.Errorf("parsing roster: %w", err)
		}
	}

	return roster, nil
}

func writeDrawTable(w io.Writer, result []exchange.Participant) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Giver", "Recipient"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, p := range result {
		table.Append([]string{p.Name, p.GivingTo})
	}

	table.Render()
}

func newDrawCmd(cfg *Config, v *viper.Viper) *cobra.Command {
	var seed uint64

	cmd := &cobra.Command{
		Use:   "draw FILE",
		Short: "Draw assignments for a roster file and print them.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.maxAttempts < 0 {
				return fmt.Errorf("invalid maximum attempts (must be 0 or greater): %d", cfg.maxAttempts)
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			roster, err := loadRosterFile(f)
			if err != nil {
				return err
			}

			var opts []exchange.Option
			if cmd.Flags().Changed("seed") || v.IsSet("seed") {
				opts = append(opts, exchange.WithRand(rand.New(rand.NewPCG(seed, seed))))
			}

			result, stats, err := cfg.engine(opts...).AssignContext(cmd.Context(), roster)
			if err != nil {
				return err
			}

			logf(cfg, "DRAW: %d participants from %s (attempts: %d, fallback: %t)",
				len(result), args[0], stats.Attempts, stats.Fallback)

			writeDrawTable(cmd.OutOrStdout(), result)

			return nil
		},
	}

	fs := cmd.Flags()
	fs.Uint64Var(&seed, "seed", 0, "seed for a reproducible draw (env: SECRETSANTA_SEED)")

	bindFlags(v, fs)

	return cmd
}
