package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"mute/internal/blob"
	"mute/internal/cache"
	"mute/internal/catalog"
	"mute/internal/shard"
	"mute/internal/survival"
)

func newPropagateCmd(a *app) *cobra.Command {
	var seed int64
	var job int
	cmd := &cobra.Command{
		Use:   "propagate",
		Short: "Sweep the grid and write the underground energies as shard --job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tbl, err := a.coord.Propagate(cmd.Context(), cache.PropagateOptions{
				Seed:   seed,
				Job:    job,
				Output: a.cfg.Output,
				Force:  a.flags.force,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d muons survived.\n", tbl.Total(), a.cfg.MuonCount*a.cfg.Cells())
			return nil
		},
	}
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed of the sweep")
	cmd.Flags().IntVar(&job, "job", 0, "job array index naming the shard")
	return cmd
}

func newLoadCmd(a *app) *cobra.Command {
	var shards int
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Merge shards 0..--shards-1 of the configured medium, density and muon count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tbl, err := a.coord.LoadRaw(cmd.Context(), shards)
			if errors.Is(err, shard.ErrNoShards) {
				fmt.Fprintln(cmd.OutOrStdout(), "Underground energies not loaded.")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d underground energies from %d shards.\n", tbl.Total(), shards)
			return nil
		},
	}
	cmd.Flags().IntVar(&shards, "shards", 1, "number of shards to merge")
	return cmd
}

func newCalcCmd(a *app) *cobra.Command {
	var seed int64
	cmd := &cobra.Command{
		Use:   "calc",
		Short: "Build the survival probability tensor from underground energies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.coord.Calculate(cmd.Context(), cache.CalculateOptions{
				Seed:   seed,
				Output: a.cfg.Output,
				Force:  a.flags.force,
			})
			if err != nil {
				return err
			}
			return a.report(cmd.OutOrStdout(), res, false)
		},
	}
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed used when a sweep is needed")
	return cmd
}

func newTensorCmd(a *app) *cobra.Command {
	var seed int64
	var dump bool
	cmd := &cobra.Command{
		Use:   "tensor",
		Short: "Get the survival probability tensor, from cache when possible",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.coord.Tensor(cmd.Context(), cache.TensorOptions{Seed: seed, Force: a.flags.force})
			if err != nil {
				return err
			}
			return a.report(cmd.OutOrStdout(), res, dump)
		},
	}
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed used when a sweep is needed")
	cmd.Flags().BoolVar(&dump, "print", false, "print the tensor rows")
	return cmd
}

func (a *app) report(w io.Writer, res cache.Result, dump bool) error {
	if res.Missing() {
		_, err := fmt.Fprintln(w, "Survival probabilities not calculated.")
		return err
	}
	if dump {
		return survival.Write(w, res.Tensor, a.cfg.Energies, a.cfg.SlantDepths)
	}
	ne, nx, nu := res.Tensor.Shape()
	_, err := fmt.Fprintf(w, "Survival probabilities for %s: %d x %d x %d (%s).\n", a.cfg.Key(), ne, nx, nu, res.Outcome)
	return err
}

func newGridsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "grids FILE",
		Short: "Print the surface energies, slant depths and underground energies of a tensor file",
		Long: `grids reads FILE from the local filesystem when it exists there, and otherwise
looks it up by base name among the stored survival probability files.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rc, err := a.openTensorFile(cmd, args[0])
			if err != nil {
				return err
			}
			defer rc.Close()
			g, err := survival.ReadGrids(rc)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, axis := range []struct {
				name string
				vals []float64
			}{
				{"surface energies", g.SurfaceEnergies},
				{"slant depths", g.SlantDepths},
				{"underground energies", g.UndergroundEnergies},
			} {
				if _, err := fmt.Fprintf(out, "This file has %d %s:\n%s\n", len(axis.vals), axis.name, shard.FormatLine(axis.vals)); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func (a *app) openTensorFile(cmd *cobra.Command, name string) (io.ReadCloser, error) {
	if st, err := os.Stat(name); err == nil && !st.IsDir() {
		return os.Open(name)
	}
	return a.artifacts.OpenTensorFile(cmd.Context(), path.Base(name))
}

func newRunsCmd(a *app) *cobra.Command {
	var all, urls bool
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List the shards and tensors recorded for the configured key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var filter catalog.Filter
			if !all {
				key := a.cfg.Key()
				filter.Key = &key
			}
			runs, err := a.runs.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			header := "ID\tKIND\tKEY\tJOB\tSEED\tLINES\tSURVIVORS\tBLOB\tCREATED"
			if urls {
				header += "\tURL"
			}
			fmt.Fprintln(tw, header)
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s",
					r.ID, r.Kind, r.Key(), r.JobIndex, r.Seed, r.Lines, r.Survivors, r.BlobKey, r.CreatedAt.Format(time.RFC3339))
				if urls {
					link, err := a.artifacts.URL(cmd.Context(), r.BlobKey)
					switch {
					case errors.Is(err, blob.ErrUnsupported):
						link = "-"
					case err != nil:
						return err
					}
					fmt.Fprintf(tw, "\t%s", link)
				}
				fmt.Fprintln(tw)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "list runs of every key")
	cmd.Flags().BoolVar(&urls, "urls", false, "add a column linking to each stored artifact")
	return cmd
}
