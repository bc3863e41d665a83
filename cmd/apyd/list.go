package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"apyd/internal/manager"
	"apyd/internal/registry"
)

func newPairsCmd(opts *rootOptions) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "pairs",
		Short: "Print installed pairs (or analyzers, generators, taggers)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			k, ok := registry.ParseKind(kind)
			if !ok {
				return fmt.Errorf("unknown kind %q: want pairs, analyzers, generators or taggers", kind)
			}
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			reg, _, err := scanRegistry(cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, name := range reg.Names(k) {
				md, _ := reg.Lookup(k, name)
				if k == registry.Pairs {
					fmt.Fprintln(out, name)
					continue
				}
				fmt.Fprintf(out, "%s\t%s\n", name, md.Name)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&kind, "kind", "k", string(registry.Pairs), "pairs, analyzers, generators or taggers")
	return cmd
}

func newPathsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "paths <src>",
		Short: "Print multi-hop translation paths from a source language",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			reg, _, err := scanRegistry(cfg)
			if err != nil {
				return err
			}
			mgr := manager.NewWithConfig(manager.ManagerConfig{Registry: reg, Logger: zerolog.Nop()})
			defer mgr.Close()

			paths := mgr.Paths(args[0])
			dsts := make([]string, 0, len(paths))
			for dst := range paths {
				dsts = append(dsts, dst)
			}
			sort.Strings(dsts)
			out := cmd.OutOrStdout()
			for _, dst := range dsts {
				fmt.Fprintf(out, "%s\t%s\n", dst, strings.Join(paths[dst], " > "))
			}
			return nil
		},
	}
}
