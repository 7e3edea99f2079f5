package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mohammad-safakhou/atlast/config"
	"github.com/mohammad-safakhou/atlast/provider"
	"github.com/spf13/cobra"
)

const probePrompt = "Reply with the single word OK."

func providersCMD() *cobra.Command {
	var cfgPath string
	var probe bool
	var timeout time.Duration

	var cmd = &cobra.Command{
		Use:   "providers",
		Short: "List configured text providers and optionally probe each one",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			set, err := provider.NewSet(cfg.LLM)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			names := make([]string, 0, len(set.All))
			for name := range set.All {
				names = append(names, name)
			}
			sort.Strings(names)
			if len(names) == 0 {
				fmt.Fprintln(out, "no providers configured; riddles will come from the cache and built-in items")
				return nil
			}
			failed := 0
			for _, name := range names {
				line := fmt.Sprintf("%-12s type=%-7s roles=%s", name, cfg.LLM.Providers[name].Type, strings.Join(roles(cfg.LLM, name), ","))
				if probe {
					ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
					started := time.Now()
					reply, err := set.All[name].Generate(ctx, probePrompt)
					cancel()
					if err != nil {
						failed++
						line += fmt.Sprintf(" probe=FAIL (%v)", err)
					} else {
						line += fmt.Sprintf(" probe=ok %s %q", time.Since(started).Round(time.Millisecond), truncate(reply, 40))
					}
				}
				fmt.Fprintln(out, line)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d providers failed the probe", failed, len(names))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&probe, "probe", false, "send a one-line prompt to each provider")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "probe timeout per provider")
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config/config.json)")
	return cmd
}

func roles(cfg config.LLMConfig, name string) []string {
	var out []string
	for i, g := range cfg.Generators {
		if g == name {
			out = append(out, fmt.Sprintf("generator#%d", i+1))
		}
	}
	chain := cfg.CriticChain()
	for i, c := range chain {
		if c != name {
			continue
		}
		if len(chain) == 1 {
			out = append(out, "critic")
		} else {
			out = append(out, fmt.Sprintf("critic#%d", i+1))
		}
	}
	if cfg.Proposer == name {
		out = append(out, "proposer")
	}
	if len(out) == 0 {
		out = append(out, "unused")
	}
	return out
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
