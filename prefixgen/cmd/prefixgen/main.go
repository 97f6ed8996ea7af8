// Copyright 2025 Noctools
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// prefixgen generates router prefix filters from IRR data. It is a one-shot
// front end for the generation pipeline; the interactive menu of the wider
// toolbox drives the same pipeline through the prefixgen package.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/noctools/prefixgen/irr/render"
	"github.com/noctools/prefixgen/pkg/log"
	"github.com/noctools/prefixgen/pkg/prefix"
	"github.com/noctools/prefixgen/pkg/private/serrors"
	"github.com/noctools/prefixgen/prefixgen"
)

func main() {
	if err := newRoot().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		var ec exitCode
		if errors.As(err, &ec) {
			os.Exit(ec.code)
		}
		os.Exit(2)
	}
}

func newRoot() *cobra.Command {
	var flags struct {
		cfg        prefixgen.Config
		configFile string
		family     string
		format     string
		name       string
		timeout    time.Duration
		ttl        time.Duration
		json       bool
		noColor    bool
		logLevel   string
	}

	cmd := &cobra.Command{
		Use:   "prefixgen [flags] <target>...",
		Short: "Generate router prefix filters from IRR data",
		Example: `  prefixgen AS-EXAMPLE
  prefixgen --format cisco --family 6 AS-EXAMPLE
  prefixgen --sources RIPE --aggregate --name CUSTOMERS-IN AS64500 AS64501
  prefixgen --strict --format bird AS-EXAMPLE:AS-CUSTOMERS`,
		Long: `'prefixgen' resolves ASNs and AS-SETs through an external bgpq4-style
resolver, deduplicates and optionally aggregates the registered prefixes, and
emits a vendor-specific prefix-list or route-filter object.

A partial resolution (some members unresolvable) still produces output, with
the failed members reported, unless --strict is given. Supported output
formats: ` + fmt.Sprint(render.Formats()) + `.

On resolution or rendering errors prefixgen exits with code 2; a degraded
result exits with code 1.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := log.Setup(log.Config{Level: flags.logLevel, Console: true}); err != nil {
				return serrors.Wrap("setting up logging", err)
			}
			defer log.Flush()

			if flags.configFile != "" {
				raw, err := os.ReadFile(flags.configFile)
				if err != nil {
					return serrors.Wrap("reading config file", err)
				}
				var fileCfg prefixgen.Config
				if err := toml.Unmarshal(raw, &fileCfg); err != nil {
					return serrors.Wrap("parsing config file", err,
						"file", flags.configFile)
				}
				// Flags take precedence, the file fills in the rest.
				mergeConfig(&flags.cfg, fileCfg)
			}
			applyEnv(&flags.cfg)
			if cmd.Flags().Lookup("cache-ttl").Changed {
				flags.cfg.CacheTTL.Duration = flags.ttl
			}

			family, err := prefix.ParseFamily(flags.family)
			if err != nil {
				return err
			}
			format, err := render.ParseFormat(flags.format)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			gen, err := prefixgen.New(flags.cfg)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), flags.timeout)
			defer cancel()
			res, err := gen.Run(ctx, prefixgen.Request{
				Targets: args,
				Family:  family,
				Format:  format,
				Name:    flags.name,
			})
			if err != nil {
				return err
			}

			if flags.json {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(res); err != nil {
					return err
				}
			} else {
				printHuman(cmd, res, flags.noColor)
			}
			if res.Degraded {
				return exitCode{error: res.ResolutionErr(), code: 1}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.configFile, "config", "", "TOML configuration file")
	cmd.Flags().StringVar(&flags.family, "family", "ipv4", "address family (ipv4|ipv6)")
	cmd.Flags().StringVar(&flags.format, "format", "juniper",
		fmt.Sprintf("output format %v", render.Formats()))
	cmd.Flags().StringVar(&flags.name, "name", "",
		"filter object name (default: derived from the first target)")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 5*time.Minute,
		"deadline for the whole run")
	cmd.Flags().DurationVar(&flags.ttl, "cache-ttl", 0,
		"registry answer reuse window (default 15m)")
	cmd.Flags().StringVar(&flags.cfg.Command, "resolver", "", "resolver binary (default bgpq4)")
	cmd.Flags().StringVar(&flags.cfg.Host, "host", "",
		"whois server (default "+"whois.radb.net)")
	cmd.Flags().StringVar(&flags.cfg.Sources, "sources", "",
		"IRR source restriction, e.g. RIPE or RADB,APNIC")
	cmd.Flags().IntVar(&flags.cfg.MaxDepth, "max-depth", 0,
		"AS-SET expansion depth bound (default 10)")
	cmd.Flags().IntVar(&flags.cfg.Workers, "workers", 0,
		"concurrent resolver queries (default 4)")
	cmd.Flags().BoolVar(&flags.cfg.Strict, "strict", false,
		"fail the whole run if any member cannot be resolved")
	cmd.Flags().BoolVar(&flags.cfg.Aggregate, "aggregate", false,
		"merge contiguous and covered prefixes")
	cmd.Flags().IntVar(&flags.cfg.MaxLength4, "max-length4", 0,
		"default IPv4 max-length bound, 0 for exact-match only (common: 24)")
	cmd.Flags().IntVar(&flags.cfg.MaxLength6, "max-length6", 0,
		"default IPv6 max-length bound, 0 for exact-match only (common: 48)")
	cmd.Flags().BoolVar(&flags.json, "json", false, "write the result as JSON")
	cmd.Flags().BoolVar(&flags.noColor, "no-color", false, "disable colored output")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "error", "log level (debug|info|error)")
	return cmd
}

// mergeConfig fills fields the command line left at their zero value from the
// configuration file.
func mergeConfig(cfg *prefixgen.Config, file prefixgen.Config) {
	if cfg.Command == "" {
		cfg.Command = file.Command
	}
	if cfg.Host == "" {
		cfg.Host = file.Host
	}
	if cfg.Sources == "" {
		cfg.Sources = file.Sources
	}
	if cfg.CacheTTL.Duration == 0 {
		cfg.CacheTTL = file.CacheTTL
	}
	if cfg.MaxDepth == 0 {
		cfg.MaxDepth = file.MaxDepth
	}
	if cfg.Workers == 0 {
		cfg.Workers = file.Workers
	}
	if !cfg.Strict {
		cfg.Strict = file.Strict
	}
	if !cfg.Aggregate {
		cfg.Aggregate = file.Aggregate
	}
	if cfg.MaxLength4 == 0 {
		cfg.MaxLength4 = file.MaxLength4
	}
	if cfg.MaxLength6 == 0 {
		cfg.MaxLength6 = file.MaxLength6
	}
}

// applyEnv overlays PREFIXGEN_* environment variables on the configuration.
func applyEnv(cfg *prefixgen.Config) {
	v := viper.New()
	v.SetEnvPrefix("prefixgen")
	v.AutomaticEnv()
	for key, target := range map[string]*string{
		"command": &cfg.Command,
		"host":    &cfg.Host,
		"sources": &cfg.Sources,
	} {
		if s := v.GetString(key); s != "" && *target == "" {
			*target = s
		}
	}
}

func printHuman(cmd *cobra.Command, res *prefixgen.Result, noColor bool) {
	out := cmd.OutOrStdout()
	useColor := !noColor && isatty.IsTerminal(os.Stdout.Fd())
	warn := color.New(color.FgYellow)
	warn.DisableColor()
	if useColor {
		warn.EnableColor()
	}

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Filter", "Family", "Targets", "ASNs", "Prefixes"})
	table.Append([]string{
		res.Name,
		res.Family.String(),
		fmt.Sprint(len(res.Targets)),
		fmt.Sprint(res.ASNCount),
		fmt.Sprint(res.PrefixCount),
	})
	table.Render()

	if res.Degraded {
		warn.Fprintln(out, "Warning: partial result, unresolved members:")
		for _, f := range res.Failed {
			warn.Fprintf(out, "  %s: %s\n", f.Target, f.Reason)
		}
	}
	fmt.Fprintln(out)
	fmt.Fprint(out, res.Output)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "PeeringDB:", res.PeeringDB)
}

// exitCode carries a specific process exit code through cobra.
type exitCode struct {
	error
	code int
}
