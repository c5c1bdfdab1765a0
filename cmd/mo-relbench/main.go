// Copyright 2024 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/matrixorigin/relcore/pkg/config"
	"github.com/matrixorigin/relcore/pkg/engine"
	"github.com/matrixorigin/relcore/pkg/logutil"
	"github.com/matrixorigin/relcore/pkg/testutil"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// benchOptions are the flags shared by every benchmark.
type benchOptions struct {
	configFile string
	rows       int
	dup        int
	nullRatio  float64
	seed       int64
}

func rootCommand() *cobra.Command {
	opts := &benchOptions{}
	root := &cobra.Command{
		Use:          "mo-relbench",
		Short:        "Run column operators over synthetic data",
		SilenceUsage: true,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "engine configuration file (toml)")
	flags.IntVar(&opts.rows, "rows", 1<<20, "rows per generated column")
	flags.IntVar(&opts.dup, "dup", 4, "mean rows per distinct key")
	flags.Float64Var(&opts.nullRatio, "null-ratio", 0, "fraction of null keys")
	flags.Int64Var(&opts.seed, "seed", 1, "random seed")

	root.AddCommand(joinCommand(opts), groupByCommand(opts))
	return root
}

func (o *benchOptions) loadConfig() (*config.Config, error) {
	if o.configFile == "" {
		return config.Default(), nil
	}
	return config.LoadFile(o.configFile)
}

// start loads the configuration, installs its logger and opens an engine.
func (o *benchOptions) start(ctx context.Context) (*engine.Engine, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	logutil.SetupMOLogger(&cfg.Log)
	return engine.New(ctx, cfg)
}

func (o *benchOptions) keyGen() testutil.KeyGen {
	return testutil.KeyGen{Rows: o.rows, Dup: o.dup, NullRatio: o.nullRatio}
}
