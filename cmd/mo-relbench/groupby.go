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
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/matrixorigin/relcore/pkg/common/moerr"
	"github.com/matrixorigin/relcore/pkg/container/vector"
	"github.com/matrixorigin/relcore/pkg/logutil"
	"github.com/matrixorigin/relcore/pkg/sql/colexec/aggexec"
	"github.com/matrixorigin/relcore/pkg/testutil"
)

func parseOp(s string) (aggexec.Op, error) {
	for _, op := range []aggexec.Op{aggexec.Sum, aggexec.Min, aggexec.Max, aggexec.Count, aggexec.Mean} {
		if op.String() == s {
			return op, nil
		}
	}
	return 0, moerr.NewInvalidInputNoCtx("reduction %q not in [sum, min, max, count, mean]", s)
}

func groupByCommand(opts *benchOptions) *cobra.Command {
	var opName string
	cmd := &cobra.Command{
		Use:   "groupby",
		Short: "Reduce a generated value column grouped by a generated key column",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			op, err := parseOp(opName)
			if err != nil {
				return err
			}
			ctx := context.Background()
			e, err := opts.start(ctx)
			if err != nil {
				return err
			}
			defer func() {
				err = multierr.Append(err, e.Close())
			}()

			r := rand.New(rand.NewSource(opts.seed))
			keys := testutil.GenKeys(r, opts.keyGen())
			values := testutil.GenValues(r, opts.rows)

			start := time.Now()
			g, err := e.GroupBy(ctx, []*vector.Vector{keys}, values, op)
			if err != nil {
				return err
			}
			groups := g.Len()
			g.Free()
			elapsed := time.Since(start)

			logutil.Info("group by",
				zap.Stringer("op", op),
				logutil.RowsField("rows", opts.rows),
				logutil.RowsField("groups", groups),
				zap.Duration("elapsed", elapsed))
			fmt.Fprintf(cmd.OutOrStdout(), "groupby %s rows=%d groups=%d elapsed=%s\n", op, opts.rows, groups, elapsed)
			return nil
		},
	}
	cmd.Flags().StringVar(&opName, "op", "sum", "reduction: sum, min, max, count or mean")
	return cmd
}
