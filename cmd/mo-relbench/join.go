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
	"bytes"
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
	"github.com/matrixorigin/relcore/pkg/sql/colexec/join"
	"github.com/matrixorigin/relcore/pkg/testutil"
)

func parseKind(s string) (join.Kind, error) {
	switch s {
	case "inner":
		return join.Inner, nil
	case "left":
		return join.Left, nil
	case "full":
		return join.Full, nil
	}
	return 0, moerr.NewInvalidInputNoCtx("join kind %q not in [inner, left, full]", s)
}

func joinCommand(opts *benchOptions) *cobra.Command {
	var (
		kind        string
		materialize bool
	)
	cmd := &cobra.Command{
		Use:   "join",
		Short: "Join two generated key columns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			k, err := parseKind(kind)
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
			left := testutil.GenKeys(r, opts.keyGen())
			right := testutil.GenKeys(r, opts.keyGen())
			payload := testutil.GenValues(r, opts.rows)
			keysL, keysR := []*vector.Vector{left}, []*vector.Vector{right}

			start := time.Now()
			var out int
			if materialize {
				cols, err := e.JoinColumns(ctx, keysL, keysR, k, keysL, []*vector.Vector{payload})
				if err != nil {
					return err
				}
				out = cols[0].Length()
				for _, col := range cols {
					col.Free()
				}
			} else {
				res, err := e.Join(ctx, keysL, keysR, k)
				if err != nil {
					return err
				}
				out = res.Len()
			}
			elapsed := time.Since(start)

			var buf bytes.Buffer
			join.String(k, e.JoinOptions(), &buf)
			logutil.Info(buf.String(),
				logutil.RowsField("rows", opts.rows),
				logutil.RowsField("out", out),
				zap.Duration("elapsed", elapsed))
			fmt.Fprintf(cmd.OutOrStdout(), "%s rows=%d out=%d elapsed=%s\n", buf.String(), opts.rows, out, elapsed)
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "inner", "join kind: inner, left or full")
	cmd.Flags().BoolVar(&materialize, "materialize", false, "gather the key and a payload column")
	return cmd
}
