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

package config

import (
	"context"

	"github.com/BurntSushi/toml"

	"github.com/matrixorigin/relcore/pkg/common/moerr"
	"github.com/matrixorigin/relcore/pkg/logutil"
)

const (
	AllocatorGo      = "go"
	AllocatorManaged = "managed"

	ProbeLinear = "linear"
	ProbeDouble = "double"

	EstimatorExact = "exact"
	EstimatorHLL   = "hll"

	NaNEqual   = "equal"
	NaNUnequal = "unequal"

	JoinHash      = "hash"
	JoinSortMerge = "sort_merge"

	BuildAuto  = "auto"
	BuildLeft  = "left"
	BuildRight = "right"

	NullsLast  = "last"
	NullsFirst = "first"
)

const (
	defaultBlockSize     = 8192
	defaultMaxLoadFactor = 0.5
)

type DeviceConfig struct {
	// Workers is the size of the kernel worker pool, 0 means one per CPU.
	Workers int `toml:"workers"`
	// BlockSize is the number of rows or granules one kernel block covers.
	BlockSize int `toml:"block-size"`
}

type MemoryConfig struct {
	// Allocator is the output buffer strategy, go or managed.
	Allocator string `toml:"allocator"`
	// Limit bounds the output bytes outstanding, 0 is unlimited.
	Limit uint64 `toml:"limit"`
	// ScratchLimit bounds the scratch bytes one call may hold, 0 is unlimited.
	ScratchLimit int64 `toml:"scratch-limit"`
}

type HashConfig struct {
	MaxLoadFactor float64 `toml:"max-load-factor"`
	// ProbeScheme is linear or double. Double hashing needs a power of two
	// capacity.
	ProbeScheme string `toml:"probe-scheme"`
	// CapacityEstimator sizes hash tables from the build side, exact or hll.
	CapacityEstimator string `toml:"capacity-estimator"`
	NullEqual         bool   `toml:"null-equal"`
	NaN               string `toml:"nan"`
}

type JoinConfig struct {
	Strategy  string `toml:"strategy"`
	BuildSide string `toml:"build-side"`
}

type SortConfig struct {
	NullOrder string `toml:"null-order"`
}

// Config is the engine configuration. It is passed explicitly to the
// engine, nothing reads it from process wide state.
type Config struct {
	Device DeviceConfig      `toml:"device"`
	Memory MemoryConfig      `toml:"memory"`
	Hash   HashConfig        `toml:"hash"`
	Join   JoinConfig        `toml:"join"`
	Sort   SortConfig        `toml:"sort"`
	Log    logutil.LogConfig `toml:"log"`
}

// Default returns an adjusted configuration.
func Default() *Config {
	c := &Config{}
	c.Adjust()
	return c
}

// LoadFile decodes a toml file, fills defaults and validates the result.
func LoadFile(path string) (*Config, error) {
	c := &Config{}
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return nil, moerr.NewBadConfig(context.Background(), "decode %s: %v", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, moerr.NewBadConfig(context.Background(), "%s: unknown key %s", path, undecoded[0].String())
	}
	c.Adjust()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Decode is LoadFile over an in-memory document.
func Decode(data string) (*Config, error) {
	c := &Config{}
	if _, err := toml.Decode(data, c); err != nil {
		return nil, moerr.NewBadConfig(context.Background(), "decode: %v", err)
	}
	c.Adjust()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Adjust fills unset fields with their defaults.
func (c *Config) Adjust() {
	if c.Device.BlockSize == 0 {
		c.Device.BlockSize = defaultBlockSize
	}
	if c.Memory.Allocator == "" {
		c.Memory.Allocator = AllocatorGo
	}
	if c.Hash.MaxLoadFactor == 0 {
		c.Hash.MaxLoadFactor = defaultMaxLoadFactor
	}
	if c.Hash.ProbeScheme == "" {
		c.Hash.ProbeScheme = ProbeLinear
	}
	if c.Hash.CapacityEstimator == "" {
		c.Hash.CapacityEstimator = EstimatorExact
	}
	if c.Hash.NaN == "" {
		c.Hash.NaN = NaNEqual
	}
	if c.Join.Strategy == "" {
		c.Join.Strategy = JoinHash
	}
	if c.Join.BuildSide == "" {
		c.Join.BuildSide = BuildAuto
	}
	if c.Sort.NullOrder == "" {
		c.Sort.NullOrder = NullsLast
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}

// Validate checks an adjusted configuration.
func (c *Config) Validate() error {
	ctx := context.Background()
	if c.Device.Workers < 0 {
		return moerr.NewBadConfig(ctx, "device.workers %d is negative", c.Device.Workers)
	}
	if c.Device.BlockSize < 64 {
		return moerr.NewBadConfig(ctx, "device.block-size %d is below 64", c.Device.BlockSize)
	}
	if !oneOf(c.Memory.Allocator, AllocatorGo, AllocatorManaged) {
		return moerr.NewBadConfig(ctx, "memory.allocator %q not in [go, managed]", c.Memory.Allocator)
	}
	if c.Memory.ScratchLimit < 0 {
		return moerr.NewBadConfig(ctx, "memory.scratch-limit %d is negative", c.Memory.ScratchLimit)
	}
	if c.Hash.MaxLoadFactor <= 0 || c.Hash.MaxLoadFactor >= 1 {
		return moerr.NewBadConfig(ctx, "hash.max-load-factor %v not in (0, 1)", c.Hash.MaxLoadFactor)
	}
	if !oneOf(c.Hash.ProbeScheme, ProbeLinear, ProbeDouble) {
		return moerr.NewBadConfig(ctx, "hash.probe-scheme %q not in [linear, double]", c.Hash.ProbeScheme)
	}
	if !oneOf(c.Hash.CapacityEstimator, EstimatorExact, EstimatorHLL) {
		return moerr.NewBadConfig(ctx, "hash.capacity-estimator %q not in [exact, hll]", c.Hash.CapacityEstimator)
	}
	if !oneOf(c.Hash.NaN, NaNEqual, NaNUnequal) {
		return moerr.NewBadConfig(ctx, "hash.nan %q not in [equal, unequal]", c.Hash.NaN)
	}
	if !oneOf(c.Join.Strategy, JoinHash, JoinSortMerge) {
		return moerr.NewBadConfig(ctx, "join.strategy %q not in [hash, sort_merge]", c.Join.Strategy)
	}
	if !oneOf(c.Join.BuildSide, BuildAuto, BuildLeft, BuildRight) {
		return moerr.NewBadConfig(ctx, "join.build-side %q not in [auto, left, right]", c.Join.BuildSide)
	}
	if !oneOf(c.Sort.NullOrder, NullsLast, NullsFirst) {
		return moerr.NewBadConfig(ctx, "sort.null-order %q not in [last, first]", c.Sort.NullOrder)
	}
	return nil
}

func oneOf(v string, candidates ...string) bool {
	for _, c := range candidates {
		if v == c {
			return true
		}
	}
	return false
}
