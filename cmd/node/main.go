// Copyright © 2020 AMIS Technologies
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

// Command node starts a Prover: it derives a trustless discriminant
// and generator from a seed, owns a HyperTensor (fresh or reloaded
// from a snapshot), and serves GetProof/GetGlobalRoot/RegisterUser
// requests over a length-delimited TCP listener.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/getamis/sirius/log"

	"github.com/getamis/htp/crypto/classgroup"
	"github.com/getamis/htp/crypto/params"
	"github.com/getamis/htp/internal/herr"
	"github.com/getamis/htp/internal/persist"
	"github.com/getamis/htp/internal/prover"
	"github.com/getamis/htp/internal/tensor"
)

// DiscriminantBits is the bit size of |Δ| this node derives from its
// seed. Not part of the wire protocol, but FromSeed's output depends on
// it: two nodes sharing a seed derive the same Δ only when they use the
// same bit size, so it is fixed rather than configurable.
const DiscriminantBits = 1024

const minSeedLen = 32

var cmd = &cobra.Command{
	Use:   "node",
	Short: "Start a HyperTensor accumulator Prover",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgPath, _ := cmd.Flags().GetString("config"); cfgPath != "" {
			viper.SetConfigFile(cfgPath)
			viper.SetConfigType("yaml")
			if err := viper.ReadInConfig(); err != nil {
				return err
			}
		}
		return viper.BindPFlags(cmd.Flags())
	},
	RunE: run,
}

func init() {
	cmd.Flags().String("config", "", "node YAML config file path")
	cmd.Flags().String("bind", "", "address to listen on, e.g. 127.0.0.1:9443")
	cmd.Flags().String("seed", "", "seed string, at least 32 bytes, used to derive the discriminant")
	cmd.Flags().Int("dim", 4, "tensor dimension count d, in [1, 20]")
	cmd.Flags().Int("side-length", 100, "tensor side length L")
	cmd.Flags().String("snapshot", "", "snapshot file path (loaded at startup, written after each registration)")
	cmd.Flags().Int64("max-connections", prover.MaxConnections, "maximum concurrent inbound connections")
}

func run(cmd *cobra.Command, args []string) error {
	bind := viper.GetString("bind")
	seed := viper.GetString("seed")
	dim := viper.GetInt("dim")
	sideLength := viper.GetInt("side-length")
	snapshotPath := viper.GetString("snapshot")
	maxConnections := viper.GetInt64("max-connections")

	if bind == "" {
		return fmt.Errorf("--bind is required")
	}
	if len(seed) < minSeedLen {
		return herr.ErrSeedTooShort
	}

	delta, err := params.FromSeed([]byte(seed), DiscriminantBits)
	if err != nil {
		log.Crit("failed to derive discriminant", "err", err)
	}
	generator, err := params.DeriveGenerator(delta)
	if err != nil {
		log.Crit("failed to derive generator", "err", err)
	}

	opts := tensor.Options{GeneratorCache: classgroup.NewCachedBase(generator)}
	var tt *tensor.Tensor
	if snapshotPath != "" {
		if _, statErr := os.Stat(snapshotPath); statErr == nil {
			tt, err = persist.Load(snapshotPath, opts)
			if err != nil {
				log.Crit("failed to load snapshot", "path", snapshotPath, "err", err)
			}
			log.Info("reloaded snapshot", "path", snapshotPath, "epoch", tt.Epoch())
		}
	}
	if tt == nil {
		tt, err = tensor.New(dim, sideLength, delta, opts)
		if err != nil {
			log.Crit("failed to construct tensor", "dim", dim, "err", err)
		}
	}

	svc := prover.NewService(tt, generator, prover.Config{
		SnapshotPath:   snapshotPath,
		MaxConnections: maxConnections,
	})

	ln, err := net.Listen("tcp", bind)
	if err != nil {
		log.Crit("failed to listen", "bind", bind, "err", err)
	}
	log.Info("node listening", "bind", bind, "dim", dim, "sideLength", sideLength)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received signal, shutting down", "sig", sig)
		cancel()
	}()

	return svc.Serve(ctx, ln)
}

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
