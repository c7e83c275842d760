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

// Command client is the thin Verifier CLI: it sends a single request
// to a Prover over the length-delimited wire protocol and prints the
// result, exiting non-zero on a verification failure (spec.md §6).
package main

import (
	"fmt"
	"math/big"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/getamis/htp/crypto/primes"
	"github.com/getamis/htp/wire"
)

const dialTimeout = 5 * time.Second

var bigOne = big.NewInt(1)

var cmd = &cobra.Command{
	Use:   "client",
	Short: "Talk to a HyperTensor accumulator Prover",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return viper.BindPFlags(cmd.PersistentFlags())
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify <id>",
	Short: "Request and check a membership proof for an identifier",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVerify(args[0])
	},
}

var registerCmd = &cobra.Command{
	Use:   "register <id>",
	Short: "Register an identifier with the Prover",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRegister(args[0])
	},
}

var rootCmd = &cobra.Command{
	Use:   "root",
	Short: "Fetch the current global root",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRoot()
	},
}

func init() {
	cmd.PersistentFlags().String("server", "", "Prover address, e.g. 127.0.0.1:9443")
	cmd.AddCommand(verifyCmd, registerCmd, rootCmd)
}

func serverAddr() (string, error) {
	addr := viper.GetString("server")
	if addr == "" {
		return "", fmt.Errorf("--server is required")
	}
	return addr, nil
}

func nextRequestID() uint64 {
	return uint64(time.Now().UnixNano())
}

func send(addr string, req *wire.Request) (*wire.Response, error) {
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	data, err := wire.EncodeRequest(req)
	if err != nil {
		return nil, err
	}
	if err := wire.WriteFramed(conn, data); err != nil {
		return nil, err
	}

	raw, err := wire.ReadFramed(conn, wire.DecodeMaxBytes)
	if err != nil {
		return nil, err
	}
	return wire.DecodeResponse(raw)
}

func runVerify(userID string) error {
	addr, err := serverAddr()
	if err != nil {
		return err
	}

	resp, err := send(addr, &wire.Request{
		Kind: wire.RequestGetProof,
		Header: wire.Header{
			Version:   wire.ProtocolVersion,
			Timestamp: uint64(time.Now().Unix()),
			RequestID: nextRequestID(),
		},
		UserID: userID,
	})
	if err != nil {
		return err
	}
	if resp.Kind == wire.ResponseError {
		return fmt.Errorf("server error: %s", resp.ErrorMessage)
	}
	if resp.Kind != wire.ResponseProofBundle {
		return fmt.Errorf("unexpected response kind %d", resp.Kind)
	}

	if isDummyBundle(resp) {
		fmt.Println("not a member")
		return fmt.Errorf("verification failed: no membership proof for %q", userID)
	}

	wantP, err := primes.HashToPrime([]byte(userID), 64)
	if err != nil {
		return err
	}
	if len(resp.PrimaryPath) == 0 || resp.PrimaryPath[0].P.Int.Cmp(wantP) != 0 {
		fmt.Println("verification failed: leaf prime mismatch")
		return fmt.Errorf("proof leaf does not match hash_to_prime(%q, 64)", userID)
	}

	fmt.Printf("member: epoch=%d primary_path_len=%d orthogonal_anchors=%d\n",
		resp.Epoch, len(resp.PrimaryPath), len(resp.OrthogonalAnchors))
	return nil
}

// isDummyBundle reports whether resp looks like the privacy dummy:
// every primary_path tuple has P == 1 (identity) and no anchors.
func isDummyBundle(resp *wire.Response) bool {
	if len(resp.OrthogonalAnchors) != 0 {
		return false
	}
	for _, tup := range resp.PrimaryPath {
		if tup.P.Int.Cmp(bigOne) != 0 {
			return false
		}
	}
	return true
}

func runRegister(userID string) error {
	addr, err := serverAddr()
	if err != nil {
		return err
	}

	resp, err := send(addr, &wire.Request{
		Kind: wire.RequestRegisterUser,
		Header: wire.Header{
			Version:   wire.ProtocolVersion,
			Timestamp: uint64(time.Now().Unix()),
			RequestID: nextRequestID(),
		},
		UserID: userID,
	})
	if err != nil {
		return err
	}
	if resp.Kind == wire.ResponseError {
		return fmt.Errorf("server error: %s", resp.ErrorMessage)
	}
	fmt.Printf("registered %q, epoch=%d\n", userID, resp.Epoch)
	return nil
}

func runRoot() error {
	addr, err := serverAddr()
	if err != nil {
		return err
	}

	resp, err := send(addr, &wire.Request{
		Kind: wire.RequestGetGlobalRoot,
		Header: wire.Header{
			Version:   wire.ProtocolVersion,
			Timestamp: uint64(time.Now().Unix()),
			RequestID: nextRequestID(),
		},
	})
	if err != nil {
		return err
	}
	if resp.Kind == wire.ResponseError {
		return fmt.Errorf("server error: %s", resp.ErrorMessage)
	}
	fmt.Printf("root: P=%s a=%s b=%s c=%s\n",
		resp.Root.P.Int.String(), resp.Root.A.Int.String(), resp.Root.B.Int.String(), resp.Root.C.Int.String())
	return nil
}

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
