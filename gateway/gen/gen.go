//go:build ignore

// Command gen regenerates gateway/cbor_gen.go, following the gen/gen.go
// convention used throughout the specs-actors family of actors.
//
// cbor-gen's code generator does not know how to encode ipcaddr.SubnetID or
// ipcaddr.IPCAddress (external types with no exported fields of their own),
// so the types that embed them are hand-maintained in cbor_gen.go rather
// than produced by this generator. This file documents and generates the
// plain data types only - including State itself, the actor's own wire type
// (mirroring sca_actor's gen/gen.go, which generates an encoder for
// SCAState) - see DESIGN.md for the hand-maintained ones.
package main

import (
	gen "github.com/whyrusleeping/cbor-gen"

	"github.com/consensus-shipyard/ipc-gateway/gateway"
)

func main() {
	if err := gen.WriteTupleEncodersToFile(
		"./gateway/cbor_gen.go",
		"gateway",
		gateway.State{},
		gateway.CronVoteCount{},
	); err != nil {
		panic(err)
	}
}
