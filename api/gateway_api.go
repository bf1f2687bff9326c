package api

import (
	"context"

	address "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/consensus-shipyard/go-ipc-types/sdk"
	"github.com/ipfs/go-cid"

	"github.com/consensus-shipyard/ipc-gateway/gateway"
)

// GatewayAPI is the read-only query surface a node exposes over the gateway
// actor's state. It is a trimmed, self-contained descendant of the upstream
// full-node API's IPC* method block (api_full.go): the same query shapes,
// stripped of every method that depends on Lotus's full chain/VM stack
// (wallet, miner, retrieval, paych, eth, f3, raft, ...), which is out of
// scope for this module. Tipset-relative queries ("as of this block") are
// replaced by epoch-relative ones, since this module carries no chain-sync
// or tipset machinery of its own.
//
// Subnet IDs cross this boundary as sdk.SubnetID, the same upstream wire
// type api_full.go itself uses - callers on the other side of this API speak
// the ecosystem's shared addressing format, not this module's internal
// ipcaddr.SubnetID (see ipcaddr's package doc for why routing stays local).
type GatewayAPI interface {
	// IPCReadGatewayState returns a snapshot of the gateway actor's state.
	IPCReadGatewayState(ctx context.Context, actor address.Address) (*gateway.State, error) //perm:read

	// IPCListChildSubnets lists every subnet registered with the gateway.
	IPCListChildSubnets(ctx context.Context, actor address.Address) ([]gateway.Subnet, error) //perm:read

	// IPCGetSubnet returns a single registered subnet's state.
	IPCGetSubnet(ctx context.Context, actor address.Address, sn sdk.SubnetID) (*gateway.Subnet, bool, error) //perm:read

	// IPCGetPrevCheckpointForChild returns the CID of the last checkpoint
	// committed by sn, or cid.Undef if sn has not yet committed one.
	IPCGetPrevCheckpointForChild(ctx context.Context, actor address.Address, sn sdk.SubnetID) (cid.Cid, error) //perm:read

	// IPCGetCheckpointTemplate returns the window checkpoint currently being
	// built for epoch, to be signed and resubmitted as a child commit.
	IPCGetCheckpointTemplate(ctx context.Context, actor address.Address, epoch abi.ChainEpoch) (*gateway.Checkpoint, error) //perm:read

	// IPCListCheckpoints lists the window checkpoints sn committed in
	// [from, to].
	IPCListCheckpoints(ctx context.Context, actor address.Address, sn sdk.SubnetID, from, to abi.ChainEpoch) ([]*gateway.Checkpoint, error) //perm:read

	// IPCGetCheckpoint returns the checkpoint sn committed at epoch, if any.
	IPCGetCheckpoint(ctx context.Context, actor address.Address, sn sdk.SubnetID, epoch abi.ChainEpoch) (*gateway.Checkpoint, error) //perm:read

	// IPCGetTopDownMsgs returns sn's queued top-down messages from nonce
	// onward.
	IPCGetTopDownMsgs(ctx context.Context, actor address.Address, sn sdk.SubnetID, nonce uint64) ([]*gateway.CrossMsg, error) //perm:read

	// IPCHasVotedTopDownCheckpoint reports whether validator v has already
	// submitted a cron vote for epoch e.
	IPCHasVotedTopDownCheckpoint(ctx context.Context, actor address.Address, e abi.ChainEpoch, v address.Address) (bool, error) //perm:read

	// IPCGetGenesisEpochForSubnet returns the epoch at which sn was
	// registered with the gateway.
	IPCGetGenesisEpochForSubnet(ctx context.Context, actor address.Address, sn sdk.SubnetID) (abi.ChainEpoch, error) //perm:read

	// Serialized variants return the CBOR encoding produced by the actor's
	// own MarshalCBOR, avoiding a second, JSON-based re-encoding of the same
	// state for callers that already speak the actor's wire format.
	IPCGetCheckpointSerialized(ctx context.Context, actor address.Address, sn sdk.SubnetID, epoch abi.ChainEpoch) ([]byte, error)        //perm:read
	IPCListCheckpointsSerialized(ctx context.Context, actor address.Address, sn sdk.SubnetID, from, to abi.ChainEpoch) ([][]byte, error) //perm:read
	IPCGetCheckpointTemplateSerialized(ctx context.Context, actor address.Address, epoch abi.ChainEpoch) ([]byte, error)                 //perm:read
	IPCGetTopDownMsgsSerialized(ctx context.Context, actor address.Address, sn sdk.SubnetID, nonce uint64) ([][]byte, error)             //perm:read
}
