package gateway

import (
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
)

// CrossMsgFee is the fixed fee deducted from every cross-message operation,
// per spec.md section 4.6/6 ("a constant token amount, e.g. 100 atto-units").
// original_source/gateway/src/lib.rs fixes the equivalent constant in
// nano-FIL; this implementation follows spec.md's atto-unit wording, since
// the two disagree only on the decimal denomination of "a small fixed fee".
var CrossMsgFee = abi.NewTokenAmount(100)

// RewardMethodNum is the method number used when distributing a collected
// fee to a subnet actor, distinct from builtin.MethodSend used for plain
// value transfers.
const RewardMethodNum = abi.MethodNum(2)

// CollectCrossFee deducts fee from value in place, the way
// original_source/gateway/src/lib.rs's collect_cross_fee does: value -= fee,
// or IllegalState if value < fee.
func CollectCrossFee(value *abi.TokenAmount, fee abi.TokenAmount) error {
	if value.LessThan(fee) {
		return illegalState("value %s is less than the required fee %s", value, fee)
	}
	*value = big.Sub(*value, fee)
	return nil
}
