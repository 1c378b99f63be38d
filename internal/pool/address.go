package pool

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// poolInitCodeHash stands in for the pool bytecode hash of a CREATE2 deployment.
var poolInitCodeHash = crypto.Keccak256([]byte("nexusdex/pool/v1"))

// SortAssets returns the two assets in ascending byte order.
func SortAssets(a, b common.Address) (common.Address, common.Address) {
	if bytes.Compare(a.Bytes(), b.Bytes()) <= 0 {
		return a, b
	}
	return b, a
}

// Address derives the custody account of the pool for two assets, the way a
// Uniswap V2 factory derives pair addresses. The result does not depend on
// argument order.
func Address(factory, assetA, assetB common.Address) common.Address {
	token0, token1 := SortAssets(assetA, assetB)
	salt := crypto.Keccak256Hash(token0.Bytes(), token1.Bytes())
	return crypto.CreateAddress2(factory, salt, poolInitCodeHash)
}
