package chain

import (
	"context"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/manoloenriquez/vault7641/internal/metacache"
)

// 4-byte call selectors for the collection contract (ERC-721 +
// enumeration extension).
var (
	selOwnerOf             = crypto.Keccak256([]byte("ownerOf(uint256)"))[:4]
	selBalanceOf           = crypto.Keccak256([]byte("balanceOf(address)"))[:4]
	selTokenOfOwnerByIndex = crypto.Keccak256([]byte("tokenOfOwnerByIndex(address,uint256)"))[:4]
)

// Caller is the eth_call subset of *ethclient.Client the reader needs.
type Caller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Reader answers ownership questions against the collection contract.
// Read-only; all lookups go through eth_call at the latest block.
type Reader struct {
	caller   Caller
	contract common.Address
}

func NewReader(caller Caller, contract common.Address) *Reader {
	return &Reader{caller: caller, contract: contract}
}

// Dial connects to an RPC endpoint and wraps it in a Reader.
func Dial(rpcURL string, contract common.Address) (*Reader, error) {
	c, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	return NewReader(c, contract), nil
}

// OwnerOf returns the current holder of one instance.
func (r *Reader) OwnerOf(ctx context.Context, instanceID uint64) (common.Address, error) {
	out, err := r.call(ctx, pack(selOwnerOf, uintWord(instanceID)))
	if err != nil {
		return common.Address{}, fmt.Errorf("ownerOf(%d): %w", instanceID, err)
	}
	if len(out) < 32 {
		return common.Address{}, fmt.Errorf("ownerOf(%d): short return (%d bytes)", instanceID, len(out))
	}
	return common.BytesToAddress(out[12:32]), nil
}

// BalanceOf returns the number of instances an owner holds.
func (r *Reader) BalanceOf(ctx context.Context, owner common.Address) (uint64, error) {
	out, err := r.call(ctx, pack(selBalanceOf, addressWord(owner)))
	if err != nil {
		return 0, fmt.Errorf("balanceOf(%s): %w", owner.Hex(), err)
	}
	return parseUintWord(out)
}

// Collection enumerates all instance IDs held by an owner.
func (r *Reader) Collection(ctx context.Context, owner common.Address) ([]uint64, error) {
	n, err := r.BalanceOf(ctx, owner)
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, n)
	for i := uint64(0); i < n; i++ {
		out, err := r.call(ctx, pack(selTokenOfOwnerByIndex, addressWord(owner), uintWord(i)))
		if err != nil {
			return nil, fmt.Errorf("tokenOfOwnerByIndex(%s, %d): %w", owner.Hex(), i, err)
		}
		id, err := parseUintWord(out)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// CollectionFetch adapts Collection into a cache fetch function.
func (r *Reader) CollectionFetch(owner common.Address) metacache.FetchFn {
	return func(ctx context.Context) (any, error) {
		return r.Collection(ctx, owner)
	}
}

// OwnershipFetch adapts BalanceOf into a cache fetch function.
func (r *Reader) OwnershipFetch(owner common.Address) metacache.FetchFn {
	return func(ctx context.Context) (any, error) {
		return r.BalanceOf(ctx, owner)
	}
}

func (r *Reader) call(ctx context.Context, data []byte) ([]byte, error) {
	to := r.contract
	return r.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
}

// pack builds calldata: selector followed by 32-byte argument words.
func pack(selector []byte, words ...[32]byte) []byte {
	data := make([]byte, 0, 4+32*len(words))
	data = append(data, selector...)
	for _, w := range words {
		data = append(data, w[:]...)
	}
	return data
}

func uintWord(v uint64) [32]byte {
	var w [32]byte
	new(big.Int).SetUint64(v).FillBytes(w[:])
	return w
}

func addressWord(a common.Address) [32]byte {
	var w [32]byte
	copy(w[12:], a.Bytes()) // addresses are right-aligned in their slot
	return w
}

func parseUintWord(out []byte) (uint64, error) {
	if len(out) < 32 {
		return 0, fmt.Errorf("short return (%d bytes)", len(out))
	}
	v := new(big.Int).SetBytes(out[:32])
	if !v.IsUint64() {
		return 0, fmt.Errorf("return word overflows uint64: %s", v)
	}
	return v.Uint64(), nil
}
