package blockchain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"payable":false,"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[{"name":"_owner","type":"address"},{"name":"_spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"payable":false,"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"payable":false,"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"payable":false,"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"payable":false,"stateMutability":"view","type":"function"}
]`

const dsProxyRegistryABI = `[
	{"constant":true,"inputs":[{"name":"","type":"address"}],"name":"proxies","outputs":[{"name":"","type":"address"}],"payable":false,"stateMutability":"view","type":"function"}
]`

// Multicall (v1) and Multicall3 both expose these two functions.
const multicallABI = `[
	{"inputs":[{"components":[{"name":"target","type":"address"},{"name":"callData","type":"bytes"}],"name":"calls","type":"tuple[]"}],"name":"aggregate","outputs":[{"name":"blockNumber","type":"uint256"},{"name":"returnData","type":"bytes[]"}],"stateMutability":"payable","type":"function"},
	{"inputs":[{"name":"addr","type":"address"}],"name":"getEthBalance","outputs":[{"name":"balance","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

// ABIs holds the parsed contract interfaces used by the reader.
// Values are read-only once built and may be shared between goroutines.
type ABIs struct {
	ERC20           abi.ABI
	DSProxyRegistry abi.ABI
	Multicall       abi.ABI
}

// ParseABIs parses the ERC20, DSProxyRegistry and Multicall interfaces
func ParseABIs() (ABIs, error) {
	var (
		abis ABIs
		err  error
	)

	if abis.ERC20, err = abi.JSON(strings.NewReader(erc20ABI)); err != nil {
		return ABIs{}, fmt.Errorf("failed to parse ERC20 ABI: %w", err)
	}
	if abis.DSProxyRegistry, err = abi.JSON(strings.NewReader(dsProxyRegistryABI)); err != nil {
		return ABIs{}, fmt.Errorf("failed to parse DSProxyRegistry ABI: %w", err)
	}
	if abis.Multicall, err = abi.JSON(strings.NewReader(multicallABI)); err != nil {
		return ABIs{}, fmt.Errorf("failed to parse Multicall ABI: %w", err)
	}

	return abis, nil
}
