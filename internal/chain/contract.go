package chain

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// PaymentContractABI is the subset of the payment contract the relay calls.
const PaymentContractABI = `[
  {
    "type": "function",
    "name": "orderPaymentWithPermit",
    "stateMutability": "nonpayable",
    "inputs": [
      {
        "name": "payment",
        "type": "tuple",
        "components": [
          {"name": "orderId", "type": "uint256"},
          {"name": "buyer", "type": "address"},
          {"name": "amount", "type": "uint256"},
          {"name": "deadline", "type": "uint256"},
          {"name": "tokenId", "type": "uint256"}
        ]
      },
      {"name": "signature", "type": "bytes"},
      {
        "name": "permit",
        "type": "tuple",
        "components": [
          {"name": "v", "type": "uint8"},
          {"name": "r", "type": "bytes32"},
          {"name": "s", "type": "bytes32"},
          {"name": "deadline", "type": "uint256"}
        ]
      }
    ],
    "outputs": []
  }
]`

// PaymentData mirrors the contract's payment tuple; field names follow the ABI component names.
type PaymentData struct {
	OrderId  *big.Int
	Buyer    common.Address
	Amount   *big.Int
	Deadline *big.Int
	TokenId  *big.Int
}

// PermitData is the EIP-2612 permit bundle authorizing the contract to pull the buyer's tokens.
type PermitData struct {
	V        uint8
	R        [32]byte
	S        [32]byte
	Deadline *big.Int
}

type PaymentContract struct {
	Address  common.Address
	contract *bind.BoundContract
}

func NewPaymentContract(address common.Address, backend bind.ContractBackend) (*PaymentContract, error) {
	parsed, err := abi.JSON(strings.NewReader(PaymentContractABI))
	if err != nil {
		return nil, err
	}
	return &PaymentContract{
		Address:  address,
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
	}, nil
}

func (c *PaymentContract) OrderPaymentWithPermit(opts *bind.TransactOpts, payment PaymentData, signature []byte, permit PermitData) (*types.Transaction, error) {
	return c.contract.Transact(opts, "orderPaymentWithPermit", payment, signature, permit)
}
