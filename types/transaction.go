package types

import (
	"crypto/ecdsa"
	"encoding/json"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/ethereum/fixturefill/globals"
)

// Transaction type tags. The blob tag follows the pre-final EIP-4844
// numbering used by the sharding devnets.
const (
	LegacyTxType     = uint8(0x00)
	AccessListTxType = uint8(0x01)
	DynamicFeeTxType = uint8(0x02)
	BlobTxType       = uint8(0x05)
)

// BlobCommitmentVersionKZG is the required first byte of every blob
// versioned hash.
const BlobCommitmentVersionKZG = byte(0x01)

var (
	ErrMissingRequiredField     = errors.New("transaction missing required field for its type")
	ErrUnexpectedField          = errors.New("transaction carries a field its type does not allow")
	ErrInvalidBlobVersionedHash = errors.New("blob versioned hash version mismatch")
	ErrTransactionUnsigned      = errors.New("transaction is not signed")
)

// Transaction is a declarative transaction template. Templates are immutable:
// variations are produced with WithFields, and signing returns a new signed
// copy. The zero ChainID, SecretKey and Value fall back to the framework
// defaults at signing time.
type Transaction struct {
	Type                 uint8
	ChainID              *big.Int
	Nonce                uint64
	GasPrice             *big.Int
	MaxPriorityFeePerGas *big.Int
	MaxFeePerGas         *big.Int
	MaxFeePerDataGas     *uint256.Int
	GasLimit             uint64
	To                   *common.Address
	Value                *big.Int
	Data                 []byte
	AccessList           gethtypes.AccessList
	BlobVersionedHashes  []common.Hash

	// Signature values, populated by WithSignatureAndSender.
	V, R, S *big.Int
	Sender  *common.Address

	SecretKey   *ecdsa.PrivateKey
	Unprotected bool

	// ExpectedError marks the transaction as intentionally invalid. Only
	// block-level scenarios may carry such transactions.
	ExpectedError string
}

// CustomTransactionData names the fields WithFields may override. Nil entries
// leave the template value in place.
type CustomTransactionData struct {
	Nonce                *uint64
	GasPrice             *big.Int
	MaxPriorityFeePerGas *big.Int
	MaxFeePerGas         *big.Int
	MaxFeePerDataGas     *uint256.Int
	GasLimit             *uint64
	To                   *common.Address
	Value                *big.Int
	Data                 *[]byte
	ChainID              *big.Int
	AccessList           *gethtypes.AccessList
	BlobVersionedHashes  *[]common.Hash
	SecretKey            *ecdsa.PrivateKey
	ExpectedError        *string
}

// Copy deep-copies the transaction template.
func (tx *Transaction) Copy() *Transaction {
	cpy := *tx
	cpy.ChainID = bigCopy(tx.ChainID)
	cpy.GasPrice = bigCopy(tx.GasPrice)
	cpy.MaxPriorityFeePerGas = bigCopy(tx.MaxPriorityFeePerGas)
	cpy.MaxFeePerGas = bigCopy(tx.MaxFeePerGas)
	cpy.Value = bigCopy(tx.Value)
	cpy.V = bigCopy(tx.V)
	cpy.R = bigCopy(tx.R)
	cpy.S = bigCopy(tx.S)
	if tx.MaxFeePerDataGas != nil {
		cpy.MaxFeePerDataGas = tx.MaxFeePerDataGas.Clone()
	}
	if tx.To != nil {
		to := *tx.To
		cpy.To = &to
	}
	if tx.Sender != nil {
		sender := *tx.Sender
		cpy.Sender = &sender
	}
	cpy.Data = append([]byte(nil), tx.Data...)
	cpy.AccessList = append(gethtypes.AccessList(nil), tx.AccessList...)
	cpy.BlobVersionedHashes = append([]common.Hash(nil), tx.BlobVersionedHashes...)
	return &cpy
}

// WithFields returns a new transaction with the given fields overridden,
// leaving the receiver unmodified.
func (tx *Transaction) WithFields(custom CustomTransactionData) *Transaction {
	cpy := tx.Copy()
	if custom.Nonce != nil {
		cpy.Nonce = *custom.Nonce
	}
	if custom.GasPrice != nil {
		cpy.GasPrice = new(big.Int).Set(custom.GasPrice)
	}
	if custom.MaxPriorityFeePerGas != nil {
		cpy.MaxPriorityFeePerGas = new(big.Int).Set(custom.MaxPriorityFeePerGas)
	}
	if custom.MaxFeePerGas != nil {
		cpy.MaxFeePerGas = new(big.Int).Set(custom.MaxFeePerGas)
	}
	if custom.MaxFeePerDataGas != nil {
		cpy.MaxFeePerDataGas = custom.MaxFeePerDataGas.Clone()
	}
	if custom.GasLimit != nil {
		cpy.GasLimit = *custom.GasLimit
	}
	if custom.To != nil {
		to := *custom.To
		cpy.To = &to
	}
	if custom.Value != nil {
		cpy.Value = new(big.Int).Set(custom.Value)
	}
	if custom.Data != nil {
		cpy.Data = append([]byte(nil), *custom.Data...)
	}
	if custom.ChainID != nil {
		cpy.ChainID = new(big.Int).Set(custom.ChainID)
	}
	if custom.AccessList != nil {
		cpy.AccessList = append(gethtypes.AccessList(nil), *custom.AccessList...)
	}
	if custom.BlobVersionedHashes != nil {
		cpy.BlobVersionedHashes = append([]common.Hash(nil), *custom.BlobVersionedHashes...)
	}
	if custom.SecretKey != nil {
		cpy.SecretKey = custom.SecretKey
	}
	if custom.ExpectedError != nil {
		cpy.ExpectedError = *custom.ExpectedError
	}
	// Signature values never survive a field override.
	cpy.V, cpy.R, cpy.S, cpy.Sender = nil, nil, nil, nil
	return cpy
}

// CheckFields validates that the transaction carries exactly the fields its
// declared type requires. It runs before any signing or tool invocation.
func (tx *Transaction) CheckFields() error {
	switch tx.Type {
	case LegacyTxType, AccessListTxType:
		if tx.GasPrice == nil {
			return errors.Wrapf(ErrMissingRequiredField, "type %d requires gasPrice", tx.Type)
		}
		if tx.MaxFeePerGas != nil || tx.MaxPriorityFeePerGas != nil {
			return errors.Wrapf(ErrUnexpectedField, "type %d does not take fee market fields", tx.Type)
		}
		if tx.Type == LegacyTxType && len(tx.AccessList) > 0 {
			return errors.Wrap(ErrUnexpectedField, "legacy transaction does not take an access list")
		}
	case DynamicFeeTxType, BlobTxType:
		if tx.GasPrice != nil {
			return errors.Wrapf(ErrUnexpectedField, "type %d replaces gasPrice with fee market fields", tx.Type)
		}
		if tx.MaxFeePerGas == nil {
			return errors.Wrapf(ErrMissingRequiredField, "type %d requires maxFeePerGas", tx.Type)
		}
		if tx.MaxPriorityFeePerGas == nil {
			return errors.Wrapf(ErrMissingRequiredField, "type %d requires maxPriorityFeePerGas", tx.Type)
		}
	default:
		return errors.Errorf("unknown transaction type %d", tx.Type)
	}
	if tx.Type == BlobTxType {
		if tx.MaxFeePerDataGas == nil {
			return errors.Wrap(ErrMissingRequiredField, "blob transaction requires maxFeePerDataGas")
		}
		if len(tx.BlobVersionedHashes) == 0 {
			return errors.Wrap(ErrMissingRequiredField, "blob transaction requires blobVersionedHashes")
		}
		if tx.To == nil {
			return errors.Wrap(ErrMissingRequiredField, "blob transaction cannot create a contract")
		}
		for i, h := range tx.BlobVersionedHashes {
			if h[0] != BlobCommitmentVersionKZG {
				return errors.Wrapf(ErrInvalidBlobVersionedHash, "hash %d has version byte %#x", i, h[0])
			}
		}
	} else if len(tx.BlobVersionedHashes) > 0 || tx.MaxFeePerDataGas != nil {
		return errors.Wrapf(ErrUnexpectedField, "type %d does not take blob fields", tx.Type)
	}
	return nil
}

// Transaction payload layouts, per envelope.
type legacyTxSigPayload struct {
	Nonce    uint64
	GasPrice *big.Int
	Gas      uint64
	To       *common.Address `rlp:"nil"`
	Value    *big.Int
	Data     []byte
	ChainID  *big.Int
	Zero1    uint64
	Zero2    uint64
}

type legacyTxUnprotectedSigPayload struct {
	Nonce    uint64
	GasPrice *big.Int
	Gas      uint64
	To       *common.Address `rlp:"nil"`
	Value    *big.Int
	Data     []byte
}

type legacyTxPayload struct {
	Nonce    uint64
	GasPrice *big.Int
	Gas      uint64
	To       *common.Address `rlp:"nil"`
	Value    *big.Int
	Data     []byte
	V, R, S  *big.Int
}

func (tx *Transaction) chainID() *big.Int {
	if tx.ChainID != nil {
		return tx.ChainID
	}
	return globals.ChainID
}

func (tx *Transaction) value() *big.Int {
	if tx.Value != nil {
		return tx.Value
	}
	return new(big.Int)
}

// typedPayloadFields returns the unsigned RLP field list for typed envelopes.
func (tx *Transaction) typedPayloadFields() (interface{}, error) {
	switch tx.Type {
	case AccessListTxType:
		return []interface{}{
			tx.chainID(), tx.Nonce, tx.GasPrice, tx.GasLimit, tx.To,
			tx.value(), tx.Data, tx.AccessList,
		}, nil
	case DynamicFeeTxType:
		return []interface{}{
			tx.chainID(), tx.Nonce, tx.MaxPriorityFeePerGas, tx.MaxFeePerGas,
			tx.GasLimit, tx.To, tx.value(), tx.Data, tx.AccessList,
		}, nil
	case BlobTxType:
		return []interface{}{
			tx.chainID(), tx.Nonce, tx.MaxPriorityFeePerGas, tx.MaxFeePerGas,
			tx.GasLimit, *tx.To, tx.value(), tx.Data, tx.AccessList,
			tx.MaxFeePerDataGas, tx.BlobVersionedHashes,
		}, nil
	}
	return nil, errors.Errorf("type %d has no typed payload", tx.Type)
}

// SigningHash returns the digest the sender signs for this transaction.
func (tx *Transaction) SigningHash() (common.Hash, error) {
	if tx.Type == LegacyTxType {
		if tx.Unprotected {
			return rlpHash(&legacyTxUnprotectedSigPayload{
				Nonce: tx.Nonce, GasPrice: tx.GasPrice, Gas: tx.GasLimit,
				To: tx.To, Value: tx.value(), Data: tx.Data,
			})
		}
		return rlpHash(&legacyTxSigPayload{
			Nonce: tx.Nonce, GasPrice: tx.GasPrice, Gas: tx.GasLimit,
			To: tx.To, Value: tx.value(), Data: tx.Data,
			ChainID: tx.chainID(),
		})
	}
	fields, err := tx.typedPayloadFields()
	if err != nil {
		return common.Hash{}, err
	}
	return prefixedRlpHash(tx.Type, fields)
}

// WithSignatureAndSender returns a signed copy of the transaction with the
// sender address recovered from the produced signature. The original template
// is left untouched.
func (tx *Transaction) WithSignatureAndSender() (*Transaction, error) {
	if err := tx.CheckFields(); err != nil {
		return nil, err
	}
	cpy := tx.Copy()
	key := cpy.SecretKey
	if key == nil {
		key = globals.TestKey
	}
	hash, err := cpy.SigningHash()
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(hash[:], key)
	if err != nil {
		return nil, errors.Wrap(err, "transaction signing failed")
	}
	cpy.R = new(big.Int).SetBytes(sig[:32])
	cpy.S = new(big.Int).SetBytes(sig[32:64])
	recID := int64(sig[64])
	if cpy.Type == LegacyTxType {
		if cpy.Unprotected {
			cpy.V = big.NewInt(27 + recID)
		} else {
			// EIP-155: v = recid + chain_id*2 + 35.
			cpy.V = new(big.Int).Mul(cpy.chainID(), big.NewInt(2))
			cpy.V.Add(cpy.V, big.NewInt(35+recID))
		}
	} else {
		cpy.V = big.NewInt(recID)
	}
	sender, err := cpy.recoverSender(hash)
	if err != nil {
		return nil, err
	}
	cpy.Sender = &sender
	return cpy, nil
}

// RecoveredSender derives the sender address from the carried signature.
func (tx *Transaction) RecoveredSender() (common.Address, error) {
	if tx.V == nil || tx.R == nil || tx.S == nil {
		return common.Address{}, ErrTransactionUnsigned
	}
	hash, err := tx.SigningHash()
	if err != nil {
		return common.Address{}, err
	}
	return tx.recoverSender(hash)
}

func (tx *Transaction) recoverSender(sigHash common.Hash) (common.Address, error) {
	recID := new(big.Int).Set(tx.V)
	if tx.Type == LegacyTxType {
		if tx.Unprotected {
			recID.Sub(recID, big.NewInt(27))
		} else {
			recID.Sub(recID, new(big.Int).Mul(tx.chainID(), big.NewInt(2)))
			recID.Sub(recID, big.NewInt(35))
		}
	}
	if !recID.IsInt64() || recID.Int64() < 0 || recID.Int64() > 1 {
		return common.Address{}, errors.Errorf("invalid signature recovery id %v", recID)
	}
	sig := make([]byte, 65)
	tx.R.FillBytes(sig[:32])
	tx.S.FillBytes(sig[32:64])
	sig[64] = byte(recID.Int64())
	pub, err := crypto.Ecrecover(sigHash[:], sig)
	if err != nil {
		return common.Address{}, errors.Wrap(err, "sender recovery failed")
	}
	var addr common.Address
	copy(addr[:], crypto.Keccak256(pub[1:])[12:])
	return addr, nil
}

// EncodeRLP writes the transaction's canonical block-body representation:
// legacy transactions as a bare field list, typed transactions as an opaque
// byte string carrying the typed envelope.
func (tx *Transaction) EncodeRLP(w io.Writer) error {
	if tx.Type == LegacyTxType {
		return rlp.Encode(w, &legacyTxPayload{
			Nonce: tx.Nonce, GasPrice: tx.GasPrice, Gas: tx.GasLimit,
			To: tx.To, Value: tx.value(), Data: tx.Data,
			V: tx.V, R: tx.R, S: tx.S,
		})
	}
	enc, err := tx.MarshalBinary()
	if err != nil {
		return err
	}
	return rlp.Encode(w, enc)
}

// MarshalBinary returns the canonical network encoding of the signed
// transaction.
func (tx *Transaction) MarshalBinary() ([]byte, error) {
	if tx.V == nil || tx.R == nil || tx.S == nil {
		return nil, ErrTransactionUnsigned
	}
	if tx.Type == LegacyTxType {
		return rlp.EncodeToBytes(&legacyTxPayload{
			Nonce: tx.Nonce, GasPrice: tx.GasPrice, Gas: tx.GasLimit,
			To: tx.To, Value: tx.value(), Data: tx.Data,
			V: tx.V, R: tx.R, S: tx.S,
		})
	}
	fields, err := tx.typedPayloadFields()
	if err != nil {
		return nil, err
	}
	signed := append(fields.([]interface{}), tx.V, tx.R, tx.S)
	payload, err := rlp.EncodeToBytes(signed)
	if err != nil {
		return nil, err
	}
	return append([]byte{tx.Type}, payload...), nil
}

type transactionJSON struct {
	Type                 hexutil.Uint64        `json:"type"`
	ChainID              *hexutil.Big          `json:"chainId,omitempty"`
	Nonce                hexutil.Uint64        `json:"nonce"`
	GasPrice             *hexutil.Big          `json:"gasPrice,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big          `json:"maxPriorityFeePerGas,omitempty"`
	MaxFeePerGas         *hexutil.Big          `json:"maxFeePerGas,omitempty"`
	MaxFeePerDataGas     *hexutil.Big          `json:"maxFeePerDataGas,omitempty"`
	Gas                  hexutil.Uint64        `json:"gas"`
	To                   *common.Address       `json:"to"`
	Value                *hexutil.Big          `json:"value"`
	Input                hexutil.Bytes         `json:"input"`
	AccessList           *gethtypes.AccessList `json:"accessList,omitempty"`
	BlobVersionedHashes  []common.Hash         `json:"blobVersionedHashes,omitempty"`
	V                    *hexutil.Big          `json:"v"`
	R                    *hexutil.Big          `json:"r"`
	S                    *hexutil.Big          `json:"s"`
	Sender               *common.Address       `json:"sender,omitempty"`
	Protected            *bool                 `json:"protected,omitempty"`
}

// MarshalJSON encodes the transaction in the shape the transition tool
// expects on its txs input.
func (tx *Transaction) MarshalJSON() ([]byte, error) {
	enc := transactionJSON{
		Type:   hexutil.Uint64(tx.Type),
		Nonce:  hexutil.Uint64(tx.Nonce),
		Gas:    hexutil.Uint64(tx.GasLimit),
		To:     tx.To,
		Value:  (*hexutil.Big)(tx.value()),
		Input:  tx.Data,
		Sender: tx.Sender,
	}
	if tx.Type != LegacyTxType {
		enc.ChainID = (*hexutil.Big)(tx.chainID())
		accessList := tx.AccessList
		if accessList == nil {
			accessList = gethtypes.AccessList{}
		}
		enc.AccessList = &accessList
	} else {
		protected := !tx.Unprotected
		enc.Protected = &protected
	}
	enc.GasPrice = (*hexutil.Big)(tx.GasPrice)
	enc.MaxPriorityFeePerGas = (*hexutil.Big)(tx.MaxPriorityFeePerGas)
	enc.MaxFeePerGas = (*hexutil.Big)(tx.MaxFeePerGas)
	if tx.MaxFeePerDataGas != nil {
		enc.MaxFeePerDataGas = (*hexutil.Big)(tx.MaxFeePerDataGas.ToBig())
	}
	enc.BlobVersionedHashes = tx.BlobVersionedHashes
	enc.V = (*hexutil.Big)(tx.V)
	enc.R = (*hexutil.Big)(tx.R)
	enc.S = (*hexutil.Big)(tx.S)
	return json.Marshal(&enc)
}

// WithKZGVersion stamps the KZG commitment version byte onto each hash,
// producing valid blob versioned hashes from arbitrary 32-byte digests.
func WithKZGVersion(hashes []common.Hash) []common.Hash {
	out := make([]common.Hash, len(hashes))
	for i, h := range hashes {
		out[i] = h
		out[i][0] = BlobCommitmentVersionKZG
	}
	return out
}

func bigCopy(x *big.Int) *big.Int {
	if x == nil {
		return nil
	}
	return new(big.Int).Set(x)
}

func rlpHash(x interface{}) (common.Hash, error) {
	enc, err := rlp.EncodeToBytes(x)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(enc), nil
}

func prefixedRlpHash(prefix uint8, x interface{}) (common.Hash, error) {
	enc, err := rlp.EncodeToBytes(x)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(append([]byte{prefix}, enc...)), nil
}
