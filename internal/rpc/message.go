// Package rpc defines the HTTP message envelope spoken by anoncoind and a
// client for it.
package rpc

import (
	"encoding/json"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Message types accepted on /message.
const (
	MsgSubmitTx        = "submit_tx"
	MsgSubmitBlock     = "submit_block"
	MsgDisconnectBlock = "disconnect_block"
	MsgRemoveTx        = "remove_tx"

	MsgAccepted = "accepted"
	MsgRejected = "rejected"
)

// Message is the envelope for requests and replies on /message.
type Message struct {
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	SenderID string          `json:"senderId"`
}

// AcceptedPayload answers a successful submission.
type AcceptedPayload struct {
	TxHash    *chainhash.Hash `json:"txHash,omitempty"`
	BlockHash *chainhash.Hash `json:"blockHash,omitempty"`
	Height    *int32          `json:"height,omitempty"`
}

// RejectedPayload answers a failed submission. Code is empty for failures
// that carry no reject code.
type RejectedPayload struct {
	Code   string `json:"code,omitempty"`
	Reason string `json:"reason"`
}

// CoinSetReply is the body of /coinset.
type CoinSetReply struct {
	Pool      string         `json:"pool"`
	GroupID   int            `json:"groupId"`
	Count     int            `json:"count"`
	BlockHash chainhash.Hash `json:"blockHash"`
	Coins     []string       `json:"coins"`
}

// GroupReply is the body of /group. Heights are -1 for blocks no longer
// in the arena.
type GroupReply struct {
	Pool       string `json:"pool"`
	GroupID    int    `json:"groupId"`
	LatestID   int    `json:"latestId"`
	NCoins     int    `json:"nCoins"`
	FirstBlock int32  `json:"firstHeight"`
	LastBlock  int32  `json:"lastHeight"`
}

// SerialReply is the body of /serial.
type SerialReply struct {
	Spent     bool            `json:"spent"`
	MempoolTx *chainhash.Hash `json:"mempoolTx,omitempty"`
}

// TipReply is the body of /tip. Height is -1 on an empty chain.
type TipReply struct {
	Height int32          `json:"height"`
	Hash   chainhash.Hash `json:"hash"`
}
