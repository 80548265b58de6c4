package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"anoncoin/internal/ledger"
)

// ErrRejected is wrapped by errors for submissions the daemon refused.
var ErrRejected = errors.New("rpc: rejected")

// RejectError carries the daemon's rejection of a submission.
type RejectError struct {
	Status int
	RejectedPayload
}

func (e *RejectError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("%v (%d): %s", ErrRejected, e.Status, e.Reason)
	}
	return fmt.Sprintf("%v (%d): %s: %s", ErrRejected, e.Status, e.Code, e.Reason)
}

func (e *RejectError) Unwrap() error { return ErrRejected }

// Client talks to one daemon.
type Client struct {
	Address  string
	SenderID string

	http *http.Client
}

func NewClient(address, senderID string) *Client {
	return &Client{
		Address:  address,
		SenderID: senderID,
		http:     &http.Client{Timeout: 5 * time.Second},
	}
}

// SendMessage posts a message and decodes the reply envelope, whatever its
// HTTP status.
func (c *Client) SendMessage(messageType string, payload interface{}) (*Message, int, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal payload: %w", err)
	}
	messageBytes, err := json.Marshal(Message{
		Type:     messageType,
		Payload:  payloadBytes,
		SenderID: c.SenderID,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal message envelope: %w", err)
	}

	req, err := http.NewRequest("POST", "http://"+c.Address+"/message", bytes.NewBuffer(messageBytes))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	var reply Message
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("daemon returned %s", resp.Status)
	}
	return &reply, resp.StatusCode, nil
}

// submit sends a message and returns the accepted payload, or a
// *RejectError.
func (c *Client) submit(messageType string, payload interface{}) (*AcceptedPayload, error) {
	reply, status, err := c.SendMessage(messageType, payload)
	if err != nil {
		return nil, err
	}
	switch reply.Type {
	case MsgAccepted:
		var p AcceptedPayload
		if err := json.Unmarshal(reply.Payload, &p); err != nil {
			return nil, fmt.Errorf("error unmarshalling %s payload: %w", reply.Type, err)
		}
		return &p, nil
	case MsgRejected:
		rej := &RejectError{Status: status}
		if err := json.Unmarshal(reply.Payload, &rej.RejectedPayload); err != nil {
			return nil, fmt.Errorf("error unmarshalling %s payload: %w", reply.Type, err)
		}
		return nil, rej
	default:
		return nil, fmt.Errorf("unexpected reply type %q", reply.Type)
	}
}

// SubmitTx offers tx to the mempool.
func (c *Client) SubmitTx(tx *ledger.Tx) (*AcceptedPayload, error) {
	return c.submit(MsgSubmitTx, tx)
}

// RemoveTx releases the serials tx reserved.
func (c *Client) RemoveTx(tx *ledger.Tx) (*AcceptedPayload, error) {
	return c.submit(MsgRemoveTx, tx)
}

// SubmitBlock connects blk on top of the daemon's tip.
func (c *Client) SubmitBlock(blk *ledger.Block) (*AcceptedPayload, error) {
	return c.submit(MsgSubmitBlock, blk)
}

// DisconnectBlock rolls back the daemon's tip.
func (c *Client) DisconnectBlock() (*AcceptedPayload, error) {
	return c.submit(MsgDisconnectBlock, nil)
}

// Get decodes the JSON body of a query endpoint into out. Non-2xx statuses
// are returned as errors carrying the response text.
func (c *Client) Get(path string, query url.Values, out interface{}) error {
	u := url.URL{Scheme: "http", Host: c.Address, Path: path, RawQuery: query.Encode()}
	resp, err := c.http.Get(u.String())
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 && resp.StatusCode != http.StatusServiceUnavailable {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: %s", resp.Status, bytes.TrimSpace(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Tip returns the daemon's active tip.
func (c *Client) Tip() (*TipReply, error) {
	var tip TipReply
	if err := c.Get("/tip", nil, &tip); err != nil {
		return nil, err
	}
	return &tip, nil
}

// CoinSet returns the set of group id in pool, as of height when height
// is not negative.
func (c *Client) CoinSet(pool ledger.Pool, id int, height int32) (*CoinSetReply, error) {
	q := url.Values{"pool": {pool.String()}, "id": {strconv.Itoa(id)}}
	if height >= 0 {
		q.Set("height", strconv.Itoa(int(height)))
	}
	var set CoinSetReply
	if err := c.Get("/coinset", q, &set); err != nil {
		return nil, err
	}
	return &set, nil
}

// Group returns the bounds of group id in pool.
func (c *Client) Group(pool ledger.Pool, id int) (*GroupReply, error) {
	q := url.Values{"pool": {pool.String()}, "id": {strconv.Itoa(id)}}
	var g GroupReply
	if err := c.Get("/group", q, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// Serial reports whether serial is spent or reserved.
func (c *Client) Serial(serial ledger.Serial) (*SerialReply, error) {
	var s SerialReply
	if err := c.Get("/serial", url.Values{"serial": {serial.String()}}, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
