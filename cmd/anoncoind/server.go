// server.go - HTTP interface: submissions through a typed message
// envelope, plus status, coin set and event queries.
package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"anoncoin/internal/events"
	"anoncoin/internal/ledger"
	"anoncoin/internal/rpc"
)

// Server serves one validator over HTTP.
type Server struct {
	ID      string
	Address string

	validator *ledger.Validator
	state     *ledger.State
	recorder  *events.Recorder
	metrics   *Metrics
	health    *HealthChecker
	limiter   *ClientRateLimiter
	timeout   time.Duration

	server    *http.Server
	waitGroup sync.WaitGroup
	quit      chan struct{}
}

// ServerConfig holds the collaborators of a Server.
type ServerConfig struct {
	ID        string
	Address   string
	Validator *ledger.Validator
	Recorder  *events.Recorder
	Metrics   *Metrics
	Health    *HealthChecker
	Limiter   *ClientRateLimiter
	Timeout   time.Duration
}

func NewServer(cfg ServerConfig) *Server {
	return &Server{
		ID:        cfg.ID,
		Address:   cfg.Address,
		validator: cfg.Validator,
		state:     cfg.Validator.State(),
		recorder:  cfg.Recorder,
		metrics:   cfg.Metrics,
		health:    cfg.Health,
		limiter:   cfg.Limiter,
		timeout:   cfg.Timeout,
		quit:      make(chan struct{}),
	}
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/message", s.instrument("/message", s.messageHandler))
	mux.HandleFunc("/health", s.instrument("/health", s.healthHandler))
	mux.HandleFunc("/tip", s.instrument("/tip", s.tipHandler))
	mux.HandleFunc("/coinset", s.instrument("/coinset", s.coinSetHandler))
	mux.HandleFunc("/group", s.instrument("/group", s.groupHandler))
	mux.HandleFunc("/serial", s.instrument("/serial", s.serialHandler))
	mux.HandleFunc("/events", s.instrument("/events", s.eventsHandler))
	mux.Handle("/metrics", s.metrics.Handler())
	return mux
}

// StartServer starts listening and signals on ready once the listener is
// bound.
func (s *Server) StartServer(ready chan<- struct{}) error {
	s.server = &http.Server{
		Addr:         s.Address,
		Handler:      s.Handler(),
		ReadTimeout:  s.timeout,
		WriteTimeout: s.timeout,
	}

	listener, err := net.Listen("tcp", s.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Address, err)
	}
	s.Address = listener.Addr().String()

	s.waitGroup.Add(2)
	go func() {
		defer s.waitGroup.Done()
		srvrLog.Infof("[%s] Server starting on %s", s.ID, s.Address)
		ready <- struct{}{}

		if err := s.server.Serve(listener); err != http.ErrServerClosed {
			srvrLog.Errorf("[%s] Server failed: %v", s.ID, err)
		}
		srvrLog.Infof("[%s] Server stopped.", s.ID)
	}()
	go s.pruneLimiter()
	return nil
}

// Stop shuts the server down and waits for its goroutines.
func (s *Server) Stop() error {
	close(s.quit)
	var err error
	if s.server != nil {
		err = s.server.Close()
	}
	s.waitGroup.Wait()
	return err
}

func (s *Server) pruneLimiter() {
	defer s.waitGroup.Done()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			if n := s.limiter.Prune(now.Add(-10 * time.Minute)); n > 0 {
				srvrLog.Debugf("Dropped %d idle rate limiter clients", n)
			}
		case <-s.quit:
			return
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) instrument(path string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		s.metrics.RecordRequest(path, rec.status)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		srvrLog.Warnf("Failed to encode response: %v", err)
	}
}

func (s *Server) reply(w http.ResponseWriter, status int, typ string, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "failed to marshal payload", http.StatusInternalServerError)
		return
	}
	writeJSON(w, status, rpc.Message{Type: typ, Payload: raw, SenderID: s.ID})
}

func (s *Server) rejected(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	payload := rpc.RejectedPayload{Reason: err.Error()}
	if code, ok := ledger.RejectCodeOf(err); ok {
		status = http.StatusBadRequest
		payload.Code = code.String()
	} else if errors.Is(err, ledger.ErrNotTip) || errors.Is(err, ledger.ErrUnknownBlock) {
		status = http.StatusConflict
	} else if errors.Is(err, ledger.ErrStateCorrupted) {
		status = http.StatusServiceUnavailable
	}
	s.reply(w, status, rpc.MsgRejected, payload)
}

func clientOf(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// messageHandler decodes the envelope and dispatches on its type.
func (s *Server) messageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	if !s.limiter.Allow(clientOf(r)) {
		s.metrics.RecordThrottled()
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	var msg rpc.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		srvrLog.Debugf("[%s] Received a bad request: %v", s.ID, err)
		return
	}
	srvrLog.Debugf("[%s] Received message of type '%s' from %s", s.ID, msg.Type, msg.SenderID)

	switch msg.Type {
	case rpc.MsgSubmitTx, rpc.MsgRemoveTx:
		var tx ledger.Tx
		if err := json.Unmarshal(msg.Payload, &tx); err != nil {
			http.Error(w, "invalid transaction payload", http.StatusBadRequest)
			return
		}
		if msg.Type == rpc.MsgRemoveTx {
			if err := s.validator.RemoveFromMempool(&tx); err != nil {
				s.rejected(w, err)
				return
			}
			h := tx.Hash()
			s.reply(w, http.StatusOK, rpc.MsgAccepted, rpc.AcceptedPayload{TxHash: &h})
			return
		}
		h, err := s.validator.AcceptToMempool(&tx)
		if err != nil {
			s.rejected(w, err)
			return
		}
		s.reply(w, http.StatusOK, rpc.MsgAccepted, rpc.AcceptedPayload{TxHash: &h})

	case rpc.MsgSubmitBlock:
		var blk ledger.Block
		if err := json.Unmarshal(msg.Payload, &blk); err != nil {
			http.Error(w, "invalid block payload", http.StatusBadRequest)
			return
		}
		start := time.Now()
		index, err := s.validator.ConnectBlock(&blk)
		if err != nil {
			s.rejected(w, err)
			return
		}
		s.metrics.RecordConnect(time.Since(start))
		s.reply(w, http.StatusOK, rpc.MsgAccepted, rpc.AcceptedPayload{
			BlockHash: &index.Hash,
			Height:    &index.Height,
		})

	case rpc.MsgDisconnectBlock:
		index, err := s.validator.DisconnectBlock()
		if err != nil {
			s.rejected(w, err)
			return
		}
		s.reply(w, http.StatusOK, rpc.MsgAccepted, rpc.AcceptedPayload{
			BlockHash: &index.Hash,
			Height:    &index.Height,
		})

	default:
		srvrLog.Debugf("[%s] Received unknown message type: %s", s.ID, msg.Type)
		http.Error(w, "unknown message type", http.StatusBadRequest)
	}
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	health := s.health.CheckHealth()
	status := http.StatusOK
	if health.OverallStatus == Unhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, CreateHealthResponse(health))
}

func (s *Server) tipHandler(w http.ResponseWriter, r *http.Request) {
	reply := rpc.TipReply{Height: -1}
	if tip := s.state.Chain().Tip(); tip != nil {
		reply.Height = tip.Height
		reply.Hash = tip.Hash
	}
	writeJSON(w, http.StatusOK, reply)
}

// groupQuery reads the pool and id parameters shared by the query handlers.
func groupQuery(r *http.Request) (ledger.Pool, int, error) {
	pool, err := ledger.ParsePool(r.URL.Query().Get("pool"))
	if err != nil {
		return 0, 0, err
	}
	id, err := strconv.Atoi(r.URL.Query().Get("id"))
	if err != nil || id < 1 {
		return 0, 0, fmt.Errorf("invalid group id %q", r.URL.Query().Get("id"))
	}
	return pool, id, nil
}

func (s *Server) coinSetHandler(w http.ResponseWriter, r *http.Request) {
	pool, id, err := groupQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	height := s.state.Chain().Height()
	if h := r.URL.Query().Get("height"); h != "" {
		v, err := strconv.ParseInt(h, 10, 32)
		if err != nil {
			http.Error(w, "invalid height", http.StatusBadRequest)
			return
		}
		height = int32(v)
	}

	n, hash, mints := s.state.GetCoinSetForSpend(height, pool, id)
	if n == 0 {
		http.Error(w, ledger.ErrNoGroup.Error(), http.StatusNotFound)
		return
	}
	coins := make([]string, len(mints))
	for i, m := range mints {
		coins[i] = hex.EncodeToString(m.Bytes())
	}
	writeJSON(w, http.StatusOK, rpc.CoinSetReply{
		Pool:      pool.String(),
		GroupID:   id,
		Count:     n,
		BlockHash: hash,
		Coins:     coins,
	})
}

func (s *Server) groupHandler(w http.ResponseWriter, r *http.Request) {
	pool, id, err := groupQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	g, ok := s.state.GetCoinGroupInfo(pool, id)
	if !ok {
		http.Error(w, ledger.ErrNoGroup.Error(), http.StatusNotFound)
		return
	}
	reply := rpc.GroupReply{
		Pool:       pool.String(),
		GroupID:    id,
		LatestID:   s.state.GetLatestCoinID(pool),
		NCoins:     g.NCoins,
		FirstBlock: -1,
		LastBlock:  -1,
	}
	if b := s.state.Chain().Block(g.FirstBlock); b != nil {
		reply.FirstBlock = b.Height
	}
	if b := s.state.Chain().Block(g.LastBlock); b != nil {
		reply.LastBlock = b.Height
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) serialHandler(w http.ResponseWriter, r *http.Request) {
	raw, err := hex.DecodeString(r.URL.Query().Get("serial"))
	if err != nil || len(raw) == 0 {
		http.Error(w, "serial must be hex encoded", http.StatusBadRequest)
		return
	}
	serial := ledger.Serial(raw)
	reply := rpc.SerialReply{Spent: s.state.IsUsedCoinSerial(serial)}
	if h := s.state.GetMempoolConflictingTxHash(serial); h != (chainhash.Hash{}) {
		reply.MempoolTx = &h
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	recent := s.recorder.Recent()
	out := make([]events.Envelope, 0, len(recent))
	for _, ev := range recent {
		env, err := events.NewEnvelope(ev, s.ID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		out = append(out, env)
	}
	writeJSON(w, http.StatusOK, out)
}
