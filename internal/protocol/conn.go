package protocol

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// State is the connection's position in its lifecycle, per the
// Disconnected -> Connecting -> Handshaking -> Authenticating -> Ready
// <-> ExecutingCommand, Errored -> Disconnected state machine.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateHandshaking
	StateAuthenticating
	StateReady
	StateExecutingCommand
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateHandshaking:
		return "Handshaking"
	case StateAuthenticating:
		return "Authenticating"
	case StateReady:
		return "Ready"
	case StateExecutingCommand:
		return "ExecutingCommand"
	case StateErrored:
		return "Errored"
	default:
		return "Unknown"
	}
}

// ProtocolInfo is the negotiated version plus capability-relevant
// server parameters gathered during the handshake. Mirrors the
// teacher's ProtocolInfo{Version, Features}, generalized to the
// parameter-status key/value set this protocol exposes instead of a
// discrete feature list.
type ProtocolInfo struct {
	MajorVer uint16
	MinorVer uint16
	Params   map[string]string
}

// DialOptions configures a single connection attempt. Mirrors the
// teacher's DialOpts (DialTimeout/IoTimeout/Ssl/Auth/User/Password),
// generalized with a TLS config and the SCRAM credentials this
// protocol's single authentication method requires.
type DialOptions struct {
	DialTimeout   time.Duration
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	TLS           *TLSOptions
	Username      string
	Password      string
	Database      string
	RequiredMajor uint16
	RequiredMinor uint16
	Logger        Logger
}

const (
	protocolMajorVersion uint16 = 2
	protocolMinorVersion uint16 = 0
)

// Conn is a single authenticated connection: the raw socket, its state,
// the protocol info negotiated at handshake, the last TransactionStatus
// reported by the server, and the per-connection command lock.
//
// Mirrors the teacher's tntConn (net/reader/writer/greeting/protocol),
// generalized with the explicit State machine and TransactionStatus the
// spec calls for in place of the teacher's implicit connected/closed
// bookkeeping.
type Conn struct {
	netConn net.Conn
	reader  *bufio.Reader
	writer  *bufio.Writer

	mu      sync.Mutex
	state   State
	info    ProtocolInfo
	txState TransactionStatus
	lastErr error

	lock   *CommandLock
	logger Logger

	// readTimeout/writeTimeout back the per-command socket deadline
	// Execute arms when ctx carries no deadline of its own (DialOptions'
	// fallback, sourced from Options.CommandTimeout).
	readTimeout  time.Duration
	writeTimeout time.Duration

	serverKey [32]byte

	// Fields bridging the handshake/authenticate/awaitReady sequence,
	// each of which stops at the first frame belonging to the next step.
	pendingAuthTag      byte
	pendingAuthPayload  []byte
	pendingReadyTag     byte
	pendingReadyPayload []byte
}

// Dial opens a TCP connection, performs the handshake and
// authentication, and returns a Conn in StateReady. On any failure the
// socket is closed and the returned error is a ClientError of the
// appropriate Kind, or a ServerError when the server answered the
// handshake or authentication with an ErrorResponse.
func Dial(ctx context.Context, address string, opts DialOptions) (*Conn, error) {
	logger := opts.Logger
	if logger == nil {
		logger = NoopLogger{}
	}
	logger.Report(EventConnecting(address))

	dialer := &net.Dialer{Timeout: opts.DialTimeout}
	var netConn net.Conn
	var err error
	if opts.TLS != nil {
		tlsCfg, cfgErr := NewTLSConfig(*opts.TLS)
		if cfgErr != nil {
			return nil, NewTransportError("building TLS config", cfgErr)
		}
		netConn, err = tls.DialWithDialer(dialer, "tcp", address, tlsCfg)
	} else {
		netConn, err = dialer.DialContext(ctx, "tcp", address)
	}
	if err != nil {
		return nil, NewTransportError(fmt.Sprintf("dialing %s", address), err)
	}

	if tlsConn, ok := netConn.(*tls.Conn); ok {
		if verr := VerifyNegotiatedProtocol(tlsConn.ConnectionState()); verr != nil {
			netConn.Close()
			return nil, verr
		}
	}

	c := &Conn{
		netConn:      netConn,
		reader:       bufio.NewReaderSize(netConn, 64*1024),
		writer:       bufio.NewWriterSize(netConn, 64*1024),
		state:        StateConnecting,
		lock:         NewCommandLock(),
		logger:       logger,
		readTimeout:  opts.ReadTimeout,
		writeTimeout: opts.WriteTimeout,
	}

	if err := c.handshake(ctx, opts); err != nil {
		netConn.Close()
		return nil, err
	}
	if err := c.authenticate(ctx, opts); err != nil {
		netConn.Close()
		return nil, err
	}
	if err := c.awaitReady(ctx); err != nil {
		netConn.Close()
		return nil, err
	}

	logger.Report(EventAuthenticated())
	return c, nil
}

func (c *Conn) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// State returns the connection's current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// TxStatus returns the last TransactionStatus reported by the server.
func (c *Conn) TxStatus() TransactionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.txState
}

// Healthy reports whether this connection may be handed out by a pool:
// Ready, not inside a transaction, and not currently mid-command.
func (c *Conn) Healthy() bool {
	c.mu.Lock()
	state, tx := c.state, c.txState
	c.mu.Unlock()
	return state == StateReady && tx == NotInTransaction && !c.lock.Locked()
}

// ProtocolInfo returns the negotiated version and server parameters.
func (c *Conn) ProtocolInfo() ProtocolInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info
}

func (c *Conn) writeMessage(tag byte, payload []byte) error {
	return WriteFrame(c.writer, tag, payload)
}

func (c *Conn) flush() error {
	return c.writer.Flush()
}

func (c *Conn) readMessage() (byte, []byte, error) {
	return ReadFrame(c.reader)
}

func (c *Conn) handshake(ctx context.Context, opts DialOptions) error {
	c.setState(StateHandshaking)

	major, minor := protocolMajorVersion, protocolMinorVersion
	if opts.RequiredMajor != 0 {
		major, minor = opts.RequiredMajor, opts.RequiredMinor
	}

	hs := ClientHandshake{
		MajorVer: major,
		MinorVer: minor,
		Params: []KV{
			{Key: 0, Value: []byte(opts.Username)},
			{Key: 1, Value: []byte(opts.Database)},
		},
	}
	if err := c.writeMessage(TagClientHandshake, hs.Encode()); err != nil {
		return NewTransportError("writing client handshake", err)
	}
	if err := c.flush(); err != nil {
		return NewTransportError("flushing client handshake", err)
	}

	tag, payload, err := c.readMessage()
	if err != nil {
		return NewTransportError("reading handshake response", err)
	}

	info := ProtocolInfo{MajorVer: major, MinorVer: minor, Params: map[string]string{}}

	switch tag {
	case TagServerHandshake:
		sh, err := DecodeServerHandshake(payload)
		if err != nil {
			return NewProtocolError("decoding server handshake", err)
		}
		c.logger.Report(EventHandshakeDowngrade(major, minor, sh.MajorVer, sh.MinorVer))
		info.MajorVer, info.MinorVer = sh.MajorVer, sh.MinorVer

		tag, payload, err = c.readMessage()
		if err != nil {
			return NewTransportError("reading post-handshake message", err)
		}
		return c.handshakeContinue(tag, payload, &info)
	default:
		return c.handshakeContinue(tag, payload, &info)
	}
}

// handshakeContinue drains ParameterStatus frames until the
// Authentication frame arrives, accumulating server parameters into
// info, then stores info and hands the Authentication frame's payload
// to authenticate via the pending-frame fields.
func (c *Conn) handshakeContinue(tag byte, payload []byte, info *ProtocolInfo) error {
	for {
		switch tag {
		case TagParameterStatus:
			ps, err := DecodeParameterStatus(payload)
			if err != nil {
				return NewProtocolError("decoding parameter status", err)
			}
			info.Params[ps.Name] = string(ps.Value)
		case TagAuthentication:
			c.mu.Lock()
			c.info = *info
			c.mu.Unlock()
			c.pendingAuthTag = tag
			c.pendingAuthPayload = payload
			return nil
		case TagErrorResponse:
			resp, err := DecodeErrorResponse(payload)
			if err != nil {
				return NewProtocolError("decoding error response", err)
			}
			return NewServerError(resp)
		default:
			return NewProtocolError(fmt.Sprintf("unexpected message tag %q during handshake", tag), nil)
		}

		var err error
		tag, payload, err = c.readMessage()
		if err != nil {
			return NewTransportError("reading handshake message", err)
		}
	}
}

func (c *Conn) authenticate(ctx context.Context, opts DialOptions) error {
	c.setState(StateAuthenticating)

	tag, payload := c.pendingAuthTag, c.pendingAuthPayload
	auth, err := DecodeAuthenticationMessage(payload)
	if err != nil {
		return NewProtocolError("decoding authentication message", err)
	}
	_ = tag

	if auth.Status == AuthStatusOK {
		return nil
	}
	if auth.Status != AuthStatusSASL {
		return NewAuthError(fmt.Sprintf("unsupported authentication status %d", auth.Status), nil)
	}

	scram, err := NewScramClient(opts.Username, opts.Password)
	if err != nil {
		return NewAuthError("generating SCRAM client nonce", err)
	}

	w := NewPacketWriter()
	w.WriteLenString("SCRAM-SHA-256")
	w.WriteLenBytes([]byte(scram.ClientFirstMessage()))
	if err := c.writeMessage(TagAuthSASLInitialResponse, w.Bytes()); err != nil {
		return NewTransportError("writing SASL initial response", err)
	}
	if err := c.flush(); err != nil {
		return NewTransportError("flushing SASL initial response", err)
	}

	tag, payload, err = c.readMessage()
	if err != nil {
		return NewTransportError("reading SASL continue", err)
	}
	if tag == TagErrorResponse {
		resp, derr := DecodeErrorResponse(payload)
		if derr != nil {
			return NewProtocolError("decoding error response", derr)
		}
		return NewServerError(resp)
	}
	if tag != TagAuthentication {
		return NewProtocolError(fmt.Sprintf("expected authentication frame, got %q", tag), nil)
	}
	cont, err := DecodeAuthenticationMessage(payload)
	if err != nil || cont.Status != AuthStatusSASLContinue {
		return NewAuthError("expected SASL continue", err)
	}

	clientFinal, err := scram.ClientFinalMessage(string(cont.Data))
	if err != nil {
		return NewAuthError("computing SCRAM client final message", err)
	}

	final := NewPacketWriter()
	final.WriteLenBytes([]byte(clientFinal))
	if err := c.writeMessage(TagAuthSASLResponse, final.Bytes()); err != nil {
		return NewTransportError("writing SASL response", err)
	}
	if err := c.flush(); err != nil {
		return NewTransportError("flushing SASL response", err)
	}

	tag, payload, err = c.readMessage()
	if err != nil {
		return NewTransportError("reading SASL final", err)
	}
	if tag == TagErrorResponse {
		resp, derr := DecodeErrorResponse(payload)
		if derr != nil {
			return NewProtocolError("decoding error response", derr)
		}
		return NewServerError(resp)
	}
	if tag != TagAuthentication {
		return NewProtocolError(fmt.Sprintf("expected authentication frame, got %q", tag), nil)
	}
	fin, err := DecodeAuthenticationMessage(payload)
	if err != nil || fin.Status != AuthStatusSASLFinal {
		return NewAuthError("expected SASL final", err)
	}
	if err := scram.VerifyServerFinal(string(fin.Data)); err != nil {
		return NewAuthError("verifying SCRAM server signature", err)
	}

	tag, payload, err = c.readMessage()
	if err != nil {
		return NewTransportError("reading post-auth message", err)
	}
	auth, err = DecodeAuthenticationMessage(payload)
	if err == nil && tag == TagAuthentication && auth.Status == AuthStatusOK {
		return nil
	}
	return c.handshakeAfterAuth(tag, payload)
}

// handshakeAfterAuth handles ServerKeyData/ParameterStatus frames that
// may arrive between the final auth confirmation and ReadyForCommand.
func (c *Conn) handshakeAfterAuth(tag byte, payload []byte) error {
	for {
		switch tag {
		case TagServerKeyData:
			skd, err := DecodeServerKeyData(payload)
			if err != nil {
				return NewProtocolError("decoding server key data", err)
			}
			c.mu.Lock()
			c.serverKey = skd.Key
			c.mu.Unlock()
		case TagParameterStatus:
			ps, err := DecodeParameterStatus(payload)
			if err != nil {
				return NewProtocolError("decoding parameter status", err)
			}
			c.mu.Lock()
			if c.info.Params == nil {
				c.info.Params = map[string]string{}
			}
			c.info.Params[ps.Name] = string(ps.Value)
			c.mu.Unlock()
		case TagReadyForCommand:
			c.pendingReadyTag, c.pendingReadyPayload = tag, payload
			return nil
		default:
			return NewProtocolError(fmt.Sprintf("unexpected message tag %q after authentication", tag), nil)
		}
		var err error
		tag, payload, err = c.readMessage()
		if err != nil {
			return NewTransportError("reading post-auth message", err)
		}
	}
}

func (c *Conn) awaitReady(ctx context.Context) error {
	tag, payload := c.pendingReadyTag, c.pendingReadyPayload
	if tag == 0 {
		var err error
		tag, payload, err = c.readMessage()
		if err != nil {
			return NewTransportError("reading ready-for-command", err)
		}
	}
	if tag != TagReadyForCommand {
		return NewProtocolError(fmt.Sprintf("expected ready-for-command, got %q", tag), nil)
	}
	rfc, err := DecodeReadyForCommand(payload)
	if err != nil {
		return NewProtocolError("decoding ready-for-command", err)
	}
	c.mu.Lock()
	c.txState = rfc.TxState
	c.state = StateReady
	c.mu.Unlock()
	c.logger.Report(EventReady(rfc.TxState))
	return nil
}

// Close terminates the session cleanly and closes the socket.
func (c *Conn) Close() error {
	release, err := c.lock.Acquire(context.Background())
	if err == nil {
		defer release()
		_ = c.writeMessage(TagTerminate, Terminate{}.Encode())
		_ = c.flush()
	}
	c.setState(StateDisconnected)
	c.logger.Report(EventDisconnected(c.lastErr))
	return c.netConn.Close()
}

// ExecuteResult accumulates the outcome of one Execute/Sync cycle:
// every Data row received, the CommandComplete status, and a possible
// CommandDataDescription if the server decided the previously cached
// shape was stale.
type ExecuteResult struct {
	Rows         [][]byte
	NewDesc      *CommandDataDescription
	StateDesc    *StateDataDescription
	Status       string
	Capabilities Capability
}

// Execute runs one Parse+Execute+Sync command cycle under the
// connection's command lock. It is the sole read/write entry point
// used by the session/pool layer above this package; callers must not
// interleave raw writeMessage/readMessage calls with Execute.
// Execute runs one command cycle. If parse is non-nil, an explicit
// Parse frame is sent ahead of Execute — used the first time a query's
// shape is unknown, so the server's CommandDataDescription response can
// be read back and cached before the next call on the same query skips
// straight to Execute alone (the "optimistic execute" path the wire
// format supports once a command's input/output type ids are already
// known to both sides).
func (c *Conn) Execute(ctx context.Context, parse *Parse, exec Execute) (ExecuteResult, error) {
	release, err := c.lock.Acquire(ctx)
	if err != nil {
		return ExecuteResult{}, err
	}
	defer release()

	c.setState(StateExecutingCommand)
	defer func() {
		c.mu.Lock()
		if c.state == StateExecutingCommand {
			c.state = StateReady
		}
		c.mu.Unlock()
	}()

	// Arms a real socket deadline for this cycle and, independently,
	// forces one the instant ctx is cancelled — together these make
	// every write and read below a genuine suspension point instead of
	// a poll checked only between already-arrived frames.
	_ = c.netConn.SetDeadline(c.armDeadline(ctx))
	defer c.netConn.SetDeadline(time.Time{})
	stop := c.watchCancellation(ctx)
	defer stop()

	if parse != nil {
		if err := c.writeMessage(TagParse, parse.Encode()); err != nil {
			return ExecuteResult{}, c.fail(classifyIOErr(ctx, "writing parse", err))
		}
	}
	if err := c.writeMessage(TagExecute, exec.Encode()); err != nil {
		return ExecuteResult{}, c.fail(classifyIOErr(ctx, "writing execute", err))
	}
	if err := c.writeMessage(TagSync, nil); err != nil {
		return ExecuteResult{}, c.fail(classifyIOErr(ctx, "writing sync", err))
	}
	if err := c.flush(); err != nil {
		return ExecuteResult{}, c.fail(classifyIOErr(ctx, "flushing execute", err))
	}

	var result ExecuteResult
	for {
		if ctx.Err() != nil {
			// No frame is mid-write here — safe to fail the connection
			// outright rather than risk a Terminate racing a frame the
			// server is still sending; Close (via the pool's unhealthy
			// path) sends it once this cycle's caller lets go of conn.
			return result, c.fail(NewCancellationError(ctx.Err()))
		}
		tag, payload, err := c.readMessage()
		if err != nil {
			return result, c.fail(classifyIOErr(ctx, "reading execute response", err))
		}
		switch tag {
		case TagData:
			d, err := DecodeData(payload)
			if err != nil {
				return result, c.fail(NewProtocolError("decoding data", err))
			}
			result.Rows = append(result.Rows, d.Row)
		case TagCommandDataDescription:
			desc, err := DecodeCommandDataDescription(payload)
			if err != nil {
				return result, c.fail(NewProtocolError("decoding command data description", err))
			}
			result.NewDesc = &desc
		case TagStateDataDescription:
			desc, err := DecodeStateDataDescription(payload)
			if err != nil {
				return result, c.fail(NewProtocolError("decoding state data description", err))
			}
			result.StateDesc = &desc
		case TagCommandComplete:
			cc, err := DecodeCommandComplete(payload)
			if err != nil {
				return result, c.fail(NewProtocolError("decoding command complete", err))
			}
			result.Status = cc.Status
			result.Capabilities = cc.Capabilities
		case TagLogMessage:
			lm, err := DecodeLogMessage(payload)
			if err != nil {
				return result, c.fail(NewProtocolError("decoding log message", err))
			}
			c.logger.Report(EventServerLog(lm))
		case TagReadyForCommand:
			rfc, err := DecodeReadyForCommand(payload)
			if err != nil {
				return result, c.fail(NewProtocolError("decoding ready-for-command", err))
			}
			c.mu.Lock()
			c.txState = rfc.TxState
			c.mu.Unlock()
			c.logger.Report(EventReady(rfc.TxState))
			return result, nil
		case TagErrorResponse:
			resp, err := DecodeErrorResponse(payload)
			if err != nil {
				return result, c.fail(NewProtocolError("decoding error response", err))
			}
			// Drain to ReadyForCommand so the connection remains reusable.
			if rerr := c.drainToReady(); rerr != nil {
				return result, c.fail(rerr)
			}
			return result, NewServerError(resp)
		default:
			return result, c.fail(NewProtocolError(fmt.Sprintf("unexpected message tag %q during execute", tag), nil))
		}
	}
}

func (c *Conn) drainToReady() error {
	for {
		tag, payload, err := c.readMessage()
		if err != nil {
			return NewTransportError("draining to ready-for-command", err)
		}
		if tag == TagReadyForCommand {
			rfc, err := DecodeReadyForCommand(payload)
			if err != nil {
				return NewProtocolError("decoding ready-for-command", err)
			}
			c.mu.Lock()
			c.txState = rfc.TxState
			c.mu.Unlock()
			return nil
		}
	}
}

// armDeadline picks the socket deadline for one Execute cycle: ctx's
// own deadline if it has one, otherwise the DialOptions fallback,
// otherwise no deadline (a zero Time clears any deadline already set).
func (c *Conn) armDeadline(ctx context.Context) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	fallback := c.readTimeout
	if c.writeTimeout > fallback {
		fallback = c.writeTimeout
	}
	if fallback <= 0 {
		return time.Time{}
	}
	return time.Now().Add(fallback)
}

// watchCancellation forces the socket's deadline to the present the
// moment ctx is done, unblocking a read or write already parked in the
// kernel waiting on the peer — SetDeadline alone only bounds a call
// that hasn't started yet. Mirrors the cancel-by-deadline pattern
// net/http's transport uses to make a blocking call obey ctx
// cancellation. A no-op for a ctx that can never be cancelled.
func (c *Conn) watchCancellation(ctx context.Context) (stop func()) {
	if ctx.Done() == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = c.netConn.SetDeadline(time.Now())
		case <-done:
		}
	}()
	return func() { close(done) }
}

// classifyIOErr reports a read/write failure as cancellation when ctx
// is the reason the socket unblocked (its own deadline elapsing, or
// watchCancellation forcing one early), and as a plain transport error
// otherwise.
func classifyIOErr(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return NewCancellationError(ctx.Err())
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return NewTransportError(op+" (timed out)", err)
	}
	return NewTransportError(op, err)
}

func (c *Conn) fail(err error) error {
	c.mu.Lock()
	c.state = StateErrored
	c.lastErr = err
	c.mu.Unlock()
	return err
}
