package protocol

// Message type tags. One byte per message, unique across both
// directions so a captured frame is unambiguous without tracking which
// side sent it.
const (
	// Client -> server.
	TagClientHandshake            byte = 'V'
	TagAuthSASLInitialResponse    byte = 'p'
	TagAuthSASLResponse           byte = 'r'
	TagParse                      byte = 'P'
	TagExecute                    byte = 'O'
	TagSync                       byte = 'Y'
	TagFlush                      byte = 'H'
	TagTerminate                  byte = 'X'
	TagDump                       byte = 'U'
	TagRestoreBlock               byte = 'b'

	// Server -> client.
	TagServerHandshake        byte = 'v'
	TagAuthentication         byte = 'R'
	TagServerKeyData          byte = 'K'
	TagParameterStatus        byte = 'S'
	TagStateDataDescription   byte = 's'
	TagCommandDataDescription byte = 'T'
	TagData                   byte = 'D'
	TagCommandComplete        byte = 'C'
	TagReadyForCommand        byte = 'Z'
	TagErrorResponse          byte = 'E'
	TagLogMessage             byte = 'L'
)

// Authentication sub-statuses carried by TagAuthentication.
const (
	AuthStatusOK           uint32 = 0
	AuthStatusSASL         uint32 = 10
	AuthStatusSASLContinue uint32 = 11
	AuthStatusSASLFinal    uint32 = 12
)

// TransactionStatus is the authoritative server-reported view of
// whether the connection is inside a transaction, carried on every
// ReadyForCommand frame.
type TransactionStatus byte

const (
	NotInTransaction TransactionStatus = iota
	InTransaction
	InFailedTransaction
)

func (s TransactionStatus) String() string {
	switch s {
	case NotInTransaction:
		return "NotInTx"
	case InTransaction:
		return "InTx"
	case InFailedTransaction:
		return "InFailedTx"
	default:
		return "Unknown"
	}
}

// Capability is a bit flag advertised on a request and enforced by the
// server.
type Capability uint64

const (
	CapModify        Capability = 1 << 0
	CapSessionConfig Capability = 1 << 1
	CapTransaction   Capability = 1 << 2
	CapDDL           Capability = 1 << 3
	CapPersistentCfg Capability = 1 << 4
)

// Cardinality is the expected result multiplicity of a query.
type Cardinality byte

const (
	CardinalityAtMostOne Cardinality = iota
	CardinalityOne
	CardinalityMany
	CardinalityAtLeastOne
)

// OutputFormat selects how the server encodes result rows.
type OutputFormat byte

const (
	FormatBinary OutputFormat = iota
	FormatJSON
	FormatNone
)

// ClientHandshake is the first client message: protocol version and
// negotiated extensions.
type ClientHandshake struct {
	MajorVer   uint16
	MinorVer   uint16
	Params     []KV // string key -> string value, encoded as length-prefixed bytes
	Extensions []string
}

func (m ClientHandshake) Encode() []byte {
	w := NewPacketWriter()
	w.WriteUint16(m.MajorVer)
	w.WriteUint16(m.MinorVer)
	w.WriteUint16(uint16(len(m.Params)))
	for _, p := range m.Params {
		w.WriteLenBytes(p.Value) // key implicit via position for the small fixed param set
	}
	w.WriteUint16(uint16(len(m.Extensions)))
	for _, ext := range m.Extensions {
		w.WriteLenString(ext)
	}
	return w.Bytes()
}

// ServerHandshake may downgrade the protocol version the client asked for.
type ServerHandshake struct {
	MajorVer uint16
	MinorVer uint16
}

func DecodeServerHandshake(payload []byte) (ServerHandshake, error) {
	r := NewPacketReader(payload)
	major, err := r.ReadUint16()
	if err != nil {
		return ServerHandshake{}, err
	}
	minor, err := r.ReadUint16()
	if err != nil {
		return ServerHandshake{}, err
	}
	return ServerHandshake{MajorVer: major, MinorVer: minor}, nil
}

// AuthenticationMessage covers AuthenticationRequired/Ok/SASL*: a single
// status code distinguishes them, with status-specific trailing data.
type AuthenticationMessage struct {
	Status  uint32
	Methods []string // AuthStatusSASL: methods offered
	Data    []byte   // AuthStatusSASLContinue/Final: server-first/server-final payload
}

func DecodeAuthenticationMessage(payload []byte) (AuthenticationMessage, error) {
	r := NewPacketReader(payload)
	status, err := r.ReadUint32()
	if err != nil {
		return AuthenticationMessage{}, err
	}
	msg := AuthenticationMessage{Status: status}
	switch status {
	case AuthStatusOK:
		return msg, nil
	case AuthStatusSASL:
		n, err := r.ReadUint32()
		if err != nil {
			return msg, err
		}
		for i := uint32(0); i < n; i++ {
			s, err := r.ReadLenString()
			if err != nil {
				return msg, err
			}
			msg.Methods = append(msg.Methods, s)
		}
		return msg, nil
	case AuthStatusSASLContinue, AuthStatusSASLFinal:
		data, err := r.ReadLenBytes()
		if err != nil {
			return msg, err
		}
		msg.Data = append([]byte(nil), data...)
		return msg, nil
	default:
		return msg, nil
	}
}

// ServerKeyData is an opaque 32-byte key used to correlate cancellation
// requests with the connection that issued them.
type ServerKeyData struct {
	Key [32]byte
}

func DecodeServerKeyData(payload []byte) (ServerKeyData, error) {
	r := NewPacketReader(payload)
	b, err := r.ReadBytes(32)
	if err != nil {
		return ServerKeyData{}, err
	}
	var out ServerKeyData
	copy(out.Key[:], b)
	return out, nil
}

// ParameterStatus carries one server-reported runtime parameter.
type ParameterStatus struct {
	Name  string
	Value []byte
}

func DecodeParameterStatus(payload []byte) (ParameterStatus, error) {
	r := NewPacketReader(payload)
	name, err := r.ReadLenString()
	if err != nil {
		return ParameterStatus{}, err
	}
	val, err := r.ReadLenBytes()
	if err != nil {
		return ParameterStatus{}, err
	}
	return ParameterStatus{Name: name, Value: append([]byte(nil), val...)}, nil
}

// ReadyForCommand is the terminal frame of a command cycle; its
// transaction status is the authoritative view of the connection.
type ReadyForCommand struct {
	Headers []KV
	TxState TransactionStatus
}

func DecodeReadyForCommand(payload []byte) (ReadyForCommand, error) {
	r := NewPacketReader(payload)
	headers, err := r.ReadHeaders()
	if err != nil {
		return ReadyForCommand{}, err
	}
	state, err := r.ReadUint8()
	if err != nil {
		return ReadyForCommand{}, err
	}
	return ReadyForCommand{Headers: headers, TxState: TransactionStatus(state)}, nil
}

// ErrorResponse is the server's typed-error frame.
type ErrorResponse struct {
	Severity uint8
	Code     uint32
	Message  string
	Headers  []KV // attributes, including hints, keyed by numeric field id
}

func DecodeErrorResponse(payload []byte) (ErrorResponse, error) {
	r := NewPacketReader(payload)
	sev, err := r.ReadUint8()
	if err != nil {
		return ErrorResponse{}, err
	}
	code, err := r.ReadUint32()
	if err != nil {
		return ErrorResponse{}, err
	}
	msg, err := r.ReadLenString()
	if err != nil {
		return ErrorResponse{}, err
	}
	headers, err := r.ReadHeaders()
	if err != nil {
		return ErrorResponse{}, err
	}
	return ErrorResponse{Severity: sev, Code: code, Message: msg, Headers: headers}, nil
}

// LogMessage is routed to the logger during command execution.
type LogMessage struct {
	Severity uint8
	Code     uint32
	Text     string
}

func DecodeLogMessage(payload []byte) (LogMessage, error) {
	r := NewPacketReader(payload)
	sev, err := r.ReadUint8()
	if err != nil {
		return LogMessage{}, err
	}
	code, err := r.ReadUint32()
	if err != nil {
		return LogMessage{}, err
	}
	text, err := r.ReadLenString()
	if err != nil {
		return LogMessage{}, err
	}
	return LogMessage{Severity: sev, Code: code, Text: text}, nil
}

// CommandDataDescription carries the raw descriptor bytes for a
// prepared command's input and output shapes.
type CommandDataDescription struct {
	Headers          []KV
	Cardinality      Cardinality
	InputTypeID      [16]byte
	InputDescriptor  []byte
	OutputTypeID     [16]byte
	OutputDescriptor []byte
}

func DecodeCommandDataDescription(payload []byte) (CommandDataDescription, error) {
	r := NewPacketReader(payload)
	headers, err := r.ReadHeaders()
	if err != nil {
		return CommandDataDescription{}, err
	}
	card, err := r.ReadUint8()
	if err != nil {
		return CommandDataDescription{}, err
	}
	inID, err := r.ReadUUID()
	if err != nil {
		return CommandDataDescription{}, err
	}
	inDesc, err := r.ReadLenBytes()
	if err != nil {
		return CommandDataDescription{}, err
	}
	outID, err := r.ReadUUID()
	if err != nil {
		return CommandDataDescription{}, err
	}
	outDesc, err := r.ReadLenBytes()
	if err != nil {
		return CommandDataDescription{}, err
	}
	d := CommandDataDescription{
		Headers:          headers,
		Cardinality:      Cardinality(card),
		InputDescriptor:  append([]byte(nil), inDesc...),
		OutputDescriptor: append([]byte(nil), outDesc...),
	}
	copy(d.InputTypeID[:], inID[:])
	copy(d.OutputTypeID[:], outID[:])
	return d, nil
}

// StateDataDescription carries the descriptor for the sparse-object
// state codec used to encode SessionState on the wire.
type StateDataDescription struct {
	TypeID     [16]byte
	Descriptor []byte
}

func DecodeStateDataDescription(payload []byte) (StateDataDescription, error) {
	r := NewPacketReader(payload)
	id, err := r.ReadUUID()
	if err != nil {
		return StateDataDescription{}, err
	}
	desc, err := r.ReadLenBytes()
	if err != nil {
		return StateDataDescription{}, err
	}
	d := StateDataDescription{Descriptor: append([]byte(nil), desc...)}
	copy(d.TypeID[:], id[:])
	return d, nil
}

// Data carries one encoded result row.
type Data struct {
	Row []byte
}

func DecodeData(payload []byte) (Data, error) {
	r := NewPacketReader(payload)
	row, err := r.ReadLenBytes()
	if err != nil {
		return Data{}, err
	}
	return Data{Row: append([]byte(nil), row...)}, nil
}

// CommandComplete terminates a successful command, carrying a status
// string and (for queries) the capabilities actually used.
type CommandComplete struct {
	Headers      []KV
	Status       string
	Capabilities Capability
}

func DecodeCommandComplete(payload []byte) (CommandComplete, error) {
	r := NewPacketReader(payload)
	headers, err := r.ReadHeaders()
	if err != nil {
		return CommandComplete{}, err
	}
	status, err := r.ReadLenString()
	if err != nil {
		return CommandComplete{}, err
	}
	caps, err := r.ReadUint64()
	if err != nil {
		return CommandComplete{}, err
	}
	return CommandComplete{Headers: headers, Status: status, Capabilities: Capability(caps)}, nil
}

// Parse asks the server to describe (and cache) a query's shape.
type Parse struct {
	Headers          []KV
	Capabilities     Capability
	Cardinality      Cardinality
	Query            string
	OutputFormat     OutputFormat
	ExpectedInputID  [16]byte
	ExpectedOutputID [16]byte
}

func (m Parse) Encode() []byte {
	w := NewPacketWriter()
	w.WriteHeaders(m.Headers)
	w.WriteUint64(uint64(m.Capabilities))
	w.WriteUint8(uint8(m.Cardinality))
	w.WriteUint8(uint8(m.OutputFormat))
	w.WriteLenString(m.Query)
	w.WriteUUID(uuidFromArray(m.ExpectedInputID))
	w.WriteUUID(uuidFromArray(m.ExpectedOutputID))
	return w.Bytes()
}

// Execute runs a previously-parsed (or freshly-parsed) query with bound
// arguments and, optionally, a piggybacked session-state blob.
type Execute struct {
	Headers      []KV
	Capabilities Capability
	Cardinality  Cardinality
	Query        string
	OutputFormat OutputFormat
	InputTypeID  [16]byte
	OutputTypeID [16]byte
	StateTypeID  [16]byte
	StateData    []byte // nil if unchanged since last shipped
	Arguments    []byte // pre-encoded by the input codec
}

func (m Execute) Encode() []byte {
	w := NewPacketWriter()
	w.WriteHeaders(m.Headers)
	w.WriteUint64(uint64(m.Capabilities))
	w.WriteUint8(uint8(m.Cardinality))
	w.WriteUint8(uint8(m.OutputFormat))
	w.WriteLenString(m.Query)
	w.WriteUUID(uuidFromArray(m.StateTypeID))
	w.WriteLenBytes(m.StateData)
	w.WriteUUID(uuidFromArray(m.InputTypeID))
	w.WriteUUID(uuidFromArray(m.OutputTypeID))
	w.WriteLenBytes(m.Arguments)
	return w.Bytes()
}

// Sync asks the server to flush and respond with ReadyForCommand.
type Sync struct{}

func (Sync) Encode() []byte { return nil }

// Terminate cleanly ends the session.
type Terminate struct{}

func (Terminate) Encode() []byte { return nil }
