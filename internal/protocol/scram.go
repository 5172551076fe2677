package protocol

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// ScramClient drives one SCRAM-SHA-256 exchange (RFC 5802), channel
// binding disabled. It mirrors the shape of the teacher's challenge/
// response helpers in client_tools.go (single-purpose, stateful,
// generalized from the teacher's simple salted hash to the full
// client-first/server-first/client-final handshake this protocol's
// authentication method requires).
type ScramClient struct {
	username string
	password string
	nonce    string

	clientFirstBare string
	serverFirst     string
	saltedPassword  []byte
	authMessage     string
}

// NewScramClient prepares a handshake for the given credentials. The
// client nonce is generated fresh per attempt.
func NewScramClient(username, password string) (*ScramClient, error) {
	nonce, err := randomNonce(24)
	if err != nil {
		return nil, err
	}
	return &ScramClient{username: username, password: password, nonce: nonce}, nil
}

func randomNonce(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawStdEncoding.EncodeToString(b), nil
}

// ClientFirstMessage returns the gs2-header-prefixed client-first-message
// to send as the SASL initial response.
func (c *ScramClient) ClientFirstMessage() string {
	c.clientFirstBare = fmt.Sprintf("n=%s,r=%s", saslEscape(c.username), c.nonce)
	return "n,," + c.clientFirstBare
}

// ClientFinalMessage consumes the server-first-message and returns the
// client-final-message to send next, or an error if the server's nonce
// does not extend the client's.
func (c *ScramClient) ClientFinalMessage(serverFirst string) (string, error) {
	c.serverFirst = serverFirst
	fields, err := parseScramFields(serverFirst)
	if err != nil {
		return "", err
	}
	serverNonce, ok := fields["r"]
	if !ok || !strings.HasPrefix(serverNonce, c.nonce) {
		return "", errors.New("protocol: SCRAM server nonce does not extend client nonce")
	}
	saltB64, ok := fields["s"]
	if !ok {
		return "", errors.New("protocol: SCRAM server-first missing salt")
	}
	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		return "", fmt.Errorf("protocol: SCRAM salt: %w", err)
	}
	iterStr, ok := fields["i"]
	if !ok {
		return "", errors.New("protocol: SCRAM server-first missing iteration count")
	}
	iterations, err := strconv.Atoi(iterStr)
	if err != nil || iterations <= 0 {
		return "", fmt.Errorf("protocol: SCRAM invalid iteration count %q", iterStr)
	}

	c.saltedPassword = pbkdf2.Key([]byte(c.password), salt, iterations, sha256.Size, sha256.New)

	channelBinding := base64.StdEncoding.EncodeToString([]byte("n,,"))
	clientFinalWithoutProof := fmt.Sprintf("c=%s,r=%s", channelBinding, serverNonce)
	c.authMessage = strings.Join([]string{c.clientFirstBare, serverFirst, clientFinalWithoutProof}, ",")

	clientKey := hmacSHA256(c.saltedPassword, []byte("Client Key"))
	storedKey := sha256.Sum256(clientKey)
	clientSignature := hmacSHA256(storedKey[:], []byte(c.authMessage))
	clientProof := xorBytes(clientKey, clientSignature)

	return fmt.Sprintf("%s,p=%s", clientFinalWithoutProof, base64.StdEncoding.EncodeToString(clientProof)), nil
}

// VerifyServerFinal validates the server's proof of knowledge of the
// shared key, defeating a server impersonation attack.
func (c *ScramClient) VerifyServerFinal(serverFinal string) error {
	fields, err := parseScramFields(serverFinal)
	if err != nil {
		return err
	}
	if errMsg, ok := fields["e"]; ok {
		return fmt.Errorf("protocol: SCRAM server reported error: %s", errMsg)
	}
	sigB64, ok := fields["v"]
	if !ok {
		return errors.New("protocol: SCRAM server-final missing verifier")
	}
	gotSig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return fmt.Errorf("protocol: SCRAM server signature: %w", err)
	}
	serverKey := hmacSHA256(c.saltedPassword, []byte("Server Key"))
	wantSig := hmacSHA256(serverKey, []byte(c.authMessage))
	if !hmac.Equal(gotSig, wantSig) {
		return errors.New("protocol: SCRAM server signature mismatch")
	}
	return nil
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}

// saslEscape applies the SCRAM username-escaping rules (',' -> '=2C',
// '=' -> '=3D'); EdgeDB's SCRAM usernames are typically ASCII but the
// escaping is cheap and always correct.
func saslEscape(s string) string {
	s = strings.ReplaceAll(s, "=", "=3D")
	s = strings.ReplaceAll(s, ",", "=2C")
	return s
}

// parseScramFields splits a comma-separated key=value SCRAM message
// into a map. Values may themselves contain '=' (e.g. base64 data), so
// splitting only on the first '='.
func parseScramFields(msg string) (map[string]string, error) {
	fields := make(map[string]string)
	for _, part := range strings.Split(msg, ",") {
		idx := strings.IndexByte(part, '=')
		if idx < 0 {
			return nil, fmt.Errorf("protocol: malformed SCRAM field %q", part)
		}
		fields[part[:idx]] = part[idx+1:]
	}
	return fields, nil
}
