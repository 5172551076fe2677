package protocol

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/pbkdf2"
)

func TestSaslEscape(t *testing.T) {
	assert.Equal(t, "a=3Db=2Cc", saslEscape("a=b,c"))
	assert.Equal(t, "plain", saslEscape("plain"))
}

func TestParseScramFields(t *testing.T) {
	fields, err := parseScramFields("r=abc,s=c2FsdA==,i=4096")
	require.NoError(t, err)
	assert.Equal(t, "abc", fields["r"])
	assert.Equal(t, "c2FsdA==", fields["s"])
	assert.Equal(t, "4096", fields["i"])
}

func TestParseScramFieldsMalformed(t *testing.T) {
	_, err := parseScramFields("not-a-kv-pair")
	assert.Error(t, err)
}

// fakeScramServer replays the server side of a SCRAM-SHA-256 exchange
// using the same primitives the client implements, so the test can
// assert ClientFinalMessage and VerifyServerFinal agree with an
// independently computed server view without depending on a fixed
// external test vector.
type fakeScramServer struct {
	username       string
	password       string
	clientNonce    string
	serverNonce    string
	salt           []byte
	iterations     int
	saltedPassword []byte
}

func (s *fakeScramServer) firstMessage() string {
	s.saltedPassword = pbkdf2.Key([]byte(s.password), s.salt, s.iterations, sha256.Size, sha256.New)
	return fmt.Sprintf("r=%s%s,s=%s,i=%d",
		s.clientNonce, s.serverNonce, base64.StdEncoding.EncodeToString(s.salt), s.iterations)
}

func (s *fakeScramServer) verifyAndFinalize(clientFirstBare, serverFirst, clientFinal string) (string, error) {
	fields, err := parseScramFields(clientFinal)
	if err != nil {
		return "", err
	}
	proofB64 := fields["p"]
	proof, err := base64.StdEncoding.DecodeString(proofB64)
	if err != nil {
		return "", err
	}

	clientFinalWithoutProof := clientFinal[:strings.LastIndex(clientFinal, ",p=")]
	authMessage := strings.Join([]string{clientFirstBare, serverFirst, clientFinalWithoutProof}, ",")

	clientKey := hmacSHA256(s.saltedPassword, []byte("Client Key"))
	storedKey := sha256.Sum256(clientKey)
	clientSignature := hmacSHA256(storedKey[:], []byte(authMessage))
	expectedClientKey := xorBytes(proof, clientSignature)
	gotStoredKey := sha256.Sum256(expectedClientKey)
	if string(gotStoredKey[:]) != string(storedKey[:]) {
		return "", fmt.Errorf("client proof does not verify against stored key")
	}

	serverKey := hmacSHA256(s.saltedPassword, []byte("Server Key"))
	serverSignature := hmacSHA256(serverKey, []byte(authMessage))
	return fmt.Sprintf("v=%s", base64.StdEncoding.EncodeToString(serverSignature)), nil
}

func TestScramClientFullExchange(t *testing.T) {
	client := &ScramClient{username: "edgedb", password: "correct horse battery staple", nonce: "clientNonce123456789"}
	server := &fakeScramServer{
		username:    "edgedb",
		password:    "correct horse battery staple",
		clientNonce: client.nonce,
		serverNonce: "serverExtension987",
		salt:        []byte("0123456789abcdef"),
		iterations:  4096,
	}

	clientFirst := client.ClientFirstMessage()
	assert.True(t, strings.HasPrefix(clientFirst, "n,,n="))

	serverFirst := server.firstMessage()
	clientFinal, err := client.ClientFinalMessage(serverFirst)
	require.NoError(t, err)

	serverFinal, err := server.verifyAndFinalize(client.clientFirstBare, serverFirst, clientFinal)
	require.NoError(t, err)

	require.NoError(t, client.VerifyServerFinal(serverFinal))
}

func TestScramClientRejectsForgedServerSignature(t *testing.T) {
	client := &ScramClient{username: "edgedb", password: "hunter2", nonce: "clientNonceABCDEFGH"}
	server := &fakeScramServer{
		username:    "edgedb",
		password:    "hunter2",
		clientNonce: client.nonce,
		serverNonce: "serverNonceXYZ",
		salt:        []byte("saltsaltsaltsalt"),
		iterations:  4096,
	}

	serverFirst := server.firstMessage()
	_, err := client.ClientFinalMessage(serverFirst)
	require.NoError(t, err)

	forged := "v=" + base64.StdEncoding.EncodeToString([]byte("not the real signature!!"))
	assert.Error(t, client.VerifyServerFinal(forged))
}

func TestScramClientRejectsNonExtendingServerNonce(t *testing.T) {
	client := &ScramClient{username: "edgedb", password: "pw", nonce: "myNonce"}
	_, err := client.ClientFinalMessage("r=totallyDifferentNonce,s=c2FsdA==,i=4096")
	assert.Error(t, err)
}

func TestScramClientRejectsMissingSalt(t *testing.T) {
	client := &ScramClient{username: "edgedb", password: "pw", nonce: "myNonce"}
	_, err := client.ClientFinalMessage("r=myNonceExt,i=4096")
	assert.Error(t, err)
}
