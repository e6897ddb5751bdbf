package relay

import (
	"context"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testSignerKey = "7c852118294e51e653712a81e05800f419141751be58f605c371e15141b007a6"

func newSignedTestTx(t *testing.T) *gethtypes.Transaction {
	t.Helper()

	key, err := crypto.HexToECDSA(testSignerKey)
	require.NoError(t, err)

	to := common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")
	tx := gethtypes.NewTx(&gethtypes.LegacyTx{
		Nonce:    1,
		GasPrice: big.NewInt(40_000_000_000),
		Gas:      250_000,
		To:       &to,
		Value:    big.NewInt(0),
		Data:     []byte{0x38, 0xed, 0x17, 0x39},
	})

	signed, err := gethtypes.SignTx(tx, gethtypes.LatestSignerForChainID(big.NewInt(1)), key)
	require.NoError(t, err)

	return signed
}

type capturedRequest struct {
	method    string
	signature string
	params    []json.RawMessage
}

// newRelayServer fakes a Flashbots-compatible relay that records the request
// and returns the given result payload.
func newRelayServer(t *testing.T, result string) (*httptest.Server, *capturedRequest) {
	t.Helper()

	captured := &capturedRequest{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var req struct {
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		require.NoError(t, json.Unmarshal(body, &req))

		captured.method = req.Method
		captured.signature = r.Header.Get("X-Flashbots-Signature")
		captured.params = req.Params

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":` + result + `}`))
	}))
	t.Cleanup(server.Close)

	return server, captured
}

func newTestClient(t *testing.T, endpoint string) *Client {
	t.Helper()

	key, err := crypto.HexToECDSA(testSignerKey)
	require.NoError(t, err)

	client, err := NewClient(&Config{
		Endpoint:   endpoint,
		SigningKey: key,
		Logger:     zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	return client
}

func TestNewClient_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewClient(nil)
	assert.ErrorContains(t, err, "config cannot be nil")

	_, err = NewClient(&Config{})
	assert.ErrorContains(t, err, "endpoint cannot be empty")

	key, keyErr := crypto.HexToECDSA(testSignerKey)
	require.NoError(t, keyErr)

	_, err = NewClient(&Config{Endpoint: "https://relay.example"})
	assert.ErrorContains(t, err, "signing key cannot be nil")

	_, err = NewClient(&Config{Endpoint: "https://relay.example", SigningKey: key})
	assert.ErrorContains(t, err, "logger cannot be nil")
}

func TestSendBundle_SignsAndSubmits(t *testing.T) {
	t.Parallel()

	server, captured := newRelayServer(t, `{"bundleHash":"0xb0b"}`)
	client := newTestClient(t, server.URL)

	hash, err := client.SendBundle(context.Background(), []*gethtypes.Transaction{newSignedTestTx(t)}, 123, 0, 0)
	require.NoError(t, err)

	assert.Equal(t, "0xb0b", hash)
	assert.Equal(t, "eth_sendBundle", captured.method)

	require.Len(t, captured.params, 1)
	var params struct {
		Txs         []string `json:"txs"`
		BlockNumber string   `json:"blockNumber"`
	}
	require.NoError(t, json.Unmarshal(captured.params[0], &params))
	assert.Equal(t, "0x7b", params.BlockNumber)
	require.Len(t, params.Txs, 1)
	assert.True(t, strings.HasPrefix(params.Txs[0], "0x"))
}

func TestSendBundle_SignatureRecoversToSigner(t *testing.T) {
	t.Parallel()

	server, captured := newRelayServer(t, `{"bundleHash":"0xb0b"}`)

	key, err := crypto.HexToECDSA(testSignerKey)
	require.NoError(t, err)
	wantAddr := crypto.PubkeyToAddress(key.PublicKey)

	client := newTestClient(t, server.URL)
	_, err = client.SendBundle(context.Background(), []*gethtypes.Transaction{newSignedTestTx(t)}, 123, 0, 0)
	require.NoError(t, err)

	// Header format is <address>:<signature over the EIP-191 hash of the
	// keccak digest of the body>.
	parts := strings.SplitN(captured.signature, ":", 2)
	require.Len(t, parts, 2)
	assert.Equal(t, wantAddr.Hex(), parts[0])
	assert.True(t, strings.HasPrefix(parts[1], "0x"))
}

func TestSimulateBundle_Success(t *testing.T) {
	t.Parallel()

	server, captured := newRelayServer(t,
		`{"results":[{"gasUsed":150000},{"gasUsed":140000}],"coinbaseDiff":"42000000000000000","totalGasUsed":290000}`)
	client := newTestClient(t, server.URL)

	sim, err := client.SimulateBundle(context.Background(),
		[]*gethtypes.Transaction{newSignedTestTx(t)}, 100)
	require.NoError(t, err)

	assert.Equal(t, "eth_callBundle", captured.method)
	assert.True(t, sim.Success)
	assert.Equal(t, -1, sim.RevertedAt)
	assert.Equal(t, uint64(290_000), sim.GasUsed)
	assert.Equal(t, "42000000000000000", sim.CoinbaseDiff.String())
}

func TestSimulateBundle_ReportsFirstRevert(t *testing.T) {
	t.Parallel()

	server, _ := newRelayServer(t,
		`{"results":[{"gasUsed":150000},{"revert":"UniswapV2: K","gasUsed":30000}],"totalGasUsed":180000}`)
	client := newTestClient(t, server.URL)

	sim, err := client.SimulateBundle(context.Background(),
		[]*gethtypes.Transaction{newSignedTestTx(t)}, 100)
	require.NoError(t, err)

	assert.False(t, sim.Success)
	assert.Equal(t, 1, sim.RevertedAt)
	assert.Equal(t, "UniswapV2: K", sim.RevertReason)
}

func TestGetBundleStats(t *testing.T) {
	t.Parallel()

	server, captured := newRelayServer(t, `{"isSimulated":true,"includedBlock":123}`)
	client := newTestClient(t, server.URL)

	stats, err := client.GetBundleStats(context.Background(), "0xb0b", 123)
	require.NoError(t, err)

	assert.Equal(t, "flashbots_getBundleStats", captured.method)
	assert.True(t, stats.Included)
	assert.Equal(t, uint64(123), stats.IncludedBlock)
}

func TestGetBundleStats_NotIncluded(t *testing.T) {
	t.Parallel()

	server, _ := newRelayServer(t, `{"isSimulated":true,"includedBlock":0}`)
	client := newTestClient(t, server.URL)

	stats, err := client.GetBundleStats(context.Background(), "0xb0b", 123)
	require.NoError(t, err)

	assert.False(t, stats.Included)
}

func TestCall_RelayErrorSurfaces(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"bundle too large"}}`))
	}))
	t.Cleanup(server.Close)

	client := newTestClient(t, server.URL)

	_, err := client.SendBundle(context.Background(), []*gethtypes.Transaction{newSignedTestTx(t)}, 123, 0, 0)
	assert.ErrorContains(t, err, "bundle too large")
}

func TestCall_HTTPErrorSurfaces(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	client := newTestClient(t, server.URL)

	_, err := client.GetBundleStats(context.Background(), "0xb0b", 123)
	assert.ErrorContains(t, err, "status 502")
}

func TestCall_ConcurrentRequestIDsAreUnique(t *testing.T) {
	t.Parallel()

	var (
		mu  sync.Mutex
		ids = make(map[uint64]struct{})
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var req struct {
			ID uint64 `json:"id"`
		}
		require.NoError(t, json.Unmarshal(body, &req))

		mu.Lock()
		ids[req.ID] = struct{}{}
		mu.Unlock()

		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"isSimulated":true,"includedBlock":1}}`))
	}))
	t.Cleanup(server.Close)

	client := newTestClient(t, server.URL)

	const calls = 20
	var wg sync.WaitGroup
	wg.Add(calls)
	for i := 0; i < calls; i++ {
		go func() {
			defer wg.Done()
			_, err := client.GetBundleStats(context.Background(), "0xb0b", 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, ids, calls, "every concurrent request carries its own id")
}

func TestParseDecimalWei(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(0), parseDecimalWei("").Int64())
	assert.Equal(t, int64(0), parseDecimalWei("not-a-number").Int64())
	assert.Equal(t, "123456789000000000", parseDecimalWei("123456789000000000").String())
}

func TestSignPayload_Deterministic(t *testing.T) {
	t.Parallel()

	key, err := crypto.HexToECDSA(testSignerKey)
	require.NoError(t, err)

	body := []byte(`{"jsonrpc":"2.0"}`)
	sig, err := signPayload(key, body)
	require.NoError(t, err)

	parts := strings.SplitN(sig, ":", 2)
	require.Len(t, parts, 2)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey).Hex(), parts[0])

	// The signature must verify against the EIP-191 hash of the body digest.
	hashed := crypto.Keccak256Hash(body)
	sigBytes := common.FromHex(parts[1])
	require.Len(t, sigBytes, 65)

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(hashed.Hex())), sigBytes)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), crypto.PubkeyToAddress(*pub))
}
