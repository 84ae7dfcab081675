package crypto

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// Vectors from EIP-1014.
func TestCreate2AddressVectors(t *testing.T) {
	tests := []struct {
		name     string
		factory  string
		salt     string
		initcode []byte
		expected string
	}{
		{
			name:     "zero factory zero salt",
			factory:  "0x0000000000000000000000000000000000000000",
			salt:     "0x00",
			initcode: []byte{0x00},
			expected: "0x4D1A2e2bB4F88F0250f26Ffff098B0b30B26BF38",
		},
		{
			name:     "deadbeef factory",
			factory:  "0xdeadbeef00000000000000000000000000000000",
			salt:     "0x00",
			initcode: []byte{0x00},
			expected: "0xB928f69Bb1D91Cd65274e3c79d8986362984fDA3",
		},
		{
			name:     "cafebabe salt",
			factory:  "0x00000000000000000000000000000000deadbeef",
			salt:     "0xcafebabe",
			initcode: []byte{0xde, 0xad, 0xbe, 0xef},
			expected: "0x60f3f640a8508fC6a86d45DF051962668E1e8AC7",
		},
		{
			name:     "empty initcode",
			factory:  "0x0000000000000000000000000000000000000000",
			salt:     "0x00",
			initcode: []byte{},
			expected: "0xE33C0C7F7df4809055C3ebA6c09CFe4BaF1BD9e0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			factory, err := ParseAddress(tt.factory)
			require.NoError(t, err)
			salt, err := ParseHash(tt.salt)
			require.NoError(t, err)
			codeHash := common.BytesToHash(Keccak256(tt.initcode))

			got := Create2Address(factory, salt, codeHash)
			assert.Equal(t, common.HexToAddress(tt.expected), got)
			assert.Equal(t, tt.expected, got.Hex())
		})
	}
}

func TestCreate2AddressMatchesGeth(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		factory := common.BytesToAddress(rapid.SliceOfN(rapid.Byte(), 20, 20).Draw(t, "factory"))
		salt := common.BytesToHash(rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(t, "salt"))
		codeHash := common.BytesToHash(rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(t, "codeHash"))

		want := gethcrypto.CreateAddress2(factory, salt, codeHash[:])
		if got := Create2Address(factory, salt, codeHash); got != want {
			t.Fatalf("Create2Address = %s, geth = %s", got.Hex(), want.Hex())
		}
	})
}

func TestCreate2AddressIntoMatchesCreate2Address(t *testing.T) {
	factory := common.HexToAddress("0x660CA455230Cddf3A28e6316F369064369A4494f")
	salt := common.HexToHash("0x01")
	codeHash := common.BytesToHash(Keccak256([]byte{0x60, 0x80, 0x60, 0x40}))

	prefix := Create2PrefixBytes(factory)
	input := make([]byte, Create2InputLen)
	copy(input, prefix[:])
	copy(input[Create2PrefixLen:], salt[:])
	copy(input[Create2PrefixLen+Create2SaltLen:], codeHash[:])

	var hashBuf [32]byte
	var addr [20]byte
	Create2AddressInto(NewKeccak256(), input, hashBuf[:], addr[:])

	assert.Equal(t, Create2Address(factory, salt, codeHash), common.Address(addr))
}

func TestComputeSalt(t *testing.T) {
	solver := common.HexToAddress("0x209992056d9e776f3beA884534b878b27B98cF15")
	source := common.HexToHash("0x2a")

	want := gethcrypto.Keccak256Hash(solver[:], source[:])
	assert.Equal(t, want, ComputeSalt(solver, source))

	var input [SaltInputLen]byte
	copy(input[:], solver[:])
	copy(input[common.AddressLength:], source[:])
	var out [32]byte
	SaltInto(NewKeccak256(), input[:], out[:])
	assert.Equal(t, want, common.Hash(out))
}

func TestComputeSaltBindsSolver(t *testing.T) {
	source := common.HexToHash("0x2a")
	a := ComputeSalt(common.HexToAddress("0x01"), source)
	b := ComputeSalt(common.HexToAddress("0x02"), source)
	assert.NotEqual(t, a, b)
}

func TestIsImprovement(t *testing.T) {
	best := common.HexToAddress("0x0000000000000000000000000000000000001000")
	tests := []struct {
		name      string
		candidate string
		expected  bool
	}{
		{"exactly a sixteenth", "0x0000000000000000000000000000000000000100", true},
		{"below a sixteenth", "0x00000000000000000000000000000000000000ff", true},
		{"just above a sixteenth", "0x0000000000000000000000000000000000000101", false},
		{"equal to best", "0x0000000000000000000000000000000000001000", false},
		{"zero address", "0x0000000000000000000000000000000000000000", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsImprovement(common.HexToAddress(tt.candidate), best, 16))
		})
	}
}

func TestIsImprovementAgainstZeroBest(t *testing.T) {
	zero := common.Address{}
	assert.True(t, IsImprovement(zero, zero, 16))
	assert.False(t, IsImprovement(common.HexToAddress("0x01"), zero, 16))
}

func TestParseAddress(t *testing.T) {
	_, err := ParseAddress("0x1234")
	assert.Error(t, err)

	addr, err := ParseAddress("0xce0042B868300000d44A59004Da54A005ffdcf9f")
	require.NoError(t, err)
	assert.Equal(t, "0xce0042B868300000d44A59004Da54A005ffdcf9f", addr.Hex())
}

func TestParseHash(t *testing.T) {
	h, err := ParseHash("0x1")
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash("0x01"), h)

	_, err = ParseHash("0x" + "00" + common.Hash{}.Hex()[2:])
	assert.Error(t, err)

	_, err = ParseHash("zz")
	assert.Error(t, err)
}
