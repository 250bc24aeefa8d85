package fieldcodec

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	sampleSecret  = "vanillaiqaweufbgviuywrebgiyrwbrgywergiwybebwrguiyigbuwrbuiogwrrgbiojugiowrbujwrgbuiouiob"
	sampleAddress = "0x955954d5ac0a61b0996cced9d43e2534b0d99f5e"
)

func TestHashToLimbs(t *testing.T) {
	limbs, err := HashToLimbs(sampleSecret)
	require.NoError(t, err)
	assert.Equal(t, [4]string{
		"235588006345339261288519838914045282895",
		"27183011802535944720828725845767208541",
		"309019318831713075258026134945464981891",
		"152974688478621194132415345257754499259",
	}, limbs)

	again, err := HashToLimbs(sampleSecret)
	require.NoError(t, err)
	assert.Equal(t, limbs, again)
}

func TestHashToLimbsRange(t *testing.T) {
	bound := new(big.Int).Lsh(big.NewInt(1), 128)
	for _, s := range []string{"", "a", "ünïcödé ✓", strings.Repeat("x", 4096)} {
		limbs, err := HashToLimbs(s)
		require.NoError(t, err)
		for _, l := range limbs {
			v, ok := new(big.Int).SetString(l, 10)
			require.True(t, ok)
			assert.Equal(t, -1, v.Cmp(bound), "limb %s of %q", l, s)
			assert.GreaterOrEqual(t, v.Sign(), 0)
		}
	}
}

func TestDigestToLimbs(t *testing.T) {
	limbs, err := DigestToLimbs(make([]byte, 64))
	require.NoError(t, err)
	assert.Equal(t, [4]string{"0", "0", "0", "0"}, limbs)

	digest := make([]byte, 64)
	digest[15] = 1
	digest[63] = 0xff
	limbs, err = DigestToLimbs(digest)
	require.NoError(t, err)
	assert.Equal(t, [4]string{"1", "0", "0", "255"}, limbs)

	for _, n := range []int{0, 32, 63, 65} {
		_, err := DigestToLimbs(make([]byte, n))
		assert.ErrorIs(t, err, ErrEncoding, "len %d", n)
	}
}

func TestAddressToLimbs(t *testing.T) {
	limbs, err := AddressToLimbs(sampleAddress)
	require.NoError(t, err)
	assert.Equal(t, [2]string{"2505659605", "228681119628961782455211471579100323678"}, limbs)

	bare, err := AddressToLimbs(strings.TrimPrefix(sampleAddress, "0x"))
	require.NoError(t, err)
	assert.Equal(t, limbs, bare)

	upper, err := AddressToLimbs("0x" + strings.ToUpper(sampleAddress[2:]))
	require.NoError(t, err)
	assert.Equal(t, limbs, upper)
}

func TestAddressToLimbsLength(t *testing.T) {
	digits := sampleAddress[2:]
	cases := map[string]string{
		"39 digits":          digits[:39],
		"39 digits prefixed": "0x" + digits[:39],
		"41 digits":          digits + "0",
		"41 digits prefixed": "0x" + digits + "0",
		"empty":              "",
		"prefix only":        "0x",
		"non hex":            "0x" + strings.Repeat("zz", 20),
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := AddressToLimbs(in)
			assert.ErrorIs(t, err, ErrEncoding)
		})
	}
}

func TestAddressRoundTrip(t *testing.T) {
	for i := 0; i < 16; i++ {
		key, err := crypto.GenerateKey()
		require.NoError(t, err)
		addr := crypto.PubkeyToAddress(key.PublicKey)

		limbs, err := AddressToLimbs(addr.Hex())
		require.NoError(t, err)

		hi, _ := new(big.Int).SetString(limbs[0], 10)
		lo, _ := new(big.Int).SetString(limbs[1], 10)
		var padded [32]byte
		hi.FillBytes(padded[:16])
		lo.FillBytes(padded[16:])
		assert.Equal(t, make([]byte, 12), padded[:12])
		assert.True(t, strings.EqualFold(addr.Hex()[2:], common.Bytes2Hex(padded[12:])))

		back, err := LimbsToAddress(limbs)
		require.NoError(t, err)
		assert.Equal(t, addr, back)
	}
}

func TestLimbsToAddressRejectsWideHigh(t *testing.T) {
	_, err := LimbsToAddress([2]string{new(big.Int).Lsh(big.NewInt(1), 32).String(), "0"})
	assert.ErrorIs(t, err, ErrEncoding)
}

func TestParseFieldElement(t *testing.T) {
	v, err := ParseFieldElement("0")
	require.NoError(t, err)
	assert.Zero(t, v.Sign())

	m := Modulus()
	_, err = ParseFieldElement(new(big.Int).Sub(m, big.NewInt(1)).String())
	assert.NoError(t, err)

	for _, bad := range []string{"", "-1", "01", "1e3", " 1", m.String()} {
		_, err := ParseFieldElement(bad)
		assert.ErrorIs(t, err, ErrEncoding, "input %q", bad)
	}

	_, err = ParseLimb(new(big.Int).Lsh(big.NewInt(1), 128).String())
	assert.ErrorIs(t, err, ErrEncoding)
}

func TestMask128(t *testing.T) {
	v := new(big.Int).Lsh(big.NewInt(1), 130)
	v.Add(v, big.NewInt(7))
	assert.Equal(t, "7", Mask128(v).String())
	b := LimbBytesOf(big.NewInt(258))
	assert.Equal(t, byte(1), b[14])
	assert.Equal(t, byte(2), b[15])
}
