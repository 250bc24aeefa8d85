package artifact

import (
	"context"
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomBytes(r *rand.Rand, n int) []byte {
	b := make([]byte, n)
	r.Read(b)
	return b
}

func sampleVK(r *rand.Rand) Node {
	return Object(map[string]Node{
		"scheme": String("groth16"),
		"curve":  String("bn254"),
		"nbIC":   Int(7),
		"flags":  Array(Bool(true), Bool(false), Null()),
		"alpha":  Bytes(randomBytes(r, 64)),
		"ic": Array(
			Bytes(randomBytes(r, 64)),
			Object(map[string]Node{"nested": Bytes(randomBytes(r, 3)), "empty": Bytes(nil)}),
		),
		"deep": Object(map[string]Node{
			"deeper": Object(map[string]Node{"blob": Bytes(randomBytes(r, 128))}),
		}),
	})
}

func TestArtifactsRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 8; i++ {
		a := &Artifacts{
			Program: randomBytes(r, 1+r.Intn(512)),
			ABI: ABI{
				Circuit: "test",
				Inputs:  []Param{{Name: "s", Type: "field"}, {Name: "h", Public: true, Type: "field"}},
				Outputs: []Param{{Name: "o", Public: true, Type: "field"}},
			},
			ConstraintCount: r.Intn(100000),
		}
		if i%2 == 0 {
			a.Alternate = randomBytes(r, 1+r.Intn(64))
		}
		s, err := SerializeArtifacts(a)
		require.NoError(t, err)

		data, err := json.Marshal(s)
		require.NoError(t, err)
		var decoded SerializedArtifacts
		require.NoError(t, json.Unmarshal(data, &decoded))

		back, err := DeserializeArtifacts(&decoded)
		require.NoError(t, err)
		assert.Equal(t, a, back)
	}
}

func TestArtifactsWireShape(t *testing.T) {
	s, err := SerializeArtifacts(&Artifacts{Program: []byte{1, 2, 3}, ConstraintCount: 9})
	require.NoError(t, err)
	data, err := json.Marshal(s)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "AQID", m["program"])
	assert.EqualValues(t, 9, m["constraintCount"])
	assert.Contains(t, m, "abi")
	assert.NotContains(t, m, "snarkjs")
}

func TestDeserializeArtifactsErrors(t *testing.T) {
	abi := &ABI{Circuit: "x"}
	cases := map[string]*SerializedArtifacts{
		"nil":             nil,
		"missing program": {ABI: abi},
		"missing abi":     {Program: "AQID"},
		"bad base64":      {Program: "!!!", ABI: abi},
		"bad snarkjs":     {Program: "AQID", ABI: abi, Snarkjs: &SerializedBinary{Program: "%%"}},
		"empty snarkjs":   {Program: "AQID", ABI: abi, Snarkjs: &SerializedBinary{}},
	}
	for name, s := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DeserializeArtifacts(s)
			assert.ErrorIs(t, err, ErrDeserialization)
		})
	}
}

func TestKeypairRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	for i := 0; i < 8; i++ {
		k := &Keypair{VK: sampleVK(r), PK: randomBytes(r, 1+r.Intn(2048))}
		s, err := SerializeKeypair(k)
		require.NoError(t, err)

		data, err := json.Marshal(s)
		require.NoError(t, err)
		var decoded SerializedKeypair
		require.NoError(t, json.Unmarshal(data, &decoded))

		back, err := DeserializeKeypair(&decoded)
		require.NoError(t, err)
		assert.Equal(t, k, back)
	}
}

func TestKeypairBinaryTagging(t *testing.T) {
	k := &Keypair{
		VK: Object(map[string]Node{"alpha": Bytes([]byte{0xde, 0xad})}),
		PK: []byte{1},
	}
	s, err := SerializeKeypair(k)
	require.NoError(t, err)
	assert.JSONEq(t, `{"alpha":{"type":"Bytes","data":"3q0="}}`, string(s.VK))
	assert.Equal(t, "AQ==", s.PK)
}

func TestKeypairLegacyTag(t *testing.T) {
	s := &SerializedKeypair{
		VK: json.RawMessage(`{"h":[{"type":"Uint8Array","data":"3q0="}],"n":1.5}`),
		PK: "AQ==",
	}
	k, err := DeserializeKeypair(s)
	require.NoError(t, err)

	h, ok := k.VK.Get("h")
	require.True(t, ok)
	require.Len(t, h.Items, 1)
	assert.Equal(t, KindBytes, h.Items[0].Kind)
	assert.Equal(t, []byte{0xde, 0xad}, h.Items[0].Bytes)

	again, err := SerializeKeypair(k)
	require.NoError(t, err)
	assert.Contains(t, string(again.VK), `"type":"Bytes"`)
}

func TestKeypairErrors(t *testing.T) {
	_, err := DeserializeKeypair(&SerializedKeypair{PK: "AQ=="})
	assert.ErrorIs(t, err, ErrDeserialization)

	_, err = DeserializeKeypair(&SerializedKeypair{VK: json.RawMessage(`{"a":{"type":"Bytes","data":"@@"}}`)})
	assert.ErrorIs(t, err, ErrDeserialization)

	_, err = DeserializeKeypair(&SerializedKeypair{VK: json.RawMessage(`{}`), PK: "@@"})
	assert.ErrorIs(t, err, ErrDeserialization)

	reserved := Object(map[string]Node{"type": String("Bytes"), "data": String("AA==")})
	_, err = SerializeKeypair(&Keypair{VK: Object(map[string]Node{"x": reserved})})
	assert.Error(t, err)
}

func TestStoreBackends(t *testing.T) {
	ctx := context.Background()
	fb, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)
	bb, err := OpenBadger("", "circuit-v1", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { bb.Close() })

	for name, b := range map[string]Backend{"file": fb, "badger": bb} {
		t.Run(name, func(t *testing.T) {
			s := NewStore(b, zerolog.Nop())

			_, err := s.LoadArtifacts(ctx)
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = s.LoadKeypair(ctx)
			assert.ErrorIs(t, err, ErrNotFound)

			a := &Artifacts{Program: []byte("program"), ABI: ABI{Circuit: "c"}, ConstraintCount: 3}
			require.NoError(t, s.SaveArtifacts(ctx, a))
			gotA, err := s.LoadArtifacts(ctx)
			require.NoError(t, err)
			assert.Equal(t, a, gotA)

			k := &Keypair{VK: sampleVK(rand.New(rand.NewSource(3))), PK: []byte("pk")}
			require.NoError(t, s.SaveKeypair(ctx, k))
			gotK, err := s.LoadKeypair(ctx)
			require.NoError(t, err)
			assert.Equal(t, k, gotK)

			p := &Proof{
				Scheme: "groth16",
				Curve:  "bn254",
				Points: Points{A: G1{"0x1", "0x2"}},
				Inputs: []string{"1", "2"},
				Raw:    []byte{9, 9},
			}
			require.NoError(t, s.SaveProof(ctx, p))
			gotP, err := s.LoadProof(ctx)
			require.NoError(t, err)
			assert.Equal(t, p, gotP)
			assert.Equal(t, p.Fingerprint(), gotP.Fingerprint())

			require.NoError(t, s.SaveVerifier(ctx, "contract Verifier {}"))
			src, err := s.LoadVerifier(ctx)
			require.NoError(t, err)
			assert.Equal(t, "contract Verifier {}", src)
		})
	}
}

func TestStoreCorruptEntry(t *testing.T) {
	ctx := context.Background()
	fb, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, fb.Put(ctx, KeypairFile, []byte("{not json")))

	_, err = NewStore(fb, zerolog.Nop()).LoadKeypair(ctx)
	assert.ErrorIs(t, err, ErrDeserialization)
}
