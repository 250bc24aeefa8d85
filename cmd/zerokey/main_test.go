package main

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zerokey/artifact"
	"zerokey/internal/config"
	"zerokey/internal/logging"
	"zerokey/recovery"
)

func run(t *testing.T, args ...string) error {
	t.Helper()
	root, a := newRootCmd(config.Default())
	root.SetArgs(args)
	defer a.close()
	return root.Execute()
}

func TestSecretFlags(t *testing.T) {
	sf := secretFlags{pairs: []string{"pet = vanilla", "city=Rosario", "nick=pi po"}}
	s, err := sf.resolve()
	require.NoError(t, err)
	assert.Equal(t, "petvanillacityRosarionickpipo", s)

	sf = secretFlags{secret: "raw", pairs: []string{"a=b"}}
	_, err = sf.resolve()
	assert.Error(t, err)

	_, err = parsePairs([]string{"no separator"})
	assert.ErrorIs(t, err, recovery.ErrInvalidAnswers)
}

func TestCommitmentCommand(t *testing.T) {
	require.NoError(t, run(t, "--store", "memory", "--log-level", "error", "commitment", "--secret", demoSecret))

	err := run(t, "--store", "memory", "commitment", "--qa", "only=one")
	assert.ErrorIs(t, err, recovery.ErrInvalidAnswers)
}

func TestInvalidConfig(t *testing.T) {
	err := run(t, "--store", "s3", "commitment", "--secret", "x")
	var ve *config.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "store", ve.Field)
}

func TestProveRejectsBadAddress(t *testing.T) {
	err := run(t, "--store", "memory", "--log-level", "error", "prove", "--secret", demoSecret,
		"--address", "0x955954d5ac0a61b0996cced9d43e2534b0d99f5")
	assert.Error(t, err)
}

func TestSetupCommand(t *testing.T) {
	if testing.Short() {
		t.Skip("groth16 setup is slow")
	}
	defer logging.SilenceGnark()()
	require.NoError(t, run(t, "--store", "memory", "--log-level", "error", "setup"))

	dir := t.TempDir()
	require.NoError(t, run(t, "--dir", dir, "--log-level", "error", "setup"))
	require.FileExists(t, filepath.Join(dir, artifact.ArtifactsFile))
	require.FileExists(t, filepath.Join(dir, artifact.KeypairFile))
}
