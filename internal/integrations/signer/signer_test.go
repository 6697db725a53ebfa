package signer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const testSeed = "0x000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

type mockParams struct {
	val  string
	err  error
	name string
}

func (m *mockParams) GetParameter(_ context.Context, name string) (string, error) {
	m.name = name
	return m.val, m.err
}

func TestFromHex_DeterministicAddress(t *testing.T) {
	a, err := FromHex(testSeed)
	require.NoError(t, err)
	b, err := FromHex(strings.TrimPrefix(testSeed, "0x"))
	require.NoError(t, err)

	require.Equal(t, a.Address(), b.Address())
	require.True(t, strings.HasPrefix(a.Address(), "0x"))
	require.Len(t, a.Address(), 42)
}

func TestFromHex_Invalid(t *testing.T) {
	_, err := FromHex("zz")
	require.ErrorContains(t, err, "decode seed")

	_, err = FromHex("0xabcd")
	require.ErrorContains(t, err, "must be 32 bytes")
}

func TestSignVerify(t *testing.T) {
	s, err := FromHex(testSeed)
	require.NoError(t, err)

	sig, err := s.Sign([]byte("entity"))
	require.NoError(t, err)
	require.True(t, s.Verify([]byte("entity"), sig))
	require.False(t, s.Verify([]byte("tampered"), sig))
}

func TestSign_NotInitialized(t *testing.T) {
	_, err := (&Signer{}).Sign([]byte("x"))
	require.ErrorContains(t, err, "not initialized")
	require.False(t, (&Signer{}).Verify([]byte("x"), []byte("sig")))
}

func TestGenerate_DistinctWallets(t *testing.T) {
	a, err := Generate()
	require.NoError(t, err)
	b, err := Generate()
	require.NoError(t, err)
	require.NotEqual(t, a.Address(), b.Address())
}

func TestLoad(t *testing.T) {
	fromOverride, err := Load(context.Background(), nil, "", testSeed)
	require.NoError(t, err)

	params := &mockParams{val: testSeed}
	fromParams, err := Load(context.Background(), params, "", "")
	require.NoError(t, err)
	require.Equal(t, DefaultParam, params.name)
	require.Equal(t, fromOverride.Address(), fromParams.Address())

	_, err = Load(context.Background(), &mockParams{err: errors.New("access denied")}, "custom", "")
	require.ErrorContains(t, err, "access denied")

	_, err = Load(context.Background(), nil, "", "")
	require.ErrorContains(t, err, "no signing key")
}
