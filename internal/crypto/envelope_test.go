package crypto_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yzkee/super-productivity-sub001/internal/crypto"
)

func TestSealOpenRoundTrip(t *testing.T) {
	plaintext := []byte(`{"title":"buy milk"}`)
	env, err := crypto.Seal("correct horse battery staple", plaintext)
	require.NoError(t, err)
	require.Equal(t, crypto.AlgorithmArgon2idSecretbox, env.Algorithm)
	require.NotEmpty(t, env.Salt)
	require.NotEqual(t, plaintext, env.Ciphertext)

	got, err := crypto.Open("correct horse battery staple", env)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestOpenWrongPasswordFails(t *testing.T) {
	env, err := crypto.Seal("correct-password", []byte("secret"))
	require.NoError(t, err)

	_, err = crypto.Open("wrong-password", env)
	require.Error(t, err)
}

func TestSealIsNonDeterministic(t *testing.T) {
	a, err := crypto.Seal("pw", []byte("same plaintext"))
	require.NoError(t, err)
	b, err := crypto.Seal("pw", []byte("same plaintext"))
	require.NoError(t, err)
	require.NotEqual(t, a.Salt, b.Salt)
	require.NotEqual(t, a.Nonce, b.Nonce)
	require.NotEqual(t, a.Ciphertext, b.Ciphertext)
}

func TestDetectTransition(t *testing.T) {
	tr, ok := crypto.DetectTransition(false, true, "", "newpw")
	require.True(t, ok)
	require.Equal(t, crypto.TransitionEnable, tr.Kind)

	tr, ok = crypto.DetectTransition(true, false, "oldpw", "")
	require.True(t, ok)
	require.Equal(t, crypto.TransitionDisable, tr.Kind)

	tr, ok = crypto.DetectTransition(true, true, "oldpw", "newpw")
	require.True(t, ok)
	require.Equal(t, crypto.TransitionChangePassword, tr.Kind)

	_, ok = crypto.DetectTransition(true, true, "samepw", "samepw")
	require.False(t, ok)

	_, ok = crypto.DetectTransition(false, false, "", "")
	require.False(t, ok)
}
