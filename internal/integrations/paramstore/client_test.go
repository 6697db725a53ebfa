package paramstore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
)

// fakeAPI is a simple fake implementing ssmAPI for tests.
type fakeAPI struct {
	getOut *ssm.GetParameterOutput
	getErr error
	lastIn *ssm.GetParameterInput
}

func (f *fakeAPI) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.lastIn = in
	return f.getOut, f.getErr
}

func strPtr(s string) *string { return &s }

func TestGetParameter_ResolvesUnderPrefix(t *testing.T) {
	api := &fakeAPI{getOut: &ssm.GetParameterOutput{Parameter: &types.Parameter{
		Name: strPtr("/mentorgraph/prod/signing_key"), Value: strPtr(" 0xabc\n"), Type: types.ParameterTypeSecureString,
	}}}
	client, err := New(api, "/mentorgraph/prod/")
	require.NoError(t, err)

	v, err := client.GetParameter(context.Background(), "signing_key")
	require.NoError(t, err)
	require.Equal(t, "0xabc", v)
	require.Equal(t, "/mentorgraph/prod/signing_key", *api.lastIn.Name)
	require.True(t, *api.lastIn.WithDecryption)
}

func TestResolve(t *testing.T) {
	client, err := New(&fakeAPI{}, "/app")
	require.NoError(t, err)
	require.Equal(t, "/app/key", client.Resolve("key"))
	require.Equal(t, "/other/key", client.Resolve("/other/key"))

	bare, err := New(&fakeAPI{}, "")
	require.NoError(t, err)
	require.Equal(t, "key", bare.Resolve("key"))
}

func TestGetParameter_MissingValue(t *testing.T) {
	api := &fakeAPI{getOut: &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: strPtr("p"), Value: nil}}}
	client, err := New(api, "")
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "p")
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing value")
}

func TestGetParameter_ApiError(t *testing.T) {
	api := &fakeAPI{getErr: errors.New("boom")}
	client, err := New(api, "/app")
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "p")
	require.ErrorContains(t, err, "boom")
	require.ErrorContains(t, err, "/app/p")
}

func TestGetParameter_ClientNotInitialized(t *testing.T) {
	_, err := (&Client{}).GetParameter(context.Background(), "p")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not initialized")
}

func TestGetParameter_EmptyName(t *testing.T) {
	client, err := New(&fakeAPI{}, "/app")
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "  ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "required")
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil, "/app")
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be nil")
}
