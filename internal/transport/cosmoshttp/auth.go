package cosmoshttp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/cockroachdb/errors"
)

// Authorizer fills the Authorization header of an outbound store request.
type Authorizer interface {
	Authorize(req *http.Request, verb, resourceType, resourceLink string) error
}

// MasterKeySignature computes the base64 HMAC-SHA256 signature over the
// canonical request form. The emulator uses the same function to verify
// inbound signatures.
func MasterKeySignature(key []byte, verb, resourceType, resourceLink, date string) string {
	payload := strings.ToLower(verb) + "\n" +
		strings.ToLower(resourceType) + "\n" +
		resourceLink + "\n" +
		strings.ToLower(date) + "\n" +
		"\n"
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// DecodeMasterKey decodes the base64 account master key.
func DecodeMasterKey(masterKey string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(masterKey)
	if err != nil {
		return nil, errors.Wrap(err, "decode master key")
	}
	if len(key) == 0 {
		return nil, errors.New("master key is empty")
	}
	return key, nil
}

// KeyAuthorizer signs requests with the account master key.
type KeyAuthorizer struct {
	key []byte
}

// NewKeyAuthorizer decodes the base64 master key.
func NewKeyAuthorizer(masterKey string) (*KeyAuthorizer, error) {
	key, err := DecodeMasterKey(masterKey)
	if err != nil {
		return nil, err
	}
	return &KeyAuthorizer{key: key}, nil
}

// Authorize signs the canonical request form with the master key. The
// x-ms-date header must already be set.
func (a *KeyAuthorizer) Authorize(req *http.Request, verb, resourceType, resourceLink string) error {
	date := req.Header.Get(HeaderDate)
	if date == "" {
		return errors.New("x-ms-date header not set")
	}
	signature := MasterKeySignature(a.key, verb, resourceType, resourceLink, date)
	req.Header.Set(HeaderAuthorization, url.QueryEscape("type=master&ver=1.0&sig="+signature))
	return nil
}

// TokenAuthorizer signs requests with AAD bearer tokens from an azcore
// credential, e.g. azidentity.DefaultAzureCredential.
type TokenAuthorizer struct {
	credential azcore.TokenCredential
	scopes     []string
}

// NewTokenAuthorizer derives the token scope from the account endpoint.
func NewTokenAuthorizer(credential azcore.TokenCredential, endpoint string) *TokenAuthorizer {
	scope := strings.TrimSuffix(endpoint, "/") + "/.default"
	return &TokenAuthorizer{credential: credential, scopes: []string{scope}}
}

// Authorize fetches a token for the configured scope. The azcore credential
// caches and refreshes tokens internally.
func (a *TokenAuthorizer) Authorize(req *http.Request, _, _, _ string) error {
	token, err := a.credential.GetToken(req.Context(), policy.TokenRequestOptions{Scopes: a.scopes})
	if err != nil {
		return errors.Wrap(err, "acquire AAD token")
	}
	req.Header.Set(HeaderAuthorization, url.QueryEscape("type=aad&ver=1.0&sig="+token.Token))
	return nil
}
