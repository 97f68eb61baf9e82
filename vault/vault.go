package vault

import (
	"context"
	"fmt"
	"strings"

	vault "github.com/hashicorp/vault/api"
	"github.com/pkg/errors"
)

// DefaultPrefix marks a placeholder to be replaced by the secret of the same key.
const DefaultPrefix = "__VAULT__"

type DXVaultInterface interface {
	Start() error
	ResolveAsString(ctx context.Context, v string) (string, error)
}

type DXVault struct {
	Vendor  string
	Address string
	Token   string
	Prefix  string
	Path    string
}

// DXHashicorpVault resolves placeholders from a KV v2 secret.
type DXHashicorpVault struct {
	DXVault
	Client *vault.Client
}

func NewHashiCorpVault(address string, token string, prefix string, path string) *DXHashicorpVault {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &DXHashicorpVault{
		DXVault: DXVault{
			Vendor:  "HASHICORP-VAULT",
			Address: address,
			Token:   token,
			Prefix:  prefix,
			Path:    path,
		},
	}
}

func (hv *DXHashicorpVault) Start() error {
	config := vault.DefaultConfig()
	config.Address = hv.Address
	client, err := vault.NewClient(config)
	if err != nil {
		return errors.Wrap(err, "VAULT_CLIENT_INITIALIZATION_ERROR")
	}
	client.SetToken(hv.Token)
	hv.Client = client
	return nil
}

// ResolveAsString replaces every Prefix+key in v with the secret value of key.
// The secret is only read when v contains the prefix.
func (hv *DXHashicorpVault) ResolveAsString(ctx context.Context, v string) (string, error) {
	if !strings.Contains(v, hv.Prefix) {
		return v, nil
	}
	if hv.Client == nil {
		return "", errors.New("VAULT_NOT_STARTED")
	}
	secret, err := hv.Client.Logical().ReadWithContext(ctx, hv.Path)
	if err != nil {
		return "", errors.Wrapf(err, "VAULT_READ_ERROR:%s", hv.Path)
	}
	if secret == nil || secret.Data == nil {
		return "", errors.Errorf("VAULT_SECRET_NOT_FOUND:%s", hv.Path)
	}
	data, ok := secret.Data["data"].(map[string]any)
	if !ok {
		return "", errors.Errorf("VAULT_SECRET_IS_NOT_KV2:%s", hv.Path)
	}
	s := v
	for key, value := range data {
		s = strings.ReplaceAll(s, hv.Prefix+key, fmt.Sprint(value))
	}
	if strings.Contains(s, hv.Prefix) {
		return "", errors.Errorf("VAULT_PLACEHOLDER_UNRESOLVED:%s", hv.Path)
	}
	return s, nil
}
