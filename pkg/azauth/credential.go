package azauth

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/rs/zerolog/log"
)

const RedisScope = "https://redis.azure.com/.default"

// NewCredential returns a user-assigned managed identity credential when clientID is set,
// otherwise the default chain (env, workload identity, system-assigned MI, az cli).
func NewCredential(clientID string) (azcore.TokenCredential, error) {
	if clientID != "" {
		log.Info().Str("client_id", Redact(clientID)).Msg("Using user-assigned managed identity")
		cred, err := azidentity.NewManagedIdentityCredential(&azidentity.ManagedIdentityCredentialOptions{
			ID: azidentity.ClientID(clientID),
		})
		if err != nil {
			return nil, fmt.Errorf("managed identity credential: %w", err)
		}
		return cred, nil
	}

	log.Info().Msg("Using default azure credential chain")
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("default azure credential: %w", err)
	}
	return cred, nil
}

func Token(ctx context.Context, cred azcore.TokenCredential, scope string) (string, error) {
	tok, err := cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{scope}})
	if err != nil {
		return "", err
	}
	return tok.Token, nil
}

// Redact keeps enough of an identifier to tell identities apart in logs.
func Redact(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8] + "..."
}
