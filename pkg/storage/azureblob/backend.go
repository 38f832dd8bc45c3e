package azureblob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/rs/zerolog/log"

	"github.com/terrycain/blob-config-sync/pkg/azauth"
	"github.com/terrycain/blob-config-sync/pkg/e"
	"github.com/terrycain/blob-config-sync/pkg/s"
	"github.com/terrycain/blob-config-sync/pkg/utils"
)

type Backend struct {
	Client *azblob.Client

	container string
	location  s.RemoteLocation
}

type ConnectionParts struct {
	AccountName           string
	AccountKey            string
	BlobEndpoint          string
	SharedAccessSignature string
	Container             string
}

// ParsePartsFromConnectionString pulls the parts we care about out of an azure storage connection string.
// Container is not an azure key, it lets a single secret carry the container name too.
func ParsePartsFromConnectionString(connStr string) (ConnectionParts, bool) {
	result := ConnectionParts{}

	for _, part := range utils.CleanStringSlice(strings.Split(connStr, ";")) {
		subParts := strings.SplitN(part, "=", 2)
		if len(subParts) < 2 {
			return ConnectionParts{}, false
		}

		switch subParts[0] {
		case "AccountName":
			result.AccountName = subParts[1]
		case "AccountKey":
			result.AccountKey = subParts[1]
		case "BlobEndpoint":
			result.BlobEndpoint = subParts[1]
		case "SharedAccessSignature":
			result.SharedAccessSignature = subParts[1]
		case "Container":
			result.Container = subParts[1]
		}
	}

	sharedKey := result.AccountName != "" && result.AccountKey != ""
	sas := result.BlobEndpoint != "" && result.SharedAccessSignature != ""
	if !sharedKey && !sas {
		return ConnectionParts{}, false
	}

	return result, true
}

func stripContainer(connStr string) string {
	parts := make([]string, 0)
	for _, part := range utils.CleanStringSlice(strings.Split(connStr, ";")) {
		if strings.HasPrefix(part, "Container=") {
			continue
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, ";")
}

// New only validates that the chosen auth mode has its inputs, the client is built in Setup.
func New(loc s.RemoteLocation) (*Backend, error) {
	container := loc.Container

	switch loc.Auth {
	case s.AuthWorkloadIdentity:
		if loc.AccountURL == "" {
			return &Backend{}, fmt.Errorf("%w: account url is required for managed identity auth", e.ErrMissingCredentials)
		}
	case s.AuthConnectionString:
		if loc.ConnectionString == "" {
			return &Backend{}, fmt.Errorf("%w: connection string is empty", e.ErrMissingCredentials)
		}
		parts, found := ParsePartsFromConnectionString(loc.ConnectionString)
		if !found {
			return &Backend{}, fmt.Errorf("%w: connection string needs AccountName+AccountKey or BlobEndpoint+SharedAccessSignature", e.ErrMissingCredentials)
		}
		if parts.Container != "" {
			container = parts.Container
		}
	default:
		return &Backend{}, fmt.Errorf("%w: invalid blob auth type %q", e.ErrMissingCredentials, loc.Auth)
	}

	if container == "" {
		return &Backend{}, errors.New("container is required")
	}

	return &Backend{container: container, location: loc}, nil
}

func (b *Backend) Setup() error {
	var client *azblob.Client
	var err error

	if b.location.Auth == s.AuthConnectionString {
		log.Info().Msg("Blob: using connection string authentication")
		client, err = azblob.NewClientFromConnectionString(stripContainer(b.location.ConnectionString), nil)
	} else {
		cred, credErr := azauth.NewCredential(b.location.ClientID)
		if credErr != nil {
			return fmt.Errorf("%w: %s", e.ErrMissingCredentials, credErr.Error())
		}
		client, err = azblob.NewClient(b.location.AccountURL, cred, nil)
	}
	if err != nil {
		return err
	}

	b.Client = client
	log.Info().Str("container", b.container).Msg("Blob storage initialised")
	return nil
}

func (b *Backend) Type() string {
	return "azureblob"
}

func (b *Backend) Fetch(ctx context.Context, blobPath string) ([]byte, error) {
	resp, err := b.Client.DownloadStream(ctx, b.container, blobPath, nil)
	if err != nil {
		return nil, classify(blobPath, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classify(blobPath, err)
	}

	return data, nil
}

func classify(blobPath string, err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return e.NewFetchError(e.FetchKindFromStatus(respErr.StatusCode), blobPath, err)
	}

	var authErr *azidentity.AuthenticationFailedError
	if errors.As(err, &authErr) {
		return e.NewFetchError(e.FetchUnauthorized, blobPath, err)
	}

	if e.IsNetworkError(err) {
		return e.NewFetchError(e.FetchTransientNetwork, blobPath, err)
	}

	return e.NewFetchError(e.FetchUnknown, blobPath, err)
}
