package azureblob

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/terrycain/blob-config-sync/pkg/e"
	"github.com/terrycain/blob-config-sync/pkg/s"
)

func TestParsePartsFromConnectionString(t *testing.T) {
	tables := []struct {
		name     string
		connStr  string
		expected ConnectionParts
		found    bool
	}{
		{
			"shared key",
			"DefaultEndpointsProtocol=https;AccountName=acct;AccountKey=a2V5==;EndpointSuffix=core.windows.net",
			ConnectionParts{AccountName: "acct", AccountKey: "a2V5=="},
			true,
		},
		{
			"trailing semicolon and container",
			"AccountName=acct;AccountKey=key;Container=litellm;",
			ConnectionParts{AccountName: "acct", AccountKey: "key", Container: "litellm"},
			true,
		},
		{
			"sas",
			"BlobEndpoint=https://acct.blob.core.windows.net/;SharedAccessSignature=sv=2022&sig=abc",
			ConnectionParts{BlobEndpoint: "https://acct.blob.core.windows.net/", SharedAccessSignature: "sv=2022&sig=abc"},
			true,
		},
		{"missing key", "AccountName=acct", ConnectionParts{}, false},
		{"garbage", "not a connection string", ConnectionParts{}, false},
	}

	for _, table := range tables {
		t.Run(table.name, func(t *testing.T) {
			result, found := ParsePartsFromConnectionString(table.connStr)
			if found != table.found {
				t.Fatalf("expected found=%t, got %t", table.found, found)
			}
			if diff := cmp.Diff(table.expected, result); diff != "" {
				t.Errorf("ParsePartsFromConnectionString() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStripContainer(t *testing.T) {
	got := stripContainer("AccountName=acct;Container=c;AccountKey=key;")
	if diff := cmp.Diff("AccountName=acct;AccountKey=key", got); diff != "" {
		t.Errorf("stripContainer() mismatch (-want +got):\n%s", diff)
	}
}

func TestNewMissingCredentials(t *testing.T) {
	tables := []struct {
		name string
		loc  s.RemoteLocation
	}{
		{"mi without account url", s.RemoteLocation{Container: "c", Auth: s.AuthWorkloadIdentity}},
		{"empty connection string", s.RemoteLocation{Container: "c", Auth: s.AuthConnectionString}},
		{"bad connection string", s.RemoteLocation{Container: "c", Auth: s.AuthConnectionString, ConnectionString: "AccountName=a"}},
		{"unknown auth", s.RemoteLocation{Container: "c", Auth: "KEYVAULT"}},
	}

	for _, table := range tables {
		t.Run(table.name, func(t *testing.T) {
			_, err := New(table.loc)
			if !errors.Is(err, e.ErrMissingCredentials) {
				t.Fatalf("expected ErrMissingCredentials, got %v", err)
			}
		})
	}
}

func TestNewContainerFromConnectionString(t *testing.T) {
	b, err := New(s.RemoteLocation{
		Container:        "default",
		Auth:             s.AuthConnectionString,
		ConnectionString: "AccountName=acct;AccountKey=a2V5;Container=override",
	})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff("override", b.container); diff != "" {
		t.Errorf("container mismatch (-want +got):\n%s", diff)
	}
}

func TestClassify(t *testing.T) {
	tables := []struct {
		name     string
		err      error
		expected error
	}{
		{"404", &azcore.ResponseError{StatusCode: http.StatusNotFound, ErrorCode: "BlobNotFound"}, e.ErrNotFound},
		{"403", &azcore.ResponseError{StatusCode: http.StatusForbidden, ErrorCode: "AuthorizationFailure"}, e.ErrUnauthorized},
		{"503", fmt.Errorf("download: %w", &azcore.ResponseError{StatusCode: http.StatusServiceUnavailable}), e.ErrTransientNetwork},
		{"deadline", context.DeadlineExceeded, e.ErrTransientNetwork},
		{"identity not available yet", azidentity.NewCredentialUnavailableError("no IMDS endpoint"), e.ErrUnknown},
		{"other", errors.New("weird"), e.ErrUnknown},
	}

	for _, table := range tables {
		t.Run(table.name, func(t *testing.T) {
			err := classify("config.yaml", table.err)
			if !errors.Is(err, table.expected) {
				t.Errorf("expected %v, got %v", table.expected, err)
			}
		})
	}
}

// TestAzuriteFetch runs against azurite when STORAGE_AZURITE holds its connection string.
func TestAzuriteFetch(t *testing.T) {
	connStr := os.Getenv("STORAGE_AZURITE")
	if connStr == "" {
		t.Skip("Skipped azurite as no env var")
	}
	ctx := context.Background()
	container := uuid.NewString()

	client, err := azblob.NewClientFromConnectionString(connStr, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err = client.CreateContainer(ctx, container, nil); err != nil {
		t.Fatal(err)
	}
	doc := []byte("model_list:\n  - model_name: gpt\n")
	if _, err = client.UploadBuffer(ctx, container, "config.yaml", doc, nil); err != nil {
		t.Fatal(err)
	}

	backend, err := New(s.RemoteLocation{Container: container, Auth: s.AuthConnectionString, ConnectionString: connStr})
	if err != nil {
		t.Fatal(err)
	}
	if err = backend.Setup(); err != nil {
		t.Fatal(err)
	}

	data, err := backend.Fetch(ctx, "config.yaml")
	if err != nil {
		t.Fatalf("Failed to fetch blob: %s", err.Error())
	}
	if diff := cmp.Diff(doc, data); diff != "" {
		t.Fatal(diff)
	}

	if _, err = backend.Fetch(ctx, "missing.yaml"); !errors.Is(err, e.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
