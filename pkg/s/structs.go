package s

import (
	"errors"
	"fmt"
	"path/filepath"
)

type AuthMode string

const (
	AuthWorkloadIdentity AuthMode = "MI"
	AuthConnectionString AuthMode = "CONNECTION_STRING"
)

// RemoteLocation says where the config document lives and how to authenticate against it.
// Container is the blob container, the S3 bucket or the base directory depending on Backend.
type RemoteLocation struct {
	Backend   string
	Container string
	BlobPath  string

	Auth             AuthMode
	ClientID         string
	AccountURL       string
	ConnectionString string `json:"-"`

	// S3 only
	Region   string
	Endpoint string
}

type LocalTarget struct {
	LivePath    string
	StagingPath string
}

// NewLocalTarget builds a LocalTarget, defaulting the staging file to "<live>.tmp".
// Rename is only atomic within one filesystem so the staging file has to sit next to the live one.
func NewLocalTarget(livePath, stagingPath string) (LocalTarget, error) {
	if livePath == "" {
		return LocalTarget{}, errors.New("live config path is empty")
	}
	live, err := filepath.Abs(livePath)
	if err != nil {
		return LocalTarget{}, err
	}

	if stagingPath == "" {
		stagingPath = live + ".tmp"
	}
	staging, err := filepath.Abs(stagingPath)
	if err != nil {
		return LocalTarget{}, err
	}

	if staging == live {
		return LocalTarget{}, errors.New("staging path must differ from the live path")
	}
	if filepath.Dir(staging) != filepath.Dir(live) {
		return LocalTarget{}, fmt.Errorf("staging path %s must be in the same directory as %s", staging, live)
	}

	return LocalTarget{LivePath: live, StagingPath: staging}, nil
}

type Outcome int

const (
	Rejected Outcome = iota
	Unchanged
	Updated
)

func (o Outcome) String() string {
	switch o {
	case Updated:
		return "updated"
	case Unchanged:
		return "unchanged"
	default:
		return "rejected"
	}
}

type SyncResult struct {
	Outcome Outcome
	Size    int
	Hash    string
	Reason  error
}
