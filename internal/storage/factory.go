package storage

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"recap/internal/adapters/storage/gdrive"
	"recap/internal/adapters/storage/localfs"
	"recap/internal/config"
	"recap/internal/signing"
)

// NewProvider builds the configured backend. Both backends issue download
// URLs through the signer; the API's artifact route verifies them and
// streams the object.
func NewProvider(cfg config.Config, signer *signing.Signer) (Provider, error) {
	switch cfg.StorageProvider {
	case "localfs":
		if cfg.StorageLocalRoot == "" {
			return nil, fmt.Errorf("storage: STORAGE_LOCAL_ROOT is required for localfs")
		}
		return localfs.New(cfg.StorageLocalRoot, signer), nil

	case "gdrive":
		return newGDriveProvider(cfg, signer)

	default:
		return nil, fmt.Errorf("storage: unknown provider %q", cfg.StorageProvider)
	}
}

func newGDriveProvider(cfg config.Config, signer *signing.Signer) (Provider, error) {
	if cfg.GDriveClientID == "" || cfg.GDriveClientSecret == "" || cfg.GDriveRefreshToken == "" {
		return nil, fmt.Errorf("storage: gdrive requires GDRIVE_CLIENT_ID, GDRIVE_CLIENT_SECRET and GDRIVE_REFRESH_TOKEN")
	}

	ctx := context.Background()
	conf := &oauth2.Config{
		ClientID:     cfg.GDriveClientID,
		ClientSecret: cfg.GDriveClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{drive.DriveFileScope},
	}

	tok := &oauth2.Token{RefreshToken: cfg.GDriveRefreshToken}
	httpClient := conf.Client(ctx, tok)

	srv, err := drive.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("storage: gdrive service: %w", err)
	}

	return gdrive.NewClient(srv, cfg.GDriveFolderID, signer), nil
}
