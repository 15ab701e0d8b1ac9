// Command drive-check verifies that the configured service account can see
// the Drive folder reports are uploaded to.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"monthbook/internal/cli"
	"monthbook/internal/config"
	"monthbook/internal/log"
	"monthbook/internal/upload"
	"monthbook/internal/upload/drive"
)

const folderMimeType = "application/vnd.google-apps.folder"

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentUpload)
	cfg := config.Load()

	u := drive.New(drive.Config{
		CredentialsFile: cfg.DriveCredentialsFile,
		FolderID:        cfg.DriveFolderID,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	info, err := u.CheckFolder(ctx)
	switch {
	case errors.Is(err, upload.ErrDisabled):
		fmt.Fprintf(os.Stderr, "Drive upload is disabled: set DRIVE_FOLDER_ID and provide %s\n", cfg.DriveCredentialsFile)
		os.Exit(2)
	case err != nil:
		logger.Error("Drive folder check failed", log.FieldError, err, "folder_id", cfg.DriveFolderID)
		os.Exit(1)
	}

	fmt.Printf("Folder: %s (%s)\n", info.Name, info.ID)
	if info.MimeType != folderMimeType {
		fmt.Fprintf(os.Stderr, "Warning: %s is not a folder (mime type %s)\n", info.ID, info.MimeType)
		os.Exit(1)
	}
	fmt.Println("OK: reports can be uploaded to this folder")
}
