// Package drive uploads reports to a Google Drive folder with a service account.
package drive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	gdrive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	goption "google.golang.org/api/option"

	"monthbook/internal/upload"
)

// Target is the name recorded for Drive uploads.
const Target = "drive"

// Config locates the service account key and the destination folder.
type Config struct {
	CredentialsFile string
	FolderID        string
}

// Uploader puts files into one Drive folder. The Drive client is built on
// first use and reused afterwards.
type Uploader struct {
	cfg    Config
	client *upload.Lazy[*gdrive.Service]
}

var _ upload.Uploader = (*Uploader)(nil)

// New returns an Uploader for cfg. No network call is made until Upload.
func New(cfg Config) *Uploader {
	return newWithBuilder(cfg, func(ctx context.Context) (*gdrive.Service, error) {
		return newDriveService(ctx, cfg.CredentialsFile)
	})
}

func newWithBuilder(cfg Config, build func(context.Context) (*gdrive.Service, error)) *Uploader {
	cfg.CredentialsFile = strings.TrimSpace(cfg.CredentialsFile)
	cfg.FolderID = strings.TrimSpace(cfg.FolderID)
	return &Uploader{cfg: cfg, client: upload.NewLazy(build)}
}

func (u *Uploader) Target() string { return Target }

// Enabled is true when a folder id is set and the credentials file exists.
func (u *Uploader) Enabled() bool {
	if u.cfg.FolderID == "" || u.cfg.CredentialsFile == "" {
		return false
	}
	st, err := os.Stat(u.cfg.CredentialsFile)
	return err == nil && !st.IsDir()
}

// Upload stores obj in the configured folder and returns its id and view
// link. A file of the same name already in the folder is updated in place,
// so each report keeps a single remote copy.
func (u *Uploader) Upload(ctx context.Context, obj upload.Object) (upload.Result, error) {
	if !u.Enabled() {
		return upload.Result{}, upload.ErrDisabled
	}
	svc, err := u.client.Get(ctx)
	if err != nil {
		return upload.Result{}, fmt.Errorf("%w: %v", upload.ErrUnavailable, err)
	}

	existingID, err := u.findByName(ctx, svc, obj.Name)
	if err != nil {
		return upload.Result{}, err
	}

	f, err := os.Open(obj.Path)
	if err != nil {
		return upload.Result{}, fmt.Errorf("open %s: %w", obj.Path, err)
	}
	defer f.Close()

	var stored *gdrive.File
	if existingID != "" {
		stored, err = svc.Files.Update(existingID, &gdrive.File{MimeType: obj.ContentType}).
			Media(f, googleapi.ContentType(obj.ContentType)).
			Fields("id", "name", "webViewLink", "size").
			SupportsAllDrives(true).
			Context(ctx).
			Do()
		if err != nil {
			return upload.Result{}, fmt.Errorf("drive update %s: %w", obj.Name, err)
		}
	} else {
		stored, err = svc.Files.Create(&gdrive.File{
			Name:     obj.Name,
			Parents:  []string{u.cfg.FolderID},
			MimeType: obj.ContentType,
		}).
			Media(f, googleapi.ContentType(obj.ContentType)).
			Fields("id", "name", "webViewLink", "size").
			SupportsAllDrives(true).
			Context(ctx).
			Do()
		if err != nil {
			return upload.Result{}, fmt.Errorf("drive create %s: %w", obj.Name, err)
		}
	}

	return upload.Result{
		Target:    Target,
		RemoteID:  stored.Id,
		Link:      stored.WebViewLink,
		SizeBytes: stored.Size,
	}, nil
}

// findByName returns the id of the live file called name in the folder, or
// "" when there is none.
func (u *Uploader) findByName(ctx context.Context, svc *gdrive.Service, name string) (string, error) {
	q := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false",
		escapeQuery(name), escapeQuery(u.cfg.FolderID))
	list, err := svc.Files.List().
		Q(q).
		Fields("files(id)").
		PageSize(1).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("drive lookup %s: %w", name, err)
	}
	if len(list.Files) == 0 {
		return "", nil
	}
	return list.Files[0].Id, nil
}

var queryEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

func escapeQuery(s string) string {
	return queryEscaper.Replace(s)
}

// FolderInfo describes the destination folder.
type FolderInfo struct {
	ID       string
	Name     string
	MimeType string
}

// CheckFolder resolves the configured folder, verifying both the credentials
// and the service account's access to it.
func (u *Uploader) CheckFolder(ctx context.Context) (FolderInfo, error) {
	if !u.Enabled() {
		return FolderInfo{}, upload.ErrDisabled
	}
	svc, err := u.client.Get(ctx)
	if err != nil {
		return FolderInfo{}, fmt.Errorf("%w: %v", upload.ErrUnavailable, err)
	}
	f, err := svc.Files.Get(u.cfg.FolderID).
		Fields("id", "name", "mimeType").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return FolderInfo{}, fmt.Errorf("drive get folder %s: %w", u.cfg.FolderID, err)
	}
	return FolderInfo{ID: f.Id, Name: f.Name, MimeType: f.MimeType}, nil
}

func newDriveService(ctx context.Context, credentialsFile string) (*gdrive.Service, error) {
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	if len(strings.TrimSpace(string(credentialsJSON))) == 0 {
		return nil, errors.New("service account file is empty")
	}
	svc, err := gdrive.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gdrive.DriveFileScope, gdrive.DriveScope),
	)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return svc, nil
}
