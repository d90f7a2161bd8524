// Package cloud uploads captured images to Dropbox.
package cloud

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/users"
)

// Account identifies the owner of an access token.
type Account struct {
	Name  string
	Email string
}

// Dropbox uploads files with a caller-supplied access token.
type Dropbox struct {
	logLevel dropbox.LogLevel
}

// NewDropbox creates a Dropbox client factory. verbose enables SDK logging.
func NewDropbox(verbose bool) *Dropbox {
	lvl := dropbox.LogOff
	if verbose {
		lvl = dropbox.LogInfo
	}
	return &Dropbox{logLevel: lvl}
}

func (d *Dropbox) config(token string) dropbox.Config {
	return dropbox.Config{Token: token, LogLevel: d.logLevel}
}

// Upload writes localPath to remotePath, overwriting any existing file.
func (d *Dropbox) Upload(ctx context.Context, token, localPath, remotePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	arg := files.NewUploadArg(NormalizePath(remotePath))
	arg.Mode = &files.WriteMode{Tagged: dropbox.Tagged{Tag: files.WriteModeOverwrite}}

	if _, err := files.New(d.config(token)).Upload(arg, f); err != nil {
		return fmt.Errorf("dropbox upload: %w", err)
	}
	return nil
}

// VerifyAccount checks the token by fetching the current account.
func (d *Dropbox) VerifyAccount(ctx context.Context, token string) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	acct, err := users.New(d.config(token)).GetCurrentAccount()
	if err != nil {
		return Account{}, fmt.Errorf("dropbox account: %w", err)
	}
	a := Account{Email: acct.Email}
	if acct.Name != nil {
		a.Name = acct.Name.DisplayName
	}
	return a, nil
}

// NormalizePath returns a Dropbox path: rooted, slash separated, without
// duplicate or trailing slashes.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	return path.Clean("/" + p)
}
