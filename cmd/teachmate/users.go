package main

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/pavelanni/teachmate/internal/auth"
	"github.com/pavelanni/teachmate/internal/model"
	"github.com/pavelanni/teachmate/internal/store"
)

// usersFile is the layout of the --users-file YAML document.
type usersFile struct {
	Users []model.UserImport `yaml:"users"`
}

// importUsers creates or updates the users listed in a YAML file. The file
// is skipped when its content hash matches the last import.
func importUsers(db *store.Store, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	hash := sha256sum(data)
	storedHash, err := db.GetImportedFileHash(path)
	if err != nil {
		return fmt.Errorf("check import status for %s: %w", path, err)
	}
	if storedHash == hash {
		slog.Info("users file unchanged, skipping", "path", path)
		return nil
	}

	var f usersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	var created, updated int
	for i, ui := range f.Users {
		username := strings.TrimSpace(ui.Username)
		if username == "" {
			return fmt.Errorf("%s: user %d has no username", path, i+1)
		}
		if !strings.HasPrefix(ui.PasswordHash, "$2") {
			return fmt.Errorf("%s: user %q needs a bcrypt password_hash (see teachmate hash-password)", path, username)
		}
		displayName := strings.TrimSpace(ui.DisplayName)
		if displayName == "" {
			displayName = username
		}
		active := ui.Active == nil || *ui.Active
		isNew, err := db.UpsertUser(model.User{
			Username:     username,
			DisplayName:  displayName,
			PasswordHash: ui.PasswordHash,
			Active:       active,
		})
		if err != nil {
			return fmt.Errorf("import user %q: %w", username, err)
		}
		if !isNew && ui.Active != nil {
			if err := db.SetUserActive(username, active); err != nil {
				return fmt.Errorf("set active for %q: %w", username, err)
			}
		}
		if isNew {
			created++
		} else {
			updated++
		}
	}

	if err := db.SetImportedFileHash(path, hash); err != nil {
		return fmt.Errorf("record import for %s: %w", path, err)
	}
	slog.Info("imported users", "path", path, "created", created, "updated", updated)
	return nil
}

// listUsers prints one line per user: name, display name and status.
func listUsers(db *store.Store, w io.Writer) error {
	users, err := db.ListUsers()
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USERNAME\tDISPLAY NAME\tSTATUS\tCREATED")
	for _, u := range users {
		status := "active"
		if !u.Active {
			status = "disabled"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", u.Username, u.DisplayName, status, u.CreatedAt.Format("2006-01-02"))
	}
	return tw.Flush()
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// seedAdmin creates the admin user when the database has no users yet.
func seedAdmin(db *store.Store, password string) error {
	count, err := db.UserCount()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return errors.New("admin password is required: set --admin-password flag or TEACHMATE_ADMIN_PASSWORD env var")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	_, err = db.CreateUser(model.User{
		Username:     "admin",
		DisplayName:  "Administrator",
		PasswordHash: hash,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	slog.Info("seeded default admin user", "username", "admin")
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode JSON: %w", err)
	}
	return nil
}
