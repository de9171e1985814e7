package auth

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	credentialDir  = ".slop-meme-generator"
	credentialFile = "credentials.gpg"
	passphraseFile = ".gpg-passphrase"
)

// APIKeyEnvVar holds the Gemini key for the gemini image source.
const APIKeyEnvVar = "GEMINI_API_KEY"

// CredentialFileEnvVar overrides the location of the encrypted key file.
const CredentialFileEnvVar = "SLOP_CREDENTIALS_FILE"

// KeySource is one place a Gemini API key may be found. Lookup returns an
// empty key with a nil error when the source simply has nothing.
type KeySource struct {
	Name   string
	Lookup func() (string, error)
}

// DefaultSources returns the environment followed by the GPG file.
func DefaultSources() []KeySource {
	return []KeySource{
		{Name: "env", Lookup: func() (string, error) { return os.Getenv(APIKeyEnvVar), nil }},
		{Name: "gpg", Lookup: func() (string, error) {
			path, err := credentialPath()
			if err != nil {
				return "", err
			}
			return decryptCredentials(path, execGPG)
		}},
	}
}

// GetAPIKey retrieves the Gemini API key from DefaultSources.
func GetAPIKey() (string, error) {
	return ResolveAPIKey(DefaultSources()...)
}

// ResolveAPIKey returns the first non-empty key among sources.
func ResolveAPIKey(sources ...KeySource) (string, error) {
	var errs []error
	for _, src := range sources {
		key, err := src.Lookup()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", src.Name, err))
			continue
		}
		if key = strings.TrimSpace(key); key != "" {
			log.Debug().Str("source", src.Name).Msg("Using Gemini API key")
			return key, nil
		}
	}

	err := errors.Join(errs...)
	log.Error().Err(err).Msg("Failed to retrieve API key")
	return "", fmt.Errorf("API key not found: set %s or store it encrypted at ~/%s/%s", APIKeyEnvVar, credentialDir, credentialFile)
}

// gpgRunner runs gpg with args and returns its stdout.
type gpgRunner func(args ...string) ([]byte, error)

func execGPG(args ...string) ([]byte, error) {
	out, err := exec.Command("gpg", args...).Output()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
	}
	return out, err
}

// decryptCredentials decrypts the key stored at path. A missing file is not
// an error; it just yields no key.
func decryptCredentials(path string, run gpgRunner) (string, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Debug().Str("file", path).Msg("No GPG credentials file")
		return "", nil
	}

	args := []string{"--decrypt", "--quiet"}
	if pp, ok := findPassphrase(); ok {
		args = append(args, passphraseArgs(pp)...)
	}
	args = append(args, path)

	out, err := run(args...)
	if err != nil {
		return "", fmt.Errorf("GPG decryption failed: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// passphraseArgs returns the loopback flags for a passphrase file, or nil
// when the file is readable by anyone but its owner.
func passphraseArgs(path string) []string {
	fi, err := os.Stat(path)
	if err != nil {
		return nil
	}
	if mode := fi.Mode().Perm(); mode&0o077 != 0 {
		log.Warn().
			Str("passphrase_file", path).
			Str("permissions", fmt.Sprintf("%04o", mode)).
			Msg("Passphrase file has insecure permissions (should be 0600); skipping")
		return nil
	}
	return []string{"--pinentry-mode", "loopback", "--passphrase-file", path}
}

func credentialPath() (string, error) {
	if p := os.Getenv(CredentialFileEnvVar); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, credentialDir, credentialFile), nil
}

// findPassphrase looks for the passphrase file next to the executable, then
// in the working directory.
func findPassphrase() (string, bool) {
	var dirs []string
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exe))
	}
	if cwd, err := os.Getwd(); err == nil {
		dirs = append(dirs, cwd)
	}
	for _, dir := range dirs {
		p := filepath.Join(dir, passphraseFile)
		if _, err := os.Stat(p); err == nil {
			return p, true
		}
	}
	return "", false
}
