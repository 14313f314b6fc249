package sshkey

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/crypto/ssh"
)

// SupportedAlgorithms are the public key algorithms accepted in pubkey text.
var SupportedAlgorithms = []string{
	ssh.KeyAlgoRSA,
	ssh.KeyAlgoDSA,
	ssh.KeyAlgoED25519,
	ssh.KeyAlgoECDSA256,
	ssh.KeyAlgoECDSA384,
	ssh.KeyAlgoECDSA521,
}

var (
	publicKeyPattern  = regexp.MustCompile(`^(ssh-rsa|ssh-dss|ssh-ed25519|ecdsa-sha2-nistp(?:256|384|521)) [A-Za-z0-9+/]+={0,3}(?: .*)?$`)
	privateKeyPattern = regexp.MustCompile(`(?s)^-----BEGIN (OPENSSH|RSA|DSA|EC|ENCRYPTED)? ?PRIVATE KEY-----\n.+\n-----END (OPENSSH|RSA|DSA|EC|ENCRYPTED)? ?PRIVATE KEY-----$`)
)

// ValidatePublicKey checks that text is a single "<algorithm> <base64> [comment]"
// line for a supported algorithm whose key data decodes.
func ValidatePublicKey(text string) error {
	line := strings.TrimSpace(text)
	if strings.Contains(line, "\n") {
		return errors.New("expected a single public key line")
	}
	m := publicKeyPattern.FindStringSubmatch(line)
	if m == nil {
		return errors.New("expected '<algorithm> <base64> [comment]' with algorithm one of " + strings.Join(SupportedAlgorithms, ", "))
	}
	key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(line))
	if err != nil {
		return fmt.Errorf("decoding %s key: %w", m[1], err)
	}
	if key.Type() != m[1] {
		return fmt.Errorf("key data is %s but line declares %s", key.Type(), m[1])
	}
	return nil
}

// ValidatePrivateKey checks that text carries OpenSSH or PEM private key
// armor and, unless it is passphrase protected, that it parses.
func ValidatePrivateKey(text string) error {
	body := strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	m := privateKeyPattern.FindStringSubmatch(body)
	if m == nil {
		return errors.New("expected an OpenSSH or PEM private key (-----BEGIN ... PRIVATE KEY-----)")
	}
	if m[1] != m[2] {
		return fmt.Errorf("BEGIN %s and END %s markers do not match", armorName(m[1]), armorName(m[2]))
	}
	if m[1] == "ENCRYPTED" {
		return nil
	}
	if _, err := ssh.ParsePrivateKey([]byte(body + "\n")); err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return nil
		}
		return fmt.Errorf("parsing private key: %w", err)
	}
	return nil
}

func armorName(kind string) string {
	if kind == "" {
		return "PRIVATE KEY"
	}
	return kind + " PRIVATE KEY"
}

// DerivePublicKey computes the authorized_keys line for an unencrypted
// private key. comment, when not empty, is appended after the key.
func DerivePublicKey(privateKey []byte, comment string) ([]byte, error) {
	signer, err := ssh.ParsePrivateKey(privateKey)
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return nil, errors.New("private key is passphrase protected, cannot derive its public key")
		}
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	line := bytes.TrimRight(ssh.MarshalAuthorizedKey(signer.PublicKey()), "\n")
	if comment != "" {
		line = append(line, ' ')
		line = append(line, comment...)
	}
	return append(line, '\n'), nil
}
