package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"github.com/ILLUVRSE/serverquality/internal/auth"
	"github.com/ILLUVRSE/serverquality/internal/config"
)

const (
	privateKeyFile = "signing.pem"
	publicKeyFile  = "public.pem"
)

func newTokenCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Create signing keys and bearer tokens for the HTTP API",
	}
	cmd.AddCommand(newKeygenCmd(), newMintCmd(g))
	return cmd
}

func newKeygenCmd() *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an RSA key pair; point auth.public_keys_file at public.pem",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			priv, err := rsa.GenerateKey(rand.Reader, 2048)
			if err != nil {
				return fmt.Errorf("generate key: %w", err)
			}
			privDER, err := x509.MarshalPKCS8PrivateKey(priv)
			if err != nil {
				return err
			}
			pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return err
			}
			privPath := filepath.Join(outDir, privateKeyFile)
			pubPath := filepath.Join(outDir, publicKeyFile)
			if err := os.WriteFile(privPath, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER}), 0o600); err != nil {
				return err
			}
			if err := os.WriteFile(pubPath, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\nwrote %s\n", privPath, pubPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out-dir", ".", "directory for signing.pem and public.pem")
	return cmd
}

func newMintCmd(g *globalFlags) *cobra.Command {
	var (
		keyPath string
		subject string
		scopes  []string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Sign a bearer token with --key, or with auth.hmac_secret when no key is given",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, s := range scopes {
				if s != auth.ScopeWrite && s != auth.ScopeAdmin {
					return fmt.Errorf("unknown scope %q", s)
				}
			}
			now := time.Now()
			claims := jwt.MapClaims{
				"sub":   subject,
				"scope": strings.Join(scopes, " "),
				"iat":   now.Unix(),
				"exp":   now.Add(ttl).Unix(),
			}

			var signed string
			if keyPath != "" {
				key, err := loadPrivateKey(keyPath)
				if err != nil {
					return err
				}
				if signed, err = jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key); err != nil {
					return fmt.Errorf("sign token: %w", err)
				}
			} else {
				cfg, err := config.Load(g.configFile)
				if err != nil {
					return err
				}
				if cfg.Auth.HMACSecret == "" {
					return errors.New("no --key given and auth.hmac_secret is not set")
				}
				if signed, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Auth.HMACSecret)); err != nil {
					return fmt.Errorf("sign token: %w", err)
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), signed)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&keyPath, "key", "", "PEM private key from 'token keygen'")
	f.StringVar(&subject, "sub", "qualityctl", "token subject")
	f.StringSliceVar(&scopes, "scope", []string{auth.ScopeWrite}, "granted scope (repeatable)")
	f.DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}

func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%s is not an RSA key", path)
	}
	return rsaKey, nil
}
