package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"sessiond/cmd/internal/app"
	"sessiond/cmd/internal/auth/credential"

	"aidanwoods.dev/go-paseto"
	"github.com/urfave/cli/v2"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "listen address, overrides SESSIOND_HTTP_ADDR"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
			&cli.BoolFlag{Name: "migrate", Usage: "apply the Postgres schema before serving"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if v := c.String("addr"); v != "" {
				cfg.HTTPAddr = v
			}
			if v := c.String("log-level"); v != "" {
				cfg.LogLevel = v
			}
			if c.Bool("migrate") {
				cfg.DBMigrate = true
			}
			return app.Run(c.Context, cfg)
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "apply the embedded Postgres schema and exit",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			return app.Migrate(c.Context, cfg, app.NewLogger(cfg.LogLevel, cfg.LogFormat))
		},
	}
}

func keygenCommand() *cli.Command {
	return &cli.Command{
		Name:  "keygen",
		Usage: "print fresh signing keys as environment assignments",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "format",
				Usage: "token format the keys are for: jwt or paseto",
				Value: credential.FormatJWT,
			},
		},
		Action: func(c *cli.Context) error {
			return writeKeys(c.App.Writer, c.String("format"))
		},
	}
}

func loadConfig(c *cli.Context) (app.Config, error) {
	if err := app.LoadDotEnv(c.StringSlice("env-file")...); err != nil {
		return app.Config{}, err
	}
	return app.LoadConfig()
}

// writeKeys prints keys for format plus a token HMAC key.
func writeKeys(w io.Writer, format string) error {
	var lines []string
	switch format {
	case credential.FormatJWT:
		access, err := randomSecret()
		if err != nil {
			return err
		}
		refresh, err := randomSecret()
		if err != nil {
			return err
		}
		lines = append(lines,
			"SESSIOND_TOKEN_FORMAT="+credential.FormatJWT,
			"SESSIOND_ACCESS_SECRET="+access,
			"SESSIOND_REFRESH_SECRET="+refresh,
		)
	case credential.FormatPaseto:
		lines = append(lines,
			"SESSIOND_TOKEN_FORMAT="+credential.FormatPaseto,
			"SESSIOND_PASETO_ACCESS_KEY_HEX="+paseto.NewV4AsymmetricSecretKey().ExportHex(),
			"SESSIOND_PASETO_REFRESH_KEY_HEX="+paseto.NewV4AsymmetricSecretKey().ExportHex(),
		)
	default:
		return fmt.Errorf("unknown token format %q", format)
	}

	hmacKey, err := randomSecret()
	if err != nil {
		return err
	}
	lines = append(lines, "SESSIOND_TOKEN_HMAC_KEY="+hmacKey, "SESSIOND_REQUIRE_TOKEN_HMAC=true")

	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}

// randomSecret returns 48 random bytes, base64url encoded (64 chars).
func randomSecret() (string, error) {
	b := make([]byte, 48)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
