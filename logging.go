/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

func newLogger(cfg *Config) zerolog.Logger {
	level := zerolog.InfoLevel
	if cfg.verbose {
		level = zerolog.DebugLevel
	}

	return zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
}

// drainErrors logs handler write failures until errs is closed.
func drainErrors(log zerolog.Logger, errs <-chan error) {
	for err := range errs {
		log.Warn().Err(err).Msg("write failed")
	}
}

const errorPageStyle = `html,body,a{display:block;height:100%;width:100%;text-decoration:none;color:inherit;cursor:auto;}`

// errorPageStyleHash allows the inline error page style through the CSP.
var errorPageStyleHash = func() string {
	sum := sha256.Sum256([]byte(errorPageStyle))

	return "'sha256-" + base64.StdEncoding.EncodeToString(sum[:]) + "'"
}()

func newPage(title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(`<style>` + errorPageStyle + `</style>`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", title))
	htmlBody.WriteString(fmt.Sprintf("<body><a href=\"/\">%s</a></body></html>", body))

	return htmlBody.String()
}
