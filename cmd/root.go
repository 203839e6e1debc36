// Package cmd contains the CLI entry points.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ayudante-ai/ayudante/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "ayudante",
	Short: "Ayudante - asistente conversacional con herramientas",
	Long: `Ayudante es un servidor de asistente conversacional en español.
Orquesta turnos de conversación con un modelo de lenguaje, ejecuta
herramientas (búsqueda de documentos, cálculo, notas) y transmite las
respuestas como NDJSON.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// newLogger builds the process logger. Dev environments get readable
// text output at debug level; everything else gets JSON.
func newLogger(environment string) log.Logger {
	cfg := log.Config{Level: slog.LevelInfo, JSON: true}
	if environment == "dev" {
		cfg = log.Config{Level: slog.LevelDebug, JSON: false}
	}
	logger := log.New(cfg)
	slog.SetDefault(logger)
	return logger
}
