// Package main provides the CLI entry point for voiceavatar.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/normanking/voiceavatar/internal/server"
	"github.com/normanking/voiceavatar/internal/tts"
)

// Version information (set at build time)
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath, logLevel string

	rootCmd := &cobra.Command{
		Use:   "voiceavatar",
		Short: "Voice assistant with a speaking avatar",
		Long: `voiceavatar answers spoken or typed questions, speaks the answer in the
user's language and drives an avatar through idle, thinking and speaking.

Use 'voiceavatar [command] --help' for more information.`,
		Version:      version,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./config.yaml or ~/.voiceavatar/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	load := func() (*app, error) {
		return newApp(configPath, logLevel)
	}

	// serve command - run the websocket session server
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve browser sessions over websocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			defer a.close()

			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				a.cfg.Server.Addr = addr
			}

			synth := a.synthesizer()
			if !synth.IsAvailable() {
				a.log.Warn("tts", "No synthesis API key; answers will be text only", nil)
			}

			srv := server.New(server.Deps{
				Answer:         a.answerProvider(),
				Synthesizer:    synth,
				Translator:     a.batcher(),
				Audio:          a.audioConfig(),
				Avatar:         a.avatarConfig(),
				Orchestrator:   a.orchestratorConfig(),
				VoiceAvailable: synth.IsAvailable,
			}, a.serverConfig(), a.eventBus, a.logger())
			srv.ForwardLogs(a.log)
			a.watchLanguage(srv.UpdateLanguage)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Start(ctx)
		},
	}
	serveCmd.Flags().String("addr", "", "listen address (overrides server.addr)")

	// ask command - one headless turn
	askCmd := &cobra.Command{
		Use:   "ask [text]",
		Short: "Answer one question and speak it headlessly",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			defer a.close()

			if lang, _ := cmd.Flags().GetString("lang"); lang != "" {
				a.cfg.Language = lang
			}
			out, _ := cmd.Flags().GetString("out")

			return runAsk(cmd.Context(), a, strings.Join(args, " "), out, cmd.OutOrStdout())
		},
	}
	askCmd.Flags().String("lang", "", "language code, e.g. hi or ta")
	askCmd.Flags().String("out", "", "also write the spoken answer to this WAV file")

	// translate command - one batch
	translateCmd := &cobra.Command{
		Use:   "translate [text...]",
		Short: "Translate strings, one per argument",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			defer a.close()

			target, _ := cmd.Flags().GetString("to")
			for _, line := range a.batcher().TranslateBatch(cmd.Context(), args, target) {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
	translateCmd.Flags().String("to", "", "target language code")
	_ = translateCmd.MarkFlagRequired("to")

	// languages command - list supported languages
	languagesCmd := &cobra.Command{
		Use:   "languages",
		Short: "List the languages with a voice",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, code := range tts.SupportedLanguages() {
				v, _ := tts.Voice(code)
				fmt.Fprintf(cmd.OutOrStdout(), "%-3s %s\n", code, v.Name)
			}
		},
	}

	rootCmd.AddCommand(serveCmd, askCmd, translateCmd, languagesCmd)
	return rootCmd
}
