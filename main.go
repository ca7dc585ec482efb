package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"market-dashboard/pkg/config"
	"market-dashboard/pkg/i18n"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config.Config{}

	root := &cobra.Command{
		Use:   "market-dashboard",
		Short: "Live market dashboard: candles, forecasts and AI sentiment",
		Long: `market-dashboard serves historical prices, live tick streams, server-rendered
charts, model forecasts and LLM sentiment reports over HTTP and websockets.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load()
			if err != nil {
				log.Printf(i18n.Get("ConfigLoadFailed"), err)
				return err
			}
			if lang, _ := cmd.Flags().GetString("lang"); lang != "" {
				loaded.Language = lang
			}
			i18n.SetLanguage(i18n.Language(loaded.Language))
			*cfg = *loaded
			return nil
		},
	}

	root.PersistentFlags().String("lang", "", "Log language (en or zh), overrides LANGUAGE")
	root.AddCommand(newServeCmd(cfg))
	root.AddCommand(newWatchCmd(cfg))
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println("market-dashboard " + buildVersion())
		},
	}
}

func buildVersion() string {
	if v := os.Getenv("APP_VERSION"); v != "" {
		return v
	}
	return "v1.0-dev"
}
