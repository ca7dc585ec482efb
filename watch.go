package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"market-dashboard/internal/chart"
	"market-dashboard/internal/marketsession"
	"market-dashboard/internal/settings"
	"market-dashboard/internal/stream"
	"market-dashboard/internal/terminal"
	"market-dashboard/pkg/config"
	"market-dashboard/pkg/export"
	"market-dashboard/pkg/i18n"
)

func newWatchCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [TICKER]",
		Short: "Stream live candles for a ticker in the terminal",
		Long: `Connects to a running dashboard server, validates the ticker and draws live
candles as they form. Example: market-dashboard watch AAPL --period 30 --export aapl.parquet`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			server, _ := cmd.Flags().GetString("server")
			if server == "" {
				server = "http://localhost:" + cfg.Port
			}
			period, _ := cmd.Flags().GetInt("period")
			exportPath, _ := cmd.Flags().GetString("export")
			ma, _ := cmd.Flags().GetString("ma")
			rsi, _ := cmd.Flags().GetBool("rsi")
			width, _ := cmd.Flags().GetInt("width")
			return watch(cmd.Context(), server, args[0], period, exportPath, ma, rsi, width)
		},
	}
	cmd.Flags().String("server", "", "Dashboard base URL (default http://localhost:$PORT)")
	cmd.Flags().Int("period", 10, "Candle duration in seconds (5, 10, 15, 30, 60 or 300)")
	cmd.Flags().String("export", "", "Write candles to this .csv, .json or .parquet file on exit")
	cmd.Flags().String("ma", "20", "Comma separated moving-average windows (20, 50, 200)")
	cmd.Flags().Bool("rsi", false, "Show RSI")
	cmd.Flags().Int("width", 60, "Sparkline width")
	return cmd
}

func watch(ctx context.Context, server, ticker string, period int, exportPath, ma string, rsi bool, width int) error {
	if !slices.Contains(settings.CandleDurations, period) {
		return fmt.Errorf("candle period %ds not in %v", period, settings.CandleDurations)
	}
	ticker = marketsession.Normalize(ticker)

	cfg := chart.DefaultConfig()
	cfg.ShowRSI = rsi
	cfg.MovingAverages = nil
	for _, part := range config.Watchlist(ma) {
		if w, err := strconv.Atoi(part); err == nil {
			cfg.MovingAverages = append(cfg.MovingAverages, w)
		}
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	wsBase := "ws" + strings.TrimPrefix(strings.TrimRight(server, "/"), "http")
	w := terminal.NewWatcher(terminal.Options{
		Ticker:        ticker,
		CandleSeconds: period,
		Dialer:        stream.NewWSDialer(wsBase),
		Validator:     stream.NewHTTPValidator(server),
		Session:       chart.SessionFor(marketsession.New(nil).Lookup(ticker)),
		Config:        cfg,
		Out:           os.Stdout,
		Width:         width,
	})

	log.Printf(i18n.Get("WatchStarted"), ticker, period)
	candles, err := w.Run(ctx)
	if err != nil {
		return err
	}
	log.Printf(i18n.Get("WatchStopped"), ticker)

	if exportPath == "" {
		return nil
	}
	n, err := export.WriteFile(exportPath, ticker, candles)
	if err != nil {
		log.Printf(i18n.Get("ExportFailed"), err)
		return err
	}
	log.Printf(i18n.Get("ExportWritten"), n, exportPath)
	return nil
}
