// cellserver serves the sheet service over HTTP.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cell "github.com/sharecell/cell"
	"github.com/sharecell/cell/internal/httpapi"
)

var rootCmd = &cobra.Command{
	Use:   "cellserver",
	Short: "cellserver shares uploaded spreadsheets through capability tokens",
	RunE:  run,
}

func init() {
	rootCmd.Flags().String("listen", ":8080", "address to listen on")
	rootCmd.Flags().String("data-dir", "/data", "root directory for sheet state")
	rootCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	viper.SetEnvPrefix("CELL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	viper.BindPFlags(rootCmd.Flags())
}

func run(cmd *cobra.Command, args []string) error {
	log := logrus.New()
	level, err := logrus.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		return err
	}
	log.SetLevel(level)

	svc, err := cell.New(cell.Config{
		DataDir: viper.GetString("data-dir"),
		Logger:  log,
	})
	if err != nil {
		return err
	}
	defer svc.Close()

	api := httpapi.New(svc, log)
	go api.Run()
	defer api.Stop()

	server := &http.Server{
		Addr:         viper.GetString("listen"),
		Handler:      api,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", server.Addr).Info("listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
