package main

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/candlelens/candlelens/internal/failure"
	"github.com/candlelens/candlelens/pkg/models"
	"github.com/candlelens/candlelens/pkg/server"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <image>",
	Short: "Warm up the vision model and analyze one chart image",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	image, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}

	srv, err := server.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize server: %w", err)
	}
	defer func() { _ = srv.ShutdownFunc(ctx) }()

	if st := srv.Monitor.Run(ctx); st.State != models.WarmupReady {
		return failure.New(failure.NotReady, "%s", st.Message)
	}

	resp, err := srv.Service.Analyze(ctx, models.ChartAnalysisRequest{
		Image:       image,
		ContentType: imageContentType(args[0], image),
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// imageContentType guesses from the extension first, then from the bytes.
func imageContentType(path string, data []byte) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return http.DetectContentType(data)
}
