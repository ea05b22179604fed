package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-choropleth/internal/config"
	"github.com/joeblew999/plat-choropleth/internal/logging"
	"github.com/joeblew999/plat-choropleth/internal/server"
	"github.com/joeblew999/plat-choropleth/internal/tiler"
)

// Options defines all CLI flags and env vars for the choropleth server.
// Flags: --host, --port, --data-dir, --web-dir, --config, --log-level, --dataset, --tiler
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, ...
type Options struct {
	Host     string `doc:"Host to bind to" default:"0.0.0.0"`
	Port     int    `doc:"Port to listen on" short:"p" default:"8086"`
	DataDir  string `doc:"Directory for the dataset, tiles and DuckDB file" default:"data"`
	WebDir   string `doc:"Serve web/ from this directory instead of the embedded copy"`
	Config   string `doc:"Path to choropleth.yaml" short:"c"`
	LogLevel string `doc:"Log level (trace, debug, info, warn, error)" default:"info"`
	Dataset  string `doc:"Override the dataset source (path or URL)"`
	Tiler    string `doc:"Tile engine: go or tippecanoe" default:"go"`
}

func newServer(opts *Options, log zerolog.Logger, disableDB bool) (*server.Server, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, err
	}
	if opts.Dataset != "" {
		cfg.Dataset.Source = opts.Dataset
	}
	return server.New(server.Config{
		Host:      opts.Host,
		Port:      fmt.Sprintf("%d", opts.Port),
		DataDir:   opts.DataDir,
		WebDir:    opts.WebDir,
		DisableDB: disableDB,
		Tiler:     opts.Tiler,
		Viewer:    cfg,
	}, log)
}

func fatal(log zerolog.Logger, err error, msg string) {
	log.Error().Err(err).Msg(msg)
	os.Exit(1)
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		log := logging.New(opts.LogLevel)
		srv, err := newServer(opts, log, false)
		if err != nil {
			fatal(log, err, "server setup failed")
		}

		ctx, cancel := context.WithCancel(context.Background())
		httpServer := &http.Server{
			Addr:              fmt.Sprintf("%s:%d", opts.Host, opts.Port),
			Handler:           srv,
			ReadHeaderTimeout: 10 * time.Second,
		}

		hooks.OnStart(func() {
			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			fmt.Println()
			fmt.Printf("plat-choropleth server starting...\n")
			fmt.Printf("  Viewer:  %s/\n", baseURL)
			fmt.Printf("  Data:    %s\n", opts.DataDir)
			fmt.Printf("  Docs:    %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI: %s/openapi.json\n", baseURL)
			fmt.Printf("  Metrics: %s/metrics\n", baseURL)
			fmt.Println()

			srv.Start(ctx)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				fatal(log, err, "server error")
			}
		})

		hooks.OnStop(func() {
			cancel()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("shutdown")
			}
			if err := srv.Close(); err != nil {
				log.Warn().Err(err).Msg("close")
			}
		})
	})

	cli.Root().Use = "choropleth"
	cli.Root().Short = "NYC community district population choropleth"
	cli.Root().Version = "0.1.0"

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			log := logging.New("error")
			srv, err := newServer(opts, log, true)
			if err != nil {
				fatal(log, err, "server setup failed")
			}
			spec := srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			if useYAML {
				output, err = yaml.Marshal(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fatal(log, err, "marshal spec")
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// districts subcommand: load the dataset and print a summary table
	districtsCmd := &cobra.Command{
		Use:   "districts",
		Short: "Load the dataset and list its districts",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			log := logging.New(opts.LogLevel)
			srv, err := newServer(opts, log, true)
			if err != nil {
				fatal(log, err, "server setup failed")
			}
			c, err := srv.Districts().Dataset(context.Background())
			if err != nil {
				fatal(log, err, "load districts")
			}
			for _, d := range c.Districts() {
				pop := "N/A"
				if !math.IsNaN(d.Population) {
					pop = humanize.Comma(int64(d.Population))
				}
				fmt.Printf("%-5s %-40s %10s\n", d.BoroCD, d.Name, pop)
			}
			fmt.Printf("\n%d districts, %d without geometry\n", c.Len(), c.Invalid())
		}),
	}
	cli.Root().AddCommand(districtsCmd)

	// tiles subcommand: bake the dataset into a PMTiles archive
	tilesCmd := &cobra.Command{
		Use:   "tiles",
		Short: "Generate a PMTiles archive from the dataset",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			log := logging.New(opts.LogLevel)
			srv, err := newServer(opts, log, true)
			if err != nil {
				fatal(log, err, "server setup failed")
			}
			c, err := srv.Districts().Dataset(context.Background())
			if err != nil {
				fatal(log, err, "load districts")
			}

			name, _ := cmd.Flags().GetString("name")
			minZoom, _ := cmd.Flags().GetInt("min-zoom")
			layer, _ := cmd.Flags().GetString("layer")
			maxZoom, _ := cmd.Flags().GetInt("max-zoom")
			tf, err := srv.Tiles().Generate(c, name, tiler.Config{Layer: layer, MinZoom: minZoom, MaxZoom: maxZoom})
			if err != nil {
				fatal(log, err, "generate tiles")
			}
			fmt.Printf("%s: %d tiles, z%d-z%d, %s\n", tf.Name, tf.Tiles, tf.MinZoom, tf.MaxZoom, tf.Size)
		}),
	}
	tilesCmd.Flags().String("name", "districts", "Archive name (without .pmtiles)")
	tilesCmd.Flags().String("layer", "districts", "Vector layer name inside each tile")
	tilesCmd.Flags().Int("min-zoom", 8, "Lowest zoom level")
	tilesCmd.Flags().Int("max-zoom", 12, "Highest zoom level")
	cli.Root().AddCommand(tilesCmd)

	cli.Run()
}
