// Command cli drives the form pipeline from the terminal: generate a
// specification from text, a file, a Google Doc, or a script, print it as
// JSON, and optionally create the form in one shot.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/bytedance/sonic"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/formloom/formloom/internal/broadcast"
	"github.com/formloom/formloom/internal/config"
	"github.com/formloom/formloom/internal/creator"
	"github.com/formloom/formloom/internal/docfetch"
	"github.com/formloom/formloom/internal/generator"
	"github.com/formloom/formloom/internal/gforms"
	"github.com/formloom/formloom/internal/spec"
	"github.com/formloom/formloom/internal/synthesizer"
	"github.com/formloom/formloom/internal/utils/logger"
)

func main() {
	var (
		text       = flag.String("text", "", "free-text form description")
		file       = flag.String("file", "", "path to a document to generate from")
		doc        = flag.String("doc", "", "Google Docs URL or document ID")
		scriptFile = flag.String("script", "", "path to an Apps Script or JSON form definition")
		specFile   = flag.String("spec", "", "path to an already-generated specification JSON")
		optional   = flag.Bool("optional", false, "make questions optional unless the input says otherwise")
		create     = flag.Bool("create", false, "create the form after generating the specification")
	)
	// logger.Init runs flag.Parse, covering the flags above too.
	logger.Init()

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg(".env not loaded; continuing with existing environment")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load environment configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	c, logs := buildCreator(ctx, cfg)
	defaultRequired := !*optional

	var result *creator.GenerationResult
	switch {
	case *text != "":
		result, err = c.FromText(ctx, *text, defaultRequired)
	case *file != "":
		var data []byte
		if data, err = os.ReadFile(*file); err == nil {
			result, err = c.FromFile(ctx, *file, data, defaultRequired)
		}
	case *doc != "":
		result, err = c.FromDoc(ctx, *doc, defaultRequired)
	case *scriptFile != "":
		var code []byte
		if code, err = os.ReadFile(*scriptFile); err == nil {
			result, err = c.FromScript(ctx, string(code), defaultRequired)
		}
	case *specFile != "":
		var data []byte
		var f spec.FormSpecification
		if data, err = os.ReadFile(*specFile); err == nil {
			if err = sonic.Unmarshal(data, &f); err == nil {
				createForm(ctx, c, logs, f)
				return
			}
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("generation failed")
	}

	printLogs(ctx, logs, result.SessionID)

	if *create {
		createForm(ctx, c, logs, result.Spec)
		return
	}

	out, err := sonic.MarshalIndent(result.Spec, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("could not encode specification")
	}
	fmt.Println(string(out))
}

func buildCreator(ctx context.Context, cfg *config.AppConfig) (*creator.Creator, *broadcast.Registry) {
	gen, err := generator.NewGenerator(&cfg.GeminiEnvConfig, cfg.ClientTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init generator client")
	}
	docs, err := docfetch.NewClient(ctx, cfg.ClientTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init docs client")
	}
	forms, err := gforms.NewClient(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init forms client")
	}

	logs := broadcast.NewRegistry(cfg.SessionIdleTimeout)
	return creator.New(gen, docs, synthesizer.New(forms), logs), logs
}

func createForm(ctx context.Context, c *creator.Creator, logs *broadcast.Registry, f spec.FormSpecification) {
	res, err := c.Create(ctx, f)
	if err != nil {
		log.Fatal().Err(err).Msg("form creation failed")
	}
	printLogs(ctx, logs, res.SessionID)
	fmt.Printf("Form created.\n  View: %s\n  Edit: %s\n", res.ViewURL, res.EditURL)
}

// printLogs replays the session's buffered progress entries to stderr. The
// pipeline has already finished, so the terminal entry is present and the
// stream drains immediately.
func printLogs(ctx context.Context, logs *broadcast.Registry, sessionID string) {
	entries, err := logs.Stream(ctx, sessionID)
	if err != nil {
		return
	}
	for e := range entries {
		fmt.Fprintf(os.Stderr, "[%s] %s\n", e.Severity, e.Message)
	}
}
