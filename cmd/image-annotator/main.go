package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	imageannotator "github.com/menta2k/image-annotator"
	"github.com/menta2k/image-annotator/internal/config"
	"github.com/menta2k/image-annotator/internal/utils"
	"github.com/menta2k/image-annotator/pkg/api"
	"github.com/menta2k/image-annotator/pkg/session"
)

func main() {
	var dir, configFile, envFile, addr, backend, url, model string
	var serve, render, suggest, normalize, stats, checkModel, release bool
	var image int

	flag.StringVar(&dir, "dir", "", "image directory")
	flag.StringVar(&configFile, "config", "", "config file (json|yaml), ANNOTATOR_* env vars override it")
	flag.StringVar(&envFile, "env", ".env", "dotenv file loaded before the config")

	flag.BoolVar(&serve, "serve", false, "serve the editor API over HTTP")
	flag.StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	flag.BoolVar(&release, "release", false, "run gin in release mode")

	flag.BoolVar(&render, "render", false, "write overlay images of the annotations")
	flag.BoolVar(&suggest, "suggest", false, "add model suggestions to the annotations")
	flag.IntVar(&image, "image", -1, "with -suggest: only this image index")
	flag.StringVar(&backend, "backend", "", "suggestion backend: ollama|llamacpp|saliency")
	flag.StringVar(&url, "url", "", "suggestion server URL (defaults: ollama=http://localhost:11434, llamacpp=http://localhost:8080)")
	flag.StringVar(&model, "model", "", "suggestion model name")

	flag.BoolVar(&checkModel, "check-model", false, "ask the model to describe one image (-image, default first) to check it sees images")
	flag.BoolVar(&normalize, "normalize", false, "rewrite annotation files in canonical form")
	flag.BoolVar(&stats, "stats", false, "print dataset statistics as JSON")

	flag.Parse()
	if dir == "" {
		log.Fatalf("usage: %s -dir images/ [-serve|-render|-suggest|-check-model|-normalize|-stats] [-config file] [-backend ollama|llamacpp|saliency]", filepath.Base(os.Args[0]))
	}

	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("could not load %s: %v", envFile, err)
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		log.Fatal(err)
	}
	if backend != "" {
		cfg.Suggest.Backend = backend
	}
	if url != "" {
		cfg.Suggest.URL = url
	}
	if model != "" {
		cfg.Suggest.Model = model
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	ann, err := imageannotator.New(cfg)
	if err != nil {
		log.Fatal(err)
	}

	switch {
	case stats:
		report, err := ann.Stats(dir)
		if err != nil {
			log.Fatal(err)
		}
		js, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(js))
		for _, issue := range report.Issues {
			log.Printf("issue: %s", issue)
		}

	case normalize:
		n, err := ann.Normalize(dir)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("normalized %d annotation files in %s", n, dir)

	case render:
		n, err := ann.RenderDir(dir)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("wrote %d overlays to %s", n, cfg.Render.OutputDir)

	case suggest:
		if err := runSuggest(ann, dir, image); err != nil {
			log.Fatal(err)
		}

	case checkModel:
		if err := runCheckModel(ann, cfg, dir, image); err != nil {
			log.Fatal(err)
		}

	case serve:
		if err := runServer(ann, cfg, dir, release); err != nil {
			log.Fatal(err)
		}

	default:
		log.Fatal("nothing to do: pass one of -serve, -render, -suggest, -check-model, -normalize or -stats")
	}
}

func runSuggest(ann *imageannotator.Annotator, dir string, only int) error {
	sess := ann.NewSession()
	if err := sess.Open(dir); err != nil {
		return err
	}
	defer sess.Close()

	indexes := []int{only}
	if only < 0 {
		indexes = indexes[:0]
		for i := range sess.Images() {
			indexes = append(indexes, i)
		}
	}

	ctx := context.Background()
	for _, i := range indexes {
		if err := sess.Switch(i); err != nil {
			log.Printf("suggest: %v", err)
			continue
		}
		cur, _ := sess.Current()
		start := time.Now()
		n, err := ann.SuggestSession(ctx, sess)
		if err != nil {
			log.Printf("suggest %s failed: %v", filepath.Base(cur.Path), err)
			continue
		}
		log.Printf("suggest %s: %d boxes in %s", filepath.Base(cur.Path), n, time.Since(start).Round(time.Millisecond))
	}
	return nil
}

func runCheckModel(ann *imageannotator.Annotator, cfg *config.Config, dir string, index int) error {
	images, err := utils.ListImageFiles(dir, cfg.Files.ImageExtensions)
	if err != nil {
		return err
	}
	if len(images) == 0 {
		return session.ErrNoImages
	}
	if index < 0 {
		index = 0
	}
	if index >= len(images) {
		return fmt.Errorf("%w: %d of %d", session.ErrIndexOutOfRange, index, len(images))
	}

	start := time.Now()
	reply, err := ann.CheckModel(context.Background(), images[index])
	if err != nil {
		return fmt.Errorf("model check failed: %w", err)
	}
	log.Printf("model %s answered in %s", cfg.Suggest.Model, time.Since(start).Round(time.Millisecond))
	fmt.Println(reply)
	return nil
}

func runServer(ann *imageannotator.Annotator, cfg *config.Config, dir string, release bool) error {
	if release {
		gin.SetMode(gin.ReleaseMode)
	}

	sess := ann.NewSession()
	if err := sess.Open(dir); err != nil && !errors.Is(err, session.ErrNoImages) {
		return err
	}

	editor := api.NewServer(sess, ann)
	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: editor.Router(),
	}

	go func() {
		log.Printf("serving %s on %s", dir, api.Addr(cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	// Hijacked websocket connections outlive Shutdown; Close serializes with them.
	return editor.Close()
}
