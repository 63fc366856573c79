// Command glide summarizes an email from a file using a local (or, for
// development, remote) language model and streams the summary to stdout.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	glide "github.com/namuan/inbox-glide-sub001"
	"github.com/namuan/inbox-glide-sub001/src/cache"
	"github.com/namuan/inbox-glide-sub001/src/mail"
	"github.com/namuan/inbox-glide-sub001/src/models"
)

func main() {
	configPath := flag.String("config", "", "Config file (default $HOME/.config/glide/config.yaml)")
	subject := flag.String("subject", "", "Email subject line")
	sender := flag.String("from", "", "Email sender")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: glide [flags] <email-body-file>")
		os.Exit(2)
	}

	v := viper.New()
	v.SetDefault("provider", "ollama")
	v.SetDefault("model", "llama3.2:3b")
	v.SetDefault("cache.backend", "file")
	v.SetDefault("cache.path", defaultCachePath())
	v.SetDefault("call_timeout_sec", 30)
	v.SetEnvPrefix("GLIDE")
	v.AutomaticEnv()
	if *configPath != "" {
		v.SetConfigFile(*configPath)
		if err := v.ReadInConfig(); err != nil {
			log.Fatalf("read config: %v", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(filepath.Join(configDir(), "glide"))
		_ = v.ReadInConfig() // optional
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	model, err := models.NewProvider(ctx, v.GetString("provider"), v.GetString("model"))
	if err != nil {
		log.Fatalf("model init: %v", err)
	}

	store, err := openStore(ctx, v)
	if err != nil {
		log.Fatalf("cache init: %v", err)
	}

	engine, err := glide.New(glide.Options{
		Model:       model,
		Store:       store,
		CallTimeout: time.Duration(v.GetInt("call_timeout_sec")) * time.Second,
	})
	if err != nil {
		log.Fatalf("engine init: %v", err)
	}
	defer engine.Close()

	body, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		log.Fatalf("read email: %v", err)
	}

	engine.Prewarm(ctx)

	msg := mail.EmailMessage{
		ID:         flag.Arg(0),
		Subject:    *subject,
		Sender:     *sender,
		Body:       string(body),
		ReceivedAt: time.Now(),
	}

	handle, err := engine.RequestSummary(ctx, msg)
	if err != nil {
		log.Fatalf("request: %v", err)
	}

	for u := range handle.Updates() {
		switch {
		case u.Err != nil:
			log.Fatalf("summarization cancelled: %v", u.Err)
		case u.Final != nil:
			out, _ := json.MarshalIndent(u.Final, "", "  ")
			fmt.Printf("\n%s\n", out)
		case u.Partial != nil:
			fmt.Printf("\r%-80.80s", u.Partial.Headline)
		}
	}
}

func openStore(ctx context.Context, v *viper.Viper) (cache.Store, error) {
	switch backend := v.GetString("cache.backend"); backend {
	case "memory":
		return cache.NewMemoryStore(v.GetInt("cache.capacity")), nil
	case "file":
		path := v.GetString("cache.path")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		return cache.NewFileStore(path)
	case "postgres":
		return cache.NewPostgresStore(ctx, v.GetString("cache.dsn"))
	case "mongo":
		return cache.NewMongoStore(ctx, v.GetString("cache.uri"), v.GetString("cache.database"), v.GetString("cache.collection"))
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", backend)
	}
}

func configDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir
	}
	return "."
}

func defaultCachePath() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "glide", "summaries.json")
	}
	return "glide-summaries.json"
}
