package main

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	installcommand "github.com/goliatone/go-appinstall/command"
	"github.com/goliatone/go-appinstall/core"
	installquery "github.com/goliatone/go-appinstall/query"
	"github.com/goliatone/go-appinstall/server"
)

func sqliteFileConfig(t *testing.T) (fileConfig, string) {
	t.Helper()
	dir := t.TempDir()
	file := defaultFileConfig()
	file.Database.Driver = driverSQLite
	file.Database.DSN = fmt.Sprintf("file:%s?_foreign_keys=on", filepath.Join(dir, "appinstall.db"))
	return file, writeFile(t, dir, ".env", testSecretsFile)
}

func TestBuildRuntime_ServeWiring_SQLite(t *testing.T) {
	file, secrets := sqliteFileConfig(t)
	logger := newLogger(&bytes.Buffer{}, "error", "text")

	rt, err := buildRuntime(context.Background(), file, logger, runtimeOptions{secretsPath: secrets, migrate: true})
	if err != nil {
		t.Fatalf("serve runtime failed to build: %v", err)
	}
	defer rt.Close()

	if rt.service == nil || rt.sessions == nil || rt.recorder == nil {
		t.Fatalf("expected service, sessions and recorder wired")
	}
	for _, id := range []string{installcommand.TypeBeginInstall, installcommand.TypeCompleteInstall} {
		if _, ok := rt.queue.Get(id); !ok {
			t.Fatalf("expected %s mirrored into the queue registry", id)
		}
	}
	if _, ok := rt.queue.Get(installquery.TypeListCredentials); ok {
		t.Fatalf("expected list query kept off the queue registry")
	}
	if rt.completion != nil || len(rt.redis) != 0 {
		t.Fatalf("expected no job queue without jobs.enabled")
	}
	if err := rt.startCompletionWorker(context.Background()); err != nil || rt.worker != nil {
		t.Fatalf("expected worker start to be a no-op, got %v", err)
	}
	if _, err := server.New(rt.service, rt.sessions, rt.serverOptions()...); err != nil {
		t.Fatalf("new server: %v", err)
	}
}

func TestBuildRuntime_JobsShareSessionRedis(t *testing.T) {
	redisServer := miniredis.RunT(t)
	file, secrets := sqliteFileConfig(t)
	file.Session.Backend = sessionBackendRedis
	file.Session.RedisAddr = redisServer.Addr()
	file.Jobs.Enabled = true
	file.Jobs.Queue = "appinstall-test"
	logger := newLogger(&bytes.Buffer{}, "error", "text")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rt, err := buildRuntime(ctx, file, logger, runtimeOptions{secretsPath: secrets, migrate: true})
	if err != nil {
		t.Fatalf("build runtime: %v", err)
	}
	defer rt.Close()

	if len(rt.redis) != 1 {
		t.Fatalf("expected sessions and jobs to share one redis client, got %d", len(rt.redis))
	}
	if rt.completion == nil || rt.jobQueue == nil {
		t.Fatalf("expected completion queue wired")
	}
	if len(rt.serverOptions()) != 3 {
		t.Fatalf("expected completion queue passed to the server")
	}

	params := core.CallbackParams{Values: map[string]string{
		"shop":  "acme.myshopify.com",
		"code":  "0907a61c0c8d55e99db179b68161bc00",
		"state": "1700000000",
		"hmac":  "deadbeef",
	}}
	if err := rt.completion.EnqueueCompleteInstall(ctx, params); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	ready, err := redisServer.List("appinstall-test:ready")
	if err != nil || len(ready) != 1 {
		t.Fatalf("expected one ready message, got %v %v", ready, err)
	}

	if err := rt.startCompletionWorker(ctx); err != nil {
		t.Fatalf("start worker: %v", err)
	}
	if rt.worker == nil {
		t.Fatalf("expected running completion worker")
	}
}

func TestLoadSecrets_EmptyPathReadsEnvironment(t *testing.T) {
	t.Setenv("PROVIDER_API_KEY", "env_client")
	t.Setenv("PROVIDER_SECRET", "env_secret")
	file := defaultFileConfig()
	file.Secrets.Path = ""

	secrets, err := loadSecrets(file, "")
	if err != nil {
		t.Fatalf("load secrets: %v", err)
	}
	if secrets.ClientID != "env_client" || secrets.ClientSecret != "env_secret" {
		t.Fatalf("expected environment secrets, got %#v", secrets)
	}
}
