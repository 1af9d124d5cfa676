package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tokligence/docchat/internal/config"
	"github.com/tokligence/docchat/internal/modelclient/loopback"
	"github.com/tokligence/docchat/internal/store"
	"github.com/tokligence/docchat/internal/store/async"
)

func TestInitCreatesConfigFiles(t *testing.T) {
	tmp := t.TempDir()
	opts := InitOptions{
		Root:         tmp,
		StoreDSN:     filepath.Join(tmp, "docchat.db"),
		ModelBaseURL: "http://gpu-box:11434",
		Model:        "mistral",
	}
	if err := Init(opts); err != nil {
		t.Fatalf("Init: %v", err)
	}

	settingBytes, err := os.ReadFile(filepath.Join(tmp, "config", "setting.ini"))
	if err != nil {
		t.Fatalf("read setting: %v", err)
	}
	if !strings.Contains(string(settingBytes), "environment=dev") {
		t.Fatalf("missing environment: %s", settingBytes)
	}

	envBytes, err := os.ReadFile(filepath.Join(tmp, "config", "dev", "docchat.ini"))
	if err != nil {
		t.Fatalf("read env config: %v", err)
	}
	content := string(envBytes)
	if !strings.Contains(content, "model_base_url=http://gpu-box:11434") {
		t.Fatalf("missing base url: %s", content)
	}
	if !strings.Contains(content, "model=mistral") {
		t.Fatalf("missing model: %s", content)
	}

	cfg, err := config.Load(tmp)
	if err != nil {
		t.Fatalf("scaffolded config does not load: %v", err)
	}
	if cfg.Model != "mistral" || cfg.StoreDSN != opts.StoreDSN {
		t.Fatalf("unexpected loaded config %+v", cfg)
	}
}

func TestInitRespectsForce(t *testing.T) {
	tmp := t.TempDir()
	opts := InitOptions{Root: tmp}
	if err := Init(opts); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := Init(opts); err == nil {
		t.Fatalf("expected error when files exist")
	}
	opts.Force = true
	if err := Init(opts); err != nil {
		t.Fatalf("Init with force: %v", err)
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(InitOptions{StoreDriver: "redis"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
	if err := Validate(InitOptions{StoreDriver: config.DriverPostgres}); err == nil {
		t.Fatalf("expected missing dsn error")
	}
	if err := Validate(InitOptions{ModelBackend: "openai"}); err == nil {
		t.Fatalf("expected unknown backend error")
	}
	if err := Validate(InitOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestOpenStoreWrapsAsync(t *testing.T) {
	cfg := config.Config{
		StoreDriver:  config.DriverSQLite,
		StoreDSN:     filepath.Join(t.TempDir(), "docchat.db"),
		AsyncEnabled: true,
	}
	st, err := OpenStore(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer st.Close()
	if _, ok := st.(*async.Store); !ok {
		t.Fatalf("expected async wrapper, got %T", st)
	}
	doc, err := st.CreateDocument(context.Background(), store.Document{Name: "a.txt", Kind: "txt", Text: "hello"})
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	if err := st.AppendMessage(context.Background(), store.Message{DocumentID: doc.ID, Sender: store.SenderUser, Text: "hi"}); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	msgs, err := st.ListMessages(context.Background(), doc.ID, 0)
	if err != nil || len(msgs) != 1 {
		t.Fatalf("ListMessages = %v, %v", msgs, err)
	}
}

func TestOpenStoreRejectsUnknownDriver(t *testing.T) {
	if _, err := OpenStore(context.Background(), config.Config{StoreDriver: "redis"}, nil); err == nil {
		t.Fatalf("expected error")
	}
}

func TestOpenModelLoopback(t *testing.T) {
	m, err := OpenModel(config.Config{ModelBackend: config.BackendLoopback}, nil)
	if err != nil {
		t.Fatalf("OpenModel: %v", err)
	}
	defer m.Close()
	if m.Model() != loopback.ModelName {
		t.Fatalf("unexpected model %s", m.Model())
	}
	if err := m.Heartbeat(context.Background()); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
}

func TestOpenModelRemoteDoesNotDial(t *testing.T) {
	m, err := OpenModel(config.Config{ModelBackend: config.BackendOllama, ModelBaseURL: "http://127.0.0.1:1", Model: "llama3"}, nil)
	if err != nil {
		t.Fatalf("OpenModel: %v", err)
	}
	if m.Model() != "llama3" {
		t.Fatalf("unexpected model %s", m.Model())
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
