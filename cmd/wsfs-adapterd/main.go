// wsfs-adapterd is the daemon that bridges a locally-mounted POSIX
// filesystem to a remote filesystem provider reached over a WebSocket.
//
// It listens for WebSocket connections speaking the fs.webfuse JSON-RPC
// dialect, creates one session per connection, and routes every
// add_filesystem call to a kernel filesystem mount via the configured
// mountpoint factory. The actual kernel-level FUSE integration is treated
// as an external collaborator with a stated interface; the factory below
// is the minimal stand-in a real deployment replaces with its platform's
// kernel glue.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/webfuse/adapter/internal/wsfs/auth"
	"github.com/webfuse/adapter/internal/wsfs/fsops"
	"github.com/webfuse/adapter/internal/wsfs/session"
	"github.com/webfuse/adapter/internal/wsfs/wsd"
)

// noopMountHandle satisfies session.MountHandle without binding a real
// kernel mount — the stand-in mentioned in the package doc above.
type noopMountHandle struct {
	fsName    string
	localPath string
}

func (h *noopMountHandle) Unmount() error {
	log.Printf("mountpoint_factory: unmount %q at %s (no-op, no kernel mount bound)", h.fsName, h.localPath)
	return nil
}

// defaultMountpointFactory is the Config.MountpointFactory used when no
// platform-specific kernel glue is wired in. It binds no kernel mount: it
// logs that the bridge is ready at localPath (a directory the session has
// already created) and returns a no-op MountHandle.
func defaultMountpointFactory(fsName, localPath string, bridge *fsops.Bridge) (session.MountHandle, error) {
	log.Printf("mountpoint_factory: %q ready at %s (bridge wired, no kernel mount bound)", fsName, localPath)
	return &noopMountHandle{fsName: fsName, localPath: localPath}, nil
}

// sharedSecretCredentials is the wire shape the built-in "shared_secret"
// authentication scheme expects as its credentials argument.
type sharedSecretCredentials struct {
	Principal string `json:"principal"`
	Secret    string `json:"secret"`
}

// newSharedSecretVerifier returns a Verifier that accepts any principal
// whose secret matches wantSecret, a minimal scheme that exercises the
// authenticator registry without depending on any external identity
// provider.
func newSharedSecretVerifier(wantSecret string) auth.Verifier {
	return func(credentials json.RawMessage) (string, error) {
		var creds sharedSecretCredentials
		if err := json.Unmarshal(credentials, &creds); err != nil {
			return "", fmt.Errorf("decode credentials: %w", err)
		}
		if creds.Principal == "" {
			return "", fmt.Errorf("missing principal")
		}
		if creds.Secret != wantSecret {
			return "", fmt.Errorf("secret mismatch for principal %q", creds.Principal)
		}
		return creds.Principal, nil
	}
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := wsd.DefaultConfig()
	if v := os.Getenv("WSFS_PORT"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Port)
	}
	if v := os.Getenv("WSFS_BASE_DIR"); v != "" {
		cfg.BaseDir = v
	}
	if v := os.Getenv("WSFS_DOCUMENT_ROOT"); v != "" {
		cfg.DocumentRoot = v
	}
	if v := os.Getenv("WSFS_TLS_CERT"); v != "" {
		cfg.TLSCertPath = v
	}
	if v := os.Getenv("WSFS_TLS_KEY"); v != "" {
		cfg.TLSKeyPath = v
	}
	cfg.MountpointFactory = defaultMountpointFactory

	if err := os.MkdirAll(cfg.BaseDir, 0755); err != nil {
		log.Fatalf("create base directory: %v", err)
	}

	registry := auth.NewRegistry()
	sharedSecret := os.Getenv("WSFS_SHARED_SECRET")
	if sharedSecret != "" {
		registry.Register("shared_secret", newSharedSecretVerifier(sharedSecret))
		log.Printf("wsfs-adapterd: shared_secret authentication enabled")
	}

	server := wsd.New(cfg, registry)

	go func() {
		if err := server.ListenAndServe(); err != nil {
			log.Fatalf("serve: %v", err)
		}
	}()

	log.Printf("wsfs-adapterd ready (pid %d, port %d, base %s, vhost %s)",
		os.Getpid(), cfg.Port, cfg.BaseDir, cfg.VHostName)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	log.Printf("received %v, shutting down", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}

	log.Println("wsfs-adapterd stopped")
}
