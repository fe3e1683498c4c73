package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/clarolang/claroterm/pkg/auth"
	"github.com/clarolang/claroterm/pkg/claro"
	"github.com/clarolang/claroterm/pkg/configuration"
	"github.com/clarolang/claroterm/pkg/logger"
	"github.com/clarolang/claroterm/pkg/storage"
	"github.com/clarolang/claroterm/pkg/terminal"
)

const version = "1.0.0"

func main() {
	var (
		serve       = flag.Bool("serve", false, "run the websocket terminal backend")
		interactive = flag.Bool("i", false, "start an interactive session after any script or -e statement")
		expr        = flag.String("e", "", "execute a single statement and exit")
		showVersion = flag.Bool("version", false, "print the version and exit")
		configPath  = flag.String("config", "settings.cfg", "path to the configuration file")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("claro %s\n", version)
		return
	}

	if err := configuration.Initialize(*configPath); err != nil {
		fmt.Printf("Error initializing configuration: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Initialize(); err != nil {
		fmt.Printf("Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()
	logger.Info(logger.AreaConfig, "Configuration loaded from %s", *configPath)

	if *serve {
		runServer()
		return
	}
	os.Exit(runCLI(*expr, *interactive, flag.Args()))
}

// localFS gives scripts run from the command line plain file access.
type localFS struct{}

func (localFS) ReadText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (localFS) WriteText(path, content string) error {
	return os.WriteFile(path, []byte(content), 0644)
}

func runCLI(expr string, interactive bool, args []string) int {
	interp := claro.New()
	interp.SetFileSystem(localFS{})

	reader := bufio.NewReader(os.Stdin)
	interp.SetInput(func(prompt string) (string, error) {
		fmt.Print(prompt + " ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(line), nil
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	flush := func() {
		for _, line := range interp.TakeOutput() {
			fmt.Println(line)
		}
	}

	if expr != "" {
		err := interp.ExecuteDirect(ctx, expr)
		flush()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		if !interactive {
			return 0
		}
	}

	if len(args) > 0 {
		src, err := os.ReadFile(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "cannot read %s: %v\n", args[0], err)
			return 1
		}
		interp.Load(string(src))
		err = interp.Run(ctx)
		flush()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		if !interactive {
			return 0
		}
	}

	return repl(ctx, interp, reader)
}

// repl reads statements from stdin and executes them as they complete.
// Lines that open a block are buffered until the matching END arrives.
func repl(ctx context.Context, interp *claro.Interp, reader *bufio.Reader) int {
	fmt.Printf("Claro %s interactive mode. Type EXIT to quit.\n", version)
	var pending []string
	for {
		if len(pending) > 0 {
			fmt.Print("... ")
		} else {
			fmt.Print("> ")
		}
		line, err := reader.ReadString('\n')
		if err != nil {
			fmt.Println()
			return 0
		}
		line = strings.TrimRight(line, "\r\n")
		trimmed := strings.TrimSpace(line)
		if len(pending) == 0 {
			if trimmed == "" {
				continue
			}
			if strings.EqualFold(trimmed, "EXIT") {
				return 0
			}
		}
		pending = append(pending, line)
		src := strings.Join(pending, "\n")
		if claro.NeedsContinuation(src) > 0 {
			continue
		}
		pending = nil
		err = interp.ExecuteDirect(ctx, src)
		for _, out := range interp.TakeOutput() {
			fmt.Println(out)
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
}

func runServer() {
	dbPath := configuration.GetString("Database", "path", "claroterm.db")
	store, err := storage.Open(dbPath)
	if err != nil {
		logger.Fatal(logger.AreaDatabase, "Database initialization failed: %v", err)
	}
	defer store.Close()
	logger.Info(logger.AreaDatabase, "Database ready at %s", dbPath)

	auth.SetUserStore(store)
	handler := terminal.NewHandler(store)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/login", auth.HandleLogin)
	mux.HandleFunc("/api/register", auth.HandleRegister)
	mux.HandleFunc("/api/validate", auth.HandleTokenValidation)
	mux.HandleFunc("/api/logout", auth.HandleLogout)
	mux.HandleFunc("/api/scripts", auth.RequireToken(handleScripts(store)))
	mux.HandleFunc("/ws", handler.HandleWebSocket)

	staticDir := configuration.GetString("Server", "static_dir", "static")
	mux.Handle("/", http.FileServer(http.Dir(staticDir)))

	addr := configuration.GetString("Server", "listen_address", ":8080")
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		if configuration.GetBool("Server", "enable_tls", false) {
			certFile := configuration.GetString("Server", "tls_cert_file", "")
			keyFile := configuration.GetString("Server", "tls_key_file", "")
			logger.Info(logger.AreaGeneral, "Listening on %s (TLS)", addr)
			errCh <- srv.ListenAndServeTLS(certFile, keyFile)
		} else {
			logger.Info(logger.AreaGeneral, "Listening on %s", addr)
			errCh <- srv.ListenAndServe()
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		logger.Fatal(logger.AreaGeneral, "Server stopped: %v", err)
	case sig := <-stop:
		logger.Info(logger.AreaGeneral, "Received %s, shutting down", sig)
	}

	timeout := configuration.GetDuration("Server", "shutdown_timeout", 10*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	handler.Shutdown()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error(logger.AreaGeneral, "Shutdown did not complete: %v", err)
	}
}

// handleScripts serves the script store over HTTP. The script name is
// passed as a query parameter, mirroring the websocket session commands.
func handleScripts(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := auth.IdentityFromContext(r.Context())
		if !ok {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}
		owner := identity.Username
		if owner == "" {
			owner = "guest:" + identity.SessionID
		}
		name := r.URL.Query().Get("name")

		switch r.Method {
		case http.MethodGet:
			if name == "" {
				infos, err := store.ListScripts(owner)
				if err != nil {
					logger.Error(logger.AreaDatabase, "Script listing failed for %s: %v", owner, err)
					http.Error(w, "Storage error", http.StatusInternalServerError)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(infos)
				return
			}
			content, err := store.LoadScript(owner, name)
			if errors.Is(err, storage.ErrScriptNotFound) {
				http.Error(w, "Script not found", http.StatusNotFound)
				return
			}
			if err != nil {
				logger.Error(logger.AreaDatabase, "Script load failed for %s/%s: %v", owner, name, err)
				http.Error(w, "Storage error", http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Write([]byte(content))

		case http.MethodPut, http.MethodPost:
			if name == "" {
				http.Error(w, "Missing name parameter", http.StatusBadRequest)
				return
			}
			body, err := io.ReadAll(r.Body)
			if err != nil {
				http.Error(w, "Cannot read request body", http.StatusBadRequest)
				return
			}
			if err := store.SaveScript(owner, name, string(body)); err != nil {
				logger.Error(logger.AreaDatabase, "Script save failed for %s/%s: %v", owner, name, err)
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			w.WriteHeader(http.StatusNoContent)

		case http.MethodDelete:
			if name == "" {
				http.Error(w, "Missing name parameter", http.StatusBadRequest)
				return
			}
			err := store.DeleteScript(owner, name)
			if errors.Is(err, storage.ErrScriptNotFound) {
				http.Error(w, "Script not found", http.StatusNotFound)
				return
			}
			if err != nil {
				logger.Error(logger.AreaDatabase, "Script delete failed for %s/%s: %v", owner, name, err)
				http.Error(w, "Storage error", http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusNoContent)

		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}
}
